package main

import (
	"os"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
)

func newExportCmd(cfg *config.Config) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <case-id>",
		Short: "Export a case as a YAML bundle for offline verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			bundle, err := rt.service.ExportBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return bundle.WriteYAML(out)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the bundle to a file instead of stdout")
	return cmd
}
