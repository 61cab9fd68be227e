package main

import (
	"github.com/spf13/cobra"

	"eviforge/internal/config"
)

func newIngestCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <case-id> <file>...",
		Short: "Copy files into the case vault as evidence",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			caseID := args[0]
			for _, path := range args[1:] {
				ev, err := rt.service.IngestFile(cmd.Context(), cfg.Actor, caseID, path)
				if err != nil {
					return err
				}
				if *jsonOutput {
					if err := writeJSON(ev); err != nil {
						return err
					}
					continue
				}
				if err := writeEvidenceLine(*ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
