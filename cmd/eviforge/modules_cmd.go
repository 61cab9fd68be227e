package main

import (
	"github.com/spf13/cobra"

	"eviforge/internal/config"
	"eviforge/internal/modules"
)

func newModulesCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List registered modules and tool availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := modules.NewRegistry(modules.Builtin()...)
			if err != nil {
				return err
			}

			descriptors := registry.List()
			if *jsonOutput {
				return writeJSON(descriptors)
			}
			for _, d := range descriptors {
				avail := "available"
				if !d.Available {
					avail = "tool missing: " + d.Tool
				}
				tool := d.Tool
				if tool == "" {
					tool = "-"
				}
				if err := writePlain("%-12s  %-10s  %s\n", d.Name, tool, avail); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
