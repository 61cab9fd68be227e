package main

import (
	"strings"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
)

func newCaseCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage forensic cases",
	}
	cmd.AddCommand(
		newCaseCreateCmd(cfg, jsonOutput),
		newCaseListCmd(cfg, jsonOutput),
		newCaseCloseCmd(cfg, jsonOutput),
	)
	return cmd
}

func newCaseCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Open a new case",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			c, err := rt.service.CreateCase(cmd.Context(), cfg.Actor, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(c)
			}
			return writePlain("%s\n", c.ID)
		},
	}
}

func newCaseListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.store.ListCases(cmd.Context())
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(items)
			}
			for _, c := range items {
				if err := writeCaseLine(c); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCaseCloseCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "close <case-id>",
		Short: "Close a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			c, err := rt.service.CloseCase(cmd.Context(), cfg.Actor, args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(c)
			}
			return writePlain("closed %s\n", c.ID)
		},
	}
}
