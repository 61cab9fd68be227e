package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
)

func newVerifyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <case-id>",
		Short: "Re-verify the custody chain and every evidence digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				if err := writeJSON(report); err != nil {
					return err
				}
			} else {
				status := "valid"
				if !report.Ledger.Valid {
					status = fmt.Sprintf("BROKEN at seq %d", report.Ledger.BrokenSeq)
				}
				if err := writePlain("ledger: %s (%d entries)\n", status, report.Ledger.Entries); err != nil {
					return err
				}
				for _, check := range report.Evidence {
					mark := "ok"
					if !check.OK {
						mark = "FAILED: " + check.Error
					}
					if err := writePlain("evidence %s %s: %s\n", check.EvidenceID, check.VaultPath, mark); err != nil {
						return err
					}
				}
			}
			if !report.OK {
				return fmt.Errorf("verification failed for case %s", args[0])
			}
			return nil
		},
	}
}
