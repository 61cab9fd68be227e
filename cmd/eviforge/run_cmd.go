package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eviforge/internal/config"
	"eviforge/internal/dispatch"
	"eviforge/internal/models"
)

func newRunCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var evidenceID string

	cmd := &cobra.Command{
		Use:   "run <case-id> <module>",
		Short: "Run a module job against case evidence and wait for it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			caseID, moduleName := args[0], args[1]
			target := evidenceID
			if target == "" {
				// Default to the only evidence item when the case has
				// exactly one.
				items, err := rt.store.ListEvidenceByCase(cmd.Context(), caseID)
				if err != nil {
					return err
				}
				if len(items) != 1 {
					return fmt.Errorf("case has %d evidence items; pass --evidence", len(items))
				}
				target = items[0].ID
			}

			// CLI-submitted jobs always run in-process; a queued job
			// would outlive this one-shot command.
			dispatcher := dispatch.New(dispatch.Options{
				Mode:          models.ModeInline,
				Store:         rt.store,
				Registry:      rt.registry,
				Runner:        rt.engine,
				InlineWorkers: 1,
			})

			job, err := dispatcher.Submit(cmd.Context(), caseID, target, moduleName)
			if err != nil {
				return err
			}
			dispatcher.Pool().Wait()

			job, err = rt.store.GetJob(cmd.Context(), caseID, job.Seq)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(job)
			}
			return writeJobLine(*job)
		},
	}

	cmd.Flags().StringVar(&evidenceID, "evidence", "", "evidence id to run against")
	return cmd
}
