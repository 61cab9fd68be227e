// Package modules defines the capability contract forensic modules
// satisfy and the startup-built registry the dispatcher consults.
package modules

import (
	"context"

	"eviforge/internal/models"
)

// Invocation hands a module everything it may touch: the evidence
// record, the absolute location of its immutable vault copy, and a
// job-scoped output directory. A module must not write outside
// OutputDir.
type Invocation struct {
	Evidence     models.Evidence
	EvidencePath string
	OutputDir    string
}

// Outcome is a module's structured result. Artifacts are paths
// relative to the invocation's output directory. Reason carries the
// module's own failure code when OK is false.
type Outcome struct {
	OK        bool
	Reason    string
	Artifacts []string
	Findings  map[string]any
}

// Module is the closed capability contract. Implementations declare a
// stable unique name, an optional external tool used for availability
// probing, and an evidence-compatibility predicate the dispatcher
// checks before a job is ever created. Run must be safely re-runnable:
// output lands in a job-scoped directory, so prior artifacts are
// superseded by path convention, never overwritten.
type Module interface {
	Name() string
	Tool() string
	Accepts(ev models.Evidence) bool
	Run(ctx context.Context, inv Invocation) (Outcome, error)
}
