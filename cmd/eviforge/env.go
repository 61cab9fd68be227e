package main

import (
	"fmt"
	"log/slog"
	"os"

	"eviforge/internal/cases"
	"eviforge/internal/config"
	"eviforge/internal/custody"
	"eviforge/internal/engine"
	"eviforge/internal/models"
	"eviforge/internal/modules"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

// runtime holds the wired core shared by every command that operates
// on the local deployment.
type runtime struct {
	cfg      *config.Config
	store    *store.Store
	vault    *vault.Vault
	ledger   *custody.Ledger
	registry *modules.Registry
	service  *cases.Service
	engine   *engine.Engine
}

// openRuntime is the startup reconciliation step: directories are
// created, the schema is migrated, and module tools are probed before
// any command logic runs. The config travels through here explicitly.
func openRuntime(cfg *config.Config) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	v, err := vault.New(cfg.VaultDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry, err := modules.NewRegistry(modules.Builtin()...)
	if err != nil {
		st.Close()
		return nil, err
	}
	for _, d := range registry.List() {
		if d.Tool != "" && !d.Available {
			slog.Warn("module tool not found on PATH", "module", d.Name, "tool", d.Tool)
		}
	}

	ledger := custody.New(v.LedgerPath)

	return &runtime{
		cfg:      cfg,
		store:    st,
		vault:    v,
		ledger:   ledger,
		registry: registry,
		service:  cases.NewService(st, v, ledger),
		engine:   engine.New(st, v, ledger, registry, cfg.JobTimeout, nil),
	}, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.Close()
	}
}

func (rt *runtime) execMode() (models.ExecMode, error) {
	return models.ParseExecMode(rt.cfg.ExecutionMode)
}
