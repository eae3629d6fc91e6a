package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/config"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/internal/store"
	"github.com/kubev2v/esxi-migration-agent/internal/store/migrations"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	"github.com/kubev2v/esxi-migration-agent/pkg/kvm"
	"github.com/kubev2v/esxi-migration-agent/pkg/proxmox"
	"github.com/kubev2v/esxi-migration-agent/pkg/scheduler"
	"github.com/kubev2v/esxi-migration-agent/pkg/vmware"
)

// agent holds everything the commands share.
type agent struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	registry  *connector.Registry
	sessions  *services.Sessions
	runs      *services.RunService
}

func newAgent(ctx context.Context, cfg *config.Configuration) (*agent, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := newRegistry(cfg)
	sched := scheduler.NewScheduler(cfg.Agent.NumWorkers)
	orchestrator := services.NewOrchestrator(sched, st.Runs(), services.OrchestratorConfig{
		StepTimeout:          cfg.Migration.StepTimeout,
		MaxRetries:           cfg.Migration.MaxRetries,
		RetryInitialInterval: cfg.Migration.RetryInitialInterval,
		RetryMaxInterval:     cfg.Migration.RetryMaxInterval,
	})

	return &agent{
		store:     st,
		scheduler: sched,
		registry:  registry,
		sessions:  services.NewSessions(registry, st.Configuration(), orchestrator),
		runs:      services.NewRunService(st),
	}, nil
}

func (a *agent) Close(ctx context.Context) {
	a.sessions.Close(ctx)
	a.scheduler.Close()
	if err := a.store.Close(); err != nil {
		zap.S().Named("agent").Warnw("failed to close store", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Configuration) (*store.Store, error) {
	if err := os.MkdirAll(cfg.Agent.DataFolder, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data folder: %w", err)
	}

	db, err := store.NewDB(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate run history: %w", err)
	}

	return store.NewStore(db, cfg.DocumentPath()), nil
}

func newRegistry(cfg *config.Configuration) *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterSource(vmware.NewSourceConnector(
		vmware.WithPort(cfg.Migration.ESXiPort),
		vmware.WithPrivilegeValidation(cfg.Migration.ValidateSourcePrivileges),
	))
	registry.RegisterDestination(proxmox.NewConnector(
		proxmox.WithAPIPort(cfg.Migration.ProxmoxAPIPort),
		proxmox.WithSSHPort(cfg.Migration.SSHPort),
		proxmox.WithVisibilityTimeout(cfg.Migration.VisibilityTimeout),
	))
	registry.RegisterDestination(kvm.NewConnector(
		kvm.WithSSHPort(cfg.Migration.SSHPort),
	))
	return registry
}
