package handlers

import (
	"context"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
)

// ConfigurationStore is the part of the document store exposed over HTTP.
type ConfigurationStore interface {
	Load(ctx context.Context) (*models.ConfigDocument, error)
	UpdateOperational(ctx context.Context, op models.Operational) (*models.ConfigDocument, error)
}

type Handler struct {
	// ctx outlives requests; background migrations run under it.
	ctx      context.Context
	registry *connector.Registry
	sessions *services.Sessions
	runSrv   *services.RunService
	docs     ConfigurationStore
}

func New(ctx context.Context, registry *connector.Registry, sessions *services.Sessions, runSrv *services.RunService, docs ConfigurationStore) *Handler {
	return &Handler{
		ctx:      ctx,
		registry: registry,
		sessions: sessions,
		runSrv:   runSrv,
		docs:     docs,
	}
}
