package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/esxi-migration-agent/api/v1"
	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
)

// GetPlatforms lists the registered platforms
// (GET /platforms)
func (h *Handler) GetPlatforms(c *gin.Context) {
	sources, destinations := h.registry.Platforms()

	resp := v1.Platforms{
		Sources:      make([]string, 0, len(sources)),
		Destinations: make([]string, 0, len(destinations)),
	}
	for _, p := range sources {
		resp.Sources = append(resp.Sources, string(p))
	}
	for _, p := range destinations {
		resp.Destinations = append(resp.Destinations, string(p))
	}

	c.JSON(http.StatusOK, resp)
}

// ListSessions returns every session, most recently updated first
// (GET /sessions)
func (h *Handler) ListSessions(c *gin.Context) {
	statuses := h.sessions.List()

	resp := v1.SessionList{Sessions: make([]v1.SessionStatus, 0, len(statuses))}
	for _, s := range statuses {
		resp.Sessions = append(resp.Sessions, v1.NewSessionStatus(s))
	}

	c.JSON(http.StatusOK, resp)
}

// (POST /sessions)
func (h *Handler) CreateSession(c *gin.Context) {
	w := h.sessions.Create()
	c.JSON(http.StatusCreated, v1.NewSessionStatus(w.Status()))
}

// (GET /sessions/{id})
func (h *Handler) GetSession(c *gin.Context, id uuid.UUID) {
	w, err := h.sessions.Get(id)
	if err != nil {
		h.abortWithError(c, "failed to get session", err)
		return
	}
	c.JSON(http.StatusOK, v1.NewSessionStatus(w.Status()))
}

// DeleteSession closes the platform sessions and forgets the session.
// A session with a running migration is kept
// (DELETE /sessions/{id})
func (h *Handler) DeleteSession(c *gin.Context, id uuid.UUID) {
	if err := h.sessions.Remove(c.Request.Context(), id); err != nil {
		h.abortWithError(c, "failed to remove session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// (PUT /sessions/{id}/platforms)
func (h *Handler) SelectPlatforms(c *gin.Context, id uuid.UUID) {
	var req v1.SelectPlatformsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.transition(c, id, "failed to select platforms", func(w *services.Workflow) error {
		return w.SelectPlatforms(c.Request.Context(), models.Platform(req.Source), models.Platform(req.Destination))
	})
}

// (PUT /sessions/{id}/source)
func (h *Handler) ConnectSource(c *gin.Context, id uuid.UUID) {
	var req v1.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.transition(c, id, "failed to connect source", func(w *services.Workflow) error {
		return w.ConnectSource(c.Request.Context(), req.ToModel())
	})
}

// SelectVMs parses the operator selection ("1,3,5-7") against the inventory
// (PUT /sessions/{id}/selection)
func (h *Handler) SelectVMs(c *gin.Context, id uuid.UUID) {
	var req v1.SelectVMsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	w, err := h.sessions.Get(id)
	if err != nil {
		h.abortWithError(c, "failed to get session", err)
		return
	}

	selected, err := w.SelectVMs(c.Request.Context(), req.Selection)
	if err != nil {
		h.abortWithError(c, "failed to select vms", err)
		return
	}

	c.JSON(http.StatusOK, v1.SelectVMsResponse{Selected: selected})
}

// (PUT /sessions/{id}/destination)
func (h *Handler) ConnectDestination(c *gin.Context, id uuid.UUID) {
	var req v1.ConnectDestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	destReq := services.DestinationRequest{Credentials: req.ToModel()}
	if req.StoragePool != nil {
		destReq.StoragePool = *req.StoragePool
	}

	h.transition(c, id, "failed to connect destination", func(w *services.Workflow) error {
		return w.ConnectDestination(c.Request.Context(), destReq)
	})
}

// StartMigration runs the migration in the background and answers once the
// session is running. Poll GET /sessions/{id} for the result
// (POST /sessions/{id}/migration)
func (h *Handler) StartMigration(c *gin.Context, id uuid.UUID) {
	w, err := h.sessions.Get(id)
	if err != nil {
		h.abortWithError(c, "failed to get session", err)
		return
	}

	done, err := w.Start(h.ctx)
	if err != nil {
		h.abortWithError(c, "failed to start migration", err)
		return
	}

	go func() {
		outcome := <-done
		if outcome.Err != nil {
			zap.S().Named("handler").Errorw("migration failed", "session_id", id, "error", outcome.Err)
			return
		}
		zap.S().Named("handler").Infow("migration finished", "session_id", id,
			"succeeded", outcome.Result.SucceededCount, "failed", outcome.Result.FailedCount, "aborted", outcome.Result.Aborted)
	}()

	c.JSON(http.StatusAccepted, v1.NewSessionStatus(w.Status()))
}

// AbortMigration stops dispatching VMs. VMs already in flight finish
// (DELETE /sessions/{id}/migration)
func (h *Handler) AbortMigration(c *gin.Context, id uuid.UUID) {
	w, err := h.sessions.Get(id)
	if err != nil {
		h.abortWithError(c, "failed to get session", err)
		return
	}

	if err := w.Abort(); err != nil {
		h.abortWithError(c, "failed to abort migration", err)
		return
	}

	c.JSON(http.StatusAccepted, v1.NewSessionStatus(w.Status()))
}

func (h *Handler) transition(c *gin.Context, id uuid.UUID, msg string, fn func(*services.Workflow) error) {
	w, err := h.sessions.Get(id)
	if err != nil {
		h.abortWithError(c, "failed to get session", err)
		return
	}

	if err := fn(w); err != nil {
		h.abortWithError(c, msg, err)
		return
	}

	c.JSON(http.StatusOK, v1.NewSessionStatus(w.Status()))
}
