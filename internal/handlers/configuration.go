package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/kubev2v/esxi-migration-agent/api/v1"
)

// GetConfiguration returns the persisted document without credentials
// (GET /configuration)
func (h *Handler) GetConfiguration(c *gin.Context) {
	doc, err := h.docs.Load(c.Request.Context())
	if err != nil {
		h.abortWithError(c, "failed to load configuration", err)
		return
	}
	c.JSON(http.StatusOK, v1.NewConfigurationFromModel(*doc))
}

// UpdateOperational replaces the export tooling parameters used by the
// next destination connection
// (PUT /configuration/operational)
func (h *Handler) UpdateOperational(c *gin.Context) {
	var req v1.Operational
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	doc, err := h.docs.UpdateOperational(c.Request.Context(), req.ToModel())
	if err != nil {
		h.abortWithError(c, "failed to update configuration", err)
		return
	}
	c.JSON(http.StatusOK, v1.NewConfigurationFromModel(*doc))
}
