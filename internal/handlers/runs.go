package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/kubev2v/esxi-migration-agent/api/v1"
	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/pkg/report"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListRuns returns the migration history, newest first
// (GET /runs)
func (h *Handler) ListRuns(c *gin.Context, params v1.ListRunsParams) {
	page := 1
	if params.Page != nil && *params.Page > 0 {
		page = *params.Page
	}
	pageSize := defaultPageSize
	if params.PageSize != nil && *params.PageSize > 0 {
		pageSize = min(*params.PageSize, maxPageSize)
	}

	svcParams := services.RunListParams{
		Limit:  uint64(pageSize),
		Offset: uint64((page - 1) * pageSize),
	}
	for _, d := range params.Destination {
		p, err := models.ParsePlatform(d)
		if err != nil {
			badRequest(c, err)
			return
		}
		svcParams.Destinations = append(svcParams.Destinations, p)
	}
	if params.Failed != nil {
		svcParams.FailedOnly = *params.Failed
	}

	result, err := h.runSrv.List(c.Request.Context(), svcParams)
	if err != nil {
		h.abortWithError(c, "failed to list runs", err)
		return
	}

	pageCount := (result.Total + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}

	runs := make([]v1.MigrationResult, 0, len(result.Runs))
	for _, r := range result.Runs {
		runs = append(runs, v1.NewMigrationResultFromModel(r))
	}

	c.JSON(http.StatusOK, v1.RunListResponse{
		Page:      page,
		PageCount: pageCount,
		Total:     result.Total,
		Runs:      runs,
	})
}

// (GET /runs/{id})
func (h *Handler) GetRun(c *gin.Context, id uuid.UUID) {
	run, err := h.runSrv.Get(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "failed to get run", err)
		return
	}
	c.JSON(http.StatusOK, v1.NewMigrationResultFromModel(*run))
}

// GetRunReport downloads the run as an xlsx workbook
// (GET /runs/{id}/report)
func (h *Handler) GetRunReport(c *gin.Context, id uuid.UUID) {
	run, err := h.runSrv.Get(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "failed to get run", err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, *run); err != nil {
		h.abortWithError(c, "failed to render report", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(*run)))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}
