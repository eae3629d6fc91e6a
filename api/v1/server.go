package v1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /platforms)
	GetPlatforms(c *gin.Context)
	// (GET /configuration)
	GetConfiguration(c *gin.Context)
	// (PUT /configuration/operational)
	UpdateOperational(c *gin.Context)
	// (GET /sessions)
	ListSessions(c *gin.Context)
	// (POST /sessions)
	CreateSession(c *gin.Context)
	// (GET /sessions/{id})
	GetSession(c *gin.Context, id uuid.UUID)
	// (DELETE /sessions/{id})
	DeleteSession(c *gin.Context, id uuid.UUID)
	// (PUT /sessions/{id}/platforms)
	SelectPlatforms(c *gin.Context, id uuid.UUID)
	// (PUT /sessions/{id}/source)
	ConnectSource(c *gin.Context, id uuid.UUID)
	// (PUT /sessions/{id}/selection)
	SelectVMs(c *gin.Context, id uuid.UUID)
	// (PUT /sessions/{id}/destination)
	ConnectDestination(c *gin.Context, id uuid.UUID)
	// (POST /sessions/{id}/migration)
	StartMigration(c *gin.Context, id uuid.UUID)
	// (DELETE /sessions/{id}/migration)
	AbortMigration(c *gin.Context, id uuid.UUID)
	// (GET /runs)
	ListRuns(c *gin.Context, params ListRunsParams)
	// (GET /runs/{id})
	GetRun(c *gin.Context, id uuid.UUID)
	// (GET /runs/{id}/report)
	GetRunReport(c *gin.Context, id uuid.UUID)
}

type serverWrapper struct {
	handler ServerInterface
}

func (w *serverWrapper) withID(fn func(*gin.Context, uuid.UUID)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, Error{Error: fmt.Sprintf("invalid format for parameter id: %s", err)})
			return
		}
		fn(c, id)
	}
}

func (w *serverWrapper) listRuns(c *gin.Context) {
	var params ListRunsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: fmt.Sprintf("invalid query parameters: %s", err)})
		return
	}
	w.handler.ListRuns(c, params)
}

// RegisterHandlers adds each server route to the router.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	w := &serverWrapper{handler: si}

	router.GET("/platforms", si.GetPlatforms)
	router.GET("/configuration", si.GetConfiguration)
	router.PUT("/configuration/operational", si.UpdateOperational)

	router.GET("/sessions", si.ListSessions)
	router.POST("/sessions", si.CreateSession)
	router.GET("/sessions/:id", w.withID(si.GetSession))
	router.DELETE("/sessions/:id", w.withID(si.DeleteSession))
	router.PUT("/sessions/:id/platforms", w.withID(si.SelectPlatforms))
	router.PUT("/sessions/:id/source", w.withID(si.ConnectSource))
	router.PUT("/sessions/:id/selection", w.withID(si.SelectVMs))
	router.PUT("/sessions/:id/destination", w.withID(si.ConnectDestination))
	router.POST("/sessions/:id/migration", w.withID(si.StartMigration))
	router.DELETE("/sessions/:id/migration", w.withID(si.AbortMigration))

	router.GET("/runs", w.listRuns)
	router.GET("/runs/:id", w.withID(si.GetRun))
	router.GET("/runs/:id/report", w.withID(si.GetRunReport))
}
