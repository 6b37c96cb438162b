// Package httpapi exposes the JSON surface from spec.md §6: transcription
// submission and lifecycle, tag and summary CRUD, config management, and
// the WebSocket push channel. Handlers are thin: they translate HTTP
// concerns and delegate to the orchestrator, store, tagconfig, and
// summarizer packages.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribe/internal/artifact"
	"scribe/internal/orchestrator"
	"scribe/internal/push"
	"scribe/internal/store"
	"scribe/internal/tagconfig"
)

// Deps bundles every collaborator SetupRoutes wires into handlers.
type Deps struct {
	Store        *store.Store
	Artifacts    *artifact.Store
	Orchestrator *orchestrator.Orchestrator
	Hub          *push.Hub
	TagConfig    *tagconfig.Store
}

// SetupRoutes registers every handler from spec.md §6 on r.
func SetupRoutes(r *gin.Engine, d Deps) {
	r.GET("/ws", func(c *gin.Context) {
		d.Hub.ServeWS(c.Writer, c.Request)
	})

	api := r.Group("/api")
	{
		api.GET("/health", handleHealth)

		api.POST("/transcribe", handleSubmit(d.Orchestrator))
		api.GET("/transcriptions", handleListTranscriptions(d.Store))
		api.GET("/transcriptions/:id", handleGetTranscription(d.Store))
		api.PATCH("/transcriptions/:id", handlePatchTags(d.Store))
		api.DELETE("/transcriptions/:id", handleDeleteTranscription(d.Orchestrator))
		api.GET("/transcriptions/:id/export/:format", handleExportTranscription(d.Store, d.Artifacts))
		api.GET("/transcriptions/:id/summaries", handleListSummariesByPath(d.Store))

		api.GET("/tags", handleListTags(d.Store))
		api.GET("/tags/:name", handleGetTag(d.TagConfig))

		api.POST("/summaries", handleCreateSummary(d.Store, d.TagConfig))
		api.GET("/summaries", handleListSummaries(d.Store))
		api.GET("/summaries/:id", handleGetSummary(d.Store))
		api.DELETE("/summaries/:id", handleDeleteSummary(d.Store))
		api.GET("/summaries/:id/export/:format", handleExportSummary(d.Store))

		cfg := api.Group("/config")
		{
			cfg.GET("/tags", handleListTagConfigs(d.TagConfig))
			cfg.GET("/tags/:name", handleGetTagConfig(d.TagConfig))
			cfg.PUT("/tags/:name", handlePutTagConfig(d.TagConfig))
			cfg.POST("/tags/:name", handlePutTagConfig(d.TagConfig))
			cfg.DELETE("/tags/:name", handleDeleteTagConfig(d.TagConfig))

			cfg.GET("/secrets", handleListSecrets(d.TagConfig))
			cfg.POST("/secrets/:name", handlePutSecret(d.TagConfig))
			cfg.DELETE("/secrets/:name", handleDeleteSecret(d.TagConfig))
		}

		api.POST("/episode-sources", handleCreateEpisodeSource(d.Store))
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// writeStoreError maps a store/artifact sentinel to the conventional HTTP
// status, logging anything unexpected as a 500.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		slog.Error("httpapi: unexpected store error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
