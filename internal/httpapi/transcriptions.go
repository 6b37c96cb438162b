package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scribe/internal/artifact"
	"scribe/internal/model"
	"scribe/internal/orchestrator"
	"scribe/internal/store"
)

// SubmitRequest is the POST /transcribe request body.
type SubmitRequest struct {
	URL   string   `json:"url" binding:"required"`
	Tags  []string `json:"tags"`
	Force bool     `json:"force"`
}

func handleSubmit(o *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		tr, err := o.Submit(c.Request.Context(), req.URL, req.Tags, nil, req.Force)
		if err != nil {
			var dup *orchestrator.ErrDuplicate
			switch {
			case errors.As(err, &dup):
				c.JSON(http.StatusConflict, gin.H{"detail": "already submitted", "existing_id": dup.ExistingID})
			case errors.Is(err, orchestrator.ErrInvalidURL):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.JSON(http.StatusAccepted, tr)
	}
}

func handleListTranscriptions(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := store.ListFilter{
			Status: c.Query("status"),
			Tag:    c.Query("tag"),
			Search: c.Query("search"),
			Skip:   queryInt(c, "skip", 0),
			Limit:  queryInt(c, "limit", 50),
		}

		items, total, err := st.ListTranscriptions(c.Request.Context(), f)
		if err != nil {
			writeStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "skip": f.Skip, "limit": f.Limit})
	}
}

func handleGetTranscription(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tr, err := st.GetTranscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, tr)
	}
}

// PatchTagsRequest is the PATCH /transcriptions/{id} request body.
type PatchTagsRequest struct {
	Tags []string `json:"tags"`
}

func handlePatchTags(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PatchTagsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		normalized := model.NormalizeTags(req.Tags)
		if err := st.UpdateTags(c.Request.Context(), c.Param("id"), normalized); err != nil {
			writeStoreError(c, err)
			return
		}

		tr, err := st.GetTranscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, tr)
	}
}

func handleDeleteTranscription(o *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := o.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleExportTranscription(st *store.Store, artifacts *artifact.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		format := c.Param("format")

		tr, err := st.GetTranscription(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if tr.Status != model.StatusCompleted || tr.TranscriptionPath == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transcription is not complete"})
			return
		}

		switch format {
		case "json":
			raw, err := artifacts.LoadRaw(id)
			if err != nil {
				writeArtifactError(c, err)
				return
			}
			c.Header("Content-Disposition", `attachment; filename="`+id+`.json"`)
			c.Data(http.StatusOK, "application/json", raw)
		case "txt", "srt":
			a, _, err := artifacts.Load(id)
			if err != nil {
				writeArtifactError(c, err)
				return
			}
			if format == "txt" {
				body := artifact.ExportTXT(a.Transcription.Segments)
				c.Header("Content-Disposition", `attachment; filename="`+id+`.txt"`)
				c.String(http.StatusOK, body)
			} else {
				body := artifact.ExportSRT(a.Transcription.Segments)
				c.Header("Content-Disposition", `attachment; filename="`+id+`.srt"`)
				c.String(http.StatusOK, body)
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported export format"})
		}
	}
}

func writeArtifactError(c *gin.Context, err error) {
	if errors.Is(err, artifact.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func handleListTags(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tags, err := st.ListTags(c.Request.Context())
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tags": tags})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
