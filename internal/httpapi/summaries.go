package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribe/internal/model"
	"scribe/internal/store"
	"scribe/internal/summarizer"
	"scribe/internal/tagconfig"
)

// llmTimeout bounds a single summarization call, per spec.md §7.
const llmTimeout = 120 * time.Second

// CreateSummaryRequest is the POST /api/summaries request body.
type CreateSummaryRequest struct {
	TranscriptionID    string  `json:"transcription_id" binding:"required"`
	APIEndpoint        *string `json:"api_endpoint"`
	Model              *string `json:"model"`
	APIKey             *string `json:"api_key"`
	SystemPrompt       *string `json:"system_prompt"`
	SystemPromptSuffix *string `json:"system_prompt_suffix"`
}

func handleCreateSummary(st *store.Store, tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSummaryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		tr, err := st.GetTranscription(c.Request.Context(), req.TranscriptionID)
		if err != nil {
			writeStoreError(c, err)
			return
		}

		resolved := tc.Resolve(tr.Tags, tagconfig.Overrides{
			APIEndpoint:  req.APIEndpoint,
			Model:        req.Model,
			APIKey:       req.APIKey,
			SystemPrompt: req.SystemPrompt,
		})

		suffix := ""
		if req.SystemPromptSuffix != nil {
			suffix = *req.SystemPromptSuffix
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), llmTimeout)
		defer cancel()

		outcome, err := summarizer.Generate(ctx, summarizer.Request{
			Transcription:      tr,
			APIEndpoint:        resolved.APIEndpoint,
			Model:              resolved.Model,
			APIKey:             resolved.APIKey,
			SystemPrompt:       resolved.SystemPrompt,
			SystemPromptSuffix: suffix,
			ConfigSource:       resolved.ConfigSource,
		})
		if err != nil {
			writeSummarizerError(c, err)
			return
		}

		sm := &model.Summary{
			ID:               "sum_" + uuid.NewString(),
			TranscriptionID:  tr.ID,
			APIEndpoint:      resolved.APIEndpoint,
			Model:            resolved.Model,
			Prompt:           resolved.SystemPrompt,
			APIKeyUsed:       resolved.APIKey != "",
			Tags:             tr.Tags,
			ConfigSource:     resolved.ConfigSource,
			SummaryText:      outcome.SummaryText,
			CreatedAt:        time.Now().UTC(),
			GenerationTimeMs: outcome.GenerationTimeMs,
			PromptTokens:     outcome.PromptTokens,
			CompletionTokens: outcome.CompletionTokens,
		}
		if err := st.CreateSummary(c.Request.Context(), sm); err != nil {
			writeStoreError(c, err)
			return
		}

		c.JSON(http.StatusCreated, sm)
	}
}

func handleListSummaries(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		transcriptionID := c.Query("transcription_id")
		if transcriptionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transcription_id is required"})
			return
		}
		items, err := st.ListSummariesByTranscription(c.Request.Context(), transcriptionID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// handleListSummariesByPath is the GET /transcriptions/{id}/summaries alias
// for GET /api/summaries?transcription_id=, per spec.md §6.
func handleListSummariesByPath(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := st.ListSummariesByTranscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func handleGetSummary(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sm, err := st.GetSummary(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, sm)
	}
}

func handleDeleteSummary(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.DeleteSummary(c.Request.Context(), c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleExportSummary(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		format := c.Param("format")

		sm, err := st.GetSummary(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}

		switch format {
		case "json":
			c.Header("Content-Disposition", `attachment; filename="`+id+`.json"`)
			c.JSON(http.StatusOK, sm)
		case "txt":
			c.Header("Content-Disposition", `attachment; filename="`+id+`.txt"`)
			c.String(http.StatusOK, sm.SummaryText)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported export format"})
		}
	}
}

func writeSummarizerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, summarizer.ErrTranscriptionMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, summarizer.ErrTranscriptionIncomplete):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, summarizer.ErrLLMTimeout), errors.Is(err, summarizer.ErrLLMNetwork), errors.Is(err, summarizer.ErrMalformedResponse):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
