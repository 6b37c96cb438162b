package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribe/internal/model"
	"scribe/internal/store"
)

// CreateEpisodeSourceRequest is the POST /episode-sources request body.
type CreateEpisodeSourceRequest struct {
	TranscriptionID string  `json:"transcription_id" binding:"required"`
	SourceText      string  `json:"source_text" binding:"required"`
	MatchedURL      string  `json:"matched_url" binding:"required"`
	EmailSubject    *string `json:"email_subject"`
	EmailFrom       *string `json:"email_from"`
}

func handleCreateEpisodeSource(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEpisodeSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		es := &model.EpisodeSource{
			ID:              "es_" + uuid.NewString(),
			TranscriptionID: req.TranscriptionID,
			EmailSubject:    req.EmailSubject,
			EmailFrom:       req.EmailFrom,
			SourceText:      req.SourceText,
			MatchedURL:      req.MatchedURL,
			CreatedAt:       time.Now().UTC(),
		}

		if err := st.CreateEpisodeSource(c.Request.Context(), es); err != nil {
			writeStoreError(c, err)
			return
		}

		c.JSON(http.StatusCreated, es)
	}
}
