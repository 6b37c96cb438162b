package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribe/internal/model"
	"scribe/internal/tagconfig"
)

// TagConfigResponse mirrors model.TagConfig but always carries a
// destination_emails field (null if unset), per spec.md §6.
type TagConfigResponse struct {
	APIEndpoint       string   `json:"api_endpoint"`
	Model             string   `json:"model"`
	APIKeyRef         string   `json:"api_key_ref,omitempty"`
	SystemPrompt      string   `json:"system_prompt"`
	DestinationEmails []string `json:"destination_emails"`
}

func toResponse(cfg model.TagConfig) TagConfigResponse {
	return TagConfigResponse{
		APIEndpoint:       cfg.APIEndpoint,
		Model:             cfg.Model,
		APIKeyRef:         cfg.APIKeyRef,
		SystemPrompt:      cfg.SystemPrompt,
		DestinationEmails: cfg.DestinationEmails,
	}
}

func handleGetTag(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := tc.GetTagConfig(c.Param("name"))
		if err != nil {
			writeTagConfigError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(cfg))
	}
}

func handleListTagConfigs(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tags": tc.ListTagNames()})
	}
}

func handleGetTagConfig(tc *tagconfig.Store) gin.HandlerFunc {
	return handleGetTag(tc)
}

func handlePutTagConfig(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg model.TagConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
		if err := tc.PutTagConfig(c.Param("name"), cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save tag config"})
			return
		}
		c.JSON(http.StatusOK, toResponse(cfg))
	}
}

func handleDeleteTagConfig(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := tc.DeleteTagConfig(c.Param("name")); err != nil {
			writeTagConfigError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleListSecrets(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"secrets": tc.ListSecretNames()})
	}
}

// PutSecretRequest is the POST /config/secrets/{name} request body.
type PutSecretRequest struct {
	Value string `json:"value" binding:"required"`
}

func handlePutSecret(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PutSecretRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
		if err := tc.PutSecret(c.Param("name"), req.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save secret"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleDeleteSecret(tc *tagconfig.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := tc.DeleteSecret(c.Param("name")); err != nil {
			writeTagConfigError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func writeTagConfigError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tagconfig.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, tagconfig.ErrCannotDeleteDefault):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
