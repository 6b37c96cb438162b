package tagconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

func TestNew_CreatesDefaultsOnFirstRead(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	cfg, err := s.GetTagConfig("default")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.APIEndpoint)
	assert.NotEmpty(t, cfg.Model)
}

func TestResolve_TagOrderFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.PutTagConfig("news", model.TagConfig{
		APIEndpoint: "https://news.example/v1", Model: "news-model", SystemPrompt: "news prompt",
	}))
	require.NoError(t, s.PutTagConfig("podcast", model.TagConfig{
		APIEndpoint: "https://pod.example/v1", Model: "pod-model", SystemPrompt: "pod prompt",
	}))

	resolved := s.Resolve([]string{"unknown", "podcast", "news"}, Overrides{})
	assert.Equal(t, "tag:podcast", resolved.ConfigSource)
	assert.Equal(t, "pod-model", resolved.Model)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	resolved := s.Resolve([]string{"nonexistent"}, Overrides{})
	assert.Equal(t, "system_default", resolved.ConfigSource)
}

func TestResolve_CallerOverridesWin(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	model := "gpt-overridden"
	resolved := s.Resolve(nil, Overrides{Model: &model})
	assert.Equal(t, "gpt-overridden", resolved.Model)
}

func TestResolveAPIKey_EnvFirstThenSecretStore(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.PutSecret("myservice", "file-backed-key"))
	require.NoError(t, s.PutTagConfig("svc", model.TagConfig{
		APIEndpoint: "https://svc.example", Model: "m", SystemPrompt: "p", APIKeyRef: "myservice",
	}))

	resolved := s.Resolve([]string{"svc"}, Overrides{})
	assert.Equal(t, "file-backed-key", resolved.APIKey)

	t.Setenv("MYSERVICE_API_KEY", "env-key")
	resolved = s.Resolve([]string{"svc"}, Overrides{})
	assert.Equal(t, "env-key", resolved.APIKey)
}

func TestDeleteTagConfig_CannotDeleteDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	err = s.DeleteTagConfig("default")
	assert.Error(t, err)
}

func TestListSecretNames_NeverExposesValues(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.PutSecret("foo", "super-secret-value"))
	names := s.ListSecretNames()
	assert.Contains(t, names, "foo")
}
