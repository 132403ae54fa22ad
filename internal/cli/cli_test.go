package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/verifact/internal/model"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Eiffel Tower was completed in 1889.", "the-eiffel-tower-was-completed-in-1889"},
		{"  ../../etc/passwd  ", "etc-passwd"},
		{"???", "text"},
		{strings.Repeat("abcdefghij ", 10), "abcdefghij-abcdefghij-abcdefghij-abcdefghij-abcd"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "sanitizeFilename(%q)", tt.in)
	}
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0644))

	got, err := readInput([]string{"from arg"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "from arg", got)

	got, err = readInput(nil, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readInput(nil, "", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readInput([]string{"x"}, path, nil)
	assert.Error(t, err, "argument and file together")
	_, err = readInput(nil, "", strings.NewReader("   "))
	assert.Error(t, err, "blank stdin")
}

func TestRegisterDefaults_EnvOverride(t *testing.T) {
	t.Setenv("VERIFACT_PIPELINE_MAX_CLAIMS", "7")
	t.Setenv("VERIFACT_LLM_PROVIDER", "ollama")
	t.Setenv("VERIFACT_HTTP_PER_HOST_RPS", "0.5")

	v := viper.New()
	require.NoError(t, registerDefaults(v))
	v.SetEnvPrefix("VERIFACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := model.DefaultConfig()
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 7, cfg.Pipeline.MaxClaims)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 0.5, cfg.HTTP.PerHostRPS)
	assert.Equal(t, 5, cfg.Pipeline.EvidencePerClaim, "defaults survive")
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# VeriFact Configuration File"), "missing header:\n%s", data)

	var cfg model.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg), "written config is valid YAML")
	assert.Equal(t, 120.0, cfg.Pipeline.TimeoutSeconds)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 2.0, cfg.HTTP.PerHostRPS)
}

func TestBuildHunter_Errors(t *testing.T) {
	settings := model.DefaultConfig()

	settings.Search.Backend = "bing"
	_, _, err := buildHunter(settings, nil, nil)
	assert.Error(t, err, "unknown backend")

	settings.Search.Backend = "serper"
	settings.Search.APIKey = ""
	_, _, err = buildHunter(settings, nil, nil)
	assert.Error(t, err, "serper without key")
}

func TestBuildApp_NoProvider(t *testing.T) {
	settings := model.DefaultConfig()
	settings.LLM.Provider = "none"

	_, err := buildApp(settings, true)
	assert.Error(t, err)
}

// fakeOllama answers hunter and writer prompts with fixed JSON
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			System string `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var reply string
		switch {
		case strings.HasPrefix(req.System, "You gather evidence"):
			reply = `{"evidence":[{"text":"The tower was finished in March 1889.","url":"https://en.wikipedia.org/wiki/Eiffel_Tower","title":"Eiffel Tower","relevance":0.9,"stance":"supporting"}]}`
		case strings.HasPrefix(req.System, "You write fact-check verdicts"):
			reply = `{"verdict":"true","confidence":0.9,"explanation":"Completed in 1889.","sources":["https://en.wikipedia.org/wiki/Eiffel_Tower"]}`
		default:
			http.Error(w, "unexpected prompt", http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"model": "test", "response": reply, "done": true})
	}))
}

func TestBuildApp_EndToEnd(t *testing.T) {
	srv := fakeOllama(t)
	defer srv.Close()

	settings := model.DefaultConfig()
	settings.LLM.Provider = "ollama"
	settings.LLM.BaseURL = srv.URL
	settings.LLM.Model = "test"
	settings.Cache.Enabled = false
	settings.Logging.Level = "error"

	a, err := buildApp(settings, true)
	require.NoError(t, err)

	report, err := a.engine.Run(context.Background(), "The Eiffel Tower was completed in 1889 according to official records.", a.runCfg)
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1, "omissions %+v", report.Omissions)

	v := report.Verdicts[0]
	assert.Equal(t, model.VerdictTrue, v.Label)
	require.Len(t, v.Sources, 1)
	assert.Equal(t, model.TierSecondary, v.Sources[0].Authority)
}
