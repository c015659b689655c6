package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzhu/ragkit/internal/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ingest", "query", "chat", "init", "status", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	for _, store := range []string{config.BackendMemory, config.BackendPGVector, config.BackendQdrant} {
		for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic} {
			t.Run(store+"/"+provider, func(t *testing.T) {
				dir := t.TempDir()
				require.NoError(t, initProject(dir, store, provider, false))

				cfg, err := config.Load(filepath.Join(dir, configFile))
				require.NoError(t, err)
				assert.Equal(t, store, cfg.Store.Backend)
				assert.Equal(t, provider, cfg.LLM.Provider)

				_, err = os.Stat(filepath.Join(dir, envExampleFile))
				assert.NoError(t, err)
			})
		}
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, initProject(dir, config.BackendMemory, config.ProviderOpenAI, false))
	assert.Error(t, initProject(dir, config.BackendMemory, config.ProviderOpenAI, false))
	assert.NoError(t, initProject(dir, config.BackendMemory, config.ProviderOpenAI, true))
}

func TestInitUnknownBackend(t *testing.T) {
	assert.Error(t, initProject(t.TempDir(), "faiss", config.ProviderOpenAI, false))
	assert.Error(t, initProject(t.TempDir(), config.BackendMemory, "cohere", false))
}

func TestIngestThenQueryUsesSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ragkit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
embedding:
  provider: hashing
  dimensions: 64
store:
  backend: memory
  snapshot: `+filepath.Join(dir, "ragkit.db")+`
logging:
  level: error
`), 0o600))

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "bread.txt"), []byte("Sourdough rises overnight in a cool kitchen."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "rocket.md"), []byte("Rockets burn fuel to reach orbit."), 0o600))

	out, err := execute(t, "--config", cfgPath, "ingest", docs)
	require.NoError(t, err)
	assert.Equal(t, "ingested 2 documents as 2 chunks\n", out)

	// a fresh process restores the chunks from the snapshot
	out, err = execute(t, "--config", cfgPath, "query", "-k", "1", "Rockets burn fuel to reach orbit.")
	require.NoError(t, err)
	assert.Contains(t, out, "1. 1.0000 ")
	assert.Contains(t, out, "Rockets burn fuel to reach orbit.")
	assert.NotContains(t, out, "Sourdough")
}

func TestChatRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RAGKIT_LLM_API_KEY", "")
	cfgPath := filepath.Join(t.TempDir(), "ragkit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("embedding:\n  provider: hashing\nlogging:\n  level: error\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "chat", "hello")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","vectors":3}`))
	}))
	defer srv.Close()

	out, err := execute(t, "status", "--server", srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "status: ok\nvectors: 3\n", out)

	_, err = execute(t, "status", "--server", srv.URL+"/nope")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ragctl dev\n", out)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t\tc", 10))
	assert.Equal(t, "日本...", preview("日本語", 2))
}
