package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docbulk/internal/controller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	body := fmt.Sprintf(`{"docstore": {"base_url": %q}, "jobs": {"thread_count": 2}, "logging": {"level": "error", "format": "json"}}`, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestDeleteCommand(t *testing.T) {
	var (
		mu      sync.Mutex
		deleted []string
	)
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/documents" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		deleted = append(deleted, r.URL.Query()["uri"]...)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer store.Close()

	uriFile := filepath.Join(t.TempDir(), "uris.txt")
	require.NoError(t, os.WriteFile(uriFile, []byte("/b.json\n\n/c.json\n"), 0o644))

	out, err := execute(t, "delete", "--config", writeConfig(t, store.URL), "--from", uriFile, "--batch-size", "2", "/a.json")
	require.NoError(t, err)

	var result controller.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.Report.Successful)
	assert.Equal(t, 2, result.Metrics.BatchesComplete)
	assert.ElementsMatch(t, []string{"/a.json", "/b.json", "/c.json"}, deleted)
}

func TestDeleteCommandReportsFailures(t *testing.T) {
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer store.Close()

	out, err := execute(t, "delete", "--config", writeConfig(t, store.URL), "--from", "", "--batch-size", "2", "/a.json", "/b.json")
	require.Error(t, err)
	assert.Equal(t, "2 items failed", err.Error())
	assert.Contains(t, out, `"failed": 2`)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")

	cfg, err := loadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, "docbulk", cfg.AppName)

	_, err = loadConfig(missing, true)
	assert.Error(t, err)
}

func TestReadURIs(t *testing.T) {
	uris, err := readURIs([]string{"/a"}, "-", strings.NewReader(" /b \n\n/c\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/c"}, uris)

	uris, err = readURIs([]string{"/a"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, uris)

	_, err = readURIs(nil, filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
