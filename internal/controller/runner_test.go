package controller

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docbulk/internal/config"
	"docbulk/internal/model"
	"docbulk/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(store *fakeStore, opts ...RunnerOption) *Runner {
	registry := orchestrator.NewClientRegistry()
	registry.Register(DEFAULT_CLIENT, store)
	return NewRunner(config.JobsConfig{ThreadCount: 2, WriteBatchSize: 2, ReadBatchSize: 2, DeleteBatchSize: 2}, registry, opts...)
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name string
		req  model.JobRequest
		want error
	}{
		{"load from path", model.JobRequest{Kind: model.RequestLoad, Path: "/data"}, nil},
		{"load from s3", model.JobRequest{Kind: model.RequestLoad, S3Prefix: "in/"}, nil},
		{"load without input", model.JobRequest{Kind: model.RequestLoad}, ErrInvalidRequest},
		{"export without uris", model.JobRequest{Kind: model.RequestExport, S3Prefix: "out/"}, ErrInvalidRequest},
		{"delete", model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}}, nil},
		{"negative threads", model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}, ThreadCount: -1}, ErrInvalidRequest},
		{"unknown kind", model.JobRequest{Kind: "reindex"}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRunLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{"a.json": `{"a":1}`, "b.xml": "<b/>", "c.txt": "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	store := &fakeStore{}
	result, err := newTestRunner(store).Run(context.Background(), "load-1", model.JobRequest{
		Kind:      model.RequestLoad,
		Path:      dir,
		URIPrefix: "/in",
	})
	require.NoError(t, err)

	assert.Equal(t, "load-1", result.JobID)
	assert.Equal(t, 3, result.Report.Successful)
	assert.Equal(t, 2, result.Metrics.BatchesComplete)
	assert.Equal(t, model.StatusCompleted, result.Status())
	assert.ElementsMatch(t, []string{"/in/a.json", "/in/b.xml", "/in/c.txt"}, store.written)
}

func TestRunLoadFromS3WithoutStorage(t *testing.T) {
	_, err := newTestRunner(&fakeStore{}).Run(context.Background(), "", model.JobRequest{
		Kind:     model.RequestLoad,
		S3Prefix: "in/",
	})
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestRunDeleteAllFailed(t *testing.T) {
	store := &fakeStore{fail: errors.New("connection refused")}
	result, err := newTestRunner(store).Run(context.Background(), "", model.JobRequest{
		Kind: model.RequestDelete,
		URIs: []string{"/a", "/b", "/c"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Report.Failed)
	assert.Equal(t, model.StatusFailed, result.Status())
	assert.ElementsMatch(t, []string{"/a", "/b", "/c"}, result.FailedURIs())
	assert.Equal(t, []string{"connection refused"}, result.Report.ErrorMessages())
	assert.Equal(t, 2, store.calls)
}

func TestRunExportToOutput(t *testing.T) {
	var out bytes.Buffer
	store := &fakeStore{}
	result, err := newTestRunner(store, WithOutput(&out)).Run(context.Background(), "", model.JobRequest{
		Kind: model.RequestExport,
		URIs: []string{"/a.txt", "/b.txt", "/c.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Report.Successful)
	assert.Nil(t, result.Export)

	var uris []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var line documentLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		assert.Equal(t, "content of "+line.URI, line.Content)
		uris = append(uris, line.URI)
	}
	assert.ElementsMatch(t, []string{"/a.txt", "/b.txt", "/c.txt"}, uris)
}

func TestRunExportNeedsDestination(t *testing.T) {
	_, err := newTestRunner(&fakeStore{}).Run(context.Background(), "", model.JobRequest{
		Kind: model.RequestExport,
		URIs: []string{"/a"},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = newTestRunner(&fakeStore{}).Run(context.Background(), "", model.JobRequest{
		Kind:     model.RequestExport,
		URIs:     []string{"/a"},
		S3Prefix: "out/",
	})
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestRunWithClientConfig(t *testing.T) {
	runner := NewRunner(config.JobsConfig{}, orchestrator.NewClientRegistry(), WithClientConfig(map[string]string{}))

	_, err := runner.Run(context.Background(), "", model.JobRequest{
		Kind: model.RequestDelete,
		URIs: []string{"/a"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url is required")
}

func TestRunUnregisteredClient(t *testing.T) {
	runner := NewRunner(config.JobsConfig{}, orchestrator.NewClientRegistry())

	_, err := runner.Run(context.Background(), "", model.JobRequest{
		Kind: model.RequestDelete,
		URIs: []string{"/a"},
	})
	assert.ErrorIs(t, err, orchestrator.ErrNoClient)
}

func TestRunFlushesProgress(t *testing.T) {
	db := newFakeJobDB()
	store := &fakeStore{}

	_, err := newTestRunner(store, WithProgress(db)).Run(context.Background(), "job-1", model.JobRequest{
		Kind: model.RequestDelete,
		URIs: []string{"/a", "/b"},
	})
	require.NoError(t, err)

	db.mu.Lock()
	defer db.mu.Unlock()
	require.NotEmpty(t, db.progress)
	assert.Equal(t, 2, db.progress[len(db.progress)-1].SuccessCount)
}
