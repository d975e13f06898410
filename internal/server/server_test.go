package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/gateway"
	"github.com/storyweave/storyd/internal/jobs"
	"github.com/storyweave/storyd/internal/lock"
	"github.com/storyweave/storyd/internal/orchestrator"
	"github.com/storyweave/storyd/internal/store"
	"github.com/storyweave/storyd/internal/tools"
)

type staticGenerator struct{ text string }

func (g staticGenerator) Generate(context.Context, string) (string, error) {
	return g.text, nil
}

func newTestServer(t *testing.T) (*Server, lock.Locker, *jobs.Tracker) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	read, err := tools.NewReadRegistry(s)
	require.NoError(t, err)
	write, err := tools.NewWriteRegistry(s)
	require.NoError(t, err)
	gw, err := gateway.New(gateway.Config{Read: read, Write: write, Logger: zap.NewNop()})
	require.NoError(t, err)

	engine, err := orchestrator.NewEngine(gw, staticGenerator{text: "A chapter served over HTTP."}, zap.NewNop())
	require.NoError(t, err)

	locker := lock.NewLocalLocker()
	tracker := jobs.NewTracker(nil, zap.NewNop())
	svc, err := orchestrator.NewService(engine, locker, tracker, lock.Options{TTL: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	srv, err := New(Config{
		Host:    "127.0.0.1",
		Port:    0,
		Gateway: gw,
		Service: svc,
		Tracker: tracker,
		Locker:  locker,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	return srv, locker, tracker
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "storyd", body["service"])
	assert.Equal(t, "local", body["lock_mode"])
}

func TestServer_RPC(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result struct {
			Tools []map[string]any `json:"tools"`
		} `json:"result"`
		Error *gateway.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.Result.Tools)
}

func TestServer_RPC_ParseErrorStillHTTP200(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/mcp", `{not json`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Error *gateway.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, gateway.ParseError, resp.Error.Code)
}

func TestServer_Generate(t *testing.T) {
	srv, _, tracker := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/generate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.NotEmpty(t, result.EpisodeID)
	assert.Equal(t, "A chapter served over HTTP.", result.Content)

	job, ok := tracker.Get(result.EpisodeID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusCompleted, job.Status)

	// the tracked job is also readable over HTTP
	jobRec := doJSON(t, srv, http.MethodGet, "/jobs/"+result.EpisodeID, "")
	assert.Equal(t, http.StatusOK, jobRec.Code)
}

func TestServer_Generate_Busy(t *testing.T) {
	srv, locker, _ := newTestServer(t)

	res, err := locker.Acquire(context.Background(), orchestrator.LockName, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Granted)

	rec := doJSON(t, srv, http.MethodPost, "/generate", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["reason"], "in progress")
}

func TestServer_JobNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
