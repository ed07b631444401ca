package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventilearn/ventilearn/internal/database"
	"github.com/ventilearn/ventilearn/internal/outbox"
	"github.com/ventilearn/ventilearn/internal/progress"
	"github.com/ventilearn/ventilearn/internal/syncapi"
	"github.com/ventilearn/ventilearn/internal/syncengine"
	"github.com/ventilearn/ventilearn/internal/testutil"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	storage, err := NewStorage(db)
	require.NoError(t, err)

	handler := NewHandler(storage, testutil.LoadTestGraph(t), token)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server
}

func putProgress(t *testing.T, server *httptest.Server, token string, update syncapi.ProgressUpdate) *http.Response {
	t.Helper()
	body, err := json.Marshal(update)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, server.URL+"/progress", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = res.Body.Close()
	})
	return res
}

func decodeRecord(t *testing.T, res *http.Response) progress.LessonProgress {
	t.Helper()
	var record progress.LessonProgress
	require.NoError(t, json.NewDecoder(res.Body).Decode(&record))
	return record
}

func TestHandler_Auth(t *testing.T) {
	server := newTestServer(t, "secret")

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "missing token", token: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", token: "wrong", wantStatus: http.StatusUnauthorized},
		{name: "valid token", token: "secret", wantStatus: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := putProgress(t, server, tc.token, syncapi.ProgressUpdate{
				ModuleID:        "vent-basics",
				LessonID:        "vb-01",
				Progress:        0.5,
				ClientUpdatedAt: time.Now().UTC(),
			})
			assert.Equal(t, tc.wantStatus, res.StatusCode)

			if tc.wantStatus == http.StatusUnauthorized {
				var envelope struct {
					Error struct {
						Message string `json:"message"`
						Code    string `json:"code"`
					} `json:"error"`
				}
				require.NoError(t, json.NewDecoder(res.Body).Decode(&envelope))
				assert.Equal(t, "unauthorized", envelope.Error.Code)
			}
		})
	}
}

func TestHandler_Update(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("first write creates the record", func(t *testing.T) {
		server := newTestServer(t, "")

		res := putProgress(t, server, "", syncapi.ProgressUpdate{
			ClientEventID:   "e1",
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.5,
			TimeSpentDelta:  30,
			ClientUpdatedAt: base,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		record := decodeRecord(t, res)
		assert.Equal(t, 0.5, record.Progress)
		assert.Equal(t, 30, record.TimeSpentSeconds)
		assert.False(t, record.ServerUpdatedAt.IsZero())
	})

	t.Run("completion is derived from the fraction, not the flag", func(t *testing.T) {
		server := newTestServer(t, "")

		res := putProgress(t, server, "", syncapi.ProgressUpdate{
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.9,
			IsCompleted:     true,
			ClientUpdatedAt: base,
		})
		record := decodeRecord(t, res)
		assert.False(t, record.Completed)
	})

	t.Run("newer client timestamp wins, older loses but keeps its time", func(t *testing.T) {
		server := newTestServer(t, "")

		putProgress(t, server, "", syncapi.ProgressUpdate{
			ClientEventID:   "e1",
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.8,
			TimeSpentDelta:  60,
			ClientUpdatedAt: base.Add(time.Minute),
		})

		res := putProgress(t, server, "", syncapi.ProgressUpdate{
			ClientEventID:   "e2",
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.3,
			TimeSpentDelta:  15,
			ClientUpdatedAt: base,
		})
		record := decodeRecord(t, res)
		assert.Equal(t, 0.8, record.Progress, "stored record wins arbitration")
		assert.Equal(t, 75, record.TimeSpentSeconds, "losing write still adds its time")
	})

	t.Run("replaying the same client event changes nothing", func(t *testing.T) {
		server := newTestServer(t, "")

		update := syncapi.ProgressUpdate{
			ClientEventID:   "e1",
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.5,
			TimeSpentDelta:  30,
			ClientUpdatedAt: base,
		}
		putProgress(t, server, "", update)
		res := putProgress(t, server, "", update)

		record := decodeRecord(t, res)
		assert.Equal(t, 30, record.TimeSpentSeconds, "replay does not double-accumulate time")
	})

	t.Run("replaying an earlier event after newer writes changes nothing", func(t *testing.T) {
		server := newTestServer(t, "")

		first := syncapi.ProgressUpdate{
			ClientEventID:   "e1",
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.5,
			TimeSpentDelta:  30,
			ClientUpdatedAt: base,
		}
		putProgress(t, server, "", first)
		putProgress(t, server, "", syncapi.ProgressUpdate{
			ClientEventID:   "e2",
			ModuleID:        "vent-basics",
			LessonID:        "vb-01",
			Progress:        0.7,
			TimeSpentDelta:  20,
			ClientUpdatedAt: base.Add(time.Minute),
		})

		res := putProgress(t, server, "", first)
		record := decodeRecord(t, res)
		assert.Equal(t, 0.7, record.Progress, "replay does not rewind the record")
		assert.Equal(t, 50, record.TimeSpentSeconds, "replay does not re-accumulate its time")
	})

	t.Run("unknown lesson is 404", func(t *testing.T) {
		server := newTestServer(t, "")

		res := putProgress(t, server, "", syncapi.ProgressUpdate{
			ModuleID:        "vent-basics",
			LessonID:        "deleted-lesson",
			Progress:        0.5,
			ClientUpdatedAt: base,
		})
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("missing lesson id is 400", func(t *testing.T) {
		server := newTestServer(t, "")

		res := putProgress(t, server, "", syncapi.ProgressUpdate{
			ModuleID:        "vent-basics",
			Progress:        0.5,
			ClientUpdatedAt: base,
		})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

// TestEndToEnd drives the real engine, outbox and HTTP client against the
// handler: report online, queue offline, then flush the queue in bulk.
func TestEndToEnd(t *testing.T) {
	server := newTestServer(t, "secret")
	graph := testutil.LoadTestGraph(t)
	store := progress.NewStore(graph)
	queue, err := outbox.NewFileStore(filepath.Join(t.TempDir(), "outbox.yml"))
	require.NoError(t, err)

	client := syncapi.NewClient(server.URL, syncapi.StaticTokenProvider("secret"), "learner-1", 2*time.Second)
	t.Cleanup(func() {
		_ = client.Close()
	})

	engine := syncengine.New(graph, store, queue, client)
	t.Cleanup(engine.Close)

	ctx := context.Background()

	record, err := engine.Report(ctx, syncengine.Delta{LessonID: "vb-01", Progress: 1.0, TimeSpentDelta: 120})
	require.NoError(t, err)
	assert.True(t, record.Completed)
	assert.Equal(t, syncengine.StatusSaved, engine.Status())

	engine.SetOnline(false)
	_, err = engine.Report(ctx, syncengine.Delta{LessonID: "vb-02", Progress: 0.5, TimeSpentDelta: 30})
	require.NoError(t, err)
	_, err = engine.Report(ctx, syncengine.Delta{LessonID: "vb-02", Progress: 0.8, TimeSpentDelta: 45})
	require.NoError(t, err)
	assert.Equal(t, syncengine.StatusOfflineQueued, engine.Status())
	require.Len(t, queue.ListPending(), 1, "offline reports coalesce per lesson")

	engine.SetOnline(true)
	require.NoError(t, engine.Flush(ctx))
	assert.Empty(t, queue.ListPending())
	assert.Equal(t, syncengine.StatusSaved, engine.Status())

	records, err := client.FetchProgress(ctx, "vent-basics", "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	byLesson := map[string]progress.LessonProgress{}
	for _, r := range records {
		byLesson[r.LessonID] = r
	}
	assert.Equal(t, 1.0, byLesson["vb-01"].Progress)
	assert.Equal(t, 120, byLesson["vb-01"].TimeSpentSeconds)
	assert.Equal(t, 0.8, byLesson["vb-02"].Progress)
	assert.Equal(t, 75, byLesson["vb-02"].TimeSpentSeconds, "coalesced time delta reached the server")
}
