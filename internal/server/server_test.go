package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renewd/internal/cycle"
	"renewd/internal/event"
	"renewd/internal/notify"
	"renewd/internal/storage"
	logx "renewd/pkg/logx"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	disp := notify.New(notify.Config{}, logx.Nop())
	runner := cycle.New(st, disp, logx.Nop())
	return New(cfg, st, disp, runner, logx.Nop()), st
}

func doAPI(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handleAPI(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{Password: "s3cret"})

	t.Run("missing token", func(t *testing.T) {
		rec := doAPI(s, http.MethodGet, "/api/data", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Unauthorized", body["error"])
	})

	t.Run("wrong token", func(t *testing.T) {
		rec := doAPI(s, http.MethodGet, "/api/data", "nope", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("correct token", func(t *testing.T) {
		rec := doAPI(s, http.MethodGet, "/api/data", "s3cret", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("default password", func(t *testing.T) {
		s2, _ := newTestServer(t, Config{})
		rec := doAPI(s2, http.MethodGet, "/api/data", "admin", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("hot swapped password", func(t *testing.T) {
		s2, _ := newTestServer(t, Config{Password: "old"})
		s2.SetPassword("new")
		assert.Equal(t, http.StatusUnauthorized, doAPI(s2, http.MethodGet, "/api/data", "old", nil).Code)
		assert.Equal(t, http.StatusOK, doAPI(s2, http.MethodGet, "/api/data", "new", nil).Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})

	// Preflight passes without credentials.
	rec := doAPI(s, http.MethodOptions, "/api/data", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestUnknownAPIPath(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})
	rec := doAPI(s, http.MethodGet, "/api/nope", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "API Not Found")

	// Wrong method on a known path is also a 404.
	rec = doAPI(s, http.MethodDelete, "/api/data", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDataDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})
	rec := doAPI(s, http.MethodGet, "/api/data", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events   []event.Event       `json:"events"`
		Logs     []event.LedgerEntry `json:"logs"`
		Settings event.Settings      `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Events)
	assert.Empty(t, body.Events)
	assert.Empty(t, body.Logs)
	assert.Equal(t, event.Settings{}, body.Settings)
}

func TestPostDataRoundtrip(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t, Config{})

	payload := map[string]any{
		"events": []event.Event{{
			ID: "e1", Name: "Rent", Date: "2024-01-05",
			CycleType: event.CycleMonthly, Interval: 1, ReminderDays: 3,
		}},
		"logs": []event.LedgerEntry{{ID: "l1", EventID: "e1", Title: "Jan", Amount: 1200}},
		"settings": event.Settings{DailyPushTime: "08:00"},
	}
	rec := doAPI(s, http.MethodPost, "/api/data", "admin", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	events, err := st.LoadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Rent", events[0].Name)
	assert.Equal(t, event.CalendarSolar, events[0].CalendarType)

	logs, err := st.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	settings, err := st.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "08:00", settings.DailyPushTime)
}

func TestPostDataNormalizesEvents(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t, Config{})

	payload := map[string]any{
		"events": []event.Event{
			{Name: "no id", Date: "2024-01-05", CycleType: event.CycleMonthly, Interval: 0, ReminderDays: -2},
			{ID: "bad", Name: "dropped", Date: "garbage", CycleType: event.CycleMonthly, Interval: 1},
		},
	}
	rec := doAPI(s, http.MethodPost, "/api/data", "admin", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := st.LoadEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, 1, events[0].Interval)
	assert.Equal(t, 0, events[0].ReminderDays)
}

func TestPostDataCascadesLedger(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t, Config{})
	ctx := context.Background()

	seed := map[string]any{
		"events": []event.Event{
			{ID: "keep", Name: "A", Date: "2024-01-05", CycleType: event.CycleMonthly, Interval: 1},
			{ID: "gone", Name: "B", Date: "2024-01-06", CycleType: event.CycleMonthly, Interval: 1},
		},
		"logs": []event.LedgerEntry{
			{ID: "l1", EventID: "keep"},
			{ID: "l2", EventID: "gone"},
		},
	}
	require.Equal(t, http.StatusOK, doAPI(s, http.MethodPost, "/api/data", "admin", seed).Code)

	// Deleting event "gone" without resending logs must prune l2.
	del := map[string]any{
		"events": []event.Event{
			{ID: "keep", Name: "A", Date: "2024-01-05", CycleType: event.CycleMonthly, Interval: 1},
		},
	}
	require.Equal(t, http.StatusOK, doAPI(s, http.MethodPost, "/api/data", "admin", del).Code)

	logs, err := st.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "l1", logs[0].ID)
}

func TestPostDataPartialUpdateLeavesOthers(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t, Config{})
	ctx := context.Background()

	require.NoError(t, st.SaveEvents(ctx, []event.Event{
		{ID: "e1", Name: "A", Date: "2024-01-05", CycleType: event.CycleMonthly, Interval: 1},
	}))

	// Settings-only update must not touch events.
	rec := doAPI(s, http.MethodPost, "/api/data", "admin", map[string]any{
		"settings": event.Settings{BarkKey: "k"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := st.LoadEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPostDataSettingsHook(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})
	var got *event.Settings
	s.SetOnSettingsSaved(func(st event.Settings) { got = &st })

	rec := doAPI(s, http.MethodPost, "/api/data", "admin", map[string]any{
		"settings": event.Settings{DailyPushTime: "07:30"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "07:30", got.DailyPushTime)
}

func TestPostDataInvalidBody(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/data", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer admin")
	rec := httptest.NewRecorder()
	s.handleAPI(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})
	rec := doAPI(s, http.MethodPost, "/api/trigger", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res apiResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "Triggered", res.Message)
}

func TestTestNotifyErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{})

	t.Run("unconfigured channel", func(t *testing.T) {
		rec := doAPI(s, http.MethodPost, "/api/test-notify", "admin", map[string]any{
			"type": "telegram", "settings": event.Settings{},
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var res apiResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Contains(t, res.Message, "发送失败")
		assert.Contains(t, res.Message, "Telegram")
	})

	t.Run("unknown channel", func(t *testing.T) {
		rec := doAPI(s, http.MethodPost, "/api/test-notify", "admin", map[string]any{
			"type": "fax", "settings": event.Settings{},
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAssets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	s, _ := newTestServer(t, Config{AssetsDir: dir})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.handleAssets(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("root serves index", func(t *testing.T) {
		rec := get("/")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "app")
	})

	t.Run("exact file", func(t *testing.T) {
		rec := get("/app.js")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "console")
	})

	t.Run("spa fallback for client route", func(t *testing.T) {
		rec := get("/settings")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "app")
	})

	t.Run("missing file-like path is 404", func(t *testing.T) {
		rec := get("/missing.js")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("traversal stays inside dir", func(t *testing.T) {
		rec := get("/../../etc/passwd")
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})

	t.Run("no assets dir is 404", func(t *testing.T) {
		s2, _ := newTestServer(t, Config{})
		rec := httptest.NewRecorder()
		s2.handleAssets(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Config{Addr: "127.0.0.1:0"})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	s.Stop(ctx)
	assert.Empty(t, s.Addr())
}
