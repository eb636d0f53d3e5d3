package server

import (
	"encoding/json"
	"net/http"
	"time"

	"renewd/internal/event"
	"renewd/internal/notify"
	logx "renewd/pkg/logx"
)

// The UI may be served from a different origin than the API.
func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+s.password() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	switch {
	case r.URL.Path == "/api/data" && r.Method == http.MethodGet:
		s.handleGetData(w, r)
	case r.URL.Path == "/api/data" && r.Method == http.MethodPost:
		s.handlePostData(w, r)
	case r.URL.Path == "/api/trigger" && r.Method == http.MethodPost:
		s.handleTrigger(w, r)
	case r.URL.Path == "/api/test-notify" && r.Method == http.MethodPost:
		s.handleTestNotify(w, r)
	default:
		http.Error(w, "API Not Found", http.StatusNotFound)
	}
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := s.store.LoadEvents(ctx)
	if err != nil {
		s.log.Error("load events failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
		return
	}
	logs, err := s.store.LoadLedger(ctx)
	if err != nil {
		s.log.Error("load ledger failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
		return
	}
	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		s.log.Error("load settings failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"logs":     logs,
		"settings": settings,
	})
}

// dataPayload is a whole-document replace for any subset of the three
// documents. Pointers distinguish "absent" from "present but empty".
type dataPayload struct {
	Events   *[]event.Event       `json:"events"`
	Logs     *[]event.LedgerEntry `json:"logs"`
	Settings *event.Settings      `json:"settings"`
}

func (s *Server) handlePostData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p dataPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResult{Error: "invalid body: " + err.Error()})
		return
	}

	if p.Events != nil {
		events, droppedEv := event.NormalizeAll(*p.Events)
		for _, reason := range droppedEv {
			s.log.Warn("rejecting malformed event on save", logx.String("reason", reason))
		}
		if err := s.store.SaveEvents(ctx, events); err != nil {
			s.log.Error("save events failed", logx.Err(err))
			writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
			return
		}
		p.Events = &events
	}

	// Deleting an event must cascade to its ledger entries: prune the
	// incoming (or, when only events changed, the stored) ledger against
	// the surviving event ids.
	if p.Logs != nil || p.Events != nil {
		events := []event.Event(nil)
		if p.Events != nil {
			events = *p.Events
		} else {
			evs, err := s.store.LoadEvents(ctx)
			if err != nil {
				s.log.Error("load events failed", logx.Err(err))
				writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
				return
			}
			events = evs
		}
		logs := []event.LedgerEntry(nil)
		if p.Logs != nil {
			logs = *p.Logs
		} else {
			ls, err := s.store.LoadLedger(ctx)
			if err != nil {
				s.log.Error("load ledger failed", logx.Err(err))
				writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
				return
			}
			logs = ls
		}
		pruned := event.PruneOrphans(logs, events)
		if p.Logs != nil || len(pruned) != len(logs) {
			if err := s.store.SaveLedger(ctx, pruned); err != nil {
				s.log.Error("save ledger failed", logx.Err(err))
				writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
				return
			}
		}
	}

	if p.Settings != nil {
		if err := s.store.SaveSettings(ctx, *p.Settings); err != nil {
			s.log.Error("save settings failed", logx.Err(err))
			writeJSON(w, http.StatusInternalServerError, apiResult{Error: "storage error"})
			return
		}
		if s.onSettingsSaved != nil {
			s.onSettingsSaved(*p.Settings)
		}
	}

	writeJSON(w, http.StatusOK, apiResult{Success: true})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Run(r.Context(), time.Now()); err != nil {
		s.log.Error("manual trigger failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, apiResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResult{Success: true, Message: "Triggered"})
}

type testNotifyPayload struct {
	Type     string         `json:"type"`
	Settings event.Settings `json:"settings"`
}

// handleTestNotify is the one place a channel's configuration or
// transport error is shown to the user synchronously.
func (s *Server) handleTestNotify(w http.ResponseWriter, r *http.Request) {
	var p testNotifyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResult{Error: "invalid body: " + err.Error()})
		return
	}
	if err := s.disp.DispatchTest(r.Context(), notify.ChannelType(p.Type), p.Settings); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResult{Success: false, Message: "发送失败: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResult{Success: true, Message: "已发送测试消息到 " + p.Type})
}
