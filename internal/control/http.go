package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// API exposes the controller over HTTP. Routes are mounted under /api
// on the shared health server mux.
type API struct {
	ctrl   *Controller
	logger *slog.Logger
}

// NewAPI creates the HTTP layer over a Controller.
func NewAPI(ctrl *Controller, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{ctrl: ctrl, logger: logger}
}

// Register mounts the control routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/records", a.handleRecords)
	mux.HandleFunc("/api/pause", a.handlePause)
	mux.HandleFunc("/api/resume", a.handleResume)
	mux.HandleFunc("/api/reconcile", a.handleReconcile)
	mux.HandleFunc("/api/cleanup", a.handleCleanup)
	mux.HandleFunc("/api/cache/refresh", a.handleCacheRefresh)
	mux.HandleFunc("/api/preserved", a.handlePreserved)
	mux.HandleFunc("/api/managed", a.handleManaged)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	filter := RecordFilter(r.URL.Query().Get("filter"))
	switch filter {
	case "", FilterAll, FilterManaged, FilterUnmanaged, FilterOrphaned:
	default:
		writeError(w, http.StatusBadRequest, "unknown filter "+strconv.Quote(string(filter)))
		return
	}

	records := a.ctrl.ListTrackedRecords(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

type pauseRequest struct {
	Reason     string `json:"reason"`
	DurationMS int64  `json:"duration_ms"`
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req pauseRequest
	if r.Body != nil {
		// An empty body means an indefinite pause.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.DurationMS < 0 {
		writeError(w, http.StatusBadRequest, "duration_ms must not be negative")
		return
	}

	a.ctrl.Pause(req.Reason, time.Duration(req.DurationMS)*time.Millisecond, actorFrom(r))
	writeJSON(w, http.StatusOK, a.ctrl.Status().Pause)
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	a.ctrl.Resume(actorFrom(r))
	writeJSON(w, http.StatusOK, a.ctrl.Status().Pause)
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	a.ctrl.TriggerReconcile()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	a.ctrl.TriggerCleanup(force)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "triggered",
		"force":  force,
	})
}

func (a *API) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := a.ctrl.RefreshProviderCache(r.Context()); err != nil {
		a.logger.Warn("cache refresh failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

type hostnamesRequest struct {
	Hostnames []string `json:"hostnames"`
}

func (a *API) handlePreserved(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, hostnamesRequest{
			Hostnames: a.ctrl.rec.Preserved().Patterns(),
		})
	case http.MethodPut:
		var req hostnamesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := a.ctrl.SetPreserved(req.Hostnames); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"patterns": len(req.Hostnames)})
	default:
		methodNotAllowed(w)
	}
}

func (a *API) handleManaged(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := a.ctrl.rec.Managed()
		specs := make([]string, 0, len(entries))
		for _, e := range entries {
			specs = append(specs, e.String())
		}
		writeJSON(w, http.StatusOK, hostnamesRequest{Hostnames: specs})
	case http.MethodPut:
		var req hostnamesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := a.ctrl.SetManaged(req.Hostnames); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"entries": len(req.Hostnames)})
	default:
		methodNotAllowed(w)
	}
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
