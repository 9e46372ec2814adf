package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytfetch/internal/formatter"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/proxy"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/desertthunder/ytfetch/internal/tasks"
)

const maxRequestBody = 1 << 20

// TaskService is the part of [tasks.Orchestrator] the API drives.
type TaskService interface {
	Submit(req tasks.Request) (string, error)
	Status(taskID string) (models.Snapshot, error)
	List() []models.Task
	FilePath(taskID, filename string) (string, error)
	Archive(taskID string) (string, error)
}

// LiveUpdates registers subscribers for a task's live messages.
type LiveUpdates interface {
	Subscribe(taskID string, sub tasks.Subscriber) (func(), error)
}

// HistoryLister lists persisted tasks.
type HistoryLister interface {
	List(criteria map[string]any) ([]*models.TaskRecord, error)
}

// ProxyRefresher reloads the proxy pool from its sources.
type ProxyRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// APIOpts configures an [API]. Tasks is required; everything else is optional.
type APIOpts struct {
	Tasks     TaskService
	Live      LiveUpdates
	History   HistoryLister
	Proxies   *proxy.Pool
	Refresher ProxyRefresher
	Logger    *log.Logger
}

// API serves the download endpoints.
type API struct {
	tasks     TaskService
	live      LiveUpdates
	history   HistoryLister
	proxies   *proxy.Pool
	refresher ProxyRefresher
	logger    *log.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

type fileEntry struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	DownloadURL string `json:"download_url"`
}

type filesResponse struct {
	TaskID       string      `json:"task_id"`
	Files        []fileEntry `json:"files"`
	ZipAvailable bool        `json:"zip_available"`
	ZipURL       string      `json:"zip_url,omitempty"`
}

type proxyStatsResponse struct {
	Enabled bool `json:"enabled"`
	proxy.Stats
}

// NewAPI creates an [API].
func NewAPI(opts APIOpts) *API {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &API{
		tasks:     opts.Tasks,
		live:      opts.Live,
		history:   opts.History,
		proxies:   opts.Proxies,
		refresher: opts.Refresher,
		logger:    opts.Logger.WithPrefix("api"),
	}
}

// Register adds every endpoint to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/api/health", http.HandlerFunc(a.handleHealth))
	r.Handle(http.MethodPost, "/api/download", http.HandlerFunc(a.handleSubmit))
	r.Handle(http.MethodGet, "/api/download/{id}", http.HandlerFunc(a.handleFiles))
	r.Handle(http.MethodGet, "/api/status/{id}", http.HandlerFunc(a.handleStatus))
	r.Handle(http.MethodGet, "/api/tasks", http.HandlerFunc(a.handleTasks))
	r.Handle(http.MethodGet, "/api/file/{id}/{filename}", http.HandlerFunc(a.handleFile))
	r.Handle(http.MethodGet, "/api/zip/{id}", http.HandlerFunc(a.handleZip))
	r.Handle(http.MethodGet, "/api/progress/{id}", http.HandlerFunc(a.handleProgress))
	r.Handle(http.MethodGet, "/api/proxy/stats", http.HandlerFunc(a.handleProxyStats))
	r.Handle(http.MethodPost, "/api/proxy/refresh", http.HandlerFunc(a.handleProxyRefresh))
	r.Handle(http.MethodGet, "/api/stream/{id}", http.HandlerFunc(a.handleStream))
	r.Handle(http.MethodGet, "/ws/{id}", http.HandlerFunc(a.handleWebSocket))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tasks": len(a.tasks.List())})
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req tasks.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	id, err := a.tasks.Submit(req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.logger.Info("task submitted", "task", id, "target", req.Target)
	writeJSON(w, http.StatusAccepted, submitResponse{TaskID: id, Message: "Download started"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := a.tasks.Status(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTasks merges live tasks with persisted history, newest first. Live entries win.
func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	live := a.tasks.List()
	seen := make(map[string]bool, len(live))
	all := make([]models.Task, 0, len(live))
	for _, t := range live {
		seen[t.ID] = true
		all = append(all, t)
	}

	if a.history != nil {
		criteria := map[string]any{"limit": 100}
		if status := r.URL.Query().Get("status"); status != "" {
			criteria["status"] = status
		}
		records, err := a.history.List(criteria)
		if err != nil {
			a.logger.Warn("failed to list history", "error", err)
		}
		for _, rec := range records {
			if !seen[rec.Task.ID] {
				all = append(all, rec.Task)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"tasks": all})
}

func (a *API) handleFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := a.tasks.Status(id)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := filesResponse{TaskID: id, Files: []fileEntry{}, ZipAvailable: snap.Task.ArchiveAvailable}
	for _, name := range snap.Files() {
		path, err := a.tasks.FilePath(id, name)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		resp.Files = append(resp.Files, fileEntry{
			Filename:    name,
			Size:        info.Size(),
			SizeHuman:   shared.FormatSize(info.Size()),
			DownloadURL: "/api/file/" + id + "/" + url.PathEscape(name),
		})
	}
	if resp.ZipAvailable {
		resp.ZipURL = "/api/zip/" + id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleFile(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := a.tasks.FilePath(r.PathValue("id"), filename)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

func (a *API) handleZip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := a.tasks.Archive(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveName(id)))
	http.ServeFile(w, r, path)
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := a.tasks.Status(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"progress": formatter.ProgressLog(snap)})
}

func (a *API) handleProxyStats(w http.ResponseWriter, r *http.Request) {
	resp := proxyStatsResponse{}
	if a.proxies != nil {
		resp.Enabled = true
		resp.Stats = a.proxies.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProxyRefresh(w http.ResponseWriter, r *http.Request) {
	if a.refresher == nil {
		a.writeError(w, fmt.Errorf("%w: proxy refresh is not configured", shared.ErrServiceUnavailable))
		return
	}
	n, err := a.refresher.Refresh(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.logger.Info("proxy pool refreshed", "endpoints", n)
	writeJSON(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("Loaded %d proxies", n), "count": n})
}

func archiveName(taskID string) string {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}
	return "youtube_downloads_" + short + ".zip"
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrTaskNotFound),
		errors.Is(err, shared.ErrItemNotFound),
		errors.Is(err, shared.ErrOutputNotFound),
		errors.Is(err, shared.ErrNoItemsFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidTarget),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrServiceUnavailable),
		errors.Is(err, shared.ErrBridgeClosed),
		errors.Is(err, shared.ErrProxySource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
