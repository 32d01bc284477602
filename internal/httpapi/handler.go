package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"wagate/internal/dispatch"
	"wagate/internal/state"
	"wagate/internal/ws"
)

const maxUploadBytes = 32 << 20

// SessionInfo exposes read-only facts about the device session.
type SessionInfo interface {
	PhoneNumber() string
}

// Handler carries the dependencies of the REST surface. It validates
// request shape and maps scheduler errors onto HTTP statuses; everything
// else lives in the dispatcher.
type Handler struct {
	dispatcher     *dispatch.Dispatcher
	tracker        *state.Tracker
	hub            *ws.Hub
	info           SessionInfo
	sessionName    string
	defaultSpacing time.Duration
	uploadDir      string
	startedAt      time.Time
	logger         *zap.Logger
}

// NewHandler creates the REST handler.
func NewHandler(d *dispatch.Dispatcher, tracker *state.Tracker, hub *ws.Hub, info SessionInfo, sessionName string, defaultSpacing time.Duration, uploadDir string, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher:     d,
		tracker:        tracker,
		hub:            hub,
		info:           info,
		sessionName:    sessionName,
		defaultSpacing: defaultSpacing,
		uploadDir:      uploadDir,
		startedAt:      time.Now(),
		logger:         logger,
	}
}

// Router builds the chi router for the whole HTTP surface, realtime
// channel included.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Get("/status", h.handleStatus)
	r.Post("/send", h.handleSend)
	r.Get("/list-groups", h.handleListGroups)
	r.Post("/send-group", h.handleSendGroup)
	r.Post("/send-media", h.handleSendMedia)
	r.Post("/schedule", h.handleSchedule)
	r.Get("/ws", h.hub.Handler)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.tracker.Snapshot()
	resp := map[string]any{
		"session":     h.sessionName,
		"connected":   snap.Connected,
		"qrIssued":    snap.QRIssued,
		"uptimeMs":    time.Since(h.startedAt).Milliseconds(),
		"subscribers": h.hub.SubscriberCount(),
	}
	if h.info != nil {
		resp["phoneNumber"] = h.info.PhoneNumber()
	}
	writeJSON(w, http.StatusOK, resp)
}

type sendRequest struct {
	Numbers []string `json:"numbers"`
	Message string   `json:"message"`
	DelayMs *uint    `json:"delay"`
}

// handleSend accepts a bulk text batch. The 200 acknowledges acceptance
// only; per-recipient outcomes stay server-side.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	spacing := h.defaultSpacing
	if req.DelayMs != nil {
		spacing = time.Duration(*req.DelayMs) * time.Millisecond
	}

	n, err := h.dispatcher.ScheduleBulk(req.Numbers, req.Message, spacing)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Numbers and message are required")
		return
	}

	h.logger.Info("bulk send accepted", zap.Int("recipients", n), zap.Duration("spacing", spacing))
	writeSuccess(w, "Messages are being sent.")
}

type scheduleRequest struct {
	Numbers   []string `json:"numbers"`
	Message   string   `json:"message"`
	Timestamp int64    `json:"timestamp"` // epoch ms
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Numbers) == 0 || req.Message == "" || req.Timestamp == 0 {
		writeError(w, http.StatusBadRequest, "Numbers, message and timestamp are required")
		return
	}

	at := time.UnixMilli(req.Timestamp)
	id, err := h.dispatcher.ScheduleAt(req.Numbers, req.Message, at)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "Invalid timestamp")
			return
		}
		h.logger.Error("schedule failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to schedule messages")
		return
	}

	h.logger.Info("future batch scheduled", zap.String("batch_id", id), zap.Time("fire_at", at))
	writeSuccess(w, fmt.Sprintf("Messages scheduled for %s.", at.UTC().Format(time.RFC3339)))
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	names, err := h.dispatcher.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("list groups failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list groups")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"groups": names})
}

type sendGroupRequest struct {
	GroupName string `json:"groupName"`
	Message   string `json:"message"`
}

// handleSendGroup sends synchronously: the response reflects the actual
// delivery outcome.
func (h *Handler) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	var req sendGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	err := h.dispatcher.SendToGroup(r.Context(), req.GroupName, req.Message)
	switch {
	case err == nil:
		writeSuccess(w, fmt.Sprintf("Message sent to group %q.", req.GroupName))
	case errors.Is(err, dispatch.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Group name and message are required")
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "Group not found")
	default:
		h.logger.Error("group send failed", zap.Error(err), zap.String("group", req.GroupName))
		writeError(w, http.StatusInternalServerError, "Failed to send message to group")
	}
}

// handleSendMedia accepts a multipart upload, stages it in the upload
// dir for the duration of the request, and sends synchronously. The
// staged file is removed whether or not the send succeeds.
func (h *Handler) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	number := r.FormValue("number")
	if number == "" {
		writeError(w, http.StatusBadRequest, "Number is required")
		return
	}
	caption := r.FormValue("caption")

	file, header, err := r.FormFile("media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Media file is required")
		return
	}
	defer func() { _ = file.Close() }()

	stagedPath, err := h.stageUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("failed to stage upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store uploaded file")
		return
	}
	defer func() { _ = os.Remove(stagedPath) }()

	data, err := os.ReadFile(stagedPath)
	if err != nil {
		h.logger.Error("failed to read staged upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	err = h.dispatcher.SendMedia(r.Context(), number, data, mimeType, header.Filename, caption)
	switch {
	case err == nil:
		writeSuccess(w, "Media message sent.")
	case errors.Is(err, dispatch.ErrInvalidRecipient):
		writeError(w, http.StatusBadRequest, "Invalid recipient number")
	default:
		h.logger.Error("media send failed", zap.Error(err), zap.String("number", number))
		writeError(w, http.StatusInternalServerError, "Failed to send media")
	}
}

func (h *Handler) stageUpload(src io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0700); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+filepath.Ext(originalName))
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		_ = os.Remove(dst.Name())
		return "", copyErr
	}
	if closeErr != nil {
		_ = os.Remove(dst.Name())
		return "", closeErr
	}
	return dst.Name(), nil
}
