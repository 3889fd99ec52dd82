package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"assettrail/internal/audit"
	"assettrail/internal/platform/middleware"
	"assettrail/internal/stream"
	"assettrail/internal/summary"
	dErrors "assettrail/pkg/domain-errors"
	"assettrail/pkg/platform/httputil"
)

// Recorder is the audit write/read service consumed by this handler.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event) (*audit.Event, bool, error)
	List(ctx context.Context, since time.Time, take int) (*audit.ListResult, error)
}

// Summaries serves the cached aggregate counts.
type Summaries interface {
	Summary(ctx context.Context, categories []string) ([]summary.CategorySummary, error)
}

// Handler exposes the audit endpoints: create, fallback list, summary, and
// the SSE push stream.
type Handler struct {
	recorder  Recorder
	summaries Summaries
	hub       *stream.Hub
	logger    *slog.Logger
}

func New(recorder Recorder, summaries Summaries, hub *stream.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		recorder:  recorder,
		summaries: summaries,
		hub:       hub,
		logger:    logger,
	}
}

// Register registers the audit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/audit", func(r chi.Router) {
		r.Post("/events", h.handleCreate)
		r.Get("/events", h.handleList)
		r.Get("/summary", h.handleSummary)
		r.Get("/stream", h.handleStream)
	})
}

type createRequest struct {
	ID          string              `json:"id"`
	Actor       string              `json:"actor"`
	Action      string              `json:"action"`
	Description string              `json:"description"`
	Kind        string              `json:"kind"`
	HardwareID  string              `json:"hardware_id"`
	SoftwareID  string              `json:"software_id"`
	Changes     []audit.FieldChange `json:"changes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	ev := audit.Event{
		ExternalID:  strings.TrimSpace(req.ID),
		Actor:       strings.TrimSpace(req.Actor),
		Action:      strings.TrimSpace(req.Action),
		Description: req.Description,
		Kind:        audit.TargetKind(req.Kind),
		HardwareID:  strings.TrimSpace(req.HardwareID),
		SoftwareID:  strings.TrimSpace(req.SoftwareID),
		Changes:     req.Changes,
	}

	stored, inserted, err := h.recorder.Record(ctx, ev)
	if err != nil {
		h.logger.WarnContext(ctx, "audit create rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if !inserted {
		// Idempotent replay: same identifiers, no second event.
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, stored)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "since must be RFC3339"))
			return
		}
		since = parsed
	}

	take := 0
	if raw := r.URL.Query().Get("take"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "take must be an integer"))
			return
		}
		take = parsed
	}

	result, err := h.recorder.List(ctx, since, take)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit list failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var categories []string
	if raw := r.URL.Query().Get("categories"); raw != "" {
		categories = strings.Split(raw, ",")
	}

	summaries, err := h.summaries.Summary(ctx, categories)
	if err != nil {
		h.logger.ErrorContext(ctx, "summary read failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "compute summary"))
		return
	}
	if summaries == nil {
		summaries = []summary.CategorySummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": summaries})
}

// handleStream is the push channel: one SSE event per committed audit record.
// Clients may pin a connection id for reconnects; join stays idempotent per
// id, so a duplicate join attaches to the existing membership.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "streaming not supported"))
		return
	}

	connectionID := r.URL.Query().Get("connection_id")
	if connectionID == "" {
		connectionID = uuid.New().String()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, _ := h.hub.JoinIfNotMember(connectionID)
	defer h.hub.Leave(connectionID)

	fmt.Fprintf(w, "event: ready\ndata: {\"connection_id\":%q}\n\n", connectionID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: audit\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
