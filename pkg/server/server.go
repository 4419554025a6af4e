// Package server exposes the sync engine and push dispatcher over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/daviddao/calsync/pkg/engine"
	"github.com/daviddao/calsync/pkg/frontier"
	"github.com/daviddao/calsync/pkg/model"
	"github.com/daviddao/calsync/pkg/push"
)

const maxBodyBytes = 1 << 20

// WatermarkHeader carries the next pull threshold on GET /api/events.
const WatermarkHeader = "X-Sync-Watermark"

// Error reasons returned in the "error" field of rejections.
const (
	reasonInvalidBody         = "invalid_body"
	reasonInvalidSubscription = "invalid_subscription"
	reasonEmptyBatch          = "empty_batch"
	reasonPushNotConfigured   = "push_not_configured"
	reasonNoSubscribers       = "no_subscribers"
	reasonPushFailed          = "push_failed"
)

// Server holds the HTTP handlers.
type Server struct {
	engine     *engine.Engine
	registry   *push.Registry
	dispatcher *push.Dispatcher
	log        *zap.Logger
}

// New returns a Server.
func New(eng *engine.Engine, reg *push.Registry, disp *push.Dispatcher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: eng, registry: reg, dispatcher: disp, log: log.Named("http")}
}

// Handler returns the router wrapped in CORS for origins.
func (s *Server) Handler(origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{WatermarkHeader, requestIDHeader},
	}).Handler(s.Router())
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api.HandleFunc("/subscribe", s.subscribe).Methods(http.MethodPost)
	api.HandleFunc("/push/public-key", s.publicKey).Methods(http.MethodGet)
	api.HandleFunc("/push/test", s.pushTest).Methods(http.MethodPost)
	api.HandleFunc("/send-test", s.pushTest).Methods(http.MethodPost)

	api.HandleFunc("/events", s.listEvents).Methods(http.MethodGet)
	api.HandleFunc("/events", s.upsertEvents).Methods(http.MethodPost)
	api.HandleFunc("/events/delete", s.deleteEvents).Methods(http.MethodPost)

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	total, active := s.engine.Counts()
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		model.Stats
	}{
		OK: true,
		Stats: model.Stats{
			Subscribers:  s.registry.Len(),
			Events:       total,
			ActiveEvents: active,
		},
	})
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var sub model.Subscription
	body, err := readBody(w, r)
	if err == nil {
		err = json.Unmarshal(body, &sub)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonInvalidSubscription, err.Error())
		return
	}
	added, err := s.registry.Register(sub, r.UserAgent())
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonInvalidSubscription, err.Error())
		return
	}
	if added {
		s.log.Info("subscription registered", zap.String("endpoint", sub.Endpoint))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"subscriberCount": s.registry.Len(),
	})
}

func (s *Server) publicKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.dispatcher.PublicKey()
	if err != nil {
		writeError(w, http.StatusPreconditionFailed, reasonPushNotConfigured, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"publicKey": key})
}

func (s *Server) pushTest(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.BroadcastNotification(r.Context(), push.TestNotification)
	switch {
	case errors.Is(err, push.ErrNotConfigured):
		writeError(w, http.StatusPreconditionFailed, reasonPushNotConfigured, err.Error())
		return
	case errors.Is(err, push.ErrNoSubscribers):
		writeError(w, http.StatusPreconditionFailed, reasonNoSubscribers, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, reasonPushFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"sent":            res.Sent,
		"failed":          res.Failed,
		"subscriberCount": res.Remaining,
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil || since < 0 {
		since = 0
	}
	events := s.engine.ListSince(since)
	w.Header().Set(WatermarkHeader, strconv.FormatInt(frontier.Advance(since, events), 10))
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) upsertEvents(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonInvalidBody, err.Error())
		return
	}
	candidates, err := model.DecodeCandidates(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonInvalidBody, err.Error())
		return
	}
	accepted, err := s.engine.ApplyUpserts(candidates)
	if s.mutationRejected(w, "upsert", err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "acceptedCount": accepted})
}

func (s *Server) deleteEvents(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonInvalidBody, err.Error())
		return
	}
	req, err := model.DecodeDeleteRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonInvalidBody, err.Error())
		return
	}
	affected, err := s.engine.ApplyDeletes(req.IDs, req.At)
	if s.mutationRejected(w, "delete", err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "affectedCount": affected})
}

// mutationRejected writes a rejection for a structural failure and reports
// whether it did. A failed save is logged only; the caller still gets the
// count, and the change may not be on disk.
func (s *Server) mutationRejected(w http.ResponseWriter, op string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, engine.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, reasonEmptyBatch, err.Error())
		return true
	default:
		s.log.Error("mutation not persisted", zap.String("op", op), zap.Error(err))
		return false
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": reason, "message": msg})
}
