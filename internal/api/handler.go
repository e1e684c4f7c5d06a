// Package api is the daemon's local HTTP surface. The browser UI talks to it
// over the unix socket: connectivity status, settings, the video session and
// dashboard summaries, plus a websocket feed of daemon events.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
	"github.com/Abhishek8642/MindPal-1.3/internal/dashboard"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
	"github.com/Abhishek8642/MindPal-1.3/internal/media"
	"github.com/Abhishek8642/MindPal-1.3/internal/netmon"
	"github.com/Abhishek8642/MindPal-1.3/internal/settings"
	"github.com/Abhishek8642/MindPal-1.3/internal/video"
)

// Handler serves the daemon API.
type Handler struct {
	monitor   *netmon.Monitor
	settings  *settings.Store
	lifecycle *video.Lifecycle
	dashboard *dashboard.Service
	auth      *auth.Manager
	bus       *bus.Bus
	logger    *zap.Logger

	defaultReplicaID string
	freeTier         video.Tier
	privilegedTier   video.Tier
}

// Tiers bundles the session-duration policies the handler hands to the
// lifecycle.
type Tiers struct {
	Free       video.Tier
	Privileged video.Tier
}

// NewHandler creates the API handler.
func NewHandler(monitor *netmon.Monitor, st *settings.Store, lc *video.Lifecycle, dash *dashboard.Service, am *auth.Manager, b *bus.Bus, logger *zap.Logger, defaultReplicaID string, tiers Tiers) *Handler {
	return &Handler{
		monitor:          monitor,
		settings:         st,
		lifecycle:        lc,
		dashboard:        dash,
		auth:             am,
		bus:              b,
		logger:           logger,
		defaultReplicaID: defaultReplicaID,
		freeTier:         tiers.Free,
		privilegedTier:   tiers.Privileged,
	}
}

// Router builds the chi router for the daemon API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.getStatus)
		r.Post("/status/retry", h.retryStatus)

		r.Get("/auth/session", h.getAuthSession)
		r.Post("/auth/session", h.installAuthSession)
		r.Delete("/auth/session", h.clearAuthSession)

		r.Get("/settings", h.getSettings)
		r.Patch("/settings", h.patchSettings)

		r.Get("/video/session", h.getVideoSession)
		r.Post("/video/session", h.startVideoSession)
		r.Delete("/video/session", h.endVideoSession)
		r.Post("/video/tracks/{kind}", h.toggleTrack)

		r.Get("/dashboard/summary", h.getDashboardSummary)
		r.Get("/events", h.serveEvents)
	})
	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a classified error as JSON, mapping the fault kind to an HTTP
// status.
func Error(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	JSON(w, statusFor(kind), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.NotAuthenticated, fault.AuthTokenExpired:
		return http.StatusUnauthorized
	case fault.NetworkUnavailable, fault.BackendUnreachable:
		return http.StatusServiceUnavailable
	case fault.FreeTierCooldown:
		return http.StatusForbidden
	case fault.SessionActive, fault.DuplicateKey:
		return http.StatusConflict
	case fault.MediaAccessDenied:
		return http.StatusPreconditionFailed
	case fault.RemoteSessionCreateFailed:
		return http.StatusBadGateway
	case fault.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.monitor.Snapshot())
}

func (h *Handler) retryStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.monitor.Retry(r.Context()))
}

type authSessionRequest struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type authSessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
}

// getAuthSession reports whether a user is signed in. Tokens never leave the
// daemon.
func (h *Handler) getAuthSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := h.auth.Current()
	if err != nil {
		JSON(w, http.StatusOK, authSessionResponse{Authenticated: false})
		return
	}
	JSON(w, http.StatusOK, authSessionResponse{
		Authenticated: true,
		UserID:        sess.UserID,
		Email:         sess.Email,
	})
}

// installAuthSession installs the tokens the browser obtained from the auth
// flow, signing the user in for every backend-facing operation.
func (h *Handler) installAuthSession(w http.ResponseWriter, r *http.Request) {
	var req authSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session payload"})
		return
	}
	if req.UserID == "" || req.AccessToken == "" {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and access_token are required"})
		return
	}

	h.auth.SetSession(&auth.Session{
		UserID:       req.UserID,
		Email:        req.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	h.logger.Info("auth session installed", zap.String("user_id", req.UserID))
	JSON(w, http.StatusOK, authSessionResponse{
		Authenticated: true,
		UserID:        req.UserID,
		Email:         req.Email,
	})
}

func (h *Handler) clearAuthSession(w http.ResponseWriter, _ *http.Request) {
	h.auth.Clear()
	h.logger.Info("auth session cleared")
	JSON(w, http.StatusOK, authSessionResponse{Authenticated: false})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	rec, err := h.settings.Load(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

func (h *Handler) patchSettings(w http.ResponseWriter, r *http.Request) {
	var partial settings.Partial
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid settings payload"})
		return
	}
	rec, err := h.settings.Update(r.Context(), &partial)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

type startSessionRequest struct {
	ReplicaID  string `json:"replica_id,omitempty"`
	Privileged bool   `json:"privileged,omitempty"`
}

type sessionResponse struct {
	Session *video.Session `json:"session"`
	State   video.State    `json:"state"`
	Elapsed int            `json:"elapsed_seconds"`
}

func (h *Handler) getVideoSession(w http.ResponseWriter, _ *http.Request) {
	session, elapsed := h.lifecycle.Current()
	JSON(w, http.StatusOK, sessionResponse{
		Session: session,
		State:   h.lifecycle.StateOf(),
		Elapsed: elapsed,
	})
}

func (h *Handler) startVideoSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	// An empty body means defaults; a malformed one is a client error.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session request"})
		return
	}
	replicaID := req.ReplicaID
	if replicaID == "" {
		replicaID = h.defaultReplicaID
	}
	tier := h.freeTier
	if req.Privileged {
		tier = h.privilegedTier
	}

	session, err := h.lifecycle.StartSession(r.Context(), replicaID, tier)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, sessionResponse{Session: session, State: h.lifecycle.StateOf()})
}

func (h *Handler) endVideoSession(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.EndSession(r.Context()); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"state": string(h.lifecycle.StateOf())})
}

type toggleTrackRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) toggleTrack(w http.ResponseWriter, r *http.Request) {
	kind := media.TrackKind(chi.URLParam(r, "kind"))
	if kind != media.Video && kind != media.Audio {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be video or audio"})
		return
	}
	var req toggleTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid track payload"})
		return
	}
	h.lifecycle.SetKindEnabled(kind, req.Enabled)
	JSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *Handler) getDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summarize(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}
