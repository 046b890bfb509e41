package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gokatarajesh/exam-runner/internal/auth"
	"github.com/gokatarajesh/exam-runner/internal/backend"
	"github.com/gokatarajesh/exam-runner/internal/journal"
	httperrors "github.com/gokatarajesh/exam-runner/pkg/http/errors"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	Type      string     `json:"type,omitempty"`
	Username  string     `json:"username,omitempty"`
	Subject   string     `json:"subject"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Login exchanges student credentials for a backend token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.backend.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusUnprocessableEntity) {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeLoginFailed, "Invalid username or password")
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		respondUpstream(w, err)
		return
	}
	creds, err := auth.NewCredentials(res.Token)
	if err != nil {
		h.logger.Error().Err(err).Msg("backend issued an unusable token")
		httperrors.RespondBadGateway(w, httperrors.ErrCodeUpstreamError, "Backend issued an invalid token")
		return
	}
	resp := loginResponse{Token: res.Token, Type: res.Type, Username: res.Username, Subject: creds.Subject}
	if !creds.Expiry.IsZero() {
		resp.ExpiresAt = &creds.Expiry
	}
	httperrors.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) ActiveExams(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	exams, err := h.catalog.ActiveExams(r.Context(), creds.Subject, h.backend.ForStudent(creds))
	if err != nil {
		respondUpstream(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]any{"exams": exams})
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	results, err := h.catalog.Results(r.Context(), creds.Subject, h.backend.ForStudent(creds))
	if err != nil {
		respondUpstream(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	dash, err := h.catalog.Dashboard(r.Context(), creds.Subject, h.backend.ForStudent(creds))
	if err != nil {
		respondUpstream(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, dash)
}

func (h *Handler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	subs, err := h.catalog.Subscriptions(r.Context(), creds.Subject, h.backend.ForStudent(creds))
	if err != nil {
		respondUpstream(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, subs)
}

// ListReceipts returns the caller's locally journaled submissions, newest first.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if h.receipts == nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeFeatureNotAvailable, "Submission journal is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.receipts.List(r.Context(), creds.Subject, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("subject", creds.Subject).Msg("list receipts failed")
		httperrors.RespondInternalError(w, "Failed to list receipts")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]any{"receipts": entries})
}
