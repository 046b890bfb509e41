package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gokatarajesh/exam-runner/internal/auth"
	"github.com/gokatarajesh/exam-runner/internal/navigator"
	"github.com/gokatarajesh/exam-runner/internal/session"
	"github.com/gokatarajesh/exam-runner/internal/submission"
	httperrors "github.com/gokatarajesh/exam-runner/pkg/http/errors"
)

type createSessionRequest struct {
	ExamID int64 `json:"exam_id"`
}

type selectAnswerRequest struct {
	QuestionID int64 `json:"question_id" validate:"gt=0"`
	AnswerID   int64 `json:"answer_id" validate:"gt=0"`
}

type goToRequest struct {
	Index *int `json:"index" validate:"required"`
}

// CreateSession loads an exam for the caller and opens a NotStarted session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	api := h.backend.ForStudent(creds)
	s := session.New(h.dispatcherFor(api, creds), session.Options{
		Clock:        h.clock,
		TickInterval: h.tick,
		OnEvent:      h.bridge(creds.Subject),
		Metrics:      h.metrics,
	}, h.logger)

	if _, err := s.Load(r.Context(), h.loader.WithFetcher(api), req.ExamID); err != nil {
		s.Close()
		h.logger.Warn().Err(err).Int64("exam_id", req.ExamID).Str("subject", creds.Subject).Msg("exam load failed")
		respondError(w, err)
		return
	}
	h.sessions.Add(creds.Subject, s)

	h.logger.Info().
		Str("session_id", s.ID().String()).
		Int64("exam_id", req.ExamID).
		Str("subject", creds.Subject).
		Msg("session created")
	httperrors.RespondJSON(w, http.StatusCreated, h.sessionResponse(s, true))
}

func (h *Handler) dispatcherFor(api StudentAPI, creds auth.Credentials) *submission.Dispatcher {
	opts := submission.DispatcherOptions{
		Form:    h.form,
		Guard:   h.guard,
		Metrics: h.metrics,
	}
	if h.receipts != nil {
		opts.Journal = h.receipts.ForSubject(creds.Subject)
	}
	return submission.NewDispatcher(api, opts, h.logger)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, h.sessionResponse(s, true))
}

// DeleteSession tears the session down. A running countdown is cancelled and
// never submits afterwards.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, creds, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Remove(s.ID(), creds.Subject); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession begins the attempt and, for timed exams, the countdown.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	s, creds, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Start(); err != nil {
		respondError(w, err)
		return
	}
	resp := h.sessionResponse(s, false)
	if resp.Session.Deadline != nil {
		resp.TokenExpiresFirst = creds.ExpiresBefore(*resp.Session.Deadline)
	}
	h.respondState(w, s, resp)
}

func (h *Handler) SelectAnswer(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := s.SelectAnswer(req.QuestionID, req.AnswerID); err != nil {
		respondError(w, err)
		return
	}
	h.respondState(w, s, h.sessionResponse(s, false))
}

func (h *Handler) GoTo(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req goToRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := navigator.Jump(s, *req.Index); err != nil {
		respondError(w, err)
		return
	}
	h.respondState(w, s, h.sessionResponse(s, false))
}

// Next advances the cursor; on the last question it submits.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if _, err := s.Next(context.WithoutCancel(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	h.respondState(w, s, h.sessionResponse(s, false))
}

func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Previous(); err != nil {
		respondError(w, err)
		return
	}
	h.respondState(w, s, h.sessionResponse(s, false))
}

// Submit sends the answers. The request context is detached so a client that
// disconnects mid-submit does not abort the upload.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if _, err := s.Submit(context.WithoutCancel(r.Context()), submission.TriggerUser); err != nil {
		respondError(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, h.sessionResponse(s, false))
}

// Navigator returns one page of the question index. Without ?page it returns
// the page holding the current question.
func (h *Handler) Navigator(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	def := s.Exam()
	if def == nil {
		respondError(w, session.ErrExamUnavailable)
		return
	}
	snap := s.Snapshot()
	view := navigator.Build(def.Questions, snap.Answers, snap.CurrentIndex, h.pageSize)

	n := view.PageOf(snap.CurrentIndex)
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "page must be an integer")
			return
		}
		n = parsed
	}
	page, err := view.Page(n)
	if err != nil {
		respondError(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, NavigatorResponse{
		Page:         page.Number,
		Pages:        page.Pages,
		PageSize:     view.PageSize,
		CurrentIndex: view.CurrentIndex,
		Answered:     view.Answered,
		Unanswered:   view.Unanswered(),
		Items:        page.Items,
	})
}

// respondState answers the request and mirrors the new state to WebSocket listeners.
func (h *Handler) respondState(w http.ResponseWriter, s *session.Session, resp SessionResponse) {
	h.pushState(s.ID(), resp)
	httperrors.RespondJSON(w, http.StatusOK, resp)
}
