package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/auth"
	"github.com/gokatarajesh/exam-runner/internal/backend"
	"github.com/gokatarajesh/exam-runner/internal/catalog"
	"github.com/gokatarajesh/exam-runner/internal/countdown"
	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/journal"
	"github.com/gokatarajesh/exam-runner/internal/metrics"
	"github.com/gokatarajesh/exam-runner/internal/navigator"
	"github.com/gokatarajesh/exam-runner/internal/session"
	"github.com/gokatarajesh/exam-runner/internal/submission"
	httperrors "github.com/gokatarajesh/exam-runner/pkg/http/errors"
	"github.com/gokatarajesh/exam-runner/pkg/http/ws"
)

// StudentAPI is the backend surface used on behalf of one student.
type StudentAPI interface {
	exam.Fetcher
	submission.Sender
	catalog.Source
}

// Backend authenticates students and hands out student-scoped clients.
type Backend interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResult, error)
	ForStudent(creds auth.Credentials) StudentAPI
}

// ClientBackend adapts *backend.Client to Backend.
type ClientBackend struct {
	*backend.Client
}

func (b ClientBackend) ForStudent(creds auth.Credentials) StudentAPI {
	return b.Client.WithTokenSource(creds.TokenSource())
}

// Receipts is the optional submission journal.
type Receipts interface {
	List(ctx context.Context, subject string, limit int) ([]journal.Entry, error)
	ForSubject(subject string) submission.Journal
}

var _ Receipts = (*journal.Repository)(nil)

// Options wires the gateway's collaborators. Catalog, Receipts, Guard and
// Assets are optional.
type Options struct {
	Sessions     *session.Manager
	Hub          *ws.Hub
	Loader       *exam.Loader
	Catalog      *catalog.Service
	Receipts     Receipts
	Guard        submission.Guard
	Assets       *exam.AssetResolver
	Form         submission.FormOptions
	Upgrader     *websocket.Upgrader
	Clock        countdown.Clock
	TickInterval time.Duration
	PageSize     int
	Metrics      *metrics.Recorder
}

// Handler serves the student-facing HTTP and WebSocket API.
type Handler struct {
	backend  Backend
	sessions *session.Manager
	hub      *ws.Hub
	loader   *exam.Loader
	catalog  *catalog.Service
	receipts Receipts
	guard    submission.Guard
	assets   *exam.AssetResolver
	form     submission.FormOptions
	upgrader *websocket.Upgrader
	clock    countdown.Clock
	tick     time.Duration
	pageSize int
	metrics  *metrics.Recorder
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler constructs the gateway handler.
func NewHandler(b Backend, opts Options, logger zerolog.Logger) *Handler {
	logger = logger.With().Str("component", "gateway").Logger()
	if opts.Hub == nil {
		opts.Hub = ws.NewHub(logger)
	}
	if opts.Sessions == nil {
		hub := opts.Hub
		opts.Sessions = session.NewManager(session.ManagerOptions{
			OnClose:  hub.CloseSession,
			Attached: func(id uuid.UUID) bool { return hub.Connections(id) > 0 },
		}, logger)
	}
	if opts.Loader == nil {
		opts.Loader = exam.NewLoader(nil, opts.Metrics, logger)
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.NewService(nil, logger)
	}
	if opts.Upgrader == nil {
		opts.Upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	}
	if opts.Clock == nil {
		opts.Clock = countdown.RealClock{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = navigator.DefaultPageSize
	}
	if opts.Form.EmptyAnswers == "" {
		opts.Form.EmptyAnswers = submission.EmptyAnswersOmit
	}

	return &Handler{
		backend:  b,
		sessions: opts.Sessions,
		hub:      opts.Hub,
		loader:   opts.Loader,
		catalog:  opts.Catalog,
		receipts: opts.Receipts,
		guard:    opts.Guard,
		assets:   opts.Assets,
		form:     opts.Form,
		upgrader: opts.Upgrader,
		clock:    opts.Clock,
		tick:     opts.TickInterval,
		pageSize: opts.PageSize,
		metrics:  opts.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Register mounts every route on mux. requireAuth guards student routes.
func (h *Handler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	protect := func(fn http.HandlerFunc) http.Handler { return requireAuth(fn) }

	mux.HandleFunc("POST /v1/auth/login", h.Login)

	mux.Handle("GET /v1/exams/active", protect(h.ActiveExams))
	mux.Handle("GET /v1/results", protect(h.Results))
	mux.Handle("GET /v1/dashboard", protect(h.Dashboard))
	mux.Handle("GET /v1/subscriptions", protect(h.Subscriptions))
	mux.Handle("GET /v1/receipts", protect(h.ListReceipts))

	mux.Handle("POST /v1/sessions", protect(h.CreateSession))
	mux.Handle("GET /v1/sessions/{id}", protect(h.GetSession))
	mux.Handle("DELETE /v1/sessions/{id}", protect(h.DeleteSession))
	mux.Handle("POST /v1/sessions/{id}/start", protect(h.StartSession))
	mux.Handle("POST /v1/sessions/{id}/answers", protect(h.SelectAnswer))
	mux.Handle("POST /v1/sessions/{id}/goto", protect(h.GoTo))
	mux.Handle("POST /v1/sessions/{id}/next", protect(h.Next))
	mux.Handle("POST /v1/sessions/{id}/previous", protect(h.Previous))
	mux.Handle("POST /v1/sessions/{id}/submit", protect(h.Submit))
	mux.Handle("GET /v1/sessions/{id}/navigator", protect(h.Navigator))

	mux.Handle("GET /ws/sessions/{id}", protect(h.HandleWebSocket))
}

// Shutdown closes every live session.
func (h *Handler) Shutdown() {
	h.sessions.CloseAll()
}

func (h *Handler) credentials(w http.ResponseWriter, r *http.Request) (auth.Credentials, bool) {
	creds, ok := auth.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return auth.Credentials{}, false
	}
	return creds, true
}

// lookup resolves the {id} path value to the caller's session.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, auth.Credentials, bool) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return nil, creds, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidSessionID, "Invalid session id")
		return nil, creds, false
	}
	s, err := h.sessions.Get(id, creds.Subject)
	if err != nil {
		respondError(w, err)
		return nil, creds, false
	}
	return s, creds, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, verrs[0].Error(), verrs[0].Field())
			return false
		}
		httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
		return false
	}
	return true
}

// respondError maps domain errors onto HTTP responses.
func respondError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	httperrors.RespondError(w, status, code, message)
}

// classify returns the HTTP status, error code and client message for err.
func classify(err error) (int, string, string) {
	var loadErr *exam.LoadError
	switch {
	case errors.As(err, &loadErr):
		switch loadErr.Reason {
		case exam.ReasonInvalidID:
			return http.StatusBadRequest, httperrors.ErrCodeInvalidExamID, "Invalid exam id"
		case exam.ReasonNotFound:
			return http.StatusNotFound, httperrors.ErrCodeNotFound, "Exam not found"
		case exam.ReasonUnavailable:
			return http.StatusConflict, httperrors.ErrCodeExamUnavailable, "Exam is not available to you"
		default:
			return http.StatusBadGateway, httperrors.ErrCodeLoadFailure, "Could not load exam"
		}
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound, httperrors.ErrCodeSessionNotFound, "Session not found"
	case errors.Is(err, session.ErrExamUnavailable):
		return http.StatusConflict, httperrors.ErrCodeExamUnavailable, "Exam not loaded"
	case errors.Is(err, session.ErrAlreadyStarted):
		return http.StatusConflict, httperrors.ErrCodeAlreadyStarted, "Session already started"
	case errors.Is(err, session.ErrNotInProgress):
		return http.StatusConflict, httperrors.ErrCodeNotInProgress, "Session is not in progress"
	case errors.Is(err, session.ErrSubmitInFlight):
		return http.StatusConflict, httperrors.ErrCodeSubmitInFlight, "Submission already in progress"
	case errors.Is(err, session.ErrDeadlinePassed):
		return http.StatusConflict, httperrors.ErrCodeDeadlinePassed, "Exam time is over"
	case errors.Is(err, session.ErrIndexOutOfRange):
		return http.StatusBadRequest, httperrors.ErrCodeIndexOutOfRange, "Question index out of range"
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusBadRequest, httperrors.ErrCodeUnknownQuestion, "Question is not part of this exam"
	case errors.Is(err, session.ErrUnknownAnswer):
		return http.StatusBadRequest, httperrors.ErrCodeUnknownAnswer, "Answer is not part of this question"
	case errors.Is(err, navigator.ErrPageOutOfRange):
		return http.StatusBadRequest, httperrors.ErrCodePageOutOfRange, "Page out of range"
	case errors.Is(err, submission.ErrSubmissionFailure):
		return http.StatusBadGateway, httperrors.ErrCodeSubmissionFailure, "Submission failed; your answers are kept, please retry"
	default:
		return classifyUpstream(err)
	}
}

// respondUpstream reports a failed backend call.
func respondUpstream(w http.ResponseWriter, err error) {
	status, code, message := classifyUpstream(err)
	httperrors.RespondError(w, status, code, message)
}

func classifyUpstream(err error) (int, string, string) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, httperrors.ErrCodeInvalidToken, "Backend rejected the token"
		case http.StatusForbidden:
			return http.StatusForbidden, httperrors.ErrCodeForbidden, "Backend denied access"
		}
	}
	return http.StatusBadGateway, httperrors.ErrCodeUpstreamError, "Backend request failed"
}
