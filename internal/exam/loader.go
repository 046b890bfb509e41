package exam

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/metrics"
)

// Fetcher retrieves an exam definition from the backend (POST /exams/startExam/{id}).
type Fetcher interface {
	StartExam(ctx context.Context, examID int64) (*ExamDefinition, error)
}

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Loader fetches and validates exam definitions.
type Loader struct {
	fetcher  Fetcher
	validate *validator.Validate
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// NewLoader builds a loader. rec may be nil.
func NewLoader(fetcher Fetcher, rec *metrics.Recorder, logger zerolog.Logger) *Loader {
	return &Loader{
		fetcher:  fetcher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  rec,
		logger:   logger.With().Str("component", "exam_loader").Logger(),
	}
}

// WithFetcher returns a loader that shares l's validator and metrics but reads
// through f, e.g. a backend client bound to one student's token.
func (l *Loader) WithFetcher(f Fetcher) *Loader {
	clone := *l
	clone.fetcher = f
	return &clone
}

// Load fetches the exam. Any failure is returned as a *LoadError.
func (l *Loader) Load(ctx context.Context, examID int64) (*ExamDefinition, error) {
	if examID <= 0 {
		return nil, l.fail(&LoadError{ExamID: examID, Reason: ReasonInvalidID})
	}

	def, err := l.fetcher.StartExam(ctx, examID)
	if err != nil {
		return nil, l.fail(&LoadError{ExamID: examID, Reason: classify(err), Err: err})
	}
	if def == nil {
		return nil, l.fail(&LoadError{ExamID: examID, Reason: ReasonInvalidDefinition, Err: errors.New("empty exam payload")})
	}
	if err := l.validate.Struct(def); err != nil {
		return nil, l.fail(&LoadError{ExamID: examID, Reason: ReasonInvalidDefinition, Err: fmt.Errorf("validate exam: %w", err)})
	}

	l.metrics.ExamLoaded("ok")
	l.logger.Info().
		Int64("exam_id", def.ID).
		Int("questions", def.QuestionCount()).
		Bool("timed", def.Timed()).
		Msg("exam loaded")
	return def, nil
}

func (l *Loader) fail(err *LoadError) error {
	l.metrics.ExamLoaded(err.Reason)
	l.logger.Warn().Err(err.Err).Int64("exam_id", err.ExamID).Str("reason", err.Reason).Msg("exam load failed")
	return err
}

func classify(err error) string {
	var sc statusCoder
	if !errors.As(err, &sc) {
		return ReasonNetwork
	}
	switch sc.HTTPStatus() {
	case http.StatusNotFound:
		return ReasonNotFound
	case http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity:
		return ReasonUnavailable
	default:
		return ReasonBackend
	}
}
