package submission

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/metrics"
)

// Sender posts encoded answers to POST /exams/submitExam/{examId}.
type Sender interface {
	SubmitExam(ctx context.Context, examID int64, fields []Field) (*Receipt, error)
}

// Journal keeps a local record of successful submissions.
type Journal interface {
	Record(ctx context.Context, receipt Receipt) error
}

// DispatcherOptions configures encoding and optional collaborators.
type DispatcherOptions struct {
	Form    FormOptions
	Guard   Guard
	Journal Journal
	Metrics *metrics.Recorder
	Now     func() time.Time
}

// Dispatcher sends a session's payload and returns the authoritative receipt.
// It imposes no timeout of its own and never retries.
type Dispatcher struct {
	sender  Sender
	form    FormOptions
	guard   Guard
	journal Journal
	metrics *metrics.Recorder
	now     func() time.Time
	logger  zerolog.Logger
}

func NewDispatcher(sender Sender, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.Form.EmptyAnswers == "" {
		opts.Form.EmptyAnswers = EmptyAnswersOmit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		sender:  sender,
		form:    opts.Form,
		guard:   opts.Guard,
		journal: opts.Journal,
		metrics: opts.Metrics,
		now:     opts.Now,
		logger:  logger.With().Str("component", "submission_dispatcher").Logger(),
	}
}

// Dispatch submits req. Errors are returned as *Failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Receipt, error) {
	logger := d.logger.With().Int64("exam_id", req.ExamID).Str("nonce", req.Nonce).Str("trigger", req.Trigger).Logger()

	if d.guard != nil && req.Nonce != "" {
		prior, release, err := d.guard.Begin(ctx, req.Nonce)
		switch {
		case errors.Is(err, ErrDuplicateInFlight):
			d.metrics.SubmissionDispatched(req.Trigger, "duplicate")
			return nil, &Failure{ExamID: req.ExamID, Err: err}
		case err != nil:
			// guard errors fall through to an unguarded send
			logger.Warn().Err(err).Msg("submission guard unavailable")
		case prior != nil:
			d.metrics.SubmissionDispatched(req.Trigger, "replayed")
			logger.Info().Int("score", prior.Score).Msg("returning stored receipt for nonce")
			return prior, nil
		default:
			defer release()
		}
	}

	fields := req.Payload.Fields(d.form, req.Nonce)
	receipt, err := d.sender.SubmitExam(ctx, req.ExamID, fields)
	if err != nil {
		d.metrics.SubmissionDispatched(req.Trigger, "error")
		logger.Error().Err(err).Msg("exam submission failed")
		return nil, &Failure{ExamID: req.ExamID, Err: err}
	}
	if receipt == nil {
		d.metrics.SubmissionDispatched(req.Trigger, "error")
		logger.Error().Msg("exam submission returned no receipt")
		return nil, &Failure{ExamID: req.ExamID, Err: ErrEmptyReceipt}
	}

	receipt.Nonce = req.Nonce
	receipt.Trigger = req.Trigger
	if receipt.SubmittedAt.IsZero() {
		receipt.SubmittedAt = d.now().UTC()
	}
	if receipt.ExamID == 0 {
		receipt.ExamID = req.ExamID
	}

	if d.guard != nil && req.Nonce != "" {
		if err := d.guard.Complete(ctx, req.Nonce, *receipt); err != nil {
			logger.Warn().Err(err).Msg("store receipt in guard failed")
		}
	}
	if d.journal != nil {
		if err := d.journal.Record(ctx, *receipt); err != nil {
			logger.Warn().Err(err).Msg("journal receipt failed")
		}
	}

	d.metrics.SubmissionDispatched(req.Trigger, "ok")
	logger.Info().
		Int("score", receipt.Score).
		Int("total_questions", receipt.TotalQuestions).
		Int("answered", req.Payload.Answered()).
		Msg("exam submitted")
	return receipt, nil
}
