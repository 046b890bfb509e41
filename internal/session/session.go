package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/countdown"
	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/metrics"
	"github.com/gokatarajesh/exam-runner/internal/submission"
)

// Dispatcher sends a built payload to the backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, req submission.Request) (*submission.Receipt, error)
}

// ExamLoader fetches an exam definition.
type ExamLoader interface {
	Load(ctx context.Context, examID int64) (*exam.ExamDefinition, error)
}

// Options configures a Session.
type Options struct {
	Clock        countdown.Clock
	TickInterval time.Duration
	OnEvent      func(Event)
	Metrics      *metrics.Recorder
}

// Session is one student's attempt at one exam. All state lives behind a single
// mutex; the countdown and the network call never hold it.
type Session struct {
	id           uuid.UUID
	dispatcher   Dispatcher
	clock        countdown.Clock
	tickInterval time.Duration
	onEvent      func(Event)
	metrics      *metrics.Recorder
	logger       zerolog.Logger

	// ctx scopes timer-initiated submissions; cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	def        *exam.ExamDefinition
	status     Status
	current    int
	deadline   *time.Time
	answers    map[int64]int64
	nonce      string
	submitting bool
	outcome    *Outcome
	timer      *countdown.Timer
	closed     bool
}

// New creates a session in NotStarted without an exam attached.
func New(dispatcher Dispatcher, opts Options, logger zerolog.Logger) *Session {
	if opts.Clock == nil {
		opts.Clock = countdown.RealClock{}
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           id,
		dispatcher:   dispatcher,
		clock:        opts.Clock,
		tickInterval: opts.TickInterval,
		onEvent:      opts.OnEvent,
		metrics:      opts.Metrics,
		logger:       logger.With().Str("component", "session").Str("session_id", id.String()).Logger(),
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusNotStarted,
		answers:      make(map[int64]int64),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Exam returns the attached definition, or nil before a successful load.
func (s *Session) Exam() *exam.ExamDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.def
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetExam attaches a loaded definition. Only allowed before Start. An exam
// without questions is unavailable.
func (s *Session) SetExam(def *exam.ExamDefinition) error {
	if def == nil || len(def.Questions) == 0 {
		return ErrExamUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.status != StatusNotStarted {
		return ErrAlreadyStarted
	}
	s.def = def
	return nil
}

// Load fetches the exam and attaches it. A failed load leaves the session without an exam.
func (s *Session) Load(ctx context.Context, loader ExamLoader, examID int64) (*exam.ExamDefinition, error) {
	def, err := loader.Load(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.SetExam(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Start moves NotStarted to InProgress at index 0 with an empty answer map. The
// deadline is fixed here, and only timed exams get a countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.def == nil {
		s.mu.Unlock()
		return ErrExamUnavailable
	}
	if s.status != StatusNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	now := s.clock.Now()
	s.status = StatusInProgress
	s.current = 0
	s.answers = make(map[int64]int64)
	s.nonce = uuid.NewString()

	if d, ok := s.def.Duration(); ok {
		deadline := now.Add(d)
		s.deadline = &deadline
		s.timer = countdown.New(countdown.Options{
			Clock:    s.clock,
			Interval: s.tickInterval,
			OnTick:   s.handleTick,
			OnExpire: s.handleExpire,
		}, s.logger)
		if err := s.timer.Start(deadline); err != nil {
			s.logger.Error().Err(err).Msg("countdown start failed")
		}
	}

	logEvt := s.logger.Info().Int64("exam_id", s.def.ID).Int("questions", len(s.def.Questions)).Str("nonce", s.nonce)
	if s.deadline != nil {
		logEvt = logEvt.Time("deadline", *s.deadline)
	}
	s.mu.Unlock()

	logEvt.Msg("session started")
	s.emit(Event{Type: EventStarted})
	return nil
}

// SelectAnswer records answerID for questionID, replacing any earlier choice.
// Any question may be answered regardless of the cursor.
func (s *Session) SelectAnswer(questionID, answerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMutableLocked(); err != nil {
		return err
	}
	if s.deadline != nil && !s.clock.Now().Before(*s.deadline) {
		return ErrDeadlinePassed
	}
	idx, ok := s.def.QuestionIndex(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if !s.def.Questions[idx].HasAnswer(answerID) {
		return ErrUnknownAnswer
	}
	s.answers[questionID] = answerID
	return nil
}

// GoTo moves the cursor. Out-of-range indexes are rejected and the cursor is unchanged.
func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInProgressLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.def.Questions) {
		return ErrIndexOutOfRange
	}
	s.current = index
	return nil
}

// Next advances the cursor, or submits when already on the last question.
func (s *Session) Next(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	if err := s.checkInProgressLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.current >= len(s.def.Questions)-1 {
		s.mu.Unlock()
		return s.Submit(ctx, submission.TriggerUser)
	}
	s.current++
	s.mu.Unlock()
	return nil, nil
}

// Previous moves the cursor back, stopping at the first question.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInProgressLocked(); err != nil {
		return err
	}
	if s.current > 0 {
		s.current--
	}
	return nil
}

// Submit sends the answers once. A submitted session returns its stored outcome
// without another network call; a concurrent call while one is in flight gets
// ErrSubmitInFlight. On failure the session stays InProgress with answers intact.
func (s *Session) Submit(ctx context.Context, trigger string) (*Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	switch s.status {
	case StatusSubmitted:
		out := *s.outcome
		s.mu.Unlock()
		return &out, nil
	case StatusNotStarted:
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	s.submitting = true
	req := submission.Request{
		ExamID:  s.def.ID,
		Nonce:   s.nonce,
		Trigger: trigger,
		Payload: submission.BuildPayload(s.def, s.answers),
	}
	questionCount := len(s.def.Questions)
	s.mu.Unlock()

	receipt, err := s.dispatcher.Dispatch(ctx, req)
	if err == nil && receipt == nil {
		err = &submission.Failure{ExamID: req.ExamID, Err: submission.ErrEmptyReceipt}
	}

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		if !errors.Is(err, submission.ErrSubmissionFailure) {
			err = &submission.Failure{ExamID: req.ExamID, Err: err}
		}
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("submission failed; session remains in progress")
		s.emit(Event{Type: EventSubmitFailed, Err: err})
		return nil, err
	}

	total := receipt.TotalQuestions
	if total == 0 {
		total = questionCount
	}
	s.status = StatusSubmitted
	s.outcome = &Outcome{
		Score:          receipt.Score,
		TotalQuestions: total,
		Trigger:        trigger,
		SubmittedAt:    receipt.SubmittedAt,
		Details:        receipt.Details,
	}
	out := *s.outcome
	timer := s.timer
	s.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	s.logger.Info().Int("score", out.Score).Int("total_questions", out.TotalQuestions).Str("trigger", trigger).Msg("session submitted")
	s.emit(Event{Type: EventSubmitted, Outcome: &out})
	return &out, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		Status:       s.status,
		CurrentIndex: s.current,
		Nonce:        s.nonce,
		Submitting:   s.submitting,
		Closed:       s.closed,
		Answers:      make(map[int64]int64, len(s.answers)),
	}
	for q, a := range s.answers {
		snap.Answers[q] = a
	}
	if s.def != nil {
		snap.ExamID = s.def.ID
		snap.QuestionCount = len(s.def.Questions)
	}
	if s.deadline != nil {
		deadline := *s.deadline
		snap.Deadline = &deadline
		if s.status == StatusInProgress {
			remaining := countdown.Remaining(deadline, s.clock.Now())
			secs := int(math.Ceil(remaining.Seconds()))
			snap.Remaining = &remaining
			snap.RemainingSecs = &secs
		}
	}
	if s.outcome != nil {
		out := *s.outcome
		snap.Outcome = &out
	}
	return snap
}

// Close tears the session down. The countdown stops and a pending timer-driven
// submission is cancelled; every later call fails with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	timer := s.timer
	status := s.status
	s.mu.Unlock()

	s.cancel()
	if timer != nil {
		timer.Cancel()
	}
	s.logger.Info().Str("status", string(status)).Msg("session closed")
}

// TimerDone is closed when the session's countdown loop has exited, or immediately for untimed sessions.
func (s *Session) TimerDone() <-chan struct{} {
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	if timer == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return timer.Done()
}

// HasTimer reports whether a countdown was started for this session.
func (s *Session) HasTimer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Session) handleTick(remaining time.Duration) {
	s.mu.Lock()
	live := !s.closed && s.status == StatusInProgress
	s.mu.Unlock()
	if live {
		s.emit(Event{Type: EventTick, Remaining: remaining})
	}
}

func (s *Session) handleExpire() {
	s.mu.Lock()
	live := !s.closed && s.status == StatusInProgress
	s.mu.Unlock()
	if !live {
		return
	}

	s.metrics.AutoSubmitted()
	s.logger.Info().Msg("deadline reached; submitting")
	s.emit(Event{Type: EventExpired})

	if _, err := s.Submit(s.ctx, submission.TriggerTimer); err != nil {
		switch {
		case errors.Is(err, ErrSubmitInFlight), errors.Is(err, ErrSessionClosed):
			s.logger.Debug().Err(err).Msg("auto-submit skipped")
		default:
			s.logger.Error().Err(err).Msg("auto-submit failed")
		}
	}
}

func (s *Session) checkInProgressLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.status != StatusInProgress {
		return ErrNotInProgress
	}
	return nil
}

func (s *Session) checkMutableLocked() error {
	if err := s.checkInProgressLocked(); err != nil {
		return err
	}
	if s.submitting {
		return ErrSubmitInFlight
	}
	return nil
}

func (s *Session) emit(evt Event) {
	evt.SessionID = s.id
	s.onEvent(evt)
}
