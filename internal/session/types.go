package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/exam-runner/internal/submission"
)

// Status is the lifecycle state of a session. Transitions only move forward.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
)

var (
	ErrExamUnavailable = errors.New("exam not loaded")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrNotInProgress   = errors.New("session not in progress")
	ErrSubmitInFlight  = errors.New("submission already in flight")
	ErrIndexOutOfRange = errors.New("question index out of range")
	ErrUnknownQuestion = errors.New("question not part of exam")
	ErrUnknownAnswer   = errors.New("answer not part of question")
	ErrDeadlinePassed  = errors.New("exam deadline passed")
	ErrSessionClosed   = errors.New("session closed")
)

// Outcome is the server-reported result held by a submitted session.
type Outcome struct {
	Score          int                 `json:"score"`
	TotalQuestions int                 `json:"total_questions"`
	Trigger        string              `json:"trigger"`
	SubmittedAt    time.Time           `json:"submitted_at"`
	Details        []submission.Detail `json:"details,omitempty"`
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        int64           `json:"exam_id"`
	Status        Status          `json:"status"`
	QuestionCount int             `json:"question_count"`
	CurrentIndex  int             `json:"current_index"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	Remaining     *time.Duration  `json:"-"`
	RemainingSecs *int            `json:"remaining_seconds,omitempty"`
	Answers       map[int64]int64 `json:"answers"`
	Nonce         string          `json:"nonce,omitempty"`
	Submitting    bool            `json:"submitting"`
	Outcome       *Outcome        `json:"outcome,omitempty"`
	Closed        bool            `json:"closed"`
}

// Event types pushed to listeners.
const (
	EventStarted      = "started"
	EventTick         = "tick"
	EventExpired      = "expired"
	EventSubmitted    = "submitted"
	EventSubmitFailed = "submit_failed"
)

// Event notifies a listener of a lifecycle change. Callbacks run outside the session lock.
type Event struct {
	SessionID uuid.UUID
	Type      string
	Remaining time.Duration
	Outcome   *Outcome
	Err       error
}
