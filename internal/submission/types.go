package submission

import (
	"errors"
	"fmt"
	"time"
)

// Triggers label who initiated a submission.
const (
	TriggerUser  = "user"
	TriggerTimer = "timer"
)

// Request is one dispatch of a session's answers.
type Request struct {
	ExamID  int64
	Nonce   string
	Trigger string
	Payload Payload
}

// Receipt is the backend's authoritative result of a submission.
type Receipt struct {
	ExamID         int64     `json:"exam_id"`
	StudentID      int64     `json:"student_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Details        []Detail  `json:"details,omitempty"`
	Message        string    `json:"message,omitempty"`
	Nonce          string    `json:"nonce,omitempty"`
	Trigger        string    `json:"trigger,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Detail is the per-question review data returned with a receipt.
type Detail struct {
	QuestionID       int64          `json:"question_id"`
	QuestionText     string         `json:"question_text"`
	SelectedAnswerID *int64         `json:"selected_answer_id"`
	IsCorrect        bool           `json:"is_correct"`
	CorrectAnswerID  int64          `json:"correct_answer_id"`
	Answers          []DetailAnswer `json:"answers,omitempty"`
}

type DetailAnswer struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

var (
	// ErrSubmissionFailure matches every *Failure via errors.Is.
	ErrSubmissionFailure = errors.New("submission failed")
	// ErrDuplicateInFlight means another dispatch with the same nonce is running.
	ErrDuplicateInFlight = errors.New("submission with this nonce already in flight")
	// ErrEmptyReceipt means the backend accepted the request but returned no result.
	ErrEmptyReceipt = errors.New("submission returned no receipt")
)

// Failure wraps a dispatch error. The session stays in progress so the user can retry.
type Failure struct {
	ExamID int64
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("submit exam %d: %v", f.ExamID, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Is(target error) bool {
	return target == ErrSubmissionFailure
}
