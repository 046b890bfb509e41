package gateway

import (
	"time"

	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/navigator"
	"github.com/gokatarajesh/exam-runner/internal/session"
)

// ExamView is an exam as shown to the student before and during an attempt.
type ExamView struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	Timed           bool           `json:"timed"`
	QuestionCount   int            `json:"question_count"`
	AttemptLimit    int            `json:"attempt_limit"`
	AllowReview     bool           `json:"allow_review"`
	StartAt         *time.Time     `json:"start_at,omitempty"`
	EndAt           *time.Time     `json:"end_at,omitempty"`
	Questions       []QuestionView `json:"questions"`
	// UnansweredCountAsWrong backs the pre-start warning.
	UnansweredCountAsWrong bool `json:"unanswered_count_as_wrong"`
}

// QuestionView is one question with its image resolved to an absolute URL.
type QuestionView struct {
	Index    int          `json:"index"`
	Number   int          `json:"number"`
	ID       int64        `json:"id"`
	Text     string       `json:"text"`
	ImageURL string       `json:"image_url,omitempty"`
	Answers  []AnswerView `json:"answers"`
}

type AnswerView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// SessionResponse is returned by every session endpoint and pushed as the
// WebSocket state message.
type SessionResponse struct {
	Session session.Snapshot `json:"session"`
	Current *QuestionView    `json:"current,omitempty"`
	Exam    *ExamView        `json:"exam,omitempty"`
	// TokenExpiresFirst warns that the student's token lapses before the deadline.
	TokenExpiresFirst bool `json:"token_expires_first,omitempty"`
}

// NavigatorResponse is one page of the question navigator.
type NavigatorResponse struct {
	Page         int              `json:"page"`
	Pages        int              `json:"pages"`
	PageSize     int              `json:"page_size"`
	CurrentIndex int              `json:"current_index"`
	Answered     int              `json:"answered"`
	Unanswered   int              `json:"unanswered"`
	Items        []navigator.Item `json:"items"`
}

func (h *Handler) examView(def *exam.ExamDefinition) *ExamView {
	v := &ExamView{
		ID:                     def.ID,
		Title:                  def.Title,
		Description:            def.Description,
		DurationMinutes:        def.DurationMinutes,
		Timed:                  def.Timed(),
		QuestionCount:          def.QuestionCount(),
		AttemptLimit:           def.AttemptLimit,
		AllowReview:            def.AllowReview,
		StartAt:                def.StartAt,
		EndAt:                  def.EndAt,
		Questions:              make([]QuestionView, 0, len(def.Questions)),
		UnansweredCountAsWrong: true,
	}
	for i := range def.Questions {
		v.Questions = append(v.Questions, h.questionView(def, i))
	}
	return v
}

func (h *Handler) questionView(def *exam.ExamDefinition, index int) QuestionView {
	q := def.Questions[index]
	v := QuestionView{
		Index:    index,
		Number:   index + 1,
		ID:       q.ID,
		Text:     q.Text,
		ImageURL: h.assets.Resolve(q.Image),
		Answers:  make([]AnswerView, 0, len(q.Answers)),
	}
	for _, a := range q.Answers {
		v.Answers = append(v.Answers, AnswerView{ID: a.ID, Text: a.Text})
	}
	return v
}

// sessionResponse snapshots s; withExam adds the full exam view.
func (h *Handler) sessionResponse(s *session.Session, withExam bool) SessionResponse {
	snap := s.Snapshot()
	resp := SessionResponse{Session: snap}
	def := s.Exam()
	if def == nil {
		return resp
	}
	if snap.Status == session.StatusInProgress && snap.CurrentIndex < len(def.Questions) {
		current := h.questionView(def, snap.CurrentIndex)
		resp.Current = &current
	}
	if withExam {
		resp.Exam = h.examView(def)
	}
	return resp
}
