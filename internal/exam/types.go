package exam

import "time"

// ExamDefinition is the read-only description of an exam as returned by startExam.
// Question order is significant: it is the display, navigation and submission order.
type ExamDefinition struct {
	ID              int64      `json:"id" validate:"gt=0"`
	Title           string     `json:"title" validate:"required"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" validate:"omitempty,gte=0"`
	AttemptLimit    int        `json:"attempt_limit" validate:"gte=1"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	AllowReview     bool       `json:"allow_review"`
	Questions       []Question `json:"questions" validate:"min=1,unique=ID,dive"`
}

// Question is a single-choice question.
type Question struct {
	ID      int64    `json:"id" validate:"gt=0"`
	Text    string   `json:"text"`
	Image   string   `json:"image,omitempty"`
	Answers []Answer `json:"answers" validate:"unique=ID,dive"`
}

// Answer is one choice of a question. Answer keys are never carried here.
type Answer struct {
	ID   int64  `json:"id" validate:"gt=0"`
	Text string `json:"text"`
}

// Timed reports whether the exam has a duration.
func (d *ExamDefinition) Timed() bool {
	return d.DurationMinutes != nil
}

// Duration returns the exam duration and whether one is set.
func (d *ExamDefinition) Duration() (time.Duration, bool) {
	if d.DurationMinutes == nil {
		return 0, false
	}
	return time.Duration(*d.DurationMinutes) * time.Minute, true
}

// QuestionCount returns the number of questions.
func (d *ExamDefinition) QuestionCount() int {
	return len(d.Questions)
}

// QuestionIndex returns the position of the question with the given ID.
func (d *ExamDefinition) QuestionIndex(questionID int64) (int, bool) {
	for i := range d.Questions {
		if d.Questions[i].ID == questionID {
			return i, true
		}
	}
	return -1, false
}

// HasAnswer reports whether answerID is one of the question's choices.
func (q *Question) HasAnswer(answerID int64) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}
