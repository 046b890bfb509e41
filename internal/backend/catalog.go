package backend

import (
	"context"
	"time"
)

// Teacher owns an exam.
type Teacher struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// ExamSummary is an exam as listed in catalog views, without questions.
type ExamSummary struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	AttemptLimit    int        `json:"attempt_limit"`
	Active          bool       `json:"active"`
	AllowReview     bool       `json:"allow_review"`
	Scheduled       bool       `json:"scheduled"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	TeacherID       int64      `json:"teacher_id"`
	QuestionsCount  int        `json:"questions_count"`
	AttemptsCount   int        `json:"attempts_count"`
	Teacher         *Teacher   `json:"teacher,omitempty"`
}

// AttemptsLeft reports the remaining attempts, never below zero.
func (e ExamSummary) AttemptsLeft() int {
	left := e.AttemptLimit - e.AttemptsCount
	if left < 0 {
		return 0
	}
	return left
}

// ExamResult groups one submitted attempt with its answers.
type ExamResult struct {
	Exam        ExamSummary        `json:"exam"`
	SubmittedAt *time.Time         `json:"submitted_at,omitempty"`
	Answers     []AnsweredQuestion `json:"answers"`
}

// AnsweredQuestion is one stored answer row.
type AnsweredQuestion struct {
	QuestionID     int64      `json:"question_id"`
	AnswerID       *int64     `json:"answer_id"`
	Score          int        `json:"score"`
	TotalQuestions int        `json:"total_questions"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// PastResult is a historical answer row, optionally with its exam.
type PastResult struct {
	ID             int64        `json:"id"`
	StudentID      int64        `json:"student_id"`
	ExamID         int64        `json:"exam_id"`
	QuestionID     int64        `json:"question_id"`
	AnswerID       *int64       `json:"answer_id"`
	Score          int          `json:"score"`
	TotalQuestions int          `json:"total_questions"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
	Exam           *ExamSummary `json:"exam,omitempty"`
}

// Dashboard is the student landing view.
type Dashboard struct {
	AnswerCount int           `json:"answer_count"`
	PastResults []PastResult  `json:"past_results"`
	Exams       []ExamSummary `json:"exams"`
}

// BestResult is the student's best scoring exam.
type BestResult struct {
	ExamID         int64   `json:"exam_id"`
	ExamTitle      string  `json:"exam_title"`
	Score          int     `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	Percentage     float64 `json:"percentage"`
}

// Subscriptions summarises the student's performance.
type Subscriptions struct {
	AnswerCount       int          `json:"answer_count"`
	Best              *BestResult  `json:"best,omitempty"`
	AveragePercentage float64      `json:"average_percentage"`
	PastResults       []PastResult `json:"past_results"`
}

type wireTeacher struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type wireExamSummary struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	AttemptLimit    flexInt      `json:"attempt_limit"`
	Description     *string      `json:"description"`
	DurationMinutes *flexInt     `json:"duration_minutes"`
	IsActive        flexBool     `json:"is_active"`
	AllowReview     flexBool     `json:"allow_review"`
	IsScheduled     flexBool     `json:"is_scheduled"`
	StartAt         flexTime     `json:"start_at"`
	EndAt           flexTime     `json:"end_at"`
	TeacherID       int64        `json:"teacher_id"`
	QuestionsCount  flexInt      `json:"questions_count"`
	AttemptsCount   flexInt      `json:"attemptsCount"`
	Teacher         *wireTeacher `json:"teacher"`
}

func (w wireExamSummary) summary() ExamSummary {
	s := ExamSummary{
		ID:              w.ID,
		Title:           w.Title,
		Description:     optionalString(w.Description),
		DurationMinutes: optionalInt(w.DurationMinutes),
		AttemptLimit:    int(w.AttemptLimit),
		Active:          bool(w.IsActive),
		AllowReview:     bool(w.AllowReview),
		Scheduled:       bool(w.IsScheduled),
		StartAt:         w.StartAt.ptr(),
		EndAt:           w.EndAt.ptr(),
		TeacherID:       w.TeacherID,
		QuestionsCount:  int(w.QuestionsCount),
		AttemptsCount:   int(w.AttemptsCount),
	}
	if s.AttemptLimit == 0 {
		s.AttemptLimit = 1
	}
	if w.Teacher != nil {
		s.Teacher = &Teacher{ID: w.Teacher.ID, Name: w.Teacher.Name, Username: w.Teacher.Username}
	}
	return s
}

func summaries(ws []wireExamSummary) []ExamSummary {
	out := make([]ExamSummary, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.summary())
	}
	return out
}

type wirePastResult struct {
	ID             int64            `json:"id"`
	StudentID      int64            `json:"student_id"`
	ExamID         int64            `json:"exam_id"`
	QuestionID     int64            `json:"question_id"`
	AnswerID       *flexInt         `json:"answer_id"`
	Score          flexInt          `json:"score"`
	TotalQuestions flexInt          `json:"total_questions"`
	CreatedAt      flexTime         `json:"created_at"`
	Exam           *wireExamSummary `json:"exam"`
}

func pastResults(ws []wirePastResult) []PastResult {
	out := make([]PastResult, 0, len(ws))
	for _, w := range ws {
		r := PastResult{
			ID:             w.ID,
			StudentID:      w.StudentID,
			ExamID:         w.ExamID,
			QuestionID:     w.QuestionID,
			AnswerID:       optionalID(w.AnswerID),
			Score:          int(w.Score),
			TotalQuestions: int(w.TotalQuestions),
			CreatedAt:      w.CreatedAt.ptr(),
		}
		if w.Exam != nil {
			s := w.Exam.summary()
			r.Exam = &s
		}
		out = append(out, r)
	}
	return out
}

// ActiveExams lists the exams the student can currently take.
func (c *Client) ActiveExams(ctx context.Context) ([]ExamSummary, error) {
	var out struct {
		Exams []wireExamSummary `json:"exams"`
	}
	if _, err := c.do(ctx, call{op: "active_exams", path: "/exams/ActiveExams"}, &out); err != nil {
		return nil, err
	}
	return summaries(out.Exams), nil
}

// StudentAnswers lists the student's submitted attempts.
func (c *Client) StudentAnswers(ctx context.Context) ([]ExamResult, error) {
	var out []struct {
		Exam        wireExamSummary `json:"exam"`
		SubmittedAt flexTime        `json:"submitted_at"`
		Answers     []struct {
			QuestionID     int64    `json:"question_id"`
			AnswerID       *flexInt `json:"answer_id"`
			Score          flexInt  `json:"score"`
			TotalQuestions flexInt  `json:"total_questions"`
			CreatedAt      flexTime `json:"created_at"`
		} `json:"answers"`
	}
	if _, err := c.do(ctx, call{op: "student_answers", path: "/exams/getStudentAnswers"}, &out); err != nil {
		return nil, err
	}

	results := make([]ExamResult, 0, len(out))
	for _, w := range out {
		r := ExamResult{
			Exam:        w.Exam.summary(),
			SubmittedAt: w.SubmittedAt.ptr(),
			Answers:     make([]AnsweredQuestion, 0, len(w.Answers)),
		}
		for _, a := range w.Answers {
			r.Answers = append(r.Answers, AnsweredQuestion{
				QuestionID:     a.QuestionID,
				AnswerID:       optionalID(a.AnswerID),
				Score:          int(a.Score),
				TotalQuestions: int(a.TotalQuestions),
				CreatedAt:      a.CreatedAt.ptr(),
			})
		}
		results = append(results, r)
	}
	return results, nil
}

// Dashboard fetches the student landing view.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var out struct {
		StudentAnswerCount flexInt           `json:"StudentAnswerCount"`
		PastResults        []wirePastResult  `json:"pastResults"`
		Exams              []wireExamSummary `json:"exams"`
	}
	if _, err := c.do(ctx, call{op: "dashboard", path: "/students/dashboard"}, &out); err != nil {
		return nil, err
	}
	return &Dashboard{
		AnswerCount: int(out.StudentAnswerCount),
		PastResults: pastResults(out.PastResults),
		Exams:       summaries(out.Exams),
	}, nil
}

// Subscriptions fetches the student's performance summary.
func (c *Client) Subscriptions(ctx context.Context) (*Subscriptions, error) {
	var out struct {
		StudentAnswerCount flexInt          `json:"StudentAnswerCount"`
		BestOverallResult  *struct {
			ExamID         int64     `json:"exam_id"`
			ExamTitle      string    `json:"exam_title"`
			Score          flexInt   `json:"score"`
			TotalQuestions flexInt   `json:"total_questions"`
			Percentage     flexFloat `json:"percentage"`
		} `json:"bestOverallResult"`
		AveragePercentage flexFloat        `json:"averagePercentage"`
		PastResults       []wirePastResult `json:"pastResults"`
	}
	if _, err := c.do(ctx, call{op: "subscriptions", path: "/students/Subscriptions"}, &out); err != nil {
		return nil, err
	}

	subs := &Subscriptions{
		AnswerCount:       int(out.StudentAnswerCount),
		AveragePercentage: float64(out.AveragePercentage),
		PastResults:       pastResults(out.PastResults),
	}
	if b := out.BestOverallResult; b != nil {
		subs.Best = &BestResult{
			ExamID:         b.ExamID,
			ExamTitle:      b.ExamTitle,
			Score:          int(b.Score),
			TotalQuestions: int(b.TotalQuestions),
			Percentage:     float64(b.Percentage),
		}
	}
	return subs, nil
}
