package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"

	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/submission"
)

var (
	_ exam.Fetcher      = (*Client)(nil)
	_ submission.Sender = (*Client)(nil)
)

type wireAnswer struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	// is_correct is never decoded.
}

type wireQuestion struct {
	ID      int64        `json:"id"`
	Text    string       `json:"text"`
	Image   *string      `json:"image"`
	Answers []wireAnswer `json:"answers"`
}

type wireExam struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	AttemptLimit    flexInt        `json:"attempt_limit"`
	Description     *string        `json:"description"`
	DurationMinutes *flexInt       `json:"duration_minutes"`
	IsActive        flexBool       `json:"is_active"`
	AllowReview     flexBool       `json:"allow_review"`
	IsScheduled     flexBool       `json:"is_scheduled"`
	StartAt         flexTime       `json:"start_at"`
	EndAt           flexTime       `json:"end_at"`
	TeacherID       int64          `json:"teacher_id"`
	Questions       []wireQuestion `json:"questions"`
}

func (w wireExam) definition() *exam.ExamDefinition {
	def := &exam.ExamDefinition{
		ID:              w.ID,
		Title:           w.Title,
		Description:     optionalString(w.Description),
		DurationMinutes: optionalInt(w.DurationMinutes),
		AttemptLimit:    int(w.AttemptLimit),
		StartAt:         w.StartAt.ptr(),
		EndAt:           w.EndAt.ptr(),
		AllowReview:     bool(w.AllowReview),
		Questions:       make([]exam.Question, 0, len(w.Questions)),
	}
	if def.AttemptLimit == 0 {
		def.AttemptLimit = 1
	}
	for _, q := range w.Questions {
		question := exam.Question{
			ID:      q.ID,
			Text:    q.Text,
			Image:   optionalString(q.Image),
			Answers: make([]exam.Answer, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			question.Answers = append(question.Answers, exam.Answer{ID: a.ID, Text: a.Text})
		}
		def.Questions = append(def.Questions, question)
	}
	return def
}

// StartExam fetches the exam definition and opens an attempt on the backend.
func (c *Client) StartExam(ctx context.Context, examID int64) (*exam.ExamDefinition, error) {
	cl, err := jsonCall("start_exam", fmt.Sprintf("/exams/startExam/%d", examID), nil)
	if err != nil {
		return nil, err
	}
	var w wireExam
	if _, err := c.do(ctx, cl, &w); err != nil {
		return nil, err
	}
	return w.definition(), nil
}

type wireDetailAnswer struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	IsCorrect flexBool `json:"is_correct"`
}

type wireDetail struct {
	QuestionID       int64              `json:"question_id"`
	QuestionText     string             `json:"question_text"`
	SelectedAnswerID *flexInt           `json:"selected_answer_id"`
	IsCorrect        flexBool           `json:"is_correct"`
	CorrectAnswerID  flexInt            `json:"correct_answer_id"`
	Answers          []wireDetailAnswer `json:"answers"`
}

type wireReceipt struct {
	ExamID         flexInt      `json:"exam_id"`
	StudentID      flexInt      `json:"student_id"`
	Score          flexInt      `json:"score"`
	TotalQuestions flexInt      `json:"total_questions"`
	Details        []wireDetail `json:"details"`
}

func (w wireReceipt) receipt(message string) *submission.Receipt {
	r := &submission.Receipt{
		ExamID:         int64(w.ExamID),
		StudentID:      int64(w.StudentID),
		Score:          int(w.Score),
		TotalQuestions: int(w.TotalQuestions),
		Message:        message,
	}
	for _, d := range w.Details {
		detail := submission.Detail{
			QuestionID:       d.QuestionID,
			QuestionText:     d.QuestionText,
			SelectedAnswerID: optionalID(d.SelectedAnswerID),
			IsCorrect:        bool(d.IsCorrect),
			CorrectAnswerID:  int64(d.CorrectAnswerID),
		}
		for _, a := range d.Answers {
			detail.Answers = append(detail.Answers, submission.DetailAnswer{
				ID:        a.ID,
				Text:      a.Text,
				IsCorrect: bool(a.IsCorrect),
			})
		}
		r.Details = append(r.Details, detail)
	}
	return r
}

// SubmitExam posts the answer form. It carries no client-side deadline.
func (c *Client) SubmitExam(ctx context.Context, examID int64, fields []submission.Field) (*submission.Receipt, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := submission.WriteFields(mw, fields); err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	cl := call{
		op:          "submit_exam",
		path:        fmt.Sprintf("/exams/submitExam/%d", examID),
		body:        &buf,
		contentType: mw.FormDataContentType(),
		untimed:     true,
	}
	var w wireReceipt
	message, err := c.do(ctx, cl, &w)
	if err != nil {
		return nil, err
	}
	return w.receipt(message), nil
}

// LoginResult is the session token issued by the backend.
type LoginResult struct {
	Token    string `json:"token"`
	Type     string `json:"type"`
	Username string `json:"username"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	cl, err := jsonCall("login", "/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var out LoginResult
	if _, err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &APIError{Op: "login", StatusCode: 200, Err: fmt.Errorf("%w: empty token", ErrMalformedResponse)}
	}
	return &out, nil
}
