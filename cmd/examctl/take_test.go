package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/submission"
)

type stubAPI struct {
	mu     sync.Mutex
	fields [][]submission.Field
}

func (a *stubAPI) StartExam(ctx context.Context, examID int64) (*exam.ExamDefinition, error) {
	return &exam.ExamDefinition{
		ID:           examID,
		Title:        "Geography",
		AttemptLimit: 1,
		Questions: []exam.Question{
			{ID: 1, Text: "Capital of France?", Answers: []exam.Answer{{ID: 10, Text: "Paris"}, {ID: 11, Text: "Rome"}}},
			{ID: 2, Text: "Capital of Italy?", Image: "img/italy.png", Answers: []exam.Answer{{ID: 20, Text: "Paris"}, {ID: 21, Text: "Rome"}}},
		},
	}, nil
}

func (a *stubAPI) SubmitExam(ctx context.Context, examID int64, fields []submission.Field) (*submission.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = append(a.fields, fields)
	return &submission.Receipt{ExamID: examID, Score: 2, TotalQuestions: 2, SubmittedAt: time.Now()}, nil
}

func (a *stubAPI) submissions() [][]submission.Field {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fields
}

func take(t *testing.T, api *stubAPI, input string) string {
	t.Helper()
	assets, err := exam.NewAssetResolver("https://edux.site/")
	require.NoError(t, err)
	var out bytes.Buffer
	err = runTake(context.Background(), takeOptions{
		ExamID:  5,
		Fetcher: api,
		Sender:  api,
		Assets:  assets,
		In:      strings.NewReader(input),
		Out:     &out,
	}, zerolog.Nop())
	require.NoError(t, err)
	return out.String()
}

func TestTakeAnswersAndSubmits(t *testing.T) {
	api := &stubAPI{}
	out := take(t, api, "\n1\nn\n2\ns\n")

	assert.Contains(t, out, "Unanswered questions count as incorrect.")
	assert.Contains(t, out, "Question 2 of 2")
	assert.Contains(t, out, "Image: https://edux.site/img/italy.png")
	assert.Contains(t, out, "Submitted. Score: 2/2")

	subs := api.submissions()
	require.Len(t, subs, 1)
	assert.Contains(t, subs[0], submission.Field{Name: "questions[0][answers][0][id]", Value: "10"})
	assert.Contains(t, subs[0], submission.Field{Name: "questions[1][answers][0][id]", Value: "21"})
}

func TestTakeNextOnLastQuestionSubmits(t *testing.T) {
	api := &stubAPI{}
	out := take(t, api, "\nn\nn\n")
	assert.Contains(t, out, "Submitted.")
	assert.Len(t, api.submissions(), 1)
}

func TestTakeQuitDoesNotSubmit(t *testing.T) {
	api := &stubAPI{}
	out := take(t, api, "\n1\nq\n")
	assert.Contains(t, out, "Left without submitting.")
	assert.Empty(t, api.submissions())
}

func TestTakeNotStarted(t *testing.T) {
	api := &stubAPI{}
	out := take(t, api, "q\n")
	assert.Contains(t, out, "Not started.")
	assert.NotContains(t, out, "Question 1 of 2")
}

func TestTakeReportsBadInput(t *testing.T) {
	api := &stubAPI{}
	out := take(t, api, "\n7\ng 9\nl 4\nq\n")
	assert.Contains(t, out, "choose an answer between 1 and 2")
	assert.Contains(t, out, "No such question.")
	assert.Contains(t, out, "No such page.")
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "01:05", formatRemaining(65))
	assert.Equal(t, "00:00", formatRemaining(0))
}
