package backend

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveExams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exams/ActiveExams", r.URL.Path)
		io.WriteString(w, `{"data":{"exams":[{
			"id":7,"title":"Algebra I","attempt_limit":"3","description":"Chapter 1",
			"duration_minutes":30,"is_active":1,"allow_review":1,"is_scheduled":0,
			"start_at":null,"end_at":null,"teacher_id":3,"questions_count":10,"attemptsCount":1,
			"teacher":{"id":3,"name":"Mona","username":"mona"}}]}}`)
	}, nil)

	exams, err := client.ActiveExams(context.Background())
	require.NoError(t, err)
	require.Len(t, exams, 1)

	e := exams[0]
	assert.Equal(t, 3, e.AttemptLimit)
	assert.Equal(t, 1, e.AttemptsCount)
	assert.Equal(t, 2, e.AttemptsLeft())
	assert.Equal(t, 10, e.QuestionsCount)
	assert.True(t, e.Active)
	assert.True(t, e.AllowReview)
	assert.False(t, e.Scheduled)
	require.NotNil(t, e.Teacher)
	assert.Equal(t, "Mona", e.Teacher.Name)
}

func TestStudentAnswers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exams/getStudentAnswers", r.URL.Path)
		io.WriteString(w, `{"data":[{"exam":{"id":7,"title":"Algebra I","attempt_limit":"1"},
			"submitted_at":"2025-02-10T09:30:00.000000Z",
			"answers":[{"question_id":11,"answer_id":101,"score":"1","total_questions":"2","created_at":"2025-02-10 09:30:00"},
			           {"question_id":12,"answer_id":null,"score":"1","total_questions":"2","created_at":"2025-02-10 09:30:00"}]}]}`)
	}, nil)

	results, err := client.StudentAnswers(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].SubmittedAt)
	require.Len(t, results[0].Answers, 2)
	assert.Equal(t, 2, results[0].Answers[0].TotalQuestions)
	assert.Nil(t, results[0].Answers[1].AnswerID)
}

func TestDashboard(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/students/dashboard", r.URL.Path)
		io.WriteString(w, `{"data":{"StudentAnswerCount":4,
			"pastResults":[{"id":1,"student_id":42,"exam_id":7,"question_id":11,"answer_id":101,"score":"3","total_questions":"4"}],
			"exams":[{"id":7,"title":"Algebra I","attempt_limit":"1"}]}}`)
	}, nil)

	dash, err := client.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, dash.AnswerCount)
	require.Len(t, dash.PastResults, 1)
	assert.Equal(t, 3, dash.PastResults[0].Score)
	assert.Len(t, dash.Exams, 1)
}

func TestSubscriptions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/students/Subscriptions", r.URL.Path)
		io.WriteString(w, `{"data":{"StudentAnswerCount":4,
			"bestOverallResult":{"exam_id":7,"exam_title":"Algebra I","score":3,"total_questions":4,"percentage":75},
			"averagePercentage":"62.5",
			"pastResults":[{"id":1,"exam_id":7,"score":"3","total_questions":"4","exam":{"id":7,"title":"Algebra I"}}]}}`)
	}, nil)

	subs, err := client.Subscriptions(context.Background())
	require.NoError(t, err)
	require.NotNil(t, subs.Best)
	assert.Equal(t, 75.0, subs.Best.Percentage)
	assert.Equal(t, 62.5, subs.AveragePercentage)
	require.Len(t, subs.PastResults, 1)
	require.NotNil(t, subs.PastResults[0].Exam)
	assert.Equal(t, "Algebra I", subs.PastResults[0].Exam.Title)
}

func TestSubscriptionsWithoutBestResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"StudentAnswerCount":0,"bestOverallResult":null,"averagePercentage":0,"pastResults":[]}}`)
	}, nil)

	subs, err := client.Subscriptions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, subs.Best)
	assert.Empty(t, subs.PastResults)
}
