//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
)

// TestSessionFlow starts a real attempt. It only submits when
// INTEGRATION_SUBMIT=1, since a submission consumes an attempt.
func TestSessionFlow(t *testing.T) {
	baseURL := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	token := studentToken(t, baseURL)
	exam := examID(t)

	created := createSession(t, baseURL, token, exam)
	if created.Session.Status != "not_started" {
		t.Fatalf("expected not_started, got %s", created.Session.Status)
	}
	if created.Exam == nil || created.Exam.QuestionCount == 0 {
		t.Fatalf("expected exam view with questions")
	}
	base := fmt.Sprintf("%s/v1/sessions/%s", baseURL, created.Session.ID)
	defer deleteSession(t, baseURL, token, created.Session.ID)

	var state sessionEnvelope
	post := func(path string, payload any) {
		t.Helper()
		resp := makeAuthenticatedRequest(t, http.MethodPost, base+path, token, payload)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST %s: unexpected status %d", path, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}

	post("/start", nil)
	if state.Session.Status != "in_progress" || state.Current == nil {
		t.Fatalf("expected in_progress with a current question, got %s", state.Session.Status)
	}
	if len(state.Current.Answers) == 0 {
		t.Skip("first question has no answers")
	}

	q, a := state.Current.ID, state.Current.Answers[0].ID
	post("/answers", map[string]int64{"question_id": q, "answer_id": a})
	if state.Session.Answers[q] != a {
		t.Fatalf("answer not recorded")
	}

	resp := makeAuthenticatedRequest(t, http.MethodGet, base+"/navigator", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigator: unexpected status %d", resp.StatusCode)
	}

	if os.Getenv("INTEGRATION_SUBMIT") != "1" {
		return
	}
	post("/submit", nil)
	if state.Session.Status != "submitted" {
		t.Fatalf("expected submitted, got %s", state.Session.Status)
	}
}
