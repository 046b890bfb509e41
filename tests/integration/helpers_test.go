//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// studentToken returns INTEGRATION_TOKEN, or logs in with
// INTEGRATION_USERNAME / INTEGRATION_PASSWORD. Tests needing a student skip otherwise.
func studentToken(t *testing.T, baseURL string) string {
	t.Helper()

	if token := os.Getenv("INTEGRATION_TOKEN"); token != "" {
		return token
	}
	username, password := os.Getenv("INTEGRATION_USERNAME"), os.Getenv("INTEGRATION_PASSWORD")
	if username == "" || password == "" {
		t.Skip("set INTEGRATION_TOKEN or INTEGRATION_USERNAME/INTEGRATION_PASSWORD")
	}

	resp := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/auth/login", baseURL), "", map[string]string{
		"username": username,
		"password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("empty token in login response")
	}
	return out.Token
}

// examID returns INTEGRATION_EXAM_ID or skips.
func examID(t *testing.T) int64 {
	t.Helper()
	raw := os.Getenv("INTEGRATION_EXAM_ID")
	if raw == "" {
		t.Skip("set INTEGRATION_EXAM_ID to run session tests")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.Fatalf("invalid INTEGRATION_EXAM_ID: %v", err)
	}
	return id
}

func makeAuthenticatedRequest(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

type sessionEnvelope struct {
	Session struct {
		ID           string          `json:"id"`
		Status       string          `json:"status"`
		CurrentIndex int             `json:"current_index"`
		Answers      map[int64]int64 `json:"answers"`
	} `json:"session"`
	Current *struct {
		ID      int64 `json:"id"`
		Answers []struct {
			ID int64 `json:"id"`
		} `json:"answers"`
	} `json:"current"`
	Exam *struct {
		QuestionCount int `json:"question_count"`
	} `json:"exam"`
}

func createSession(t *testing.T, baseURL, token string, exam int64) sessionEnvelope {
	t.Helper()

	resp := makeAuthenticatedRequest(t, http.MethodPost, fmt.Sprintf("%s/v1/sessions", baseURL), token, map[string]int64{"exam_id": exam})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: unexpected status %d", resp.StatusCode)
	}

	var out sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode session response failed: %v", err)
	}
	return out
}

func deleteSession(t *testing.T, baseURL, token, id string) {
	t.Helper()
	resp := makeAuthenticatedRequest(t, http.MethodDelete, fmt.Sprintf("%s/v1/sessions/%s", baseURL, id), token, nil)
	resp.Body.Close()
}
