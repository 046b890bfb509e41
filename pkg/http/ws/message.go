package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeSelectAnswer = "select_answer"
	TypeGoTo         = "go_to"
	TypeNext         = "next"
	TypePrevious     = "previous"
	TypeSubmit       = "submit"
	TypeRequestState = "request_state"

	// Server -> Client
	TypeState        = "state"
	TypeTick         = "tick"
	TypeExpired      = "expired"
	TypeSubmitted    = "submitted"
	TypeSubmitFailed = "submit_failed"
	TypeError        = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage encodes payload into a typed message.
func NewMessage(msgType string, payload any, requestID string) (Message, error) {
	msg := Message{Type: msgType, RequestID: requestID}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Payload, v)
}

// Client Messages (incoming)

type SelectAnswerPayload struct {
	QuestionID int64 `json:"question_id"`
	AnswerID   int64 `json:"answer_id"`
}

type GoToPayload struct {
	Index int `json:"index"`
}

// Server Messages (outgoing)

type TickPayload struct {
	SessionID        string `json:"session_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type ExpiredPayload struct {
	SessionID string `json:"session_id"`
}

type SubmittedPayload struct {
	SessionID      string `json:"session_id"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
	Trigger        string `json:"trigger"`
	SubmittedAt    string `json:"submitted_at"`
}

type SubmitFailedPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
