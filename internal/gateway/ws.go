package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/exam-runner/internal/session"
	"github.com/gokatarajesh/exam-runner/internal/submission"
	httperrors "github.com/gokatarajesh/exam-runner/pkg/http/errors"
	"github.com/gokatarajesh/exam-runner/pkg/http/ws"
)

// HandleWebSocket attaches a live view to a session. Clients receive state,
// tick, expired, submitted and submit_failed messages and may drive the
// session with the same actions as the HTTP routes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, creds, ok := h.lookup(w, r)
	if !ok {
		return
	}

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := h.logger.With().Str("session_id", s.ID().String()).Str("subject", creds.Subject).Logger()
	conn := ws.NewConnection(c, logger)
	h.hub.Register(s.ID(), conn)
	defer h.hub.Unregister(s.ID(), conn)

	go conn.WritePump()

	if msg, err := ws.NewMessage(ws.TypeState, h.sessionResponse(s, true), ""); err == nil {
		if err := conn.Send(msg); err != nil {
			logger.Warn().Err(err).Msg("initial state not delivered")
		}
	}

	conn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(s, conn, msg)
	})
}

func (h *Handler) handleMessage(s *session.Session, conn *ws.Connection, msg ws.Message) error {
	h.sessions.Touch(s.ID())

	switch msg.Type {
	case ws.TypeRequestState:
		return h.sendState(conn, s, msg.RequestID)

	case ws.TypeSelectAnswer:
		var p ws.SelectAnswerPayload
		if err := msg.Decode(&p); err != nil {
			return h.sendError(conn, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid select_answer payload")
		}
		return h.afterAction(conn, s, msg.RequestID, s.SelectAnswer(p.QuestionID, p.AnswerID))

	case ws.TypeGoTo:
		var p ws.GoToPayload
		if err := msg.Decode(&p); err != nil {
			return h.sendError(conn, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid go_to payload")
		}
		return h.afterAction(conn, s, msg.RequestID, s.GoTo(p.Index))

	case ws.TypePrevious:
		return h.afterAction(conn, s, msg.RequestID, s.Previous())

	// next and submit may block on the network; the read loop keeps serving pongs.
	case ws.TypeNext:
		go func() {
			_, err := s.Next(context.Background())
			h.afterAsyncAction(conn, s, msg.RequestID, err)
		}()
		return nil

	case ws.TypeSubmit:
		go func() {
			_, err := s.Submit(context.Background(), submission.TriggerUser)
			h.afterAsyncAction(conn, s, msg.RequestID, err)
		}()
		return nil

	default:
		return h.sendError(conn, msg.RequestID, httperrors.ErrCodeUnknownMessageType, "Unknown message type: "+msg.Type)
	}
}

func (h *Handler) afterAction(conn *ws.Connection, s *session.Session, requestID string, err error) error {
	if err != nil {
		_, code, message := classify(err)
		return h.sendError(conn, requestID, code, message)
	}
	resp := h.sessionResponse(s, false)
	h.pushState(s.ID(), resp)
	return nil
}

// afterAsyncAction reports the result of next or submit. Submission failures
// already reach listeners as submit_failed.
func (h *Handler) afterAsyncAction(conn *ws.Connection, s *session.Session, requestID string, err error) {
	if err != nil && errors.Is(err, submission.ErrSubmissionFailure) {
		return
	}
	if err := h.afterAction(conn, s, requestID, err); err != nil {
		h.logger.Debug().Err(err).Msg("async reply not delivered")
	}
}

func (h *Handler) sendState(conn *ws.Connection, s *session.Session, requestID string) error {
	msg, err := ws.NewMessage(ws.TypeState, h.sessionResponse(s, false), requestID)
	if err != nil {
		return err
	}
	return conn.Send(msg)
}

func (h *Handler) sendError(conn *ws.Connection, requestID, code, message string) error {
	msg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message}, requestID)
	if err != nil {
		return err
	}
	return conn.Send(msg)
}

// pushState broadcasts a state message to every connection watching the session.
func (h *Handler) pushState(id uuid.UUID, resp SessionResponse) {
	msg, err := ws.NewMessage(ws.TypeState, resp, "")
	if err != nil {
		h.logger.Error().Err(err).Msg("encode state message")
		return
	}
	h.broadcast(id, msg)
}

func (h *Handler) broadcast(id uuid.UUID, msg ws.Message) {
	if err := h.hub.Broadcast(id, msg); err != nil && !errors.Is(err, ws.ErrConnectionNotFound) {
		h.logger.Warn().Err(err).Str("session_id", id.String()).Str("type", msg.Type).Msg("broadcast failed")
	}
}

// bridge turns session events into WebSocket messages. A submission also
// drops the subject's cached catalog views.
func (h *Handler) bridge(subject string) func(session.Event) {
	return func(evt session.Event) {
		id := evt.SessionID.String()
		var (
			msg ws.Message
			err error
		)
		switch evt.Type {
		case session.EventTick:
			msg, err = ws.NewMessage(ws.TypeTick, ws.TickPayload{
				SessionID:        id,
				RemainingSeconds: remainingSeconds(evt.Remaining),
			}, "")
		case session.EventExpired:
			msg, err = ws.NewMessage(ws.TypeExpired, ws.ExpiredPayload{SessionID: id}, "")
		case session.EventSubmitted:
			h.catalog.Invalidate(context.Background(), subject)
			if evt.Outcome == nil {
				return
			}
			msg, err = ws.NewMessage(ws.TypeSubmitted, ws.SubmittedPayload{
				SessionID:      id,
				Score:          evt.Outcome.Score,
				TotalQuestions: evt.Outcome.TotalQuestions,
				Trigger:        evt.Outcome.Trigger,
				SubmittedAt:    evt.Outcome.SubmittedAt.UTC().Format(time.RFC3339),
			}, "")
		case session.EventSubmitFailed:
			message := "Submission failed"
			if evt.Err != nil {
				_, _, message = classify(evt.Err)
			}
			msg, err = ws.NewMessage(ws.TypeSubmitFailed, ws.SubmitFailedPayload{SessionID: id, Message: message}, "")
		default:
			return
		}
		if err != nil {
			h.logger.Error().Err(err).Str("event", evt.Type).Msg("encode event")
			return
		}
		h.broadcast(evt.SessionID, msg)
	}
}

func remainingSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
