package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/familytrip/internal/errors"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 4096
)

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return slices.Contains(origins, r.Header.Get("Origin"))
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int    `json:"questionId"`
	AnswerKey  string `json:"answerKey"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func wsError(err error) outboundMessage {
	e := errors.Convert(err)
	return outboundMessage{Type: "error", Payload: errorPayload{
		Code:    e.GRPCStatus().Code().String(),
		Message: e.Message,
	}}
}

// serveWS upgrades the request and keeps one device in sync: every quiz view
// change is pushed as a "quiz" message and "answer" messages are submitted
// on behalf of the participant given by familyIndex.
func (a *API) serveWS(c *gin.Context) {
	familyIndex, err := strconv.Atoi(c.Query("familyIndex"))
	if err != nil || !a.roster.Has(familyIndex) {
		renderError(c, errors.Validation("invalid familyIndex %q", c.Query("familyIndex")))
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	ctx := c.Request.Context()
	log := slog.With("session_id", uuid.NewString(), "family_index", familyIndex)
	log.InfoContext(ctx, "ws: connected")

	views, cancel := a.channel.Watch()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closing := make(chan struct{})
	writerDone := make(chan struct{})
	viewsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.WarnContext(ctx, "ws: write failed", "error", err)
				// Unblock the reader.
				_ = conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(viewsDone)
		for {
			select {
			case view, ok := <-views:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "quiz", Payload: view}:
				case <-closing:
					return
				}
			case <-closing:
				return
			}
		}
	}()

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}

		switch in.Type {
		case "answer":
			var p answerPayload
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				send <- wsError(errors.Validation("invalid answer payload"))
				continue
			}

			resp, err := a.submit(ctx, submitAnswerRequest{
				QuestionID:  p.QuestionID,
				FamilyIndex: familyIndex,
				AnswerKey:   p.AnswerKey,
			})
			if err != nil {
				send <- wsError(err)
				continue
			}
			send <- outboundMessage{Type: "answerResult", Payload: resp}
		default:
			send <- wsError(errors.Validation("unsupported message type %q", in.Type))
		}
	}

	close(closing)
	<-viewsDone
	close(send)
	<-writerDone

	log.InfoContext(ctx, "ws: disconnected")
}
