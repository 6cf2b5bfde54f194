// Package speech consumes a speech-to-text WebSocket stream and forwards
// finalized transcripts as conversational input.
package speech

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codefionn/flowpilot/internal/logger"
)

const (
	// Time allowed to read the next message from the peer.
	readWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	dialTimeout = 10 * time.Second
)

// event is one message from the speech service.
type event struct {
	Type string `json:"type"` // "ready", "partial" or "final"
	Text string `json:"text,omitempty"`
}

// TranscriptFunc receives each finalized transcript. Partial transcripts are
// never forwarded; only final ones become conversational input.
type TranscriptFunc func(text string)

// Stream is a read-only connection to the speech-to-text service.
type Stream struct {
	conn    *websocket.Conn
	onFinal TranscriptFunc
}

// Dial connects to the speech service at url and waits for its ready event.
func Dial(ctx context.Context, url string, onFinal TranscriptFunc) (*Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	s := &Stream{conn: conn, onFinal: onFinal}
	if err := s.awaitReady(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// awaitReady consumes messages until the service announces readiness.
// Transcripts before ready would be from a previous connection and are
// dropped.
func (s *Stream) awaitReady() error {
	for {
		evt, err := s.read()
		if err != nil {
			return err
		}
		if evt.Type == "ready" {
			logger.Debug("speech stream ready")
			return nil
		}
		logger.Debug("dropping pre-ready speech event %q", evt.Type)
	}
}

// ReadPump pumps transcript events until the connection closes.
func (s *Stream) ReadPump() {
	defer s.conn.Close()

	for {
		evt, err := s.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("speech stream read error: %v", err)
			}
			return
		}

		switch evt.Type {
		case "partial":
			// Interim hypothesis, display-only upstream. Ignored here.
		case "final":
			text := strings.TrimSpace(evt.Text)
			if text == "" {
				continue
			}
			if s.onFinal != nil {
				s.onFinal(text)
			}
		default:
			logger.Debug("ignoring speech event %q", evt.Type)
		}
	}
}

func (s *Stream) read() (*event, error) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(readWait))

	_, message, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var evt event
	if err := json.Unmarshal(message, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Close shuts the stream down
func (s *Stream) Close() error {
	return s.conn.Close()
}
