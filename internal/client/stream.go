package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"loanscore/internal/api"
)

const (
	streamReadLimit = 512 * 1024
	streamTimeout   = 10 * time.Second
)

// Stream is an open scoring stream. Requests are answered in order, so one
// request is in flight at a time.
type Stream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// OpenStream dials the API's websocket scoring stream.
func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	url := streamURL(c.base)
	log.Debug().Str("url", url).Msg("Opening scoring stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	conn.SetReadLimit(streamReadLimit)
	conn.SetCloseHandler(func(code int, text string) error {
		log.Debug().Int("code", code).Str("text", text).Msg("Scoring stream closed by server")
		return fmt.Errorf("connection closed: %d %s", code, text)
	})

	return &Stream{conn: conn}, nil
}

func streamURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/stream"
}

// Predict sends one predict request and waits for its reply.
func (s *Stream) Predict(ctx context.Context, index, display int) (*api.PredictResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(streamTimeout)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	req := api.PredictRequest{SelectedIndex: &index, ShapMaxDisplay: &display}
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return decodeStreamReply(msg)
}

func decodeStreamReply(msg []byte) (*api.PredictResponse, error) {
	var envelope struct {
		Error *api.ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if envelope.Error != nil {
		return nil, &APIError{
			Code:      envelope.Error.Code,
			Message:   envelope.Error.Message,
			RequestID: envelope.Error.RequestID,
		}
	}

	out := &api.PredictResponse{}
	if err := json.Unmarshal(msg, out); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}

// Close sends a close frame and closes the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
