package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamReadLimit    = 4096
	streamWriteTimeout = 10 * time.Second
)

// handleStream scores every predict request received on a websocket and
// answers each with a predict response or an error envelope, in order.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(streamReadLimit)

	s.streamsMu.Lock()
	s.streams[conn] = true
	s.streamsMu.Unlock()

	gauge := s.metrics.StreamConnections()
	gauge.Add(1)
	defer func() {
		gauge.Add(-1)
		s.streamsMu.Lock()
		delete(s.streams, conn)
		s.streamsMu.Unlock()
	}()

	log.Debug().
		Str("request_id", requestIDFrom(r.Context())).
		Str("remote", r.RemoteAddr).
		Msg("Scoring stream opened")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Scoring stream closed unexpectedly")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := s.writeStream(conn, s.streamReply(r.Context(), data)); err != nil {
			log.Warn().Err(err).Msg("Failed to write to scoring stream")
			return
		}
	}
}

func (s *Server) streamReply(parent context.Context, data []byte) any {
	id := uuid.New().String()

	req, err := decodePredict(data)
	if err != nil {
		return newErrorResponse(CodeInvalidRequest, err.Error(), id)
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	res, err := s.service.Predict(ctx, req)
	if err != nil {
		_, code := errorStatus(err)
		return newErrorResponse(code, err.Error(), id)
	}
	return NewPredictResponse(res)
}

func (s *Server) writeStream(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
