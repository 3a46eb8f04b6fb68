package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/internal/session"
	"github.com/MrWong99/medsift/pkg/types"
)

// StatusSessionNotFound closes a live socket whose session is unknown or no
// longer active.
const StatusSessionNotFound websocket.StatusCode = 4404

// defaultReadLimit leaves room above the session's own chunk limit so an
// oversized chunk is rejected with an error message instead of a dropped
// connection.
const defaultReadLimit = 16 << 20

const (
	msgSessionReady = "session_ready"
	msgPartial      = "partial"
	msgError        = "error"
	msgFinal        = "final"
	msgStop         = "stop"
)

type readyMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type partialMessage struct {
	Type        string          `json:"type"`
	ChunkIndex  int             `json:"chunk_index"`
	Text        string          `json:"text"`
	Speaker     string          `json:"speaker"`
	EntityCount map[string]int  `json:"entity_count"`
	Segments    []types.Segment `json:"segments"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type finalMessage struct {
	Type            string  `json:"type"`
	SessionID       string  `json:"session_id"`
	FullTranscript  string  `json:"full_transcript"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalChunks     int     `json:"total_chunks"`
	VisitID         string  `json:"visit_id,omitempty"`
}

// controlMessage is a client text frame.
type controlMessage struct {
	Type string `json:"type"`
}

// liveQueueSize bounds the frames read ahead of the chunk worker. A full
// queue stops reading, which pushes back on the client.
const liveQueueSize = 8

// liveFrame is one queued client frame: an audio chunk or the stop request.
type liveFrame struct {
	audio []byte
	stop  bool
}

// handleLiveSocket streams audio chunks for an existing session. Binary
// frames are chunks; a {"type":"stop"} text frame finalizes the session once
// every chunk queued before it has been processed. Reading runs on the
// handler goroutine and feeds a single worker through a bounded queue, so
// control frames are answered while a chunk is still being transcribed and
// chunks are processed strictly in order.
// A client that disconnects without stopping discards the session.
func (s *Server) handleLiveSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := observe.Logger(r.Context()).With("session_id", id)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	if _, ok := s.deps.Sessions.Info(id); !ok {
		conn.Close(StatusSessionNotFound, "session not found")
		return
	}
	conn.SetReadLimit(defaultReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if err := wsjson.Write(ctx, conn, readyMessage{Type: msgSessionReady, SessionID: id}); err != nil {
		return
	}

	frames := make(chan liveFrame, liveQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The worker stopping for any reason ends the read loop too.
		defer cancel()
		s.processLive(ctx, r, conn, id, frames)
	}()

	err = readLive(ctx, conn, frames)
	if err != nil {
		// Abort the chunk in flight; the session is discarded below.
		cancel()
	}
	close(frames)
	<-done

	if s.deps.Sessions.Cleanup(id) {
		log.Info("server: live socket closed before stop", "err", err)
	}
}

// readLive reads client frames and queues them until a stop frame is queued
// or reading fails. Malformed control frames are answered directly.
func readLive(ctx context.Context, conn *websocket.Conn, frames chan<- liveFrame) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var f liveFrame
		switch typ {
		case websocket.MessageBinary:
			f = liveFrame{audio: data}
		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != msgStop {
				if err := writeError(ctx, conn, errors.New(`expected {"type":"stop"}`)); err != nil {
					return err
				}
				continue
			}
			f = liveFrame{stop: true}
		default:
			continue
		}

		select {
		case frames <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
		if f.stop {
			return nil
		}
	}
}

// processLive is the per-connection worker. It submits queued chunks in order
// and finalizes on stop. It returns when the queue is closed or the
// connection can no longer be used.
func (s *Server) processLive(ctx context.Context, r *http.Request, conn *websocket.Conn, id string, frames <-chan liveFrame) {
	log := observe.Logger(r.Context()).With("session_id", id)
	for f := range frames {
		if f.stop {
			s.finishLive(r, conn, id)
			return
		}

		res, err := s.deps.Sessions.SubmitChunk(ctx, id, f.audio)
		if errors.Is(err, session.ErrNotActive) {
			_ = writeError(ctx, conn, err)
			conn.Close(StatusSessionNotFound, "session not active")
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("server: live chunk failed", "err", err)
			if writeError(ctx, conn, err) != nil {
				return
			}
			continue
		}
		if wsjson.Write(ctx, conn, partialFrom(res)) != nil {
			return
		}
	}
}

// finishLive finalizes the session, sends the final message and closes the
// socket normally.
func (s *Server) finishLive(r *http.Request, conn *websocket.Conn, id string) {
	ctx := r.Context()
	res, ok := s.finalize(r, id)
	if !ok {
		_ = writeError(ctx, conn, errors.New("session not found"))
		conn.Close(StatusSessionNotFound, "session not found")
		return
	}
	_ = wsjson.Write(ctx, conn, finalMessage{
		Type:            msgFinal,
		SessionID:       res.SessionID,
		FullTranscript:  res.FullTranscript,
		DurationSeconds: res.DurationSeconds,
		TotalChunks:     res.TotalChunks,
		VisitID:         res.VisitID,
	})
	conn.Close(websocket.StatusNormalClosure, "finalized")
}

func writeError(ctx context.Context, conn *websocket.Conn, err error) error {
	return wsjson.Write(ctx, conn, errorMessage{Type: msgError, Message: err.Error()})
}
