package backoffice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"nhooyr.io/websocket"

	"fundcore/observability/audit"
)

// handleAuditStream replays audit records after the "after" cursor and then
// follows new ones. Records reach the client in sequence order without
// gaps; a subscriber that falls behind the live feed is topped up from the
// store.
func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "audit stream unavailable")
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		after = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamAudit(ctx, conn, after); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Warn("audit stream aborted", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamAudit(ctx context.Context, conn *websocket.Conn, after uint64) error {
	// Subscribe before replaying so nothing appended during the replay is
	// missed.
	live, cancel := s.feed.Hub().Subscribe(s.cfg.StreamBuffer)
	defer cancel()

	last, err := s.replay(ctx, conn, after)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-live:
			if !ok {
				return nil
			}
			if rec.Seq <= last {
				continue
			}
			if rec.Seq > last+1 {
				if last, err = s.replay(ctx, conn, last); err != nil {
					return err
				}
				if rec.Seq <= last {
					continue
				}
			}
			if err := s.writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Seq
		}
	}
}

// replay sends stored records after cursor and returns the last sequence
// sent.
func (s *Server) replay(ctx context.Context, conn *websocket.Conn, cursor uint64) (uint64, error) {
	for {
		batch, err := s.feed.Since(ctx, cursor, s.cfg.StreamBacklog)
		if err != nil {
			return cursor, err
		}
		for _, rec := range batch {
			if err := s.writeRecord(ctx, conn, rec); err != nil {
				return cursor, err
			}
			cursor = rec.Seq
		}
		if len(batch) < s.cfg.StreamBacklog {
			return cursor, nil
		}
	}
}

func (s *Server) writeRecord(ctx context.Context, conn *websocket.Conn, rec audit.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout.Duration)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
