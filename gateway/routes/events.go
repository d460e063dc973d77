package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"nexumfi/core/events"
	"nexumfi/services/indexer"
)

const defaultWSWriteTimeout = 10 * time.Second

// EventJournal is the indexed event history served by /v1/events.
type EventJournal interface {
	Query(ctx context.Context, filter indexer.Filter) ([]indexer.EventRecord, error)
}

type eventRoutes struct {
	journal      EventJournal
	stream       *events.Stream
	writeTimeout time.Duration
}

func (er *eventRoutes) mount(r chi.Router) {
	r.Get("/", er.query)
	r.Get("/stream", er.streamWS)
}

type eventView struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Module     string            `json:"module"`
	SubjectID  string            `json:"subjectId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (er *eventRoutes) query(w http.ResponseWriter, r *http.Request) {
	if er.journal == nil {
		writeJSONError(w, http.StatusServiceUnavailable, nil)
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{
		Type:      strings.TrimSpace(q.Get("type")),
		Module:    strings.TrimSpace(q.Get("module")),
		SubjectID: strings.TrimSpace(q.Get("subject")),
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, badRequest("invalid after %q", raw))
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, badRequest("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	records, err := er.journal.Query(r.Context(), filter)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{
			ID:         rec.ID.String(),
			Sequence:   rec.Sequence,
			Type:       rec.Type,
			Module:     rec.Module,
			SubjectID:  rec.SubjectID,
			Attributes: rec.AttributeMap(),
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (er *eventRoutes) streamWS(w http.ResponseWriter, r *http.Request) {
	if er.stream == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := er.pump(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (er *eventRoutes) pump(ctx context.Context, conn *websocket.Conn, cursor string) error {
	updates, cancel, backlog := er.stream.Subscribe(ctx, cursor)
	defer cancel()

	for _, update := range backlog {
		if err := er.write(ctx, conn, update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := er.write(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func (er *eventRoutes) write(ctx context.Context, conn *websocket.Conn, update events.StreamUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	timeout := er.writeTimeout
	if timeout <= 0 {
		timeout = defaultWSWriteTimeout
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
