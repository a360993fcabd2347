package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const (
	defaultBossThrottle = 250 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsMessage is one frame of the events stream. Type is "run" for a run
// record snapshot and "progress" for a progress event.
type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventsHandler streams run progress over a websocket.
type EventsHandler struct {
	deps         Dependencies
	bossThrottle time.Duration
	writeTimeout time.Duration
	logger       logger.Logger
}

// EventsOption configures an EventsHandler.
type EventsOption func(*EventsHandler)

// WithBossThrottle sets the minimum interval between forwarded boss_completed
// events on one connection. Lifecycle events are never throttled.
func WithBossThrottle(d time.Duration) EventsOption {
	return func(h *EventsHandler) {
		if d > 0 {
			h.bossThrottle = d
		}
	}
}

// WithWriteTimeout bounds each websocket write.
func WithWriteTimeout(d time.Duration) EventsOption {
	return func(h *EventsHandler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithEventsLogger sets the handler logger.
func WithEventsLogger(l logger.Logger) EventsOption {
	return func(h *EventsHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies, opts ...EventsOption) *EventsHandler {
	h := &EventsHandler{
		deps:         deps,
		bossThrottle: defaultBossThrottle,
		writeTimeout: defaultWriteTimeout,
		logger:       logger.GetOrNop().Named("events"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleEvents handles GET /runs/{id}/events. The stream opens with the
// current run record, forwards progress events, and ends with the final
// record once the run is over.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	id, ok := runPath(r.URL.Path, "/events")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
		return
	}
	ctx := r.Context()

	events, unsubscribe, err := h.deps.Subscribe(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer unsubscribe()

	run, err := h.deps.GetRun(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", logger.String("run_id", id), logger.Error(err))
		return
	}
	defer conn.Close()

	// the client never sends; reading detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug(ctx, "websocket read ended", logger.Error(err))
				}
				return
			}
		}
	}()

	if err := h.write(conn, wsMessage{Type: "run", Payload: run}); err != nil {
		return
	}

	limiter := rate.NewLimiter(rate.Every(h.bossThrottle), 1)
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				h.finish(conn, id, r)
				return
			}
			if ev.Kind == model.EventBossCompleted && !limiter.Allow() {
				metrics.RecordProgressEvent(string(ev.Kind), "throttled")
				continue
			}
			if err := h.write(conn, wsMessage{Type: "progress", Payload: ev}); err != nil {
				h.logger.Debug(ctx, "websocket write failed", logger.String("run_id", id), logger.Error(err))
				return
			}
		}
	}
}

// finish sends the final record and a normal close frame.
func (h *EventsHandler) finish(conn *websocket.Conn, id string, r *http.Request) {
	if run, err := h.deps.GetRun(r.Context(), id); err == nil {
		_ = h.write(conn, wsMessage{Type: "run", Payload: run})
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}

func (h *EventsHandler) write(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(msg)
}
