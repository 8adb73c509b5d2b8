package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

const (
	streamBuffer     = 16
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
)

// EventSource delivers in-process events; the returned func unsubscribes.
type EventSource interface {
	Subscribe(handler func(ctx context.Context, event ports.Event)) func()
}

type countMessage struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// stream pushes the actor's pending count over a websocket: once on connect,
// then for every pending-count-changed event that names the actor.
func (h *reviewHandler) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFromContext(ctx)
	count, err := h.reviews.PendingCount(ctx, &actor)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		logging.Debug(ctx, "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	updates := make(chan int64, streamBuffer)
	unsubscribe := h.events.Subscribe(func(_ context.Context, event ports.Event) {
		count, ok := pendingCountFor(event, actor.ID)
		if !ok {
			return
		}
		select {
		case updates <- count:
		default:
			logging.Debug(ctx, "pending count dropped for slow stream")
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logging.Debug(ctx, "review stream opened")
	if err := writeStreamMessage(conn, countMessage{Name: "pending-count", Count: count}); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait),
			)
			return
		case <-closed:
			logging.Debug(ctx, "review stream closed by client")
			return
		case count := <-updates:
			message := countMessage{Name: reviewable.EventPendingCountChanged, Count: count}
			if err := writeStreamMessage(conn, message); err != nil {
				logging.Debug(ctx, "review stream write failed", slog.Any("err", errs.Loggable(err)))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeStreamMessage(conn *websocket.Conn, message countMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return errs.Wrap(err, "set write deadline")
	}
	if err := conn.WriteJSON(message); err != nil {
		return errs.Wrap(err, "write stream message")
	}
	return nil
}

// pendingCountFor extracts the count from a pending-count-changed event when
// actorID is one of its recipients.
func pendingCountFor(event ports.Event, actorID uint64) (int64, bool) {
	if event.Name != reviewable.EventPendingCountChanged {
		return 0, false
	}
	recipients, _ := event.Data["recipient_ids"].([]uint64)
	for _, id := range recipients {
		if id != actorID {
			continue
		}
		count, ok := event.Data["count"].(int64)
		return count, ok
	}
	return 0, false
}
