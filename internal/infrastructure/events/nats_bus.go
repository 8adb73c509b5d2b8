package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

const DefaultSubjectPrefix = "modqueue.review"

// NATSBus publishes each event as JSON on "<prefix>.<event name>".
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	now    func() time.Time
}

var _ ports.EventBus = (*NATSBus)(nil)

func NewNATSBus(ctx context.Context, url string, prefix string) (*NATSBus, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(url) == "" {
		url = nats.DefaultURL
	}

	logCtx := logging.WithComponent(ctx, "events.nats")
	conn, err := nats.Connect(
		url,
		nats.Name("modqueue"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %q", url)
	}

	logging.Info(logCtx, "nats connected", slog.String("url", conn.ConnectedUrl()))
	return &NATSBus{
		conn:   conn,
		prefix: normalizePrefix(prefix),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (b *NATSBus) Publish(ctx context.Context, event ports.Event) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	event = stamp(event, b.now)
	body, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "marshal event")
	}

	msg := nats.NewMsg(Subject(b.prefix, event.Name))
	msg.Data = body
	msg.Header.Set("Nats-Msg-Id", event.ID)
	if err := b.conn.PublishMsg(msg); err != nil {
		return errs.Wrapf(err, "publish %s", event.Name)
	}
	return nil
}

func (b *NATSBus) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		return errs.Wrap(err, "drain nats connection")
	}
	return nil
}

// Subject builds the NATS subject for an event name.
func Subject(prefix string, name string) string {
	name = strings.NewReplacer(" ", "_", ".", "_").Replace(strings.TrimSpace(name))
	return normalizePrefix(prefix) + "." + name
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}
