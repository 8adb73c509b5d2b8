package events

import (
	"context"

	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

// Fanout publishes every event on the local bus and then on a remote one, so
// in-process subscribers (the websocket stream) keep working when events also
// leave the process.
type Fanout struct {
	local  *MemoryBus
	remote ports.EventBus
}

var _ ports.EventBus = (*Fanout)(nil)

func NewFanout(local *MemoryBus, remote ports.EventBus) *Fanout {
	return &Fanout{local: local, remote: remote}
}

func (f *Fanout) Publish(ctx context.Context, event ports.Event) error {
	event = stamp(event, f.local.now)
	if err := f.local.Publish(ctx, event); err != nil {
		return err
	}
	if f.remote == nil {
		return nil
	}
	if err := f.remote.Publish(ctx, event); err != nil {
		return errs.Wrap(err, "publish remote")
	}
	return nil
}

func (f *Fanout) Subscribe(handler Handler) func() {
	return f.local.Subscribe(handler)
}
