package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

type subscription struct {
	name    string
	owner   string
	handler host.EventHandler
}

// Bus is an in-process event bus. Subscriptions are tagged with an owner so a
// plugin can release all of its handlers at once.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger log.Logger
}

var _ host.Events = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Bus{logger: log.With(logger, "component", "events")}
}

// On subscribes h to the event name.
func (b *Bus) On(name string, h host.EventHandler, owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, owner: owner, handler: h})
}

// Off removes every subscription held by owner.
func (b *Bus) Off(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.owner != owner {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(b.subs); i++ {
		b.subs[i] = subscription{}
	}
	b.subs = kept
}

// Emit calls the handlers subscribed to name in subscription order. Handlers
// run outside the lock so they may emit or subscribe themselves.
func (b *Bus) Emit(ctx context.Context, name string, payload any) {
	b.mu.RLock()
	var handlers []subscription
	for _, s := range b.subs {
		if s.name == name {
			handlers = append(handlers, s)
		}
	}
	b.mu.RUnlock()

	level.Debug(b.logger).Log("msg", "emit", "event", name, "handlers", len(handlers))
	for _, s := range handlers {
		b.call(ctx, s, payload)
	}
}

func (b *Bus) call(ctx context.Context, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(b.logger).Log("msg", "handler panicked", "event", s.name, "owner", s.owner, "err", fmt.Sprint(r))
		}
	}()
	s.handler(ctx, payload)
}

// Subscriptions reports how many handlers owner currently holds.
func (b *Bus) Subscriptions(owner string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, s := range b.subs {
		if s.owner == owner {
			n++
		}
	}
	return n
}
