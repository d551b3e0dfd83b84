package history

import (
	"context"
	"time"

	"github.com/kilianp07/doser/core/events"
	"github.com/kilianp07/doser/core/logger"
	"github.com/kilianp07/doser/internal/eventbus"
)

// StartRecorder appends every DoseFinished event on the bus to store until
// ctx is canceled. The returned channel is closed once the recorder stopped.
func StartRecorder(ctx context.Context, bus eventbus.EventBus, store Store, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || store == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, isDose := ev.(events.DoseFinished)
				if !isDose {
					continue
				}
				wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := store.Append(wctx, FromEvent(e)); err != nil && log != nil {
					log.Errorf("history append %s: %v", e.SessionID, err)
				}
				cancel()
			}
		}
	}()
	return done
}
