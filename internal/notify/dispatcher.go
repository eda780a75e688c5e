package notify

import (
	"context"
	"log"
	"time"
)

// Dispatcher drains the durable RedisQueue and republishes each
// notification to the in-process Bus, so websocket subscribers receive
// events regardless of which process enqueued them. Grounded on the
// teacher's reconciliation.Service ticker-loop shape (internal/reconciliation/service.go).
type Dispatcher struct {
	queue *RedisQueue
	bus   *Bus
}

// NewDispatcher wires a durable queue to an in-process bus.
func NewDispatcher(queue *RedisQueue, bus *Bus) *Dispatcher {
	return &Dispatcher{queue: queue, bus: bus}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Println("notify: dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Println("notify: dispatcher stopped")
			return
		default:
		}

		n, ok, err := d.queue.Drain(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("notify: drain error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}
		d.bus.Publish(n)
	}
}
