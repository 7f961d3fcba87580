package app

import (
	"context"
	"sync"

	"telegram-secret-santa/internal/service"
)

const queueSize = 64

// dispatcher fans commands out to a fixed set of workers. Commands of one
// chat always land on the same worker and run in arrival order.
type dispatcher struct {
	handle func(ctx context.Context, cmd service.Command)
	queues []chan service.Command
	wg     sync.WaitGroup
}

func newDispatcher(workers int, handle func(ctx context.Context, cmd service.Command)) *dispatcher {
	if workers < 1 {
		workers = 1
	}
	queues := make([]chan service.Command, workers)
	for i := range queues {
		queues[i] = make(chan service.Command, queueSize)
	}
	return &dispatcher{handle: handle, queues: queues}
}

// start runs the workers. Handlers get a context that outlives ctx, so a
// command already taken from a queue runs to completion after shutdown.
func (d *dispatcher) start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, q := range d.queues {
		d.wg.Add(1)
		go func(q chan service.Command) {
			defer d.wg.Done()
			for cmd := range q {
				d.handle(ctx, cmd)
			}
		}(q)
	}
}

func (d *dispatcher) queueFor(chatID int64) chan service.Command {
	return d.queues[uint64(chatID)%uint64(len(d.queues))]
}

func (d *dispatcher) dispatch(cmd service.Command) {
	d.queueFor(cmd.ChatID) <- cmd
}

// stop closes the queues, lets the workers finish what is already queued
// and waits for them.
func (d *dispatcher) stop() {
	for _, q := range d.queues {
		close(q)
	}
	d.wg.Wait()
}
