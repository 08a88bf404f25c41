package dispatcher

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/dukex/flowbot/pkg/models"
)

// Run drains in until it is closed or ctx is done. Events of one chat always go to
// the same worker, so each chat is answered in arrival order while different chats
// proceed in parallel.
func (d *Dispatcher) Run(ctx context.Context, in <-chan models.InboundEvent) error {
	queues := make([]chan models.InboundEvent, d.workers)

	var wg sync.WaitGroup

	for i := range queues {
		queues[i] = make(chan models.InboundEvent, d.queueSize)

		wg.Add(1)

		go func(queue <-chan models.InboundEvent) {
			defer wg.Done()

			for evt := range queue {
				if ctx.Err() != nil {
					continue
				}

				d.Handle(ctx, evt)
			}
		}(queues[i])
	}

	d.logger.InfoContext(ctx, "Dispatcher started", "workers", d.workers)

	defer func() {
		for _, queue := range queues {
			close(queue)
		}

		wg.Wait()
		d.logger.InfoContext(ctx, "Dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-in:
			if !ok {
				return nil
			}

			select {
			case queues[shard(evt.ChatID, len(queues))] <- evt:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func shard(chatID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))

	return int(h.Sum32() % uint32(n))
}
