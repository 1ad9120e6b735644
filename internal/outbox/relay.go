package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	ProcessPending(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Relay moves committed outbox records to the broker. Delivery is at least once: a
// crash between publish and commit republishes the batch.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(store Store, publisher Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain keeps relaying full batches so a backlog clears faster than one batch per tick.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("outbox relay failed", "error", err)
			return
		}
		if n < r.batchSize {
			return
		}
	}
}

func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	n, err := r.store.ProcessPending(ctx, r.batchSize, func(ctx context.Context, rec Record) error {
		if err := r.publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			r.logger.Warn("failed to publish outbox record", "error", err, "event_id", rec.EventID, "topic", rec.Topic)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		r.logger.Info("outbox records relayed", "count", n)
	}
	return n, nil
}
