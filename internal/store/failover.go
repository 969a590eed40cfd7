package store

import (
	"context"
	"sync/atomic"
	"time"

	"curbly/internal/domain"

	"github.com/rs/zerolog"
)

// Failover routes reads and writes to the primary store until it errors,
// then serves from the fallback, probing the primary again after a minute.
// Subscriptions always come from whichever store answered the initial call.
type Failover struct {
	primary   domain.DocumentStore
	fallback  domain.DocumentStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailover(primary, fallback domain.DocumentStore, logger *zerolog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

func (f *Failover) trip(err error) {
	f.logger.Error().Err(err).Msg("primary store failed, serving from fallback")
	f.isDown.Store(true)
	f.lastCheck.Store(time.Now().UnixNano())
}

func (f *Failover) shouldProbe() bool {
	return time.Since(time.Unix(0, f.lastCheck.Load())) > time.Minute
}

func (f *Failover) Query(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error) {
	if !f.isDown.Load() || f.shouldProbe() {
		docs, err := f.primary.Query(ctx, collection, filter)
		if err == nil {
			f.isDown.Store(false)
			return docs, nil
		}
		f.trip(err)
	}
	return f.fallback.Query(ctx, collection, filter)
}

func (f *Failover) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	if !f.isDown.Load() || f.shouldProbe() {
		err := f.primary.Write(ctx, collection, id, fields)
		if err == nil {
			f.isDown.Store(false)
			return nil
		}
		f.trip(err)
	}
	return f.fallback.Write(ctx, collection, id, fields)
}

func (f *Failover) Delete(ctx context.Context, collection, id string) error {
	if !f.isDown.Load() || f.shouldProbe() {
		err := f.primary.Delete(ctx, collection, id)
		if err == nil {
			f.isDown.Store(false)
			return nil
		}
		f.trip(err)
	}
	return f.fallback.Delete(ctx, collection, id)
}

func (f *Failover) Subscribe(ctx context.Context, collection string, filter domain.Filter) (<-chan []domain.Document, error) {
	if !f.isDown.Load() {
		ch, err := f.primary.Subscribe(ctx, collection, filter)
		if err == nil {
			return ch, nil
		}
		f.trip(err)
	}
	return f.fallback.Subscribe(ctx, collection, filter)
}
