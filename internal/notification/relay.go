package notification

import (
	"context"
	"time"

	"github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	relayInterval  = 5 * time.Second
	relayBatchSize = 200
	relayLockKey   = "outbox:relay:lock"
	relayLockTTL   = 30 * time.Second
)

// Relay drains the outbox in id order and marks events published. With
// multiple instances, a redis lock elects the active drainer.
type Relay struct {
	repo   domain.Repository
	locker *ratelimit.Locker
	log    *zap.Logger
}

func NewRelay(repo domain.Repository, locker *ratelimit.Locker, log *zap.Logger) *Relay {
	return &Relay{
		repo:   repo,
		locker: locker,
		log:    log.Named("notification.relay"),
	}
}

func (r *Relay) drain(ctx context.Context) {
	if r.locker != nil {
		token, ok, err := r.locker.TryLock(ctx, relayLockKey, relayLockTTL)
		if err != nil {
			r.log.Warn("outbox lock unavailable", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			_ = r.locker.Release(ctx, relayLockKey, token)
		}()
	}

	events, err := r.repo.ListUnpublished(ctx, relayBatchSize)
	if err != nil {
		r.log.Warn("outbox list failed", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}
	if err := r.repo.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		r.log.Warn("outbox publish failed", zap.Error(err))
		return
	}
	r.log.Debug("outbox drained", zap.Int("events", len(events)))
}

// RunRelay starts the background drain loop.
func RunRelay(lc fx.Lifecycle, relay *Relay) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(relayInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						relay.drain(ctx)
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
