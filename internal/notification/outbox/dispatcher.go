// Package outbox enqueues notifications and events inside the transaction
// that commits the state change they describe.
package outbox

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/notification/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dispatcher writes the notification row and outbox event for a terminal
// transition. Both inserts ride the caller's transaction, so a rollback of
// the decision drops them too.
type Dispatcher struct {
	repo  domain.Repository
	clock clock.Clock

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewDispatcher(repo domain.Repository, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		clock:   clk,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Message describes one terminal-transition notification.
type Message struct {
	UserID  snowflake.ID
	Type    string
	Topic   string
	Payload map[string]any
}

// Enqueue inserts the notification and outbox rows using tx. IDs are
// monotonic ULIDs, so events for the same request sort in emission order.
func (d *Dispatcher) Enqueue(ctx context.Context, tx *gorm.DB, msg Message) error {
	if msg.UserID == 0 {
		return domain.ErrInvalidUser
	}
	if msg.Type == "" || msg.Topic == "" {
		return domain.ErrInvalidType
	}

	now := d.clock.Now()
	repo := d.repo.WithTx(tx)

	if err := repo.Insert(ctx, domain.Notification{
		ID:        d.nextID(now),
		UserID:    msg.UserID,
		Type:      msg.Type,
		Payload:   datatypes.JSONMap(msg.Payload),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	return repo.InsertOutbox(ctx, domain.OutboxEvent{
		ID:        d.nextID(now),
		Topic:     msg.Topic,
		Payload:   datatypes.JSON(raw),
		CreatedAt: now,
	})
}

func (d *Dispatcher) nextID(now time.Time) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), d.entropy).String()
}
