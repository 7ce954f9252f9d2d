package outbox

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/notification/repository"
	pkgdb "github.com/yunzhijiao/bridge/pkg/db"
	"gorm.io/gorm"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB, domain.Repository) {
	t.Helper()
	gdb, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&domain.Notification{}, &domain.OutboxEvent{}))

	repo := repository.NewRepository(gdb)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	return NewDispatcher(repo, clk), gdb, repo
}

func TestEnqueueWritesBothRows(t *testing.T) {
	d, gdb, repo := newTestDispatcher(t)
	ctx := context.Background()
	userID := snowflake.ID(42)

	require.NoError(t, d.Enqueue(ctx, gdb, Message{
		UserID: userID,
		Type:   domain.TypeVerificationApproved,
		Topic:  domain.TopicVerificationApproved,
		Payload: map[string]any{
			"request_id": "123",
		},
	}))

	notifications, err := repo.List(ctx, domain.ListRequest{UserID: userID})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.TypeVerificationApproved, notifications[0].Type)
	assert.Equal(t, "123", notifications[0].Payload["request_id"])
	assert.Nil(t, notifications[0].ReadAt)

	events, err := repo.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TopicVerificationApproved, events[0].Topic)
	assert.False(t, events[0].Published)
}

func TestEnqueueValidation(t *testing.T) {
	d, gdb, _ := newTestDispatcher(t)
	ctx := context.Background()

	err := d.Enqueue(ctx, gdb, Message{
		Type:  domain.TypeVerificationApproved,
		Topic: domain.TopicVerificationApproved,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	err = d.Enqueue(ctx, gdb, Message{UserID: 1, Topic: domain.TopicVerificationApproved})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	err = d.Enqueue(ctx, gdb, Message{UserID: 1, Type: domain.TypeVerificationApproved})
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestEnqueueRollsBackWithTransaction(t *testing.T) {
	d, gdb, repo := newTestDispatcher(t)
	ctx := context.Background()

	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := d.Enqueue(ctx, tx, Message{
			UserID: 7,
			Type:   domain.TypeVerificationRejected,
			Topic:  domain.TopicVerificationRejected,
		}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	notifications, err := repo.List(ctx, domain.ListRequest{UserID: 7})
	require.NoError(t, err)
	assert.Empty(t, notifications)

	events, err := repo.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOutboxIDsAreMonotonic(t *testing.T) {
	d, gdb, repo := newTestDispatcher(t)
	ctx := context.Background()

	// Same clock tick; monotonic entropy must still keep emission order.
	for i := 0; i < 20; i++ {
		require.NoError(t, d.Enqueue(ctx, gdb, Message{
			UserID:  9,
			Type:    domain.TypeVerificationApproved,
			Topic:   domain.TopicVerificationApproved,
			Payload: map[string]any{"seq": i},
		}))
	}

	events, err := repo.ListUnpublished(ctx, 50)
	require.NoError(t, err)
	require.Len(t, events, 20)

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	assert.True(t, sort.StringsAreSorted(ids))

	// id order equals emission order.
	for i, e := range events {
		var payload struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(e.Payload, &payload))
		assert.Equal(t, i, payload.Seq)
	}
}
