package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/services/scheduler"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/pkg/logger"
	"github.com/R3E-Network/storefront/pkg/testutil"
)

func TestApplicationWiresSchedulerTasks(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-secret"
	application, err := NewWithBackend(cfg, memory.New(), logger.New(logger.LoggingConfig{Output: "discard"}),
		WithSender(testutil.NewMockSender()))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		scheduler.TaskCartAbandonment,
		scheduler.TaskCleanup,
		scheduler.TaskEmailHealthCheck,
	}, application.Scheduler.TaskNames())

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	status := application.Scheduler.Status()
	assert.True(t, status[scheduler.TaskCartAbandonment].Scheduled)
	require.NoError(t, application.Stop(ctx))
}

func TestApplicationRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Cleanup = "not a cron"
	_, err := NewWithBackend(cfg, memory.New(), logger.New(logger.LoggingConfig{Output: "discard"}))
	assert.Error(t, err)
}

func TestApplicationStartsWithDisabledBlankScheduler(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-secret"
	cfg.Scheduler = config.SchedulerConfig{Enabled: false}
	require.NoError(t, cfg.Validate())

	application, err := NewWithBackend(cfg, memory.New(), logger.New(logger.LoggingConfig{Output: "discard"}),
		WithSender(testutil.NewMockSender()))
	require.NoError(t, err)
	assert.Empty(t, application.Scheduler.TaskNames())

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	require.NoError(t, application.Stop(ctx))
}

func TestAbandonedCartFlowEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-secret"
	sender := testutil.NewMockSender()
	store := memory.New()
	application, err := NewWithBackend(cfg, store, logger.New(logger.LoggingConfig{Output: "discard"}), WithSender(sender))
	require.NoError(t, err)
	ctx := context.Background()

	session, err := application.Auth.Register(ctx, "shopper@example.com", "long enough", "Sam")
	require.NoError(t, err)
	p, err := application.Catalog.CreateProduct(ctx, catalog.Product{Title: "Teapot", Price: decimal.NewFromInt(30), Stock: 3, Active: true})
	require.NoError(t, err)
	_, err = application.Carts.AddItem(ctx, session.User.ID, p.ID, 1)
	require.NoError(t, err)

	later := time.Now().Add(cfg.Abandonment.FirstReminderAfter + time.Minute)
	application.Abandonment.WithClock(func() time.Time { return later })
	n, err := application.Abandonment.ProcessAbandonedCarts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "shopper@example.com", sent[0].To)
	assert.Contains(t, sent[0].HTMLBody, "Teapot")
}
