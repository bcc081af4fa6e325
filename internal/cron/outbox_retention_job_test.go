package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-core/internal/testutil"
	"github.com/angelmondragon/settlement-core/pkg/db/models"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/outbox"
)

func TestOutboxRetentionJobPassesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.AddDate(0, 0, -outboxRetentionDays), repo.lastCutoff)
	assert.Equal(t, outboxMinAttempts, repo.minAttempts)
	assert.Equal(t, 1, repo.called)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{err: errors.New("boom")})
	assert.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionDeletesOnlyAgedRows(t *testing.T) {
	client := testutil.NewSQLiteDB(t)
	conn := client.DB()
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	rows := []models.OutboxEvent{
		{EventType: "order.paid", AggregateType: "order", Payload: []byte(`{}`), CreatedAt: old, PublishedAt: &old},
		{EventType: "order.paid", AggregateType: "order", Payload: []byte(`{}`), CreatedAt: old, AttemptCount: outboxMinAttempts},
		{EventType: "order.paid", AggregateType: "order", Payload: []byte(`{}`), CreatedAt: old},
		{EventType: "order.paid", AggregateType: "order", Payload: []byte(`{}`), CreatedAt: now, PublishedAt: &now},
	}
	require.NoError(t, conn.Create(&rows).Error)

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testutil.NewLogger(),
		DB:         client,
		Repository: outbox.NewRepository(conn),
	})
	require.NoError(t, err)
	require.NoError(t, jobIface.Run(context.Background()))

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, rows[2].ID, remaining[0].ID)
	assert.Equal(t, rows[3].ID, remaining[1].ID)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         passthroughTx{},
		Repository: repo,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "unexpected job type %T", jobIface)
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff  time.Time
	minAttempts int
	called      int
	err         error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.minAttempts = minAttempts
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
