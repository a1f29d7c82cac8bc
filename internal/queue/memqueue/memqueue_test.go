package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueReceive(t *testing.T) {
	q := New(time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), "job-1"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, 1, msg.Attempt)
}

func TestReceive_BlocksUntilCancelled(t *testing.T) {
	q := New(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNack_IncrementsAttemptAndRequeues(t *testing.T) {
	q := New(time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "job-1"))

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, msg))

	redelivered, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, redelivered.Attempt)
}

func TestDeadLetter_RecordsAndDoesNotRequeue(t *testing.T) {
	q := New(time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "job-1"))

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.DeadLetter(ctx, msg, "poison: redelivery threshold exceeded"))

	assert.Equal(t, 0, q.Size())
	letters := q.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "job-1", letters[0].Message.JobID)
	assert.Contains(t, letters[0].Reason, "poison")
}

func TestAck_IsNoOpAndDoesNotReintroduceMessage(t *testing.T) {
	q := New(time.Millisecond)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "job-1"))

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, msg))

	assert.Equal(t, 0, q.Size())
}
