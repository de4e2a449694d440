// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"context"
	"errors"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DeliversOnClose(t *testing.T) {
	out := &testutil.RecordingSender{}
	q := email.NewQueue(out, 10)
	q.Start(context.Background())

	for _, to := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		require.NoError(t, q.Send(context.Background(), email.Message{To: to}))
	}
	q.Close()

	msgs := out.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a@x.com", msgs[0].To)
	assert.Equal(t, "c@x.com", msgs[2].To)
}

func TestQueue_Full(t *testing.T) {
	out := &testutil.RecordingSender{}
	q := email.NewQueue(out, 1)

	// No worker yet, so the second message has nowhere to go.
	require.NoError(t, q.Send(context.Background(), email.Message{To: "a@x.com"}))
	err := q.Send(context.Background(), email.Message{To: "b@x.com"})

	assert.ErrorIs(t, err, email.ErrQueueFull)

	q.Start(context.Background())
	q.Close()
	assert.Len(t, out.Messages(), 1)
}

func TestQueue_SendAfterClose(t *testing.T) {
	q := email.NewQueue(&testutil.RecordingSender{}, 1)
	q.Start(context.Background())
	q.Close()

	err := q.Send(context.Background(), email.Message{To: "a@x.com"})

	assert.ErrorIs(t, err, email.ErrQueueClosed)
}

func TestQueue_CloseTwice(t *testing.T) {
	q := email.NewQueue(&testutil.RecordingSender{}, 1)
	q.Start(context.Background())

	q.Close()
	q.Close()
}

func TestQueue_FailureDoesNotStopWorker(t *testing.T) {
	out := &testutil.RecordingSender{Err: errors.New("relay down")}
	q := email.NewQueue(out, 2)
	q.Start(context.Background())

	require.NoError(t, q.Send(context.Background(), email.Message{To: "a@x.com"}))
	require.NoError(t, q.Send(context.Background(), email.Message{To: "b@x.com"}))
	q.Close()

	assert.Empty(t, out.Messages())
}

func TestQueue_SurvivesCancelledRequestContext(t *testing.T) {
	out := &testutil.RecordingSender{}
	q := email.NewQueue(out, 1)
	q.Start(context.Background())

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Send(reqCtx, email.Message{To: "a@x.com"}))
	cancel()
	q.Close()

	assert.Len(t, out.Messages(), 1)
}
