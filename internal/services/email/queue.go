// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("mail queue is full")
	ErrQueueClosed = errors.New("mail queue is closed")
)

const deliveryTimeout = 30 * time.Second

// Queue is a Sender that hands messages to a background worker, so request
// handlers never wait for the mail relay.
type Queue struct {
	next   Sender
	ch     chan Message
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue buffers up to size messages for delivery through next.
func NewQueue(next Sender, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		next: next,
		ch:   make(chan Message, size),
		done: make(chan struct{}),
	}
}

// Send enqueues msg. It never blocks; a full queue returns ErrQueueFull.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- msg:
		slog.DebugContext(ctx, "mail_queued", "to", msg.To, "subject", msg.Subject)
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the delivery worker until Close is called or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-q.ch:
			if !ok {
				return
			}
			q.deliver(ctx, msg)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, msg Message) {
	// Delivery outlives the request that queued the mail, not the worker.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := q.next.Send(sendCtx, msg); err != nil {
		slog.Error("mail_failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}
	slog.Info("mail_sent", "to", msg.To, "subject", msg.Subject)
}

// Close stops accepting mails and waits until the worker has delivered the
// ones already queued. Start must have been called.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	<-q.done
}
