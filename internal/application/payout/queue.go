// Package payout serializes every call that signs with the backend account.
package payout

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/shopspring/decimal"
)

// ErrQueueClosed is returned for submissions after Close.
var ErrQueueClosed = errors.New("payout queue closed")

const defaultBacklog = 64

type job struct {
	ctx  context.Context
	run  func(ctx context.Context)
	done chan struct{}
}

// Queue is a single-worker actor in front of a PayoutGateway. Jobs run one
// at a time in submission order, so nonces are allocated sequentially.
// Queue itself implements ports.PayoutGateway.
type Queue struct {
	gw   ports.PayoutGateway
	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts the worker goroutine.
func NewQueue(gw ports.PayoutGateway, backlog int) *Queue {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	q := &Queue{gw: gw, jobs: make(chan job, backlog)}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.exec(j)
	}
}

func (q *Queue) exec(j job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("payout: job panicked", "panic", r)
		}
	}()
	j.run(j.ctx)
}

// Close stops accepting work and waits for queued jobs to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}

// submit enqueues fn and blocks until it ran. A job that is already queued
// always runs, even if ctx is cancelled while waiting.
func (q *Queue) submit(ctx context.Context, fn func(ctx context.Context)) error {
	j := job{ctx: ctx, run: fn, done: make(chan struct{})}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	<-j.done
	return nil
}

// ResolveBet implements ports.PayoutGateway.
func (q *Queue) ResolveBet(ctx context.Context, contractBetID string, result domain.BetResult) (domain.PayoutReceipt, error) {
	var (
		rcpt domain.PayoutReceipt
		err  error
	)
	if serr := q.submit(ctx, func(ctx context.Context) {
		rcpt, err = q.gw.ResolveBet(ctx, contractBetID, result)
	}); serr != nil {
		return rcpt, serr
	}
	return rcpt, err
}

// ManualPayout implements ports.PayoutGateway.
func (q *Queue) ManualPayout(ctx context.Context, amount decimal.Decimal, recipient string) (string, error) {
	var (
		tx  string
		err error
	)
	if serr := q.submit(ctx, func(ctx context.Context) {
		tx, err = q.gw.ManualPayout(ctx, amount, recipient)
	}); serr != nil {
		return "", serr
	}
	return tx, err
}

// RecordProfit implements ports.PayoutGateway.
func (q *Queue) RecordProfit(ctx context.Context, delta decimal.Decimal) (string, error) {
	var (
		tx  string
		err error
	)
	if serr := q.submit(ctx, func(ctx context.Context) {
		tx, err = q.gw.RecordProfit(ctx, delta)
	}); serr != nil {
		return "", serr
	}
	return tx, err
}

// GetTreasuryStats is a read-only view call and bypasses the queue.
func (q *Queue) GetTreasuryStats(ctx context.Context) (domain.TreasuryStats, error) {
	return q.gw.GetTreasuryStats(ctx)
}
