package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Mosas2000/sprintfund/internal/utils"
)

const queueCapacity = 1024

// Operation is a remote call scheduled through a limiter.
type Operation func(ctx context.Context) (interface{}, error)

type result struct {
	value interface{}
	err   error
}

type request struct {
	ctx  context.Context
	op   Operation
	done chan result
}

// Limiter serializes outbound calls to one external endpoint. Requests drain
// through a single dispatcher in FIFO order, with starts spaced at least
// minInterval apart via a token bucket (burst 1). When the remote answers
// 429 with an explicit wait hint, the dispatcher honors the hint instead of
// the static interval, then continues the queue.
type Limiter struct {
	name     string
	logger   *logrus.Logger
	bucket   *rate.Limiter
	requests chan *request
}

// NewLimiter creates a limiter for one endpoint and starts its dispatcher.
func NewLimiter(name string, minInterval time.Duration, logger *logrus.Logger) *Limiter {
	l := &Limiter{
		name:     name,
		logger:   logger,
		bucket:   rate.NewLimiter(rate.Every(minInterval), 1),
		requests: make(chan *request, queueCapacity),
	}
	go l.dispatch()
	return l
}

// Schedule enqueues op and blocks until it has run, returning its result.
// Schedule is the only admitted concurrency-control boundary for the
// endpoint: callers must not reach the remote any other way.
func (l *Limiter) Schedule(ctx context.Context, op Operation) (interface{}, error) {
	req := &request{ctx: ctx, op: op, done: make(chan result, 1)}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res := <-req.done
	return res.value, res.err
}

// Close stops the dispatcher once the queue drains. Pending requests still
// complete; Schedule must not be called after Close.
func (l *Limiter) Close() {
	close(l.requests)
}

func (l *Limiter) dispatch() {
	for req := range l.requests {
		if err := l.bucket.Wait(req.ctx); err != nil {
			req.done <- result{nil, err}
			continue
		}

		value, err := l.run(req)
		req.done <- result{value, err}
	}
}

// run invokes the operation, re-running it after any explicit retry hint
// from the remote.
func (l *Limiter) run(req *request) (interface{}, error) {
	value, err := req.op(req.ctx)

	for {
		rle, ok := utils.AsRateLimitError(err)
		if !ok || rle.RetryAfter <= 0 {
			return value, err
		}

		l.logger.WithFields(logrus.Fields{
			"limiter":     l.name,
			"retry_after": rle.RetryAfter,
		}).Warn("Remote rate limit hit, honoring wait hint")

		select {
		case <-req.ctx.Done():
			return nil, req.ctx.Err()
		case <-time.After(rle.RetryAfter):
		}

		value, err = req.op(req.ctx)
	}
}
