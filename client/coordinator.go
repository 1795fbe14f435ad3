package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth"
)

var (
	// ErrNotAuthenticated is returned by Await when the caller holds no
	// session, so there is nothing to refresh.
	ErrNotAuthenticated = errors.New("client: no session to refresh")
	// ErrCoordinatorClosed resolves waiters still pending at Close.
	ErrCoordinatorClosed = errors.New("client: coordinator closed")
)

// DefaultRefreshTimeout bounds one refresh round-trip.
const DefaultRefreshTimeout = 10 * time.Second

// Refresher performs the refresh round-trip. On success it has already
// stored the new credentials.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to [Refresher].
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Credentials is the local session marker.
type Credentials interface {
	// HasSession reports whether the caller has ever been authenticated
	// and not since been logged out.
	HasSession() bool
	// Clear forgets the session after a failed refresh.
	Clear()
}

type awaitRequest struct {
	generation uint64
	reply      chan error
}

// Coordinator deduplicates concurrent refreshes.
type Coordinator struct {
	refresher Refresher
	creds     Credentials
	timeout   time.Duration

	requests chan awaitRequest
	results  chan error
	done     chan struct{}
	stopped  chan struct{}

	generation atomic.Uint64
	refreshes  atomic.Uint64
	// waiting mirrors len(pending) in run.
	waiting atomic.Int64

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout bounds each refresh. Timing out is a refresh failure.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator starts the coordinator goroutine. Call Close to stop it.
func NewCoordinator(r Refresher, creds Credentials, opts ...CoordinatorOption) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		refresher: r,
		creds:     creds,
		timeout:   DefaultRefreshTimeout,
		requests:  make(chan awaitRequest),
		results:   make(chan error, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run(ctx)
	return c
}

// Generation counts finished refreshes, successful or not. A request records
// it before it is sent and hands it to Await. A request sent before the last
// refresh finished is resolved with that refresh's outcome: retried without
// another refresh after a success, failed with the same error after a
// failure.
func (c *Coordinator) Generation() uint64 {
	return c.generation.Load()
}

// Refreshes returns how many refresh round-trips were started.
func (c *Coordinator) Refreshes() uint64 {
	return c.refreshes.Load()
}

// Await reports how to proceed after a request sent under generation failed
// authentication: nil means replay now with the current credentials.
//
// Otherwise the error is [ErrNotAuthenticated], [ErrCoordinatorClosed], the
// context's error, or one wrapping auth.ErrRefreshFailed when the refresh
// covering generation failed or timed out. Every waiter of one generation
// gets the same answer; ErrNotAuthenticated is only returned for requests
// sent after the credentials were cleared.
func (c *Coordinator) Await(ctx context.Context, generation uint64) error {
	req := awaitRequest{generation: generation, reply: make(chan error, 1)}

	select {
	case c.requests <- req:
	case <-c.done:
		return ErrCoordinatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		// The reply channel is buffered; the coordinator never blocks on us.
		return ctx.Err()
	}
}

// Close resolves every pending waiter with [ErrCoordinatorClosed] and stops
// the coordinator. An in-flight refresh is cancelled.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		<-c.stopped
	})
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.stopped)

	var (
		refreshing bool
		pending    []chan error
		// last is the outcome of the most recent refresh.
		last       error
	)
	resolve := func(err error) {
		for _, reply := range pending {
			reply <- err
		}
		pending = nil
		c.waiting.Store(0)
	}

	for {
		select {
		case req := <-c.requests:
			if req.generation < c.generation.Load() {
				req.reply <- last
				continue
			}
			if !refreshing && !c.creds.HasSession() {
				req.reply <- ErrNotAuthenticated
				continue
			}
			pending = append(pending, req.reply)
			c.waiting.Store(int64(len(pending)))
			if refreshing {
				continue
			}
			refreshing = true
			c.refreshes.Add(1)
			go c.refresh(ctx)

		case err := <-c.results:
			refreshing = false
			last = nil
			if err != nil {
				c.creds.Clear()
				last = auth.ErrRefreshFailed.Wrap(err)
			}
			c.generation.Add(1)
			resolve(last)

		case <-c.done:
			resolve(ErrCoordinatorClosed)
			return
		}
	}
}

// refresh runs one round-trip. results has room for exactly one value and
// only one refresh runs at a time, so the send never blocks.
func (c *Coordinator) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.refresher.Refresh(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	c.results <- err
}
