package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Default reply-channel settings.
const (
	DefaultTimeout  = 6 * time.Second
	DefaultCallback = "storixCallback"
)

// lateReplyWindows is how many reply windows an abandoned fetch may keep
// running to deliver a late reply before its request is canceled.
const lateReplyWindows = 4

// QueueConfig holds the options for NewQueue.
type QueueConfig struct {
	Callback string        // fixed reply function name (empty → DefaultCallback)
	Timeout  time.Duration // per-call reply window (0 → DefaultTimeout)
	Logger   *slog.Logger
}

// Queue runs remote calls strictly one at a time in submission order.
// A single dispatcher goroutine owns the reply-handler slot; a call is
// dispatched only after the previous one settled with a reply, a delivery
// error, or a timeout. A failed call never stalls the calls behind it.
type Queue struct {
	fetcher  Fetcher
	callback string
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []*call
	wake    chan struct{}

	slot handlerSlot

	// baseCtx scopes in-flight fetches to the queue lifetime. A timed-out
	// fetch keeps running for lateReplyWindows windows, then is canceled.
	baseCtx   context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type call struct {
	ctx    context.Context
	req    Request
	result chan callResult
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// NewQueue starts the dispatcher. Call Close to stop it.
func NewQueue(fetcher Fetcher, cfg QueueConfig) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	callback := cfg.Callback
	if callback == "" {
		callback = DefaultCallback
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		fetcher:  fetcher,
		callback: callback,
		timeout:  timeout,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		baseCtx:  ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	q.wg.Add(1)
	go q.run()

	return q
}

// Send queues req behind every call submitted before it and waits for the
// reply. If ctx ends while the call is still waiting its turn, the call is
// never dispatched. If ctx ends after dispatch, Send returns early but the
// exchange still occupies the queue until it settles.
func (q *Queue) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	c := &call{ctx: ctx, req: req, result: make(chan callResult, 1)}

	q.mu.Lock()
	select {
	case <-q.done:
		q.mu.Unlock()
		return nil, ErrClosed
	default:
	}

	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-c.result:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of calls waiting to be dispatched, excluding the
// one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Close stops the dispatcher. Calls still waiting fail with ErrClosed and an
// in-flight fetch is canceled.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.done)
		q.mu.Unlock()

		q.cancel()
	})

	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		c, ok := q.next()
		if !ok {
			q.failPending()
			return
		}

		if err := c.ctx.Err(); err != nil {
			q.logger.Debug("skipping abandoned remote call",
				slog.String("action", c.req.Action()),
			)

			c.result <- callResult{err: err}

			continue
		}

		payload, err := q.perform(c.req)
		c.result <- callResult{payload: payload, err: err}
	}
}

// next blocks until a call is available or the queue is closed.
func (q *Queue) next() (*call, bool) {
	for {
		q.mu.Lock()
		select {
		case <-q.done:
			q.mu.Unlock()
			return nil, false
		default:
		}

		if len(q.pending) > 0 {
			c := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()

			return c, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.done:
		}
	}
}

func (q *Queue) failPending() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, c := range pending {
		c.result <- callResult{err: ErrClosed}
	}
}

// perform runs one exchange: register the reply handler, start the fetch,
// and wait for the handler to fire, the fetch to fail, or the timeout.
// The handler is deregistered on every path, so a reply that arrives after
// the timeout finds no handler and is dropped.
func (q *Queue) perform(req Request) (json.RawMessage, error) {
	action := req.Action()
	start := time.Now()

	gen, replies := q.slot.register()
	defer q.slot.release(gen)

	failed := make(chan error, 1)

	fetchCtx, cancelFetch := context.WithTimeout(q.baseCtx, lateReplyWindows*q.timeout)

	go func() {
		defer cancelFetch()

		script, err := q.fetcher.Fetch(fetchCtx, q.callback, req)
		if err != nil {
			failed <- err
			return
		}

		payload, err := unwrapJSONP(script, q.callback)
		if err != nil {
			failed <- err
			return
		}

		if !q.slot.invoke(gen, payload) {
			q.logger.Debug("dropping late remote reply",
				slog.String("action", action),
				slog.Duration("after", time.Since(start)),
			)
		}
	}()

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case payload := <-replies:
		q.logger.Debug("remote call completed",
			slog.String("action", action),
			slog.Duration("duration", time.Since(start)),
			slog.Int("bytes", len(payload)),
		)

		return payload, nil

	case err := <-failed:
		q.logger.Warn("remote call failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)

		return nil, transportError(action, err)

	case <-timer.C:
		q.logger.Warn("remote call timed out",
			slog.String("action", action),
			slog.Duration("timeout", q.timeout),
		)

		return nil, &Error{Kind: ErrTimeout, Action: action}

	case <-q.done:
		return nil, ErrClosed
	}
}

// handlerSlot is the single process-wide reply handler registered under the
// callback name. Only the dispatcher registers and releases it; fetch
// goroutines invoke it. Each registration gets a new generation so a reply
// belonging to an abandoned call can never reach a later call's handler.
type handlerSlot struct {
	mu     sync.Mutex
	gen    uint64
	active bool
	ch     chan json.RawMessage
}

func (s *handlerSlot) register() (uint64, <-chan json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.active = true
	s.ch = make(chan json.RawMessage, 1)

	return s.gen, s.ch
}

// invoke delivers payload if the registration gen is still active. It
// reports whether the payload was accepted.
func (s *handlerSlot) invoke(gen uint64, payload json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.gen != gen {
		return false
	}

	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

func (s *handlerSlot) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen == gen {
		s.active = false
		s.ch = nil
	}
}

func (s *handlerSlot) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}
