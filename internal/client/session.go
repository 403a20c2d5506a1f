package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sri-invoice-subscription/internal/domain/model"
)

var (
	ErrSessionStopped = errors.New("session stopped before the queue drained")
	ErrSessionRunning = errors.New("session already running")
)

// Fetcher retrieves one document. Returning Permanent(err) skips the
// remaining retries for that item.
type Fetcher interface {
	Fetch(ctx context.Context, doc model.DocumentDescriptor) error
}

type FetcherFunc func(ctx context.Context, doc model.DocumentDescriptor) error

func (f FetcherFunc) Fetch(ctx context.Context, doc model.DocumentDescriptor) error { return f(ctx, doc) }

// Permanent marks a fetch error as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

type Progress struct {
	Queued   int `json:"queued"`
	InFlight int `json:"inFlight"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
}

type Result struct {
	Document model.DocumentDescriptor `json:"document"`
	Attempts int                      `json:"attempts"`
	Err      error                    `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil && r.Attempts > 0 }

type SessionOptions struct {
	Slots          int           // concurrent fetches, default 3
	MaxRetries     int           // retries after the first attempt, default 3
	AttemptTimeout time.Duration // default 30s
	RetryBackoff   time.Duration // initial delay between attempts, default 500ms

	// Limiter paces attempts across all slots when set.
	Limiter *rate.Limiter
	// OnResult is called once per finished item, from the worker goroutine.
	OnResult func(Result)
	Logger   *zerolog.Logger
}

// Session downloads a batch of documents with a fixed number of slots.
// It is single-use: Run may be called once.
type Session struct {
	opts SessionOptions
	log  zerolog.Logger

	mu       sync.Mutex
	started  bool
	queue    []model.DocumentDescriptor
	next     int
	progress Progress
	results  []Result

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSession(opts SessionOptions) *Session {
	if opts.Slots <= 0 {
		opts.Slots = 3
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "DownloadSession").Logger()
	}
	return &Session{opts: opts, log: log, stop: make(chan struct{})}
}

// Run processes docs until the queue drains, Stop is called or ctx ends.
// Items already in flight when Stop is called still finish. The returned
// results follow the order of docs; items never dequeued carry
// ErrSessionStopped and zero attempts.
func (s *Session) Run(ctx context.Context, docs []model.DocumentDescriptor, f Fetcher) ([]Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrSessionRunning
	}
	s.started = true
	s.queue = docs
	s.results = make([]Result, len(docs))
	for i, d := range docs {
		s.results[i] = Result{Document: d, Err: ErrSessionStopped}
	}
	s.progress = Progress{Queued: len(docs)}
	s.mu.Unlock()

	slots := min(s.opts.Slots, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for range slots {
		g.Go(func() error {
			for {
				i, ok := s.dequeue(gctx)
				if !ok {
					return nil
				}
				s.finish(i, s.process(gctx, docs[i], f))
			}
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	out := append([]Result(nil), s.results...)
	left := s.progress.Queued
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	if left > 0 {
		return out, ErrSessionStopped
	}
	return out, nil
}

// Stop prevents further items from being dequeued. Safe to call repeatedly.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Results returns a copy of the per-item outcomes recorded so far.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func (s *Session) dequeue(ctx context.Context) (int, bool) {
	select {
	case <-s.stop:
		return 0, false
	case <-ctx.Done():
		return 0, false
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.queue) {
		return 0, false
	}
	i := s.next
	s.next++
	s.progress.Queued--
	s.progress.InFlight++
	return i, true
}

func (s *Session) finish(i int, r Result) {
	s.mu.Lock()
	s.results[i] = r
	s.progress.InFlight--
	if r.Err == nil {
		s.progress.Done++
	} else {
		s.progress.Failed++
	}
	s.mu.Unlock()

	if r.Err != nil {
		s.log.Warn().Err(r.Err).Str("access_key", r.Document.AccessKey).Int("attempts", r.Attempts).Msg("document failed")
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(r)
	}
}

func (s *Session) process(ctx context.Context, doc model.DocumentDescriptor, f Fetcher) Result {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBackoff

	attempts := 0
	op := func() (struct{}, error) {
		if s.opts.Limiter != nil {
			if err := s.opts.Limiter.Wait(ctx); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
		}
		attempts++
		actx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		defer cancel()

		err := f.Fetch(actx, doc)
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if err != nil {
			s.log.Debug().Err(err).Str("access_key", doc.AccessKey).Int("attempt", attempts).Msg("fetch attempt failed")
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.MaxRetries+1)),
	)
	return Result{Document: doc, Attempts: attempts, Err: err}
}
