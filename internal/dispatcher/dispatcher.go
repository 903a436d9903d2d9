// Package dispatcher posts review comments in the background, after the
// webhook response has been written.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glaucopicci/api-risa-goya/internal/podio"
	"github.com/glaucopicci/api-risa-goya/internal/webhook"
)

// Commenter writes a comment on an item.
type Commenter interface {
	PostComment(ctx context.Context, itemID int64, text string) (*podio.Comment, error)
}

// Config controls dispatcher behaviour
type Config struct {
	Workers     int
	QueueSize   int
	PostTimeout time.Duration
}

// Failure is a comment that could not be posted.
type Failure struct {
	Job *webhook.CommentJob
	Err error
}

// Dispatcher posts each queued comment once, one at a time per item.
type Dispatcher struct {
	commenter Commenter
	cfg       Config

	queue    chan *webhook.CommentJob
	failures chan Failure

	keyedLocks *keyedMutex

	// mu orders Enqueue against Shutdown so no job is accepted after drain.
	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once
}

// New creates a dispatcher with the provided configuration
func New(commenter Commenter, cfg Config) *Dispatcher {
	normalized := normalizeConfig(cfg)
	d := &Dispatcher{
		commenter:  commenter,
		cfg:        normalized,
		queue:      make(chan *webhook.CommentJob, normalized.QueueSize),
		failures:   make(chan Failure, normalized.QueueSize),
		keyedLocks: newKeyedMutex(),
		stopCh:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 30 * time.Second
	}
	return cfg
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues a comment for posting
func (d *Dispatcher) Enqueue(job *webhook.CommentJob) error {
	if job == nil {
		return errors.New("dispatcher enqueue: job is nil")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return webhook.ErrQueueClosed
	}

	select {
	case d.queue <- job:
		return nil
	default:
		return webhook.ErrQueueFull
	}
}

// Failures delivers comments that could not be posted. Failures are dropped
// when nobody reads the channel and it is full.
func (d *Dispatcher) Failures() <-chan Failure {
	return d.failures
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			d.drain()
			return
		case job := <-d.queue:
			d.process(job)
		}
	}
}

// drain posts what is still queued at shutdown.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(job *webhook.CommentJob) {
	logger := log.With().
		Str("delivery_id", job.DeliveryID).
		Int64("item_id", job.ItemID).
		Int64("revision_id", job.RevisionID).
		Logger()

	key := fmt.Sprintf("item#%d", job.ItemID)
	d.keyedLocks.Lock(key)

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), d.cfg.PostTimeout)
	comment, err := d.commenter.PostComment(ctx, job.ItemID, job.Text)
	cancel()

	d.keyedLocks.Unlock(key)

	if err != nil {
		var postErr *podio.CommentPostError
		if errors.As(err, &postErr) {
			logger.Warn().Err(postErr.Err).Msg("Comment post failed; review was already answered")
		} else {
			logger.Warn().Err(err).Msg("Comment post failed")
		}
		d.reportFailure(Failure{Job: job, Err: err})
		return
	}

	var commentID int64
	if comment != nil {
		commentID = comment.CommentID
	}
	logger.Info().Int64("comment_id", commentID).Msg("Comment posted")
}

func (d *Dispatcher) reportFailure(f Failure) {
	select {
	case d.failures <- f:
	default:
	}
}

// Shutdown stops accepting comments and waits for queued ones to be posted
// or ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.stopCh)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return
	case <-done:
		return
	}
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()

	if !ok {
		return
	}

	m.Unlock()
}
