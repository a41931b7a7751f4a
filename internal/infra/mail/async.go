package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
)

const defaultSendTimeout = 45 * time.Second

var (
	// ErrQueueFull is returned when the dispatch queue has no room.
	ErrQueueFull = errors.New("mail: queue full")
	// ErrMailerClosed is returned after Close.
	ErrMailerClosed = errors.New("mail: mailer closed")
)

// AsyncConfig controls the dispatch queue.
type AsyncConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// AsyncMailer hands messages to a fixed pool of workers so callers never wait
// on a provider. Delivery failures are logged.
type AsyncMailer struct {
	next      port.Mailer
	cfg       AsyncConfig
	logger    *zap.Logger
	queue     chan port.Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once
	onResult  func(err error)

	// mu orders enqueues before Close: workers drain only after every
	// accepted message is in the queue.
	mu     sync.RWMutex
	closed bool
}

// NewAsyncMailer starts cfg.Workers workers delivering through next.
func NewAsyncMailer(next port.Mailer, cfg AsyncConfig, log *zap.Logger) *AsyncMailer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := &AsyncMailer{
		next:   next,
		cfg:    cfg,
		logger: log,
		queue:  make(chan port.Message, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	m.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go m.run()
	}
	return m
}

// OnResult registers a callback invoked after each delivery attempt. It must
// be set before the first Send.
func (m *AsyncMailer) OnResult(fn func(err error)) {
	m.onResult = fn
}

func (m *AsyncMailer) run() {
	defer m.wg.Done()
	for {
		select {
		case msg := <-m.queue:
			m.deliver(msg)
		case <-m.done:
			for {
				select {
				case msg := <-m.queue:
					m.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (m *AsyncMailer) deliver(msg port.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SendTimeout)
	defer cancel()

	err := m.next.Send(ctx, msg)
	if err != nil {
		m.failed.Add(1)
		m.logger.Error("async mail delivery failed",
			zap.String("to", logger.MaskEmail(msg.To)),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
	if m.onResult != nil {
		m.onResult(err)
	}
}

// Send enqueues msg. It never blocks: a full queue yields ErrQueueFull.
func (m *AsyncMailer) Send(_ context.Context, msg port.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrMailerClosed
	}
	select {
	case m.queue <- msg:
		return nil
	default:
		m.dropped.Add(1)
		m.logger.Warn("mail queue full, message dropped", zap.String("to", logger.MaskEmail(msg.To)))
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits until the queue is drained.
func (m *AsyncMailer) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
		m.wg.Wait()
	})
}

// Dropped reports messages rejected because the queue was full.
func (m *AsyncMailer) Dropped() uint64 {
	return m.dropped.Load()
}

// Failed reports messages every provider refused.
func (m *AsyncMailer) Failed() uint64 {
	return m.failed.Load()
}

var _ port.Mailer = (*AsyncMailer)(nil)
