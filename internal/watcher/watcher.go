// Package watcher polls an inbox on an interval and reports each new mail
// to a callback exactly once.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tracyhatemice/inboxwatch/internal/dedup"
	"github.com/tracyhatemice/inboxwatch/internal/logging"
	"github.com/tracyhatemice/inboxwatch/internal/receiver"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 5 * time.Second

// ErrClosed is returned by operations on a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// MailFunc is called once for every newly received mail.
type MailFunc func(w *Watcher, m receiver.Mail)

// ErrorFunc is called with the error that ended a poll early.
type ErrorFunc func(w *Watcher, err error)

// Watcher polls one inbox. The zero value is not usable; use New or
// NewFromReceiver.
type Watcher struct {
	recv     receiver.Receiver
	uri      string
	logger   *slog.Logger
	webOpts  []receiver.WebOption
	received *dedup.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	// pollMu serializes polls so two ticks never interleave.
	pollMu sync.Mutex
	// running counts timer goroutines; Close waits for it to drain.
	running sync.WaitGroup

	mu       sync.Mutex
	from     string
	interval time.Duration
	watching bool
	closed   bool
	onMail   MailFunc
	onError  ErrorFunc
	ticker   *time.Ticker
	stop     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSender restricts the watcher to mails whose sender address equals
// from exactly. An empty string accepts every sender.
func WithSender(from string) Option {
	return func(w *Watcher) {
		w.from = from
	}
}

// WithInterval sets the poll interval. Non-positive values select
// DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = normalizeInterval(d)
	}
}

// WithLogger sets the logger. Watchers are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithWebOptions passes options to the web receiver created by New.
func WithWebOptions(opts ...receiver.WebOption) Option {
	return func(w *Watcher) {
		w.webOpts = append(w.webOpts, opts...)
	}
}

// New creates a watcher for the disposable web inbox <name>@<domain>.
func New(domain, name string, opts ...Option) *Watcher {
	w := newWatcher(opts)
	webOpts := append([]receiver.WebOption{receiver.WithWebLogger(w.logger)}, w.webOpts...)
	w.setReceiver(receiver.NewWeb(domain, name, webOpts...))
	return w
}

// NewFromReceiver creates a watcher over any inbox receiver.
func NewFromReceiver(r receiver.Receiver, opts ...Option) *Watcher {
	w := newWatcher(opts)
	w.setReceiver(r)
	return w
}

func newWatcher(opts []Option) *Watcher {
	w := &Watcher{
		interval: DefaultInterval,
		logger:   logging.Discard(),
		received: dedup.NewTracker(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

func (w *Watcher) setReceiver(r receiver.Receiver) {
	w.recv = r
	w.uri = r.Location()
	w.logger = w.logger.With("inbox", w.uri)
}

func normalizeInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}

// URI returns the location of the watched inbox.
func (w *Watcher) URI() string {
	return w.uri
}

// Sender returns the sender filter.
func (w *Watcher) Sender() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.from
}

// SetSender changes the sender filter; it applies from the next entry
// examined.
func (w *Watcher) SetSender(from string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.from = from
}

// Interval returns the poll interval. It is zero once the watcher is closed.
func (w *Watcher) Interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

// SetInterval changes the poll interval. While watching, the next poll
// happens one new interval after the call.
func (w *Watcher) SetInterval(d time.Duration) {
	d = normalizeInterval(d)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.interval = d
	if w.ticker != nil {
		w.ticker.Reset(d)
	}
}

// IsWatching reports whether the timer is armed.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Received returns the mails received so far, oldest first.
func (w *Watcher) Received() []receiver.Mail {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.received.Mails()
}

// OnMailReceived sets the callback for new mails, replacing any previous
// one. The callback runs on the polling goroutine.
func (w *Watcher) OnMailReceived(fn MailFunc) *Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.onMail = fn
	}
	return w
}

// OnError sets the callback for failed polls, replacing any previous one.
func (w *Watcher) OnError(fn ErrorFunc) *Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.onError = fn
	}
	return w
}

// Start arms the timer: the first poll runs immediately, then one every
// interval. Starting a running watcher does nothing.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.watching {
		return nil
	}

	w.watching = true
	w.ticker = time.NewTicker(w.interval)
	w.stop = make(chan struct{})
	w.running.Add(1)
	go w.run(w.ticker, w.stop)

	w.logger.Info("watching", "interval", w.interval, "from", w.from)
	return nil
}

// Stop disarms the timer. A poll already running is allowed to finish.
// Stopping an idle watcher does nothing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarm()
}

func (w *Watcher) disarm() {
	if !w.watching {
		return
	}
	w.watching = false
	w.ticker.Stop()
	close(w.stop)
	w.ticker = nil
	w.stop = nil
	w.logger.Info("stopped watching")
}

// Close stops the watcher, aborts any poll in flight and waits for the
// timer goroutine to exit, then forgets received mails and callbacks and
// releases the receiver. A closed watcher cannot be restarted. Close must
// not be called from a MailFunc or ErrorFunc.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.disarm()
	w.closed = true
	w.received.Reset()
	w.onMail = nil
	w.onError = nil
	w.interval = 0
	w.mu.Unlock()

	w.cancel()
	w.running.Wait()
	if err := w.recv.Close(); err != nil {
		return fmt.Errorf("close receiver: %w", err)
	}
	return nil
}

func (w *Watcher) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer w.running.Done()
	w.tick()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	w.mu.Lock()
	ready := w.watching && w.onMail != nil
	w.mu.Unlock()
	if !ready {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.report(fmt.Errorf("poll panicked: %v", r))
		}
	}()
	if err := w.Poll(w.ctx); err != nil {
		w.report(err)
	}
}

func (w *Watcher) report(err error) {
	w.mu.Lock()
	closed, fn := w.closed, w.onError
	w.mu.Unlock()
	if closed {
		return
	}

	w.logger.Debug("poll failed", "error", err)
	if fn != nil {
		fn(w, err)
	}
}

// Poll runs one check of the inbox: new mails that pass the sender filter
// have their body fetched, are recorded and are passed to the callback, in
// listing order. The first failure ends the poll; mails handled before it
// stay recorded. Poll does nothing when no callback is set.
func (w *Watcher) Poll(ctx context.Context) error {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	_, fn, err := w.state()
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}

	entries, listErr := w.recv.List(ctx)
	for _, entry := range entries {
		from, _, err := w.state()
		if err != nil {
			return err
		}
		if from != "" && entry.From != from {
			continue
		}
		if w.seen(entry.ID) {
			continue
		}

		body, err := w.recv.Body(ctx, entry.ID)
		if err != nil {
			return fmt.Errorf("fetch body of %s: %w", entry.ID, err)
		}

		m := receiver.NewMail(entry, body)
		fn, err := w.record(m)
		if err != nil {
			return err
		}
		if fn == nil {
			continue
		}

		w.logger.Info("mail received", "id", m.ID, "from", m.From, "subject", m.Subject)
		fn(w, m)
	}

	if listErr != nil {
		return fmt.Errorf("list %s: %w", w.uri, listErr)
	}
	return nil
}

func (w *Watcher) state() (string, MailFunc, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", nil, ErrClosed
	}
	return w.from, w.onMail, nil
}

func (w *Watcher) seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.received.Seen(id)
}

// record appends m to the received list and returns the callback to
// notify, or nil when m was already recorded.
func (w *Watcher) record(m receiver.Mail) (MailFunc, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if !w.received.Add(m) {
		return nil, nil
	}
	return w.onMail, nil
}
