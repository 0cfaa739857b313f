// Package mailbox implements spec component D: one autonomous listener per
// configured mailbox, each a single IMAP connection tracking its own UID
// cursor, reconnecting under bounded backoff, and handing parsed offers to
// an injected Acceptor.
package mailbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/vendorflow/taskintake/internal/domain/model"
	"github.com/vendorflow/taskintake/internal/mailbox/imapconn"
	"github.com/vendorflow/taskintake/internal/parser"
	"github.com/vendorflow/taskintake/internal/store/uidstore"
)

// State names the per-listener state machine's current position.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateOpen         State = "Open"
	StateFetching     State = "Fetching"
	StateReconnecting State = "Reconnecting"
	StateFailed       State = "Failed"
)

// Acceptor receives each parsed offer. Implementations (internal/acceptance)
// must return quickly — the fetch loop calls Accept synchronously but the
// acceptor itself is expected to hand off to a non-blocking queue, per §4.D.
type Acceptor interface {
	Accept(offer model.TaskOffer)
}

// Config is one listener's tunables, sourced from config.Config.
type Config struct {
	Name     string
	Host     string
	Port     int
	TLS      bool
	User     string
	Pass     string

	InitialDelay  time.Duration
	MaxDelay      time.Duration
	MaxRetries    int
	MaxRetryDelay time.Duration

	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}

// Status is a read-only snapshot for the /api/health endpoint.
type Status struct {
	Mailbox       string
	State         State
	LastFetchAt   time.Time
	LastError     string
	BreakerState  string
}

// Listener owns one mailbox's IMAP connection and UID cursor.
type Listener struct {
	cfg      Config
	store    *uidstore.Store
	acceptor Acceptor
	health   *HealthMonitor
	pause    *PauseGate
	logger   *slog.Logger

	breaker *gobreaker.CircuitBreaker[any]
	backoff *backoff.ExponentialBackOff
	sf      singleflight.Group

	mu          sync.RWMutex
	state       State
	lastFetchAt time.Time
	lastErr     error

	conn *imapconn.Conn
}

func NewListener(cfg Config, store *uidstore.Store, acceptor Acceptor, health *HealthMonitor, pause *PauseGate, logger *slog.Logger) *Listener {
	l := &Listener{
		cfg:      cfg,
		store:    store,
		acceptor: acceptor,
		health:   health,
		pause:    pause,
		logger:   logger.With("mailbox", cfg.Name),
		state:    StateDisconnected,
	}
	l.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.MaxDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxRetries)
		},
	})

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = 1.5
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // maxRetries, not elapsed time, bounds the retry loop
	l.backoff = eb

	return l
}

func (l *Listener) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Status{Mailbox: l.cfg.Name, State: l.state, LastFetchAt: l.lastFetchAt, BreakerState: l.breaker.State().String()}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Listener) setErr(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}

// Run drives the listener's state machine until ctx is cancelled, at which
// point it finishes any in-flight fetch, persists its cursor, and closes
// the connection before returning.
func (l *Listener) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		l.setState(StateConnecting)
		_, err := l.breaker.Execute(func() (any, error) {
			return nil, l.connectAndOpen()
		})
		if err != nil {
			l.setErr(err)
			attempt++
			if attempt > l.cfg.MaxRetries {
				l.setState(StateFailed)
				l.logger.Error("mailbox: exceeded max retries, cooling down", "err", err, "cooldown", l.cfg.MaxRetryDelay)
				if !sleep(ctx, l.cfg.MaxRetryDelay) {
					return nil
				}
				attempt = 0
				l.backoff.Reset()
				continue
			}
			l.setState(StateReconnecting)
			delay := l.backoff.NextBackOff()
			l.logger.Warn("mailbox: connect failed, backing off", "err", err, "attempt", attempt, "delay", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		l.backoff.Reset()
		l.setState(StateOpen)
		if err := l.serve(ctx); err != nil {
			l.setErr(err)
			l.health.RecordReconnect(l.cfg.Name)
			l.closeConn()
			l.setState(StateReconnecting)
			continue
		}

		l.closeConn()
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *Listener) connectAndOpen() error {
	conn, err := imapconn.Dial(l.cfg.Host, l.cfg.Port, l.cfg.TLS)
	if err != nil {
		return err
	}
	if err := conn.Login(l.cfg.User, l.cfg.Pass); err != nil {
		conn.Logout()
		return err
	}
	if _, err := conn.Select(l.cfg.Name); err != nil {
		conn.Logout()
		return err
	}
	if _, err := l.store.Load(l.cfg.Name); err != nil {
		conn.Logout()
		return err
	}
	l.conn = conn
	return nil
}

func (l *Listener) closeConn() {
	if l.conn != nil {
		l.conn.Logout()
		l.conn = nil
	}
}

// serve runs the Open/Fetching loop: react to server push updates and the
// periodic health-check tick until ctx is cancelled or an I/O error forces
// a reconnect.
func (l *Listener) serve(ctx context.Context) error {
	updates := l.conn.Updates()
	ticker := time.NewTicker(l.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.flush()
			return nil

		case <-updates:
			if l.pause.IsPaused() {
				continue
			}
			if err := l.triggerFetch(ctx); err != nil {
				return err
			}

		case <-ticker.C:
			l.runHealthCheck()
		}
	}
}

// triggerFetch coalesces concurrent "exists" notifications via singleflight
// so overlapping batches never run for the same mailbox; a notification
// arriving mid-batch is absorbed by the next batch's wider UID search.
func (l *Listener) triggerFetch(ctx context.Context) error {
	_, err, _ := l.sf.Do(l.cfg.Name, func() (any, error) {
		l.setState(StateFetching)
		defer l.setState(StateOpen)
		return nil, l.fetchBatch(ctx)
	})
	return err
}

// fetchBatch implements §4.D's fetch algorithm. A fetch-scope error aborts
// the batch without advancing the cursor, so a retried batch starts from
// the same lastSeenUid.
func (l *Listener) fetchBatch(ctx context.Context) error {
	lastSeenUid, err := l.store.Load(l.cfg.Name)
	if err != nil {
		return err
	}

	uids, err := l.conn.SearchUIDsAfter(lastSeenUid)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	msgs, done := l.conn.Fetch(uids)
	maxUID := lastSeenUid

	for msg := range msgs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.store.Seen(l.cfg.Name, msg.UID) {
			continue
		}
		l.store.MarkSeen(l.cfg.Name, msg.UID)
		if msg.UID > maxUID {
			maxUID = msg.UID
		}

		body := bodyText(msg)
		offers := parser.Parse(parser.Input{
			RawText:    envelopeSubject(msg) + "\n" + body,
			HTMLBody:   body,
			Mailbox:    l.cfg.Name,
			UID:        msg.UID,
			ReceivedAt: time.Now(),
		})
		// Dispatched synchronously into the acceptor's own non-blocking
		// hand-off (internal/acceptance), so a slow acceptor never stalls
		// this loop; the UID is already marked processed above regardless
		// of acceptance outcome — fetch is at-least-once, not exactly-once.
		for _, offer := range offers {
			l.acceptor.Accept(offer)
		}
	}

	if err := <-done; err != nil {
		return err
	}

	l.mu.Lock()
	l.lastFetchAt = time.Now()
	l.mu.Unlock()

	return l.store.Save(l.cfg.Name, maxUID)
}

func (l *Listener) flush() {
	lastSeenUid, err := l.store.Load(l.cfg.Name)
	if err != nil {
		return
	}
	if err := l.store.Save(l.cfg.Name, lastSeenUid); err != nil {
		l.logger.Warn("mailbox: cursor flush on shutdown failed", "err", err)
	}
}

// runHealthCheck performs the periodic no-op with a hard timeout that never
// propagates to the fetch loop — a timeout just counts as a failure.
func (l *Listener) runHealthCheck() {
	done := make(chan error, 1)
	go func() { done <- l.conn.Noop() }()

	select {
	case err := <-done:
		l.health.RecordHealthCheck(l.cfg.Name, err == nil, err)
	case <-time.After(l.cfg.HealthCheckTimeout):
		l.health.RecordHealthCheck(l.cfg.Name, false, context.DeadlineExceeded)
	}
}

func envelopeSubject(msg imapconn.FetchResult) string {
	if msg.Envelope == nil {
		return ""
	}
	return msg.Envelope.Subject
}

func bodyText(msg imapconn.FetchResult) string {
	if msg.Body == nil {
		return ""
	}
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := msg.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf)
}
