// Package session owns the gateway contexts used to query each target host.
//
// A context is created lazily on first use, shared by every caller querying
// the same host and replaced when the gateway reports it unknown or expired.
// Creation per host is serialized; concurrent callers join the in-flight
// creation instead of issuing their own.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/plexsphere/pcpmon/internal/api"
)

// Session is a gateway context bound to one target host.
type Session struct {
	TargetHost string
	// ID is the opaque context token issued by the gateway.
	ID        string
	CreatedAt time.Time
}

// State is the lifecycle state of a host entry.
type State int

const (
	// StateIdle means no session exists for the host.
	StateIdle State = iota
	// StateActive means a session is cached and handed out.
	StateActive
	// StateRenewing means a creation is in flight; callers join it.
	StateRenewing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRenewing:
		return "renewing"
	default:
		return "idle"
	}
}

// Observer is notified whenever a session is created. reason is "initial"
// for the first creation of a host and "expired" for a renewal.
type Observer interface {
	SessionCreated(ctx context.Context, host, reason string, err error)
}

type hostEntry struct {
	state   State
	session Session
}

// Manager hands out sessions per target host.
type Manager struct {
	transport api.Transport
	cfg       Config
	logger    *slog.Logger
	clock     api.Clock

	mu       sync.Mutex
	hosts    map[string]*hostEntry
	observer Observer

	group singleflight.Group
}

// NewManager creates a Manager that creates contexts through transport.
func NewManager(transport api.Transport, cfg Config, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "session"),
		clock:     api.RealClock{},
		hosts:     make(map[string]*hostEntry),
	}
}

// SetObserver installs an Observer. A nil observer disables observation.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// Acquire returns the cached session for host, creating one when none exists.
func (m *Manager) Acquire(ctx context.Context, host string) (Session, error) {
	if host == "" {
		return Session{}, errors.New("session: acquire: target host is required")
	}
	m.mu.Lock()
	if e, ok := m.hosts[host]; ok && e.state == StateActive {
		s := e.session
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()
	return m.renew(ctx, host, "")
}

// Do runs fn with the session for host. When fn fails because the gateway no
// longer knows the session, the session is replaced and fn is retried exactly
// once. A second expiry, or any connectivity failure, is returned as an
// *api.ConnectivityError.
func (m *Manager) Do(ctx context.Context, host string, fn func(ctx context.Context, s Session) error) error {
	s, err := m.Acquire(ctx, host)
	if err != nil {
		return err
	}

	err = fn(ctx, s)
	if !api.IsSessionExpired(err) {
		return connectivity(ctx, host, err)
	}

	m.logger.Warn("session expired, renewing", "host", host, "session", s.ID)
	renewed, err := m.renew(ctx, host, s.ID)
	if err != nil {
		return err
	}

	err = fn(ctx, renewed)
	if api.IsSessionExpired(err) {
		m.discard(host, renewed.ID)
		m.logger.Error("renewed session rejected", "host", host, "session", renewed.ID)
		return &api.ConnectivityError{Op: "query " + host + " after session renewal", Err: err}
	}
	return connectivity(ctx, host, err)
}

// State returns the current state of host.
func (m *Manager) State(host string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.hosts[host]; ok {
		return e.state
	}
	return StateIdle
}

// Sessions returns a copy of every active session.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.hosts))
	for _, e := range m.hosts {
		if e.state == StateActive {
			out = append(out, e.session)
		}
	}
	return out
}

// Close forgets every session. The gateway expires the contexts on its own
// after the poll timeout.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts = make(map[string]*hostEntry)
}

// renew returns a fresh session for host. staleID is the session the caller
// saw rejected; if another caller already replaced it the current session is
// returned without a new creation.
func (m *Manager) renew(ctx context.Context, host, staleID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	e := m.entry(host)
	if e.state == StateActive && e.session.ID != staleID {
		s := e.session
		m.mu.Unlock()
		return s, nil
	}
	reason := "initial"
	if staleID != "" {
		reason = "expired"
	}
	if e.state == StateActive {
		e.session = Session{}
	}
	e.state = StateRenewing
	m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		ch := m.group.DoChan(host, func() (any, error) {
			// A flight that finished between our unlock and DoChan may already
			// have replaced the stale session.
			m.mu.Lock()
			if e := m.entry(host); e.state == StateActive && e.session.ID != staleID {
				s := e.session
				m.mu.Unlock()
				return s, nil
			}
			m.mu.Unlock()
			return m.create(ctx, host, reason)
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return Session{}, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return Session{}, res.Err
		}
		s := res.Val.(Session)
		// The joined flight may have committed the session we saw rejected
		// before our renewal began. Create again, once.
		if staleID != "" && s.ID == staleID && attempt == 0 {
			m.logger.Debug("joined creation returned the rejected session, creating again", "host", host)
			continue
		}
		return s, nil
	}
}

// create issues the context request and commits the outcome to the host
// entry. It runs under a context detached from the caller's cancellation.
func (m *Manager) create(parent context.Context, host, reason string) (Session, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.cfg.CreateTimeout)
	defer cancel()

	resp, err := api.CreateContext(ctx, m.transport, host, m.cfg.PollTimeout)

	m.mu.Lock()
	e := m.entry(host)
	observer := m.observer
	if err != nil {
		e.state = StateIdle
		e.session = Session{}
		m.mu.Unlock()

		m.logger.Warn("session creation failed", "host", host, "reason", reason, "error", err)
		if observer != nil {
			observer.SessionCreated(ctx, host, reason, err)
		}
		if api.Classify(err) == api.FailureConnectivity {
			return Session{}, &api.ConnectivityError{Op: "create session for " + host, Err: err}
		}
		return Session{}, fmt.Errorf("session: create %s: %w", host, err)
	}

	s := Session{TargetHost: host, ID: resp.ID(), CreatedAt: m.clock.Now()}
	e.state = StateActive
	e.session = s
	m.mu.Unlock()

	m.logger.Info("session created", "host", host, "session", s.ID, "reason", reason)
	if observer != nil {
		observer.SessionCreated(ctx, host, reason, nil)
	}
	return s, nil
}

// discard drops the session with id if it is still the active one.
func (m *Manager) discard(host, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.hosts[host]; ok && e.state == StateActive && e.session.ID == id {
		e.state = StateIdle
		e.session = Session{}
	}
}

// entry returns the host entry, creating it. Caller must hold m.mu.
func (m *Manager) entry(host string) *hostEntry {
	e, ok := m.hosts[host]
	if !ok {
		e = &hostEntry{}
		m.hosts[host] = e
	}
	return e
}

// connectivity wraps transport-level failures in *api.ConnectivityError and
// returns every other error unchanged. Once the caller's own context is done
// the error is the caller's deadline or cancellation, not the gateway's.
func connectivity(ctx context.Context, host string, err error) error {
	if err == nil || ctx.Err() != nil || errors.Is(err, api.ErrConnectivity) {
		return err
	}
	if api.Classify(err) == api.FailureConnectivity {
		return &api.ConnectivityError{Op: "query " + host, Err: err}
	}
	return err
}
