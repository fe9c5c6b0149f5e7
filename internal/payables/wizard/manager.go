package wizard

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/freightdesk/internal/clock"
	"github.com/smallbiznis/freightdesk/internal/observability/metrics"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SubmissionTimeout bounds the store call of a submission started through
// the manager.
const SubmissionTimeout = 30 * time.Second

// DefaultIdleTTL is how long an untouched session is kept before the next
// Open sweeps it.
const DefaultIdleTTL = 2 * time.Hour

// PolicySource yields the current gross income exit policy. It is read on
// every session open so configuration reloads apply to new sessions.
type PolicySource interface {
	GrossIncomeExitPolicy() calc.ExitPolicy
}

type ManagerParams struct {
	fx.In

	Store   domain.Store
	Log     *zap.Logger
	Clock   clock.Clock
	Policy  PolicySource           `optional:"true"`
	Metrics *metrics.WizardMetrics `optional:"true"`
	IdleTTL time.Duration          `name:"wizard_idle_ttl" optional:"true"`
}

// Session is an open wizard addressed by a ULID.
type Session struct {
	ID       string
	OrgID    snowflake.ID
	OpenedAt time.Time
	Wizard   *Wizard

	lastSeen time.Time
}

// Manager keeps the open wizard sessions of this process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store   domain.Store
	root    *zap.Logger
	log     *zap.Logger
	clock   clock.Clock
	policy  PolicySource
	metrics *metrics.WizardMetrics
	idleTTL time.Duration

	entropyMu sync.Mutex
	entropy   io.Reader
}

func NewManager(p ManagerParams) *Manager {
	idleTTL := p.IdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    p.Store,
		root:     p.Log,
		log:      p.Log.Named("payables.wizard.manager"),
		clock:    p.Clock,
		policy:   p.Policy,
		metrics:  p.Metrics,
		idleTTL:  idleTTL,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Open fetches the record and registers a new session on step 1. Sessions
// idle for longer than the TTL are discarded first.
func (m *Manager) Open(ctx context.Context, orgID, recordID snowflake.ID) (*Session, error) {
	m.sweep(m.clock.Now())

	policy := calc.ExitDiscard
	if m.policy != nil {
		policy = m.policy.GrossIncomeExitPolicy()
	}

	w, err := Open(ctx, m.store, recordID, Config{
		Policy:  policy,
		Logger:  m.root,
		Metrics: m.metrics,
		Clock:   m.clock,
	})
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	session := &Session{
		ID:       m.newID(now),
		OrgID:    orgID,
		OpenedAt: now,
		Wizard:   w,
		lastSeen: now,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.metrics.IncSession(metrics.SessionEventOpened)
	m.log.Info("wizard session opened",
		zap.String("session_id", session.ID),
		zap.String("record_id", recordID.String()),
		zap.String("policy", string(policy)),
	)
	return session, nil
}

func (m *Manager) newID(now time.Time) string {
	m.entropyMu.Lock()
	defer m.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), m.entropy).String()
}

// Get returns the session if it belongs to the organization and marks it
// as used.
func (m *Manager) Get(orgID snowflake.ID, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.OrgID != orgID {
		return nil, ErrSessionNotFound
	}
	session.lastSeen = m.clock.Now()
	return session, nil
}

// sweep discards sessions untouched since now-idleTTL. A session with a
// submission in flight is kept until the store answers.
func (m *Manager) sweep(now time.Time) {
	cutoff := now.Add(-m.idleTTL)

	var expired []*Session
	m.mu.Lock()
	for id, session := range m.sessions {
		if session.lastSeen.After(cutoff) || session.Wizard.Submitting() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, session)
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.Wizard.Close()
		m.metrics.IncSession(metrics.SessionEventExpired)
		m.log.Info("wizard session expired",
			zap.String("session_id", session.ID),
			zap.String("record_id", session.Wizard.RecordID().String()),
			zap.Time("last_seen", session.lastSeen),
		)
	}
}

// Cancel discards the session's edits and forgets it.
func (m *Manager) Cancel(orgID snowflake.ID, id string) error {
	session, err := m.Get(orgID, id)
	if err != nil {
		return err
	}
	session.Wizard.Close()

	if m.remove(session.ID) {
		m.metrics.IncSession(metrics.SessionEventCancelled)
		m.log.Info("wizard session cancelled", zap.String("session_id", session.ID))
	}
	return nil
}

// Submit submits the session and forgets it once the store accepted the
// update. Failed submissions keep the session open for correction.
func (m *Manager) Submit(ctx context.Context, orgID snowflake.ID, id string) (domain.UpdateResult, error) {
	session, err := m.Get(orgID, id)
	if err != nil {
		return domain.UpdateResult{}, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, SubmissionTimeout)
		defer cancel()
	}

	result, err := session.Wizard.Submit(ctx)
	if err != nil {
		return result, err
	}
	if m.remove(session.ID) {
		m.metrics.IncSession(metrics.SessionEventSubmitted)
	}
	return result, nil
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
