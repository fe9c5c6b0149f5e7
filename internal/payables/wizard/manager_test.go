package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/freightdesk/internal/clock"
	"github.com/smallbiznis/freightdesk/internal/observability/metrics"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticPolicy calc.ExitPolicy

func (p staticPolicy) GrossIncomeExitPolicy() calc.ExitPolicy { return calc.ExitPolicy(p) }

func newTestManager(store domain.Store, policy PolicySource) *Manager {
	return NewManager(ManagerParams{
		Store:   store,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)),
		Policy:  policy,
		Metrics: metrics.NewWizardMetricsForTest(prometheus.NewRegistry()),
	})
}

func TestManagerOpenAndGet(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)
	m := newTestManager(store, nil)
	orgID := snowflake.ID(1)

	session, err := m.Open(context.Background(), orgID, testRecordID)
	require.NoError(t, err)

	_, err = ulid.ParseStrict(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, calc.ExitDiscard, session.Wizard.State().Policy)

	got, err := m.Get(orgID, session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)

	_, err = m.Get(snowflake.ID(2), session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(orgID, "not-a-ulid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerOpenUsesCurrentPolicy(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)
	m := newTestManager(store, staticPolicy(calc.ExitRestore))

	session, err := m.Open(context.Background(), snowflake.ID(1), testRecordID)
	require.NoError(t, err)
	assert.Equal(t, calc.ExitRestore, session.Wizard.State().Policy)
}

func TestManagerSessionIDsAreUnique(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)
	m := newTestManager(store, nil)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		session, err := m.Open(context.Background(), snowflake.ID(1), testRecordID)
		require.NoError(t, err)
		assert.False(t, seen[session.ID])
		seen[session.ID] = true
	}
	assert.Equal(t, 20, m.Len())
}

func TestManagerCancel(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)
	m := newTestManager(store, nil)
	orgID := snowflake.ID(1)

	session, err := m.Open(context.Background(), orgID, testRecordID)
	require.NoError(t, err)
	require.NoError(t, session.Wizard.SetField("freight_amount", "10"))

	require.NoError(t, m.Cancel(orgID, session.ID))
	assert.Equal(t, 0, m.Len())
	assert.True(t, session.Wizard.State().Fields.Line(domain.ChargeFreight).Amount.IsEmpty())
	assert.ErrorIs(t, m.Cancel(orgID, session.ID), ErrSessionNotFound)
}

func TestManagerSubmit(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)
	m := newTestManager(store, nil)
	orgID := snowflake.ID(1)

	session, err := m.Open(context.Background(), orgID, testRecordID)
	require.NoError(t, err)
	fillFreight(t, session.Wizard)
	advanceTo(t, session.Wizard, StepReview)

	store.On("UpdateAPRecord", mock.Anything, testRecordID, mock.Anything).
		Return(domain.UpdateResult{}, errors.New("timeout")).Once()
	_, err = m.Submit(context.Background(), orgID, session.ID)
	var submitErr *SubmissionError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, 1, m.Len())

	store.On("UpdateAPRecord", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), testRecordID, mock.Anything).Return(domain.UpdateResult{Success: true}, nil).Once()
	result, err := m.Submit(context.Background(), orgID, session.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, m.Len())
}

func TestManagerOpenSweepsIdleSessions(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)
	fake := clock.NewFakeClock(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	m := NewManager(ManagerParams{
		Store:   store,
		Log:     zap.NewNop(),
		Clock:   fake,
		Metrics: metrics.NewWizardMetricsForTest(prometheus.NewRegistry()),
		IdleTTL: time.Hour,
	})
	orgID := snowflake.ID(1)

	idle, err := m.Open(context.Background(), orgID, testRecordID)
	require.NoError(t, err)
	require.NoError(t, idle.Wizard.SetField("freight_amount", "10"))
	active, err := m.Open(context.Background(), orgID, testRecordID)
	require.NoError(t, err)

	fake.Advance(45 * time.Minute)
	_, err = m.Get(orgID, active.ID)
	require.NoError(t, err)

	fake.Advance(30 * time.Minute)
	_, err = m.Open(context.Background(), orgID, testRecordID)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, err = m.Get(orgID, idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, idle.Wizard.State().Fields.Line(domain.ChargeFreight).Amount.IsEmpty())
	_, err = m.Get(orgID, active.ID)
	assert.NoError(t, err)
}

func TestManagerDefaultIdleTTL(t *testing.T) {
	m := newTestManager(new(storeMock), nil)
	assert.Equal(t, DefaultIdleTTL, m.idleTTL)
}
