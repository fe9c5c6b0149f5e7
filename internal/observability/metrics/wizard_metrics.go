package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/freightdesk/internal/authorization"
	payablesdomain "github.com/smallbiznis/freightdesk/internal/payables/domain"
	"gorm.io/gorm"
)

const (
	SubmissionOutcomeSuccess  = "success"
	SubmissionOutcomeRejected = "rejected"
	SubmissionOutcomeFailed   = "failed"
	SubmissionOutcomeIgnored  = "ignored"
)

const (
	SubmissionReasonDeadlineExceeded     = "deadline_exceeded"
	SubmissionReasonForbidden            = "forbidden"
	SubmissionReasonInvalidRecord        = "invalid_record"
	SubmissionReasonNotFound             = "not_found"
	SubmissionReasonInFlight             = "in_flight"
	SubmissionReasonDBLockTimeout        = "db_lock_timeout"
	SubmissionReasonSerializationFailure = "serialization_failure"
	SubmissionReasonUniqueViolation      = "unique_violation"
	SubmissionReasonDB                   = "db"
	SubmissionReasonUnknown              = "unknown"
)

const (
	SessionEventOpened    = "opened"
	SessionEventCancelled = "cancelled"
	SessionEventSubmitted = "submitted"
	SessionEventExpired   = "expired"
)

// WizardMetrics captures AP wizard health: step gating, submissions and
// open sessions.
type WizardMetrics struct {
	stepTransitions    *prometheus.CounterVec
	stepRejections     *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	submissionDuration prometheus.Observer
	sessions           *prometheus.CounterVec
	openSessions       prometheus.Gauge
	derivations        *prometheus.CounterVec

	transitionCounts map[int]map[int]prometheus.Counter
}

var (
	wizardMetricsOnce sync.Once
	wizardMetrics     *WizardMetrics
)

// Wizard returns the singleton wizard metrics registry.
func Wizard() *WizardMetrics {
	return WizardWithConfig(Config{})
}

// WizardWithConfig returns the singleton wizard metrics registry using config labels.
func WizardWithConfig(cfg Config) *WizardMetrics {
	wizardMetricsOnce.Do(func() {
		wizardMetrics = newWizardMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return wizardMetrics
}

// ResetWizardMetricsForTest resets the wizard metrics singleton for tests.
func ResetWizardMetricsForTest() {
	wizardMetricsOnce = sync.Once{}
	wizardMetrics = nil
}

// NewWizardMetricsForTest builds wizard metrics on a private registry.
func NewWizardMetricsForTest(registerer prometheus.Registerer) *WizardMetrics {
	return newWizardMetrics(registerer, Config{ServiceName: "freightdesk", Environment: "test"})
}

func newWizardMetrics(registerer prometheus.Registerer, cfg Config) *WizardMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "freightdesk"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	stepTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "freightdesk_ap_wizard_step_transitions_total",
		Help:        "AP wizard step transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	stepRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "freightdesk_ap_wizard_step_rejections_total",
		Help:        "AP wizard next() calls blocked by step validation.",
		ConstLabels: constLabels,
	}, []string{"step"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "freightdesk_ap_wizard_submissions_total",
		Help:        "AP wizard submissions by outcome and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"outcome", "reason"})
	submissionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "freightdesk_ap_wizard_submission_duration_seconds",
		Help:        "Latency of the persistence call made on submission.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "freightdesk_ap_wizard_sessions_total",
		Help:        "AP wizard session lifecycle events.",
		ConstLabels: constLabels,
	}, []string{"event"})
	openSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "freightdesk_ap_wizard_open_sessions",
		Help:        "AP wizard sessions currently held in memory.",
		ConstLabels: constLabels,
	})
	derivations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "freightdesk_ap_derivations_total",
		Help:        "Derivation runs by resulting gross income mode.",
		ConstLabels: constLabels,
	}, []string{"mode"})

	registerer.MustRegister(
		stepTransitions,
		stepRejections,
		submissions,
		submissionDuration,
		sessions,
		openSessions,
		derivations,
	)

	transitionCounts := map[int]map[int]prometheus.Counter{}
	for from := 1; from <= 5; from++ {
		counters := map[int]prometheus.Counter{}
		if from < 5 {
			counters[from+1] = stepTransitions.WithLabelValues(strconv.Itoa(from), strconv.Itoa(from+1))
		}
		if from > 1 {
			counters[from-1] = stepTransitions.WithLabelValues(strconv.Itoa(from), strconv.Itoa(from-1))
		}
		transitionCounts[from] = counters
	}

	return &WizardMetrics{
		stepTransitions:    stepTransitions,
		stepRejections:     stepRejections,
		submissions:        submissions,
		submissionDuration: submissionDuration,
		sessions:           sessions,
		openSessions:       openSessions,
		derivations:        derivations,
		transitionCounts:   transitionCounts,
	}
}

// IncStepTransition counts a move between two steps.
func (m *WizardMetrics) IncStepTransition(from, to int) {
	if m == nil {
		return
	}
	if toCounters, ok := m.transitionCounts[from]; ok {
		if counter, ok := toCounters[to]; ok {
			counter.Inc()
			return
		}
	}
	m.stepTransitions.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to)).Inc()
}

// IncStepRejected counts a blocked next() on a step.
func (m *WizardMetrics) IncStepRejected(step int) {
	if m == nil || m.stepRejections == nil {
		return
	}
	m.stepRejections.WithLabelValues(strconv.Itoa(step)).Inc()
}

// ObserveSubmission records the outcome and latency of a submission.
func (m *WizardMetrics) ObserveSubmission(outcome string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = ClassifySubmissionReason(err)
	}
	if m.submissions != nil {
		m.submissions.WithLabelValues(outcome, reason).Inc()
	}
	if m.submissionDuration != nil && duration > 0 {
		m.submissionDuration.Observe(duration.Seconds())
	}
}

// IncSession counts a session lifecycle event and tracks the open gauge.
func (m *WizardMetrics) IncSession(event string) {
	if m == nil {
		return
	}
	if m.sessions != nil {
		m.sessions.WithLabelValues(event).Inc()
	}
	if m.openSessions == nil {
		return
	}
	switch event {
	case SessionEventOpened:
		m.openSessions.Inc()
	case SessionEventCancelled, SessionEventSubmitted, SessionEventExpired:
		m.openSessions.Dec()
	}
}

// IncDerivation counts a derivation run by mode.
func (m *WizardMetrics) IncDerivation(mode string) {
	if m == nil || m.derivations == nil {
		return
	}
	m.derivations.WithLabelValues(strings.ToLower(mode)).Inc()
}

// ClassifySubmissionReason maps submission errors to low-cardinality reasons.
func ClassifySubmissionReason(err error) string {
	if err == nil {
		return SubmissionReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SubmissionReasonDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return SubmissionReasonForbidden
	}
	if errors.Is(err, payablesdomain.ErrRecordInvalid) {
		return SubmissionReasonInvalidRecord
	}
	if errors.Is(err, payablesdomain.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return SubmissionReasonNotFound
	}
	if errors.Is(err, payablesdomain.ErrUpdateInFlight) {
		return SubmissionReasonInFlight
	}
	if hasPGCode(err, "55P03") {
		return SubmissionReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return SubmissionReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return SubmissionReasonUniqueViolation
	}
	if isDBError(err) {
		return SubmissionReasonDB
	}
	return SubmissionReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidOrganization) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
