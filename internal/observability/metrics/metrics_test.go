package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/freightdesk/internal/authorization"
	payablesdomain "github.com/smallbiznis/freightdesk/internal/payables/domain"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("booking_no", "BK-1"),
		attribute.String("outcome", "success"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestClassifySubmissionReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SubmissionReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SubmissionReasonForbidden},
		{name: "invalid_record", err: fmt.Errorf("update: %w", payablesdomain.ErrRecordInvalid), want: SubmissionReasonInvalidRecord},
		{name: "not_found", err: payablesdomain.ErrNotFound, want: SubmissionReasonNotFound},
		{name: "in_flight", err: payablesdomain.ErrUpdateInFlight, want: SubmissionReasonInFlight},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SubmissionReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SubmissionReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SubmissionReasonUniqueViolation},
		{name: "db", err: &pgconn.PgError{Code: "08006"}, want: SubmissionReasonDB},
		{name: "unknown", err: errors.New("boom"), want: SubmissionReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySubmissionReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWizardMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWizardMetrics(registry, Config{ServiceName: "freightdesk", Environment: "test"})

	m.IncStepTransition(1, 2)
	m.IncStepTransition(1, 2)
	m.IncStepRejected(1)
	m.IncSession(SessionEventOpened)
	m.IncSession(SessionEventOpened)
	m.IncSession(SessionEventCancelled)
	m.ObserveSubmission(SubmissionOutcomeFailed, payablesdomain.ErrUpdateInFlight, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.stepTransitions.WithLabelValues("1", "2")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.stepRejections.WithLabelValues("1")); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.openSessions); got != 1 {
		t.Fatalf("expected 1 open session, got %v", got)
	}
	if got := testutil.ToFloat64(m.submissions.WithLabelValues(SubmissionOutcomeFailed, SubmissionReasonInFlight)); got != 1 {
		t.Fatalf("expected 1 failed submission, got %v", got)
	}
}

func TestWizardMetricsNilSafe(t *testing.T) {
	var m *WizardMetrics
	m.IncStepTransition(1, 2)
	m.IncStepRejected(3)
	m.IncSession(SessionEventOpened)
	m.IncDerivation("AUTO")
	m.ObserveSubmission(SubmissionOutcomeSuccess, nil, time.Second)
}
