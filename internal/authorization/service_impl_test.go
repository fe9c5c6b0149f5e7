package authorization

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordedAudit struct {
	action string
	meta   map[string]any
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (f *fakeAudit) AuditLog(_ context.Context, _ *snowflake.ID, _ string, _ *string, action string, _ string, _ *string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedAudit{action: action, meta: metadata})
	return nil
}

func (f *fakeAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.action)
	}
	return out
}

func setupAuthz(t *testing.T) (Service, *fakeAudit) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	audit := &fakeAudit{}
	svc := NewService(Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		AuditSvc: audit,
	})
	return svc, audit
}

func TestAuthorizeRoles(t *testing.T) {
	svc, _ := setupAuthz(t)
	ctx := context.Background()
	orgID := "1"

	cases := []struct {
		name    string
		actor   Actor
		object  string
		action  string
		allowed bool
	}{
		{"operations view", Actor{ID: "10", Role: RoleOperations}, ObjectAPRecord, ActionAPRecordView, true},
		{"operations preview", Actor{ID: "10", Role: RoleOperations}, ObjectAPRecord, ActionAPRecordPreview, true},
		{"operations update", Actor{ID: "10", Role: RoleOperations}, ObjectAPRecord, ActionAPRecordUpdate, false},
		{"operations wizard", Actor{ID: "10", Role: RoleOperations}, ObjectAPWizard, ActionAPWizardOpen, false},
		{"accounting submit", Actor{ID: "11", Role: RoleAccounting}, ObjectAPWizard, ActionAPWizardSubmit, true},
		{"accounting export", Actor{ID: "11", Role: RoleAccounting}, ObjectAPRecord, ActionAPRecordExport, true},
		{"accounting audit log", Actor{ID: "11", Role: RoleAccounting}, ObjectAuditLog, ActionAuditLogView, false},
		{"admin audit log", Actor{ID: "12", Role: RoleAdmin}, ObjectAuditLog, ActionAuditLogView, true},
		{"system create", Actor{Role: RoleSystem}, ObjectAPRecord, ActionAPRecordCreate, true},
		{"system wizard", Actor{Role: RoleSystem}, ObjectAPWizard, ActionAPWizardEdit, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, orgID, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeRoleChangeReplacesGrouping(t *testing.T) {
	svc, _ := setupAuthz(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, Actor{ID: "20", Role: RoleAccounting}, "1", ObjectAPRecord, ActionAPRecordUpdate))

	err := svc.Authorize(ctx, Actor{ID: "20", Role: RoleOperations}, "1", ObjectAPRecord, ActionAPRecordUpdate)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeRolesAreScopedPerOrganization(t *testing.T) {
	svc, _ := setupAuthz(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, Actor{ID: "30", Role: RoleAdmin}, "1", ObjectAuditLog, ActionAuditLogView))
	err := svc.Authorize(ctx, Actor{ID: "30", Role: RoleOperations}, "2", ObjectAuditLog, ActionAuditLogView)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, Actor{ID: "30", Role: RoleAdmin}, "1", ObjectAuditLog, ActionAuditLogView))
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc, _ := setupAuthz(t)
	ctx := context.Background()
	actor := Actor{ID: "10", Role: RoleAdmin}

	assert.ErrorIs(t, svc.Authorize(ctx, actor, " ", ObjectAPRecord, ActionAPRecordView), ErrInvalidOrganization)
	assert.ErrorIs(t, svc.Authorize(ctx, actor, "1", "", ActionAPRecordView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, actor, "1", ObjectAPRecord, ""), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: "abc", Role: RoleAdmin}, "1", ObjectAPRecord, ActionAPRecordView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: "10", Role: "auditor"}, "1", ObjectAPRecord, ActionAPRecordView), ErrForbidden)
}

func TestAuthorizeAuditsDecisions(t *testing.T) {
	svc, audit := setupAuthz(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, Actor{ID: "10", Role: RoleAccounting}, "1", ObjectAPRecord, ActionAPRecordView))
	assert.Empty(t, audit.actions())

	require.NoError(t, svc.Authorize(ctx, Actor{ID: "10", Role: RoleAccounting}, "1", ObjectAPRecord, ActionAPRecordUpdate))
	assert.Equal(t, []string{auditdomain.ActionAuthorizationGranted}, audit.actions())

	require.Error(t, svc.Authorize(ctx, Actor{ID: "11", Role: RoleOperations}, "1", ObjectAPWizard, ActionAPWizardSubmit))
	actions := audit.actions()
	require.Len(t, actions, 2)
	assert.Equal(t, auditdomain.ActionAuthorizationDenied, actions[1])
	assert.Equal(t, "user:11", audit.entries[1].meta["subject"])
}

func TestActorSubject(t *testing.T) {
	assert.Equal(t, "system", Actor{Role: "SYSTEM"}.Subject())
	assert.Equal(t, "user:5", Actor{ID: " 5 ", Role: RoleAdmin}.Subject())
}
