package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAPRecord = "ap_record"
	ObjectAPWizard = "ap_wizard"
	ObjectAuditLog = "audit_log"
)

const (
	ActionAPRecordView    = "ap_record.view"
	ActionAPRecordCreate  = "ap_record.create"
	ActionAPRecordUpdate  = "ap_record.update"
	ActionAPRecordExport  = "ap_record.export"
	ActionAPRecordPreview = "ap_record.preview"

	ActionAPWizardOpen   = "ap_wizard.open"
	ActionAPWizardEdit   = "ap_wizard.edit"
	ActionAPWizardSubmit = "ap_wizard.submit"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, orgID string, object string, action string) error {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		if errors.Is(err, ErrUnknownRole) {
			return ErrForbidden
		}
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, orgID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(actor Actor) (string, string, string, *string, error) {
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == RoleSystem {
		return RoleSystem, "role:system", string(auditdomain.ActorTypeSystem), nil, nil
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(actor.ID))
	if err != nil || userID == 0 {
		return "", "", "", nil, ErrInvalidActor
	}
	userIDStr := userID.String()
	if !knownRole(role) {
		return actor.Subject(), "", string(auditdomain.ActorTypeUser), &userIDStr, ErrUnknownRole
	}
	return "user:" + userIDStr, "role:" + role, string(auditdomain.ActorTypeUser), &userIDStr, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	err = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, auditdomain.ActionAuthorizationDenied, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
	if err != nil {
		s.log.Warn("failed to write authorization audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	err = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, auditdomain.ActionAuthorizationGranted, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
	if err != nil {
		s.log.Warn("failed to write authorization audit log", zap.String("action", action), zap.Error(err))
	}
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionAPRecordUpdate, ActionAPWizardSubmit:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Operations staff read records and preview figures
		{"role:operations", ObjectAPRecord, ActionAPRecordView},
		{"role:operations", ObjectAPRecord, ActionAPRecordPreview},

		// Accounting owns the AP workflow
		{"role:accounting", ObjectAPRecord, ActionAPRecordView},
		{"role:accounting", ObjectAPRecord, ActionAPRecordPreview},
		{"role:accounting", ObjectAPRecord, ActionAPRecordCreate},
		{"role:accounting", ObjectAPRecord, ActionAPRecordUpdate},
		{"role:accounting", ObjectAPRecord, ActionAPRecordExport},
		{"role:accounting", ObjectAPWizard, ActionAPWizardOpen},
		{"role:accounting", ObjectAPWizard, ActionAPWizardEdit},
		{"role:accounting", ObjectAPWizard, ActionAPWizardSubmit},

		// Admin permissions
		{"role:admin", ObjectAPRecord, ActionAPRecordView},
		{"role:admin", ObjectAPRecord, ActionAPRecordPreview},
		{"role:admin", ObjectAPRecord, ActionAPRecordCreate},
		{"role:admin", ObjectAPRecord, ActionAPRecordUpdate},
		{"role:admin", ObjectAPRecord, ActionAPRecordExport},
		{"role:admin", ObjectAPWizard, ActionAPWizardOpen},
		{"role:admin", ObjectAPWizard, ActionAPWizardEdit},
		{"role:admin", ObjectAPWizard, ActionAPWizardSubmit},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions (for integrations syncing bookings)
		{"role:system", ObjectAPRecord, ActionAPRecordView},
		{"role:system", ObjectAPRecord, ActionAPRecordCreate},
		{"role:system", ObjectAPRecord, ActionAPRecordUpdate},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
