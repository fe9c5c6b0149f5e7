package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"github.com/smallbiznis/freightdesk/internal/clock"
	"github.com/smallbiznis/freightdesk/internal/config"
	"github.com/smallbiznis/freightdesk/internal/lock"
	"github.com/smallbiznis/freightdesk/internal/observability/metrics"
	"github.com/smallbiznis/freightdesk/internal/orgcontext"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/format"
	pkgdb "github.com/smallbiznis/freightdesk/pkg/db"
	"github.com/smallbiznis/freightdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// updateLockTTL outlives the slowest update transaction; an expired lease
	// only reopens the record to a concurrent submission.
	updateLockTTL = 30 * time.Second

	maxReferenceAttempts = 3
	maxBookingNoLength   = 64
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Locker   lock.Locker
	Payables *config.PayablesConfigHolder
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	locker   lock.Locker
	payables *config.PayablesConfigHolder
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payables.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		locker:   p.Locker,
		payables: p.Payables,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	bookingNo := strings.TrimSpace(req.BookingNo)
	if bookingNo == "" || len(bookingNo) > maxBookingNoLength {
		return nil, domain.ErrInvalidBookingNo
	}

	settings := s.payables.Get()
	now := s.clock.Now()
	rec := &domain.APRecord{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		BookingNo:     bookingNo,
		ShippingLine:  domain.NullableString(req.ShippingLine),
		Trucker:       domain.NullableString(req.Trucker),
		BIRPercentage: settings.DefaultBIRPercentage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	rec.Lines = make([]domain.ChargeLine, 0, len(domain.WizardCharges))
	for _, name := range domain.WizardCharges {
		rec.Lines = append(rec.Lines, domain.ChargeLine{
			RecordID:  rec.ID,
			Charge:    name,
			Payee:     rec.DerivedPayee(name),
			UpdatedAt: now,
		})
	}

	var err error
	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := s.repo.NextReferenceSeq(ctx, tx, orgID)
			if err != nil {
				return err
			}
			reference, err := format.Reference(settings.ReferenceTemplate, now, seq)
			if err != nil {
				return err
			}
			rec.ReferenceSeq = seq
			rec.Reference = reference
			return s.repo.Insert(ctx, tx, rec)
		})
		if err == nil || !pkgdb.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Debug("reference sequence taken, retrying",
			zap.String("org_id", orgID.String()),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAPRecordCreated(ctx, orgID.String())
	s.audit(ctx, orgID, auditdomain.ActionAPRecordCreate, rec.ID, map[string]any{
		"reference":  rec.Reference,
		"booking_no": rec.BookingNo,
	})
	s.log.Info("ap record created",
		zap.String("record_id", rec.ID.String()),
		zap.String("reference", rec.Reference),
	)

	resp := toResponse(rec)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	limit := req.Limit()
	filter := domain.ListFilter{
		BookingNo: strings.TrimSpace(req.BookingNo),
		Limit:     limit + 1,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil || afterID == 0 {
			return nil, domain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(rec *domain.APRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        rec.ID.String(),
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	records := make([]domain.Response, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, toResponse(item))
	}

	resp := &domain.ListResponse{Records: records}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	recordID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rec, err := s.find(ctx, s.db, recordID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(rec)
	return &resp, nil
}

// FetchAPRecord returns the wizard view of a record. Amounts that were never
// filled in stay Empty.
func (s *Service) FetchAPRecord(ctx context.Context, id snowflake.ID) (*domain.Record, error) {
	rec, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return rec.ToRecord(), nil
}

func (s *Service) Update(ctx context.Context, id string, payload domain.UpdatePayload) (domain.UpdateResult, error) {
	recordID, err := parseID(id)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return s.UpdateAPRecord(ctx, recordID, payload)
}

// UpdateAPRecord validates the full payload, re-derives payees and totals and
// persists the record. Concurrent updates of one record are rejected with
// ErrUpdateInFlight.
func (s *Service) UpdateAPRecord(ctx context.Context, id snowflake.ID, payload domain.UpdatePayload) (domain.UpdateResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.UpdateResult{}, domain.ErrInvalidOrganization
	}
	if id == 0 {
		return domain.UpdateResult{}, domain.ErrInvalidID
	}

	lockKey := "ap_record:" + id.String()
	token, acquired, err := s.locker.TryLock(ctx, lockKey, updateLockTTL)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	if !acquired {
		s.metrics.RecordAPRecordUpdate(ctx, orgID.String(), "in_flight")
		return domain.UpdateResult{}, domain.ErrUpdateInFlight
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("failed to release record lock", zap.String("record_id", id.String()), zap.Error(err))
		}
	}()

	policy := s.payables.GrossIncomeExitPolicy()
	var saved *domain.APRecord
	var figures calc.Figures
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}

		fields := payload.FieldSet()
		for _, name := range domain.WizardCharges {
			if !name.PayeeReadOnly() {
				continue
			}
			item := fields.Charges[name]
			item.Payee = rec.DerivedPayee(name)
			fields.Charges[name] = item
		}
		if errs := fields.Validate(domain.AllFieldKeys()...); len(errs) > 0 {
			return &domain.RecordValidationError{Errors: errs}
		}

		figures = calc.DeriveFields(fields, policy)
		applyFields(rec, fields, figures, s.clock.Now())
		if err := s.repo.Save(ctx, tx, rec); err != nil {
			return err
		}
		saved = rec
		return nil
	})
	if err != nil {
		var verr *domain.RecordValidationError
		outcome := "failed"
		if errors.As(err, &verr) {
			outcome = "invalid"
			s.log.Info("ap record update rejected",
				zap.String("record_id", id.String()),
				zap.String("fields", domain.KeyList(verr.Errors)),
			)
		} else if errors.Is(err, domain.ErrNotFound) {
			outcome = "not_found"
		}
		s.metrics.RecordAPRecordUpdate(ctx, orgID.String(), outcome)
		return domain.UpdateResult{}, err
	}

	s.metrics.RecordAPRecordUpdate(ctx, orgID.String(), "success")
	s.audit(ctx, orgID, auditdomain.ActionAPRecordUpdate, id, map[string]any{
		"reference":      saved.Reference,
		"total_expenses": saved.TotalExpenses,
		"total_payables": saved.TotalPayables,
		"gross_income":   saved.GrossIncome,
		"mode":           string(figures.Mode),
	})
	s.log.Info("ap record updated",
		zap.String("record_id", id.String()),
		zap.Float64("total_payables", saved.TotalPayables),
		zap.String("mode", string(figures.Mode)),
	)
	return domain.UpdateResult{Success: true}, nil
}

func (s *Service) find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.APRecord, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	rec, err := s.repo.FindByID(ctx, db, orgID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, recordID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := recordID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, auditdomain.TargetTypeAPRecord, &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

// applyFields copies the validated field set and its derived figures onto the
// persisted record.
func applyFields(rec *domain.APRecord, fields domain.FieldSet, figures calc.Figures, now time.Time) {
	rec.BIRPercentage = fields.BIRPercentage.FlushPercent()
	rec.NetRevenuePercentage = fields.NetRevenuePercentage.FlushPercent()
	rec.GrossIncome = domain.RoundCurrency(figures.GrossIncome)
	rec.TotalExpenses = domain.RoundCurrency(figures.TotalExpenses)
	rec.TotalPayables = domain.RoundCurrency(figures.TotalPayables)
	rec.UpdatedAt = now

	rec.Lines = make([]domain.ChargeLine, 0, len(domain.WizardCharges))
	for _, name := range domain.WizardCharges {
		item := fields.Line(name)
		amount := domain.RoundCurrency(item.Amount.Flush())
		rec.Lines = append(rec.Lines, domain.ChargeLine{
			RecordID:  rec.ID,
			Charge:    name,
			Amount:    &amount,
			CheckDate: domain.NullableString(item.CheckDate),
			Voucher:   domain.NullableString(item.Voucher),
			Payee:     domain.NullableString(item.Payee),
			UpdatedAt: now,
		})
	}
}

func toResponse(rec *domain.APRecord) domain.Response {
	view := rec.ToRecord()
	return domain.Response{
		ID:             rec.ID.String(),
		OrganizationID: rec.OrgID.String(),
		Reference:      rec.Reference,
		BookingNo:      rec.BookingNo,
		ShippingLine:   rec.ShippingLine,
		Trucker:        rec.Trucker,
		Fields:         view.Fields.Flatten(),
		TotalExpenses:  rec.TotalExpenses,
		TotalPayables:  rec.TotalPayables,
		GrossIncome:    rec.GrossIncome,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
