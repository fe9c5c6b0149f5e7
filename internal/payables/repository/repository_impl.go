package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.APRecord) error {
	return db.WithContext(ctx).Create(rec).Error
}

func (r *repo) NextReferenceSeq(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(reference_seq), 0) + 1
		 FROM ap_records
		 WHERE org_id = ?`,
		orgID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.APRecord, error) {
	var rec domain.APRecord
	err := db.WithContext(ctx).
		Preload("Lines").
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.APRecord, error) {
	var records []*domain.APRecord
	stmt := db.WithContext(ctx).
		Model(&domain.APRecord{}).
		Preload("Lines").
		Where("org_id = ?", orgID)
	if filter.BookingNo != "" {
		stmt = stmt.Where("booking_no = ?", filter.BookingNo)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id < ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	err := stmt.
		Order("id desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save writes the record figures and upserts its charge lines. Callers run it
// inside a transaction.
func (r *repo) Save(ctx context.Context, db *gorm.DB, rec *domain.APRecord) error {
	result := db.WithContext(ctx).
		Model(&domain.APRecord{}).
		Where("org_id = ? AND id = ?", rec.OrgID, rec.ID).
		Updates(map[string]any{
			"bir_percentage":         rec.BIRPercentage,
			"net_revenue_percentage": rec.NetRevenuePercentage,
			"gross_income":           rec.GrossIncome,
			"total_expenses":         rec.TotalExpenses,
			"total_payables":         rec.TotalPayables,
			"updated_at":             rec.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	if len(rec.Lines) == 0 {
		return nil
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "charge"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "check_date", "voucher", "payee", "updated_at"}),
		}).
		Create(&rec.Lines).Error
}
