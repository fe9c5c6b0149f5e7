package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

// Store is the persistence collaborator consumed by the wizard.
type Store interface {
	FetchAPRecord(ctx context.Context, id snowflake.ID) (*Record, error)
	UpdateAPRecord(ctx context.Context, id snowflake.ID, payload UpdatePayload) (UpdateResult, error)
}

type Service interface {
	Store

	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, id string, payload UpdatePayload) (UpdateResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rec *APRecord) error
	NextReferenceSeq(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*APRecord, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*APRecord, error)
	Save(ctx context.Context, db *gorm.DB, rec *APRecord) error
}

type CreateRequest struct {
	BookingNo    string  `json:"booking_no" binding:"required,max=64"`
	ShippingLine *string `json:"shipping_line" binding:"omitempty,max=128"`
	Trucker      *string `json:"trucker" binding:"omitempty,max=128"`
}

type ListRequest struct {
	pagination.Pagination
	BookingNo string `form:"booking_no"`
}

type ListFilter struct {
	BookingNo string
	AfterID   snowflake.ID
	Limit     int
}

type ListResponse struct {
	pagination.PageInfo
	Records []Response `json:"records"`
}

type Response struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Reference      string         `json:"reference"`
	BookingNo      string         `json:"booking_no"`
	ShippingLine   *string        `json:"shipping_line,omitempty"`
	Trucker        *string        `json:"trucker,omitempty"`
	Fields         map[string]any `json:"fields"`
	TotalExpenses  float64        `json:"total_expenses"`
	TotalPayables  float64        `json:"total_payables"`
	GrossIncome    float64        `json:"gross_income"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RecordValidationError carries every schema failure of a rejected update.
type RecordValidationError struct {
	Errors []FieldError
}

func (e *RecordValidationError) Error() string {
	return ErrRecordInvalid.Error()
}

func (e *RecordValidationError) Unwrap() error { return ErrRecordInvalid }
