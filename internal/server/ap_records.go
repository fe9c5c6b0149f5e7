package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"github.com/smallbiznis/freightdesk/internal/authorization"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	payablesdomain "github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/review"
	"go.uber.org/zap"
)

func (s *Server) CreateAPRecord(c *gin.Context) {
	var req payablesdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payablesSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAPRecords(c *gin.Context) {
	var req payablesdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payablesSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
}

func (s *Server) GetAPRecord(c *gin.Context) {
	resp, err := s.payablesSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateAPRecord(c *gin.Context) {
	var payload payablesdomain.UpdatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		var fieldErr *payablesdomain.PayloadFieldError
		if errors.As(err, &fieldErr) {
			AbortWithError(c, fieldErr)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.payablesSvc.Update(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ReviewAPRecord projects the stored record. format=json returns the summary,
// other formats download a rendered document.
func (s *Server) ReviewAPRecord(c *gin.Context) {
	ctx := c.Request.Context()
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", review.FormatJSON)))

	var renderer review.Renderer
	if format != review.FormatJSON {
		r, err := review.RendererFor(format)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorizeOrgActionWithContext(c, authorization.ObjectAPRecord, authorization.ActionAPRecordExport); err != nil {
			AbortWithError(c, err)
			return
		}
		renderer = r
	}

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, payablesdomain.ErrInvalidID)
		return
	}
	rec, err := s.payablesSvc.FetchAPRecord(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	settings := s.payables.Get()
	summary := review.Project(review.Input{
		Reference:    rec.Reference,
		BookingNo:    rec.BookingNo,
		ShippingLine: rec.ShippingLine,
		Trucker:      rec.Trucker,
		Fields:       rec.Fields,
		Policy:       s.payables.GrossIncomeExitPolicy(),
		Currency:     settings.Currency,
	})

	if renderer == nil {
		c.JSON(http.StatusOK, gin.H{"data": summary})
		return
	}
	s.writeExport(c, rec.ID, summary, renderer)
}

func (s *Server) writeExport(c *gin.Context, recordID snowflake.ID, summary review.Summary, renderer review.Renderer) {
	ctx := c.Request.Context()
	body, err := renderer.Render(summary)
	if err != nil {
		s.log.Error("render review export",
			zap.String("record_id", recordID.String()),
			zap.String("format", renderer.Extension()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	s.auditRecord(ctx, nil, auditdomain.ActionAPRecordExport, recordID, map[string]any{
		"reference": summary.Reference,
		"format":    renderer.Extension(),
	})
	s.obsMetrics.RecordReviewExport(ctx, renderer.Extension())

	disposition := "attachment"
	if renderer.Extension() == review.FormatHTML {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, review.Filename(summary, renderer)))
	c.Data(http.StatusOK, renderer.ContentType(), body)
}

type derivePreviewRequest struct {
	Fields     map[string]any `json:"fields"`
	DENRAmount any            `json:"denr_amount"`
}

type derivePreviewResponse struct {
	Figures     calc.Figures                        `json:"figures"`
	Subtotals   map[payablesdomain.Category]float64 `json:"subtotals"`
	LedgerTotal float64                             `json:"ledger_total"`
	FieldErrors []payablesdomain.FieldError         `json:"field_errors"`
}

// DerivePreview derives figures from an unsaved field map. Rejected inputs
// are reported and left out of the derivation. DENR only counts towards the
// ledger total.
func (s *Server) DerivePreview(c *gin.Context) {
	var req derivePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	keys := make([]string, 0, len(req.Fields))
	for key := range req.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := payablesdomain.FieldSet{Charges: payablesdomain.Charges{}}
	fieldErrors := make([]payablesdomain.FieldError, 0)
	for _, key := range keys {
		raw := req.Fields[key]
		if key == payablesdomain.FieldGrossIncome {
			amount, err := payablesdomain.ParseAmount(raw)
			if err != nil {
				fieldErrors = append(fieldErrors, payablesdomain.InputError(key, err))
				continue
			}
			fields.GrossIncome = amount
			continue
		}
		if err := fields.Set(key, raw); err != nil {
			fieldErrors = append(fieldErrors, payablesdomain.InputError(key, err))
		}
	}

	if req.DENRAmount != nil {
		amount, err := payablesdomain.ParseAmount(req.DENRAmount)
		if err != nil {
			fieldErrors = append(fieldErrors, payablesdomain.InputError("denr_amount", err))
		} else {
			fields.Charges[payablesdomain.ChargeDENR] = payablesdomain.ChargeLineItem{Amount: amount}
		}
	}

	figures := calc.DeriveFields(fields, s.payables.GrossIncomeExitPolicy())
	c.JSON(http.StatusOK, gin.H{"data": derivePreviewResponse{
		Figures:     figures,
		Subtotals:   calc.Subtotals(fields.Charges),
		LedgerTotal: calc.AggregateLedger(fields.Charges),
		FieldErrors: fieldErrors,
	}})
}
