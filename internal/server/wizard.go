package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"github.com/smallbiznis/freightdesk/internal/orgcontext"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	payablesdomain "github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/review"
	"github.com/smallbiznis/freightdesk/internal/payables/wizard"
	"go.uber.org/zap"
)

type wizardStepView struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

type wizardSessionView struct {
	SessionID      string                      `json:"session_id"`
	RecordID       string                      `json:"record_id"`
	Reference      string                      `json:"reference"`
	BookingNo      string                      `json:"booking_no"`
	Step           wizardStepView              `json:"step"`
	ValidatedSteps []int                       `json:"validated_steps"`
	Fields         map[string]any              `json:"fields"`
	Gross          calc.GrossIncome            `json:"gross_income"`
	Figures        calc.Figures                `json:"figures"`
	FieldErrors    []payablesdomain.FieldError `json:"field_errors"`
	Submitting     bool                        `json:"submitting"`
	Policy         calc.ExitPolicy             `json:"gross_income_on_auto_exit"`
	OpenedAt       time.Time                   `json:"opened_at"`
}

type editWizardFieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

func newSessionView(session *wizard.Session) wizardSessionView {
	state := session.Wizard.State()

	validated := make([]int, 0, len(state.ValidatedSteps))
	for _, step := range state.ValidatedSteps {
		validated = append(validated, int(step))
	}
	fieldErrors := state.FieldErrors
	if fieldErrors == nil {
		fieldErrors = []payablesdomain.FieldError{}
	}

	return wizardSessionView{
		SessionID:      session.ID,
		RecordID:       state.Record.ID.String(),
		Reference:      state.Record.Reference,
		BookingNo:      state.Record.BookingNo,
		Step:           wizardStepView{Number: int(state.Step), Title: state.Step.Title()},
		ValidatedSteps: validated,
		Fields:         state.Fields.Flatten(),
		Gross:          state.Gross,
		Figures:        state.Figures,
		FieldErrors:    fieldErrors,
		Submitting:     state.Submitting,
		Policy:         state.Policy,
		OpenedAt:       session.OpenedAt,
	}
}

func (s *Server) OpenWizard(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	recordID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || recordID == 0 {
		AbortWithError(c, payablesdomain.ErrInvalidID)
		return
	}

	session, err := s.wizards.Open(ctx, orgID, recordID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newSessionView(session)})
}

func (s *Server) GetWizard(c *gin.Context) {
	session, err := s.wizardSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newSessionView(session)})
}

// EditWizardFields applies the edits and always answers with the session
// state. Rejected inputs are reported inline through field_errors.
func (s *Server) EditWizardFields(c *gin.Context) {
	session, err := s.wizardSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req editWizardFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Fields) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := session.Wizard.SetFields(req.Fields); err != nil {
		var inputErr *wizard.InputError
		if !errors.As(err, &inputErr) {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": newSessionView(session)})
}

func (s *Server) NextWizardStep(c *gin.Context) {
	session, err := s.wizardSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := session.Wizard.Next(); err != nil {
		var stepErr *wizard.StepError
		if errors.As(err, &stepErr) {
			AbortWithError(c, &stepBlockedError{err: stepErr, fields: stepFieldErrors(session.Wizard.FieldErrors(), stepErr.Step)})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newSessionView(session)})
}

func (s *Server) PreviousWizardStep(c *gin.Context) {
	session, err := s.wizardSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := session.Wizard.Previous(); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newSessionView(session)})
}

func (s *Server) SubmitWizard(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := s.wizardSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	recordID := session.Wizard.RecordID()

	result, err := s.wizards.Submit(ctx, session.OrgID, session.ID)
	if err != nil {
		s.log.Info("wizard submission failed",
			zap.String("session_id", session.ID),
			zap.String("record_id", recordID.String()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	s.auditRecord(ctx, &session.OrgID, auditdomain.ActionWizardSubmit, recordID, map[string]any{
		"session_id": session.ID,
	})

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ReviewWizard projects the unsaved session state with its live gross income.
func (s *Server) ReviewWizard(c *gin.Context) {
	session, err := s.wizardSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	state := session.Wizard.State()
	gross := state.Gross
	summary := review.Project(review.Input{
		Reference:    state.Record.Reference,
		BookingNo:    state.Record.BookingNo,
		ShippingLine: state.Record.ShippingLine,
		Trucker:      state.Record.Trucker,
		Fields:       state.Fields,
		Gross:        &gross,
		Policy:       state.Policy,
		Currency:     s.payables.Get().Currency,
	})

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) CancelWizard(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.wizards.Cancel(orgID, c.Param("session_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) wizardSession(c *gin.Context) (*wizard.Session, error) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.wizards.Get(orgID, c.Param("session_id"))
}

// stepFieldErrors keeps the errors blocking the step. Read-only rejections
// never block.
func stepFieldErrors(errs []payablesdomain.FieldError, step wizard.Step) []payablesdomain.FieldError {
	out := make([]payablesdomain.FieldError, 0, len(errs))
	for _, fe := range errs {
		if fe.Code != payablesdomain.CodeReadOnly && wizard.StepOf(fe.Field) == step {
			out = append(out, fe)
		}
	}
	return out
}
