package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// -- Mocks --

type storeMock struct {
	mock.Mock
}

func (m *storeMock) FetchAPRecord(ctx context.Context, id snowflake.ID) (*domain.Record, error) {
	args := m.Called(ctx, id)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.(*domain.Record), args.Error(1)
}

func (m *storeMock) UpdateAPRecord(ctx context.Context, id snowflake.ID, payload domain.UpdatePayload) (domain.UpdateResult, error) {
	args := m.Called(ctx, id, payload)
	return args.Get(0).(domain.UpdateResult), args.Error(1)
}

// blockingStore holds UpdateAPRecord until release is closed.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
	result  domain.UpdateResult
	err     error
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result:  domain.UpdateResult{Success: true},
	}
}

func (s *blockingStore) FetchAPRecord(context.Context, snowflake.ID) (*domain.Record, error) {
	return nil, domain.ErrNotFound
}

func (s *blockingStore) UpdateAPRecord(ctx context.Context, id snowflake.ID, payload domain.UpdatePayload) (domain.UpdateResult, error) {
	close(s.started)
	<-s.release
	return s.result, s.err
}

// -- Helpers --

const testRecordID = snowflake.ID(1001)

func strPtr(v string) *string { return &v }

func testRecord() *domain.Record {
	return &domain.Record{
		ID:           testRecordID,
		OrgID:        snowflake.ID(1),
		Reference:    "AP-20260110-000001",
		BookingNo:    "BK-7781",
		ShippingLine: strPtr("Oceanic Lines"),
		Trucker:      strPtr("Northbound Haulers"),
		Fields: domain.FieldSet{
			Charges: domain.Charges{
				domain.ChargeFreight:        {Payee: strPtr("Oceanic Lines")},
				domain.ChargeTruckingOrigin: {Payee: strPtr("Northbound Haulers")},
				domain.ChargeTruckingDest:   {Payee: strPtr("Northbound Haulers")},
			},
		},
	}
}

func newTestWizard(t *testing.T, store domain.Store, policy calc.ExitPolicy) *Wizard {
	t.Helper()
	w, err := New(store, testRecord(), Config{Policy: policy})
	require.NoError(t, err)
	return w
}

func fillFreight(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.SetField("freight_amount", "1000"))
	require.NoError(t, w.SetField("freight_voucher", "CV-1001"))
	require.NoError(t, w.SetField("freight_check_date", "2026-01-15"))
}

func advanceTo(t *testing.T, w *Wizard, step Step) {
	t.Helper()
	for w.Step() < step {
		require.NoError(t, w.Next())
	}
}

func fieldError(errs []domain.FieldError, key string) (domain.FieldError, bool) {
	for _, fe := range errs {
		if fe.Field == key {
			return fe, true
		}
	}
	return domain.FieldError{}, false
}

// -- Tests --

func TestOpenFetchesRecord(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(testRecord(), nil)

	w, err := Open(context.Background(), store, testRecordID, Config{})
	require.NoError(t, err)

	assert.Equal(t, StepFreight, w.Step())
	assert.Empty(t, w.ValidatedSteps())
	assert.True(t, w.State().Fields.Line(domain.ChargeFreight).Amount.IsEmpty())
	store.AssertExpectations(t)
}

func TestOpenPropagatesFetchError(t *testing.T) {
	store := new(storeMock)
	store.On("FetchAPRecord", mock.Anything, testRecordID).Return(nil, domain.ErrNotFound)

	_, err := Open(context.Background(), store, testRecordID, Config{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = Open(context.Background(), nil, testRecordID, Config{})
	assert.ErrorIs(t, err, ErrInvalidStore)
}

func TestNextBlockedWithoutFreightVoucher(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)
	require.NoError(t, w.SetField("freight_amount", "1000"))

	err := w.Next()

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.ErrorIs(t, err, ErrStepInvalid)
	assert.Equal(t, StepFreight, stepErr.Step)
	assert.Equal(t, StepFreight, w.Step())
	assert.Empty(t, w.ValidatedSteps())

	fe, ok := fieldError(w.FieldErrors(), "freight_voucher")
	require.True(t, ok)
	assert.Equal(t, "required", fe.Code)
}

func TestNextBlockedWhileRequiredInputRejected(t *testing.T) {
	cases := []struct {
		step Step
		key  string
	}{
		{StepFreight, "freight_amount"},
		{StepTrucking, "trucking_dest_amount"},
		{StepPortCharges, "wharfage_origin_amount"},
		{StepPortCharges, "labor_dest_amount"},
		{StepMiscellaneous, "facilitation_amount"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			w := newTestWizard(t, new(storeMock), calc.ExitDiscard)
			fillFreight(t, w)
			advanceTo(t, w, tc.step)

			err := w.SetField(tc.key, "-25")
			require.ErrorIs(t, err, domain.ErrNegativeAmount)

			assert.ErrorIs(t, w.Next(), ErrStepInvalid)
			assert.Equal(t, tc.step, w.Step())

			fe, ok := fieldError(w.FieldErrors(), tc.key)
			require.True(t, ok)
			assert.Equal(t, domain.CodeMin, fe.Code)

			require.NoError(t, w.SetField(tc.key, "25"))
			require.NoError(t, w.Next())
			assert.Equal(t, tc.step+1, w.Step())
		})
	}
}

func TestNextIgnoresOtherSteps(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)
	fillFreight(t, w)

	// a pending error on step 3 does not block step 1
	require.Error(t, w.SetField("crainage_amount", "abc"))

	require.NoError(t, w.Next())
	assert.Equal(t, StepTrucking, w.Step())
}

func TestNavigationBounds(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)

	require.NoError(t, w.Previous())
	assert.Equal(t, StepFreight, w.Step())

	fillFreight(t, w)
	advanceTo(t, w, StepReview)
	assert.Equal(t, []Step{StepFreight, StepTrucking, StepPortCharges, StepMiscellaneous}, w.ValidatedSteps())

	assert.ErrorIs(t, w.Next(), ErrLastStep)
	assert.Equal(t, StepReview, w.Step())

	require.NoError(t, w.Previous())
	assert.Equal(t, StepMiscellaneous, w.Step())
}

func TestDerivationFollowsEdits(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)

	require.NoError(t, w.SetField("freight_amount", "1,000"))
	require.NoError(t, w.SetField("bir_percentage", "12"))

	figures := w.Figures()
	assert.InDelta(t, 1000.0, figures.TotalExpenses, 1e-9)
	assert.InDelta(t, 120.0, figures.BIRAmount, 1e-9)
	assert.InDelta(t, 1120.0, figures.TotalPayables, 1e-9)
	assert.Equal(t, calc.ModeManual, figures.Mode)
	assert.Equal(t, 0.0, figures.GrossIncome)

	require.NoError(t, w.SetField("gross_income", "1500"))
	require.NoError(t, w.SetField("net_revenue_percentage", "10"))

	figures = w.Figures()
	assert.Equal(t, calc.ModeAuto, figures.Mode)
	assert.InDelta(t, 112.0, figures.NetRevenueAmount, 1e-9)
	assert.InDelta(t, 1232.0, figures.GrossIncome, 1e-9)

	err := w.SetField("gross_income", "2000")
	assert.ErrorIs(t, err, calc.ErrGrossIncomeReadOnly)
	assert.InDelta(t, 1232.0, w.Figures().GrossIncome, 1e-9)
	fe, ok := fieldError(w.FieldErrors(), "gross_income")
	require.True(t, ok)
	assert.Equal(t, domain.CodeReadOnly, fe.Code)

	require.NoError(t, w.SetField("net_revenue_percentage", ""))
	figures = w.Figures()
	assert.Equal(t, calc.ModeManual, figures.Mode)
	assert.True(t, figures.GrossIncomeEditable)
	assert.True(t, w.State().Fields.GrossIncome.IsEmpty())
}

func TestRestorePolicyBringsBackManualGrossIncome(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitRestore)

	require.NoError(t, w.SetField("freight_amount", "1000"))
	require.NoError(t, w.SetField("gross_income", "1500"))
	require.NoError(t, w.SetField("net_revenue_percentage", "10"))
	require.NoError(t, w.SetField("net_revenue_percentage", "0"))

	assert.Equal(t, 1500.0, w.Figures().GrossIncome)
}

func TestSetFieldsAppliesPercentagesBeforeGrossIncome(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)
	require.NoError(t, w.SetField("net_revenue_percentage", "10"))

	err := w.SetFields(map[string]any{
		"gross_income":           "500",
		"net_revenue_percentage": "",
		"freight_amount":         "1000",
	})
	require.NoError(t, err)

	figures := w.Figures()
	assert.Equal(t, calc.ModeManual, figures.Mode)
	assert.Equal(t, 500.0, figures.GrossIncome)
	assert.Equal(t, 1000.0, figures.TotalExpenses)
}

func TestSetFieldsReportsRejectedInputs(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)

	err := w.SetFields(map[string]any{
		"freight_amount":      "12x",
		"storage_check_date":  "15/01/2026",
		"freight_payee":       "Someone Else",
		"rebates_amount":      "40",
		"unknown_thing_field": "1",
	})

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.ErrorIs(t, err, domain.ErrInvalidField)
	assert.Len(t, inputErr.Errors, 4)
	assert.Equal(t, 40.0, w.Figures().TotalExpenses)

	state := w.State()
	assert.Equal(t, "Oceanic Lines", domain.StringValue(state.Fields.Line(domain.ChargeFreight).Payee))
}

func TestSubmitRequiresReviewStep(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)

	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotOnReviewStep)
}

func TestSubmitSendsNormalizedPayload(t *testing.T) {
	store := new(storeMock)
	w := newTestWizard(t, store, calc.ExitDiscard)

	fillFreight(t, w)
	require.NoError(t, w.SetField("storage_voucher", "  "))
	require.NoError(t, w.SetField("rebates_payee", "Port Authority"))
	require.NoError(t, w.SetField("bir_percentage", "12"))
	require.NoError(t, w.SetField("net_revenue_percentage", "10"))
	advanceTo(t, w, StepReview)

	store.On("UpdateAPRecord", mock.Anything, testRecordID, mock.MatchedBy(func(p domain.UpdatePayload) bool {
		freight := p.Lines[domain.ChargeFreight]
		storage := p.Lines[domain.ChargeStorage]
		rebates := p.Lines[domain.ChargeRebates]
		return freight.Amount == 1000 &&
			domain.StringValue(freight.Voucher) == "CV-1001" &&
			domain.StringValue(freight.CheckDate) == "2026-01-15" &&
			storage.Amount == 0 &&
			storage.Voucher == nil &&
			storage.CheckDate == nil &&
			domain.StringValue(rebates.Payee) == "Port Authority" &&
			len(p.Lines) == len(domain.WizardCharges) &&
			p.BIRPercentage == 12 &&
			p.NetRevenuePercentage == 10 &&
			p.GrossIncome > 1231.99 && p.GrossIncome < 1232.01
	})).Return(domain.UpdateResult{Success: true}, nil).Once()

	result, err := w.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, w.Submitting())
	store.AssertExpectations(t)
}

func TestSubmitRunsFullValidation(t *testing.T) {
	store := new(storeMock)
	w := newTestWizard(t, store, calc.ExitDiscard)

	fillFreight(t, w)
	advanceTo(t, w, StepReview)

	// clearing the voucher after step 1 passed is caught on submit
	require.NoError(t, w.SetField("freight_voucher", ""))

	_, err := w.Submit(context.Background())
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, domain.ErrRecordInvalid)
	_, ok := fieldError(validationErr.Errors, "freight_voucher")
	assert.True(t, ok)
	assert.Equal(t, StepReview, w.Step())
	store.AssertNotCalled(t, "UpdateAPRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitIgnoresReadOnlyRejections(t *testing.T) {
	store := new(storeMock)
	w := newTestWizard(t, store, calc.ExitDiscard)
	fillFreight(t, w)
	require.NoError(t, w.SetField("net_revenue_percentage", "5"))
	require.Error(t, w.SetField("gross_income", "10"))
	require.Error(t, w.SetField("trucking_origin_payee", "Other"))
	advanceTo(t, w, StepReview)

	store.On("UpdateAPRecord", mock.Anything, testRecordID, mock.Anything).
		Return(domain.UpdateResult{Success: true}, nil).Once()

	_, err := w.Submit(context.Background())
	require.NoError(t, err)
}

func TestSubmitFailureKeepsReviewStepAndData(t *testing.T) {
	remoteErr := errors.New("connection reset")

	cases := []struct {
		name   string
		result domain.UpdateResult
		err    error
	}{
		{name: "remote error", result: domain.UpdateResult{}, err: remoteErr},
		{name: "rejected", result: domain.UpdateResult{Success: false, Error: "record locked"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(storeMock)
			w := newTestWizard(t, store, calc.ExitDiscard)
			fillFreight(t, w)
			advanceTo(t, w, StepReview)

			store.On("UpdateAPRecord", mock.Anything, testRecordID, mock.Anything).
				Return(tc.result, tc.err).Once()

			_, err := w.Submit(context.Background())
			var submitErr *SubmissionError
			require.ErrorAs(t, err, &submitErr)
			if tc.err != nil {
				assert.ErrorIs(t, err, remoteErr)
			} else {
				assert.Contains(t, err.Error(), "record locked")
			}

			assert.Equal(t, StepReview, w.Step())
			assert.False(t, w.Submitting())
			assert.Equal(t, 1000.0, w.Figures().TotalExpenses)
			assert.Equal(t, "CV-1001", domain.StringValue(w.State().Fields.Line(domain.ChargeFreight).Voucher))
			store.AssertNumberOfCalls(t, "UpdateAPRecord", 1)
		})
	}
}

func TestSubmissionInFlightBlocksEverything(t *testing.T) {
	store := newBlockingStore()
	w := newTestWizard(t, store, calc.ExitDiscard)
	fillFreight(t, w)
	advanceTo(t, w, StepReview)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-store.started

	assert.True(t, w.Submitting())
	assert.ErrorIs(t, w.Next(), ErrSubmissionInFlight)
	assert.ErrorIs(t, w.Previous(), ErrSubmissionInFlight)
	assert.ErrorIs(t, w.SetField("freight_amount", "5"), ErrSubmissionInFlight)
	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(store.release)
	require.NoError(t, <-done)
	assert.False(t, w.Submitting())
	assert.Equal(t, StepReview, w.Step())
}

func TestCloseDiscardsEdits(t *testing.T) {
	w := newTestWizard(t, new(storeMock), calc.ExitDiscard)
	fillFreight(t, w)
	require.NoError(t, w.SetField("bir_percentage", "12"))
	require.Error(t, w.SetField("storage_amount", "-1"))
	advanceTo(t, w, StepPortCharges)

	w.Close()

	state := w.State()
	assert.Equal(t, StepFreight, state.Step)
	assert.Empty(t, state.ValidatedSteps)
	assert.Empty(t, state.FieldErrors)
	assert.True(t, state.Fields.Line(domain.ChargeFreight).Amount.IsEmpty())
	assert.Nil(t, state.Fields.Line(domain.ChargeFreight).Voucher)
	assert.Equal(t, 0.0, state.Figures.TotalPayables)
}

func TestCloseWhileSubmittingIgnoresResult(t *testing.T) {
	store := newBlockingStore()
	w := newTestWizard(t, store, calc.ExitDiscard)
	fillFreight(t, w)
	advanceTo(t, w, StepReview)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-store.started

	w.Close()
	assert.False(t, w.Submitting())
	assert.Equal(t, StepFreight, w.Step())

	close(store.release)
	require.NoError(t, <-done)

	// the late success did not touch the reset wizard
	state := w.State()
	assert.Equal(t, StepFreight, state.Step)
	assert.True(t, state.Fields.Line(domain.ChargeFreight).Amount.IsEmpty())
	assert.True(t, state.Record.Fields.Line(domain.ChargeFreight).Amount.IsEmpty())
}

func TestStepOf(t *testing.T) {
	assert.Equal(t, StepFreight, StepOf("freight_voucher"))
	assert.Equal(t, StepTrucking, StepOf("trucking_dest_check_date"))
	assert.Equal(t, StepPortCharges, StepOf("wharfage_origin_amount"))
	assert.Equal(t, StepMiscellaneous, StepOf("facilitation_payee"))
	assert.Equal(t, StepReview, StepOf("bir_percentage"))
	assert.Equal(t, StepReview, StepOf("denr_amount"))
}
