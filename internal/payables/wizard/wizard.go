package wizard

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightdesk/internal/clock"
	"github.com/smallbiznis/freightdesk/internal/observability/metrics"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"go.uber.org/zap"
)

type Config struct {
	Policy  calc.ExitPolicy
	Logger  *zap.Logger
	Metrics *metrics.WizardMetrics
	Clock   clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Policy == "" {
		c.Policy = calc.ExitDiscard
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Wizard drives the 5-step AP update form of one record. It owns its field
// set exclusively; the store is only called on submit.
type Wizard struct {
	mu    sync.Mutex
	store domain.Store
	cfg   Config
	log   *zap.Logger

	record  domain.Record
	form    domain.FieldSet
	gross   calc.GrossIncome
	figures calc.Figures

	step         Step
	validated    map[Step]bool
	inputErrors  map[string]domain.FieldError
	schemaErrors map[string]domain.FieldError

	submitting bool
	generation uint64
}

// State is a point-in-time copy of the wizard.
type State struct {
	Record         domain.Record
	Step           Step
	ValidatedSteps []Step
	Fields         domain.FieldSet
	Gross          calc.GrossIncome
	Figures        calc.Figures
	FieldErrors    []domain.FieldError
	Submitting     bool
	Policy         calc.ExitPolicy
}

// Open fetches the record and starts a wizard on step 1.
func Open(ctx context.Context, store domain.Store, id snowflake.ID, cfg Config) (*Wizard, error) {
	if store == nil {
		return nil, ErrInvalidStore
	}
	rec, err := store.FetchAPRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return New(store, rec, cfg)
}

// New starts a wizard on an already fetched record.
func New(store domain.Store, rec *domain.Record, cfg Config) (*Wizard, error) {
	if store == nil {
		return nil, ErrInvalidStore
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	cfg = cfg.withDefaults()
	w := &Wizard{
		store:  store,
		cfg:    cfg,
		log:    cfg.Logger.Named("payables.wizard").With(zap.String("record_id", rec.ID.String())),
		record: *rec,
	}
	w.record.Fields = rec.Fields.Clone()
	w.reset()
	return w, nil
}

func (w *Wizard) reset() {
	w.form = w.record.Fields.Clone()
	w.gross = calc.Manual(w.form.GrossIncome)
	w.step = FirstStep
	w.validated = map[Step]bool{}
	w.inputErrors = map[string]domain.FieldError{}
	w.schemaErrors = map[string]domain.FieldError{}
	w.recalculate()
}

func (w *Wizard) recalculate() {
	w.figures = calc.Derive(calc.Inputs{
		TotalExpenses:        calc.Aggregate(w.form.Charges),
		BIRPercentage:        w.form.BIRPercentage,
		NetRevenuePercentage: w.form.NetRevenuePercentage,
		GrossIncome:          w.gross,
		Policy:               w.cfg.Policy,
	})
	w.gross = w.figures.Gross
	w.form.GrossIncome = w.gross.Amount()
	if fe, ok := w.inputErrors[domain.FieldGrossIncome]; ok && fe.Code == domain.CodeReadOnly && w.gross.Editable() {
		delete(w.inputErrors, domain.FieldGrossIncome)
	}
	w.cfg.Metrics.IncDerivation(string(w.figures.Mode))
}

func (w *Wizard) RecordID() snowflake.ID { return w.record.ID }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Figures returns the derived totals of the current field set.
func (w *Wizard) Figures() calc.Figures {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.figures
}

// SetField applies one raw input. Rejected inputs leave the field unchanged,
// are recorded as inline errors and returned. Accepted values that break the
// field schema are kept and flagged inline without an error.
func (w *Wizard) SetField(key string, raw any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInFlight
	}
	return w.setField(key, raw)
}

// SetFields applies several inputs, record-level percentages before gross
// income so that a mode change in the same edit is honoured.
func (w *Wizard) SetFields(values map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInFlight
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key != domain.FieldGrossIncome {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if _, ok := values[domain.FieldGrossIncome]; ok {
		keys = append(keys, domain.FieldGrossIncome)
	}

	var rejected []domain.FieldError
	for _, key := range keys {
		if err := w.setField(key, values[key]); err != nil {
			rejected = append(rejected, w.inputErrors[key])
		}
	}
	if len(rejected) > 0 {
		return &InputError{Errors: rejected}
	}
	return nil
}

func (w *Wizard) setField(key string, raw any) error {
	var err error
	if key == domain.FieldGrossIncome {
		err = w.setGrossIncome(raw)
	} else {
		err = w.form.Set(key, raw)
	}
	if err != nil {
		fe := domain.InputError(key, err)
		if errors.Is(err, calc.ErrGrossIncomeReadOnly) {
			fe = domain.InputError(key, domain.ErrReadOnlyField)
		}
		w.inputErrors[key] = fe
		w.log.Debug("field input rejected", zap.String("field", key), zap.String("code", fe.Code))
		return err
	}

	delete(w.inputErrors, key)
	w.recalculate()
	w.revalidate(key)
	return nil
}

func (w *Wizard) setGrossIncome(raw any) error {
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return err
	}
	gross, err := w.gross.SetManual(amount)
	if err != nil {
		return err
	}
	w.gross = gross
	return nil
}

func (w *Wizard) revalidate(key string) {
	errs := w.form.Validate(key)
	if len(errs) == 0 {
		delete(w.schemaErrors, key)
		return
	}
	w.schemaErrors[key] = errs[0]
}

func (w *Wizard) stepErrors(step Step) []domain.FieldError {
	errs := w.form.Validate(step.RequiredFields()...)
	seen := make(map[string]bool, len(errs))
	for _, fe := range errs {
		seen[fe.Field] = true
	}
	for _, key := range domain.AllFieldKeys() {
		if fe, ok := w.inputErrors[key]; ok && blocking(fe) && StepOf(key) == step && !seen[key] {
			errs = append(errs, fe)
		}
	}
	return errs
}

// Next validates the current step only and advances by exactly one step.
// A blocked transition leaves the step unchanged and returns a *StepError;
// the per-field detail is available from FieldErrors.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInFlight
	}
	if w.step >= LastStep {
		return ErrLastStep
	}

	if errs := w.stepErrors(w.step); len(errs) > 0 {
		for _, fe := range errs {
			if _, rejected := w.inputErrors[fe.Field]; !rejected {
				w.schemaErrors[fe.Field] = fe
			}
		}
		w.cfg.Metrics.IncStepRejected(int(w.step))
		w.log.Debug("step blocked",
			zap.Int("step", int(w.step)),
			zap.String("fields", domain.KeyList(errs)),
		)
		return &StepError{Step: w.step}
	}

	from := w.step
	w.validated[from] = true
	w.step++
	w.cfg.Metrics.IncStepTransition(int(from), int(w.step))
	return nil
}

// Previous goes back one step without validation. It never goes below step 1.
func (w *Wizard) Previous() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInFlight
	}
	if w.step > FirstStep {
		from := w.step
		w.step--
		w.cfg.Metrics.IncStepTransition(int(from), int(w.step))
	}
	return nil
}

// Submit validates every field and hands the normalized payload to the
// store. It is only allowed on the review step. On failure the wizard stays
// on the review step with its data intact; there is no automatic retry.
func (w *Wizard) Submit(ctx context.Context) (domain.UpdateResult, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return domain.UpdateResult{}, ErrSubmissionInFlight
	}
	if w.step != StepReview {
		w.mu.Unlock()
		return domain.UpdateResult{}, ErrNotOnReviewStep
	}

	if errs := w.allErrors(); len(errs) > 0 {
		for _, fe := range errs {
			if _, rejected := w.inputErrors[fe.Field]; !rejected {
				w.schemaErrors[fe.Field] = fe
			}
		}
		w.mu.Unlock()
		w.cfg.Metrics.ObserveSubmission(metrics.SubmissionOutcomeRejected, domain.ErrRecordInvalid, 0)
		return domain.UpdateResult{}, &ValidationError{Errors: errs}
	}

	payload, err := w.form.Payload()
	if err != nil {
		w.mu.Unlock()
		return domain.UpdateResult{}, &SubmissionError{Err: err}
	}

	w.submitting = true
	generation := w.generation
	id := w.record.ID
	submitted := w.form.Clone()
	w.mu.Unlock()

	start := w.cfg.Clock.Now()
	result, err := w.store.UpdateAPRecord(ctx, id, payload)
	elapsed := w.cfg.Clock.Now().Sub(start)

	w.mu.Lock()
	defer w.mu.Unlock()

	if generation != w.generation {
		// closed while in flight: the wizard has already been reset
		w.cfg.Metrics.ObserveSubmission(metrics.SubmissionOutcomeIgnored, err, elapsed)
		w.log.Info("submission result ignored after close", zap.Bool("success", err == nil && result.Success))
		if err != nil {
			return result, &SubmissionError{Err: err}
		}
		return result, nil
	}
	w.submitting = false

	if err != nil {
		w.cfg.Metrics.ObserveSubmission(metrics.SubmissionOutcomeFailed, err, elapsed)
		w.log.Warn("submission failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return domain.UpdateResult{}, &SubmissionError{Err: err}
	}
	if !result.Success {
		rejected := &RejectedError{Message: result.Error}
		w.cfg.Metrics.ObserveSubmission(metrics.SubmissionOutcomeRejected, rejected, elapsed)
		w.log.Warn("submission rejected", zap.String("error", result.Error))
		return result, &SubmissionError{Err: rejected}
	}

	w.record.Fields = submitted
	w.record.UpdatedAt = w.cfg.Clock.Now()
	w.cfg.Metrics.ObserveSubmission(metrics.SubmissionOutcomeSuccess, nil, elapsed)
	w.log.Info("submission succeeded", zap.Duration("elapsed", elapsed))
	return result, nil
}

func (w *Wizard) allErrors() []domain.FieldError {
	errs := w.form.Validate(domain.AllFieldKeys()...)
	seen := make(map[string]bool, len(errs))
	for _, fe := range errs {
		seen[fe.Field] = true
	}
	for _, key := range domain.AllFieldKeys() {
		if fe, ok := w.inputErrors[key]; ok && blocking(fe) && !seen[key] {
			errs = append(errs, fe)
		}
	}
	return errs
}

// blocking reports whether a rejected input must be corrected before moving
// on. Writes to read-only fields leave a valid value in place.
func blocking(fe domain.FieldError) bool {
	return fe.Code != domain.CodeReadOnly
}

// Close discards every edit, returns to step 1 and forgets validated steps.
// The result of a submission still in flight is ignored.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		w.log.Info("closing with submission in flight")
	}
	w.generation++
	w.submitting = false
	w.reset()
}

// FieldErrors returns the inline errors in canonical field order. A rejected
// input takes precedence over a schema failure of the same field.
func (w *Wizard) FieldErrors() []domain.FieldError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fieldErrors()
}

func (w *Wizard) fieldErrors() []domain.FieldError {
	var out []domain.FieldError
	for _, key := range domain.AllFieldKeys() {
		if fe, ok := w.inputErrors[key]; ok {
			out = append(out, fe)
			continue
		}
		if fe, ok := w.schemaErrors[key]; ok {
			out = append(out, fe)
		}
	}
	return out
}

// ValidatedSteps lists the steps passed in this session, in order.
func (w *Wizard) ValidatedSteps() []Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validatedSteps()
}

func (w *Wizard) validatedSteps() []Step {
	var out []Step
	for _, step := range Steps {
		if w.validated[step] {
			out = append(out, step)
		}
	}
	return out
}

func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// State returns a copy of the wizard safe to read without the lock.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := w.record
	rec.Fields = w.record.Fields.Clone()
	return State{
		Record:         rec,
		Step:           w.step,
		ValidatedSteps: w.validatedSteps(),
		Fields:         w.form.Clone(),
		Gross:          w.gross,
		Figures:        w.figures,
		FieldErrors:    w.fieldErrors(),
		Submitting:     w.submitting,
		Policy:         w.cfg.Policy,
	}
}
