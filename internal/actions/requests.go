package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bills/internal/core"
	"bills/internal/services"
	"bills/internal/storage"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		return v.Interface().(core.Money).Cents
	}, core.Money{})
	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		return v.Interface().(core.Date).String()
	}, core.Date{})
	_ = validate.RegisterValidation("cadence", func(fl validator.FieldLevel) bool {
		return core.Cadence(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("eventkind", func(fl validator.FieldLevel) bool {
		return core.SinkingEventKind(fl.Field().String()).Valid()
	})
}

// envelope carries the fields shared by every action.
type envelope struct {
	ActionID string `json:"action_id" validate:"required,max=128"`
	Type     string `json:"type" validate:"required,max=64"`
}

// request is one typed action. run executes it inside the dispatcher's transaction.
type request interface {
	run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error)
}

// registry maps action types to their request constructors.
var registry = map[string]func() request{
	"MARK_PAID":          func() request { return &markPaidRequest{} },
	"MARK_PENDING":       func() request { return &instanceRequest{op: opMarkPending} },
	"ADD_PAYMENT":        func() request { return &addPaymentRequest{} },
	"UNDO_PAYMENT":       func() request { return &undoPaymentRequest{} },
	"SKIP_INSTANCE":      func() request { return &skipRequest{} },
	"UNSKIP_INSTANCE":    func() request { return &instanceRequest{op: opUnskip} },
	"UPDATE_INSTANCE":    func() request { return &updateInstanceRequest{} },
	"CREATE_TEMPLATE":    func() request { return &createTemplateRequest{} },
	"UPDATE_TEMPLATE":    func() request { return &updateTemplateRequest{} },
	"ARCHIVE_TEMPLATE":   func() request { return &archiveTemplateRequest{} },
	"DELETE_TEMPLATE":    func() request { return &deleteTemplateRequest{} },
	"APPLY_TEMPLATES":    func() request { return &applyTemplatesRequest{} },
	"GENERATE_MONTH":     func() request { return &generateMonthRequest{} },
	"CREATE_FUND":        func() request { return &createFundRequest{} },
	"UPDATE_FUND":        func() request { return &updateFundRequest{} },
	"ARCHIVE_FUND":       func() request { return &archiveFundRequest{} },
	"ADD_SINKING_EVENT":  func() request { return &sinkingEventRequest{} },
	"MARK_FUND_PAID":     func() request { return &markFundPaidRequest{} },
	"AUTO_CONTRIBUTE":    func() request { return &autoContributeRequest{} },
	"SET_MONTH_SETTINGS": func() request { return &monthSettingsRequest{} },
	"UPDATE_SETTING":     func() request { return &settingRequest{} },
}

// decode unmarshals raw into req and validates its tags.
func decode(raw []byte, req any) error {
	if err := json.Unmarshal(raw, req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return core.Invalid(typeErr.Field, "expected %s", typeErr.Type)
		}
		return core.Invalid("", "malformed action: %v", err)
	}
	return validationError(validate.Struct(req))
}

// validationError turns the first validator failure into a core.ValidationError.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	return &core.ValidationError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	text := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		if text {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max", "lte":
		if text {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "cadence":
		return fmt.Sprintf("unknown cadence %q", fe.Value())
	case "eventkind":
		return fmt.Sprintf("unknown sinking event kind %q", fe.Value())
	case "iso4217":
		return fmt.Sprintf("%q is not an ISO 4217 currency code", fe.Value())
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}

// resolveMonth defaults a missing (year, month) to the current month.
func resolveMonth(d *Dispatcher, year, month *int) (int, int, error) {
	today := d.ledger.Today()
	y, m := today.Year(), today.Month()
	if year != nil {
		y = *year
	}
	if month != nil {
		m = *month
	}
	if err := core.ValidateYearMonth(y, m); err != nil {
		return 0, 0, err
	}
	return y, m, nil
}

type instanceOp int

const (
	opMarkPending instanceOp = iota
	opUnskip
)

type instanceResult struct {
	Instance core.Instance `json:"instance"`
}

type instanceRequest struct {
	op         instanceOp
	InstanceID int64 `json:"instance_id" validate:"required,gt=0"`
}

func (r *instanceRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	var (
		inst core.Instance
		err  error
	)
	switch r.op {
	case opMarkPending:
		inst, err = d.ledger.MarkPendingTx(ctx, q, r.InstanceID)
	default:
		inst, err = d.ledger.UnskipTx(ctx, q, r.InstanceID)
	}
	if err != nil {
		return nil, err
	}
	return instanceResult{Instance: inst}, nil
}

type markPaidRequest struct {
	InstanceID int64     `json:"instance_id" validate:"required,gt=0"`
	PaidDate   core.Date `json:"paid_date"`
	Note       string    `json:"note" validate:"max=500"`
}

func (r *markPaidRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	return d.ledger.MarkPaidTx(ctx, q, r.InstanceID, r.PaidDate, r.Note)
}

type addPaymentRequest struct {
	InstanceID int64      `json:"instance_id" validate:"required,gt=0"`
	Amount     core.Money `json:"amount" validate:"gt=0"`
	PaidDate   core.Date  `json:"paid_date"`
	Note       string     `json:"note" validate:"max=500"`
}

func (r *addPaymentRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	return d.ledger.AddPaymentTx(ctx, q, r.InstanceID, r.Amount, r.PaidDate, r.Note)
}

type undoPaymentRequest struct {
	InstanceID int64  `json:"instance_id" validate:"required,gt=0"`
	PaymentID  *int64 `json:"payment_id" validate:"omitempty,gt=0"`
}

func (r *undoPaymentRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	return d.ledger.UndoPaymentTx(ctx, q, r.InstanceID, r.PaymentID)
}

type skipRequest struct {
	InstanceID int64  `json:"instance_id" validate:"required,gt=0"`
	Note       string `json:"note" validate:"max=500"`
}

func (r *skipRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	inst, err := d.ledger.SkipTx(ctx, q, r.InstanceID, r.Note)
	if err != nil {
		return nil, err
	}
	return instanceResult{Instance: inst}, nil
}

type updateInstanceRequest struct {
	InstanceID int64       `json:"instance_id" validate:"required,gt=0"`
	Name       *string     `json:"name" validate:"omitempty,max=200"`
	Category   *string     `json:"category" validate:"omitempty,max=100"`
	Amount     *core.Money `json:"amount" validate:"omitempty,gte=0"`
	DueDate    *core.Date  `json:"due_date"`
	Essential  *bool       `json:"essential"`
	Autopay    *bool       `json:"autopay"`
	Note       *string     `json:"note" validate:"omitempty,max=500"`
}

func (r *updateInstanceRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	inst, err := d.ledger.UpdateInstanceTx(ctx, q, r.InstanceID, services.InstancePatch{
		Name:      r.Name,
		Category:  r.Category,
		Amount:    r.Amount,
		DueDate:   r.DueDate,
		Essential: r.Essential,
		Autopay:   r.Autopay,
		Note:      r.Note,
	})
	if err != nil {
		return nil, err
	}
	return instanceResult{Instance: inst}, nil
}

type templateResult struct {
	Template core.Template `json:"template"`
	Created  int           `json:"instances_created,omitempty"`
}

type createTemplateRequest struct {
	Name          string     `json:"name" validate:"required,max=200"`
	Category      string     `json:"category" validate:"max=100"`
	AmountDefault core.Money `json:"amount_default" validate:"gte=0"`
	DueDay        int        `json:"due_day" validate:"required,min=1,max=31"`
	Essential     bool       `json:"essential"`
	Autopay       bool       `json:"autopay"`
	PayeeHint     string     `json:"payee_hint" validate:"max=200"`
	Year          *int       `json:"year"`
	Month         *int       `json:"month"`
}

// run creates the template and, when a month is given, ensures that month so
// the new bill shows up right away.
func (r *createTemplateRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	tpl, err := d.ledger.CreateTemplateTx(ctx, q, core.Template{
		Name:          r.Name,
		Category:      r.Category,
		AmountDefault: r.AmountDefault,
		DueDay:        r.DueDay,
		Essential:     r.Essential,
		Autopay:       r.Autopay,
		PayeeHint:     r.PayeeHint,
	})
	if err != nil {
		return nil, err
	}
	res := templateResult{Template: tpl}
	if r.Year != nil || r.Month != nil {
		y, m, err := resolveMonth(d, r.Year, r.Month)
		if err != nil {
			return nil, err
		}
		if res.Created, err = d.ledger.EnsureMonthTx(ctx, q, y, m); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type updateTemplateResult struct {
	services.TemplateUpdate
	Applied *bool `json:"applied,omitempty"`
}

type updateTemplateRequest struct {
	TemplateID    int64       `json:"template_id" validate:"required,gt=0"`
	Name          *string     `json:"name" validate:"omitempty,max=200"`
	Category      *string     `json:"category" validate:"omitempty,max=100"`
	AmountDefault *core.Money `json:"amount_default" validate:"omitempty,gte=0"`
	DueDay        *int        `json:"due_day" validate:"omitempty,min=1,max=31"`
	Essential     *bool       `json:"essential"`
	Autopay       *bool       `json:"autopay"`
	PayeeHint     *string     `json:"payee_hint" validate:"omitempty,max=200"`
	// ApplyYear and ApplyMonth push the new values onto that month's instance.
	ApplyYear  *int `json:"apply_year"`
	ApplyMonth *int `json:"apply_month"`
}

func (r *updateTemplateRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	upd, err := d.ledger.UpdateTemplateTx(ctx, q, r.TemplateID, services.TemplatePatch{
		Name:          r.Name,
		Category:      r.Category,
		AmountDefault: r.AmountDefault,
		DueDay:        r.DueDay,
		Essential:     r.Essential,
		Autopay:       r.Autopay,
		PayeeHint:     r.PayeeHint,
	})
	if err != nil {
		return nil, err
	}
	res := updateTemplateResult{TemplateUpdate: upd}
	if r.ApplyYear != nil || r.ApplyMonth != nil {
		y, m, err := resolveMonth(d, r.ApplyYear, r.ApplyMonth)
		if err != nil {
			return nil, err
		}
		applied, err := d.ledger.ApplyTemplateToMonthTx(ctx, q, upd.Template, y, m)
		if err != nil {
			return nil, err
		}
		res.Applied = &applied
	}
	return res, nil
}

type archiveTemplateRequest struct {
	TemplateID int64 `json:"template_id" validate:"required,gt=0"`
	Archived   *bool `json:"archived"`
}

func (r *archiveTemplateRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	archived := true
	if r.Archived != nil {
		archived = *r.Archived
	}
	tpl, err := d.ledger.SetTemplateArchivedTx(ctx, q, r.TemplateID, archived)
	if err != nil {
		return nil, err
	}
	return templateResult{Template: tpl}, nil
}

type deleteTemplateRequest struct {
	TemplateID int64 `json:"template_id" validate:"required,gt=0"`
	Year       *int  `json:"year"`
	Month      *int  `json:"month"`
}

func (r *deleteTemplateRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	y, m, err := resolveMonth(d, r.Year, r.Month)
	if err != nil {
		return nil, err
	}
	removed, err := d.ledger.DeleteTemplateFromMonthTx(ctx, q, r.TemplateID, y, m)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"template_id":       r.TemplateID,
		"from_year":         y,
		"from_month":        m,
		"instances_removed": removed,
	}, nil
}

type applyTemplatesResult struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	services.ApplyResult
}

type applyTemplatesRequest struct {
	Year       *int   `json:"year"`
	Month      *int   `json:"month"`
	TemplateID *int64 `json:"template_id" validate:"omitempty,gt=0"`
}

func (r *applyTemplatesRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	y, m, err := resolveMonth(d, r.Year, r.Month)
	if err != nil {
		return nil, err
	}
	res, err := d.ledger.ApplyTemplatesToMonthTx(ctx, q, y, m, r.TemplateID)
	if err != nil {
		return nil, err
	}
	return applyTemplatesResult{Year: y, Month: m, ApplyResult: res}, nil
}

type generateMonthRequest struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
}

func (r *generateMonthRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	y, m, err := resolveMonth(d, r.Year, r.Month)
	if err != nil {
		return nil, err
	}
	created, err := d.ledger.EnsureMonthTx(ctx, q, y, m)
	if err != nil {
		return nil, err
	}
	return map[string]int{"year": y, "month": m, "created": created}, nil
}

type autoContributeRequest struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
}

func (r *autoContributeRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	y, m, err := resolveMonth(d, r.Year, r.Month)
	if err != nil {
		return nil, err
	}
	return d.funds.AutoContributeForMonthTx(ctx, q, y, m)
}

type fundResult struct {
	Fund core.SinkingFundView `json:"fund"`
}

type createFundRequest struct {
	Name           string       `json:"name" validate:"required,max=200"`
	Category       string       `json:"category" validate:"max=100"`
	Target         core.Money   `json:"target" validate:"gt=0"`
	DueDate        core.Date    `json:"due_date" validate:"required"`
	Cadence        core.Cadence `json:"cadence" validate:"required,cadence"`
	CadenceMonths  int          `json:"cadence_months" validate:"omitempty,min=1,max=120"`
	AutoContribute *bool        `json:"auto_contribute"`
	Note           string       `json:"note" validate:"max=500"`
}

func (r *createFundRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	auto := true
	if r.AutoContribute != nil {
		auto = *r.AutoContribute
	}
	view, err := d.funds.CreateFundTx(ctx, q, core.SinkingFund{
		Name:           r.Name,
		Category:       r.Category,
		Target:         r.Target,
		DueDate:        r.DueDate,
		Cadence:        r.Cadence,
		CadenceMonths:  r.CadenceMonths,
		AutoContribute: auto,
		Note:           r.Note,
	})
	if err != nil {
		return nil, err
	}
	return fundResult{Fund: view}, nil
}

type updateFundRequest struct {
	FundID         int64         `json:"fund_id" validate:"required,gt=0"`
	Name           *string       `json:"name" validate:"omitempty,max=200"`
	Category       *string       `json:"category" validate:"omitempty,max=100"`
	Target         *core.Money   `json:"target" validate:"omitempty,gt=0"`
	DueDate        *core.Date    `json:"due_date"`
	Cadence        *core.Cadence `json:"cadence" validate:"omitempty,cadence"`
	CadenceMonths  *int          `json:"cadence_months" validate:"omitempty,min=1,max=120"`
	AutoContribute *bool         `json:"auto_contribute"`
	Note           *string       `json:"note" validate:"omitempty,max=500"`
}

func (r *updateFundRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	view, err := d.funds.UpdateFundTx(ctx, q, r.FundID, services.FundPatch{
		Name:           r.Name,
		Category:       r.Category,
		Target:         r.Target,
		DueDate:        r.DueDate,
		Cadence:        r.Cadence,
		CadenceMonths:  r.CadenceMonths,
		AutoContribute: r.AutoContribute,
		Note:           r.Note,
	})
	if err != nil {
		return nil, err
	}
	return fundResult{Fund: view}, nil
}

type archiveFundRequest struct {
	FundID   int64 `json:"fund_id" validate:"required,gt=0"`
	Archived *bool `json:"archived"`
}

func (r *archiveFundRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	archived := true
	if r.Archived != nil {
		archived = *r.Archived
	}
	view, err := d.funds.SetFundArchivedTx(ctx, q, r.FundID, archived)
	if err != nil {
		return nil, err
	}
	return fundResult{Fund: view}, nil
}

type sinkingEventResult struct {
	Event core.SinkingEvent    `json:"event"`
	Fund  core.SinkingFundView `json:"fund"`
}

type sinkingEventRequest struct {
	FundID    int64                 `json:"fund_id" validate:"required,gt=0"`
	Kind      core.SinkingEventKind `json:"kind" validate:"required,eventkind"`
	Amount    core.Money            `json:"amount"`
	EventDate core.Date             `json:"event_date"`
	Note      string                `json:"note" validate:"max=500"`
}

func (r *sinkingEventRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	ev, err := d.funds.AddEventTx(ctx, q, r.FundID, r.Kind, r.Amount, r.EventDate, r.Note)
	if err != nil {
		return nil, err
	}
	view, err := d.funds.FundViewTx(ctx, q, r.FundID)
	if err != nil {
		return nil, err
	}
	return sinkingEventResult{Event: ev, Fund: view}, nil
}

type markFundPaidRequest struct {
	FundID int64       `json:"fund_id" validate:"required,gt=0"`
	Amount *core.Money `json:"amount" validate:"omitempty,gt=0"`
	Date   core.Date   `json:"paid_date"`
}

func (r *markFundPaidRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	return d.funds.MarkFundPaidTx(ctx, q, r.FundID, r.Amount, r.Date)
}

type monthSettingsRequest struct {
	Year           *int    `json:"year"`
	Month          *int    `json:"month"`
	EssentialsOnly *bool   `json:"essentials_only"`
	Note           *string `json:"note" validate:"omitempty,max=500"`
}

func (r *monthSettingsRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	y, m, err := resolveMonth(d, r.Year, r.Month)
	if err != nil {
		return nil, err
	}
	ms, err := q.GetMonthSettings(ctx, y, m)
	if err != nil {
		return nil, err
	}
	if r.EssentialsOnly != nil {
		ms.EssentialsOnly = *r.EssentialsOnly
	}
	if r.Note != nil {
		ms.Note = strings.TrimSpace(*r.Note)
	}
	if err := q.UpsertMonthSettings(ctx, ms); err != nil {
		return nil, err
	}
	return map[string]any{"settings": ms}, nil
}

// settingRules lists the accepted application settings and their value checks.
var settingRules = map[string]string{
	"currency":       "required,iso4217",
	"locale":         "required,min=2,max=35",
	"week_starts_on": "required,oneof=monday sunday",
}

type settingRequest struct {
	Key   string `json:"key" validate:"required,oneof=currency locale week_starts_on"`
	Value string `json:"value"`
}

func (r *settingRequest) run(ctx context.Context, d *Dispatcher, q *storage.Queries) (any, error) {
	value := strings.TrimSpace(r.Value)
	if err := validate.Var(value, settingRules[r.Key]); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return nil, core.Invalid("value", "%s", describe(errs[0]))
		}
		return nil, err
	}
	previous, err := q.SetSetting(ctx, r.Key, value)
	if err != nil {
		return nil, err
	}
	return map[string]string{"key": r.Key, "value": value, "previous": previous}, nil
}
