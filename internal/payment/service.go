package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/core/common/validation"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/core/events"
	"github.com/ajirinow/backend/internal/lock"
	"github.com/ajirinow/backend/internal/metrics"
	"github.com/ajirinow/backend/internal/mpesa"
	"github.com/ajirinow/backend/pkg/logger"
)

// Callback outcomes, as recorded in the audit log and metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// ApplyFunc turns the locked ledger entry into its settled form.
type ApplyFunc func(p datamodel.Payment, payer *user.User) (datamodel.Payment, []SideEffect, error)

// Applied is a side effect after the store has run it. TargetID is the
// user or listing written to, zero when no listing matched.
type Applied struct {
	Effect   SideEffect
	TargetID int64
}

func (a Applied) Found() bool { return a.TargetID != 0 }

type Settlement struct {
	Payment datamodel.Payment
	Applied []Applied
}

// JobStatus is the activation state of a job and the payment that funded it.
type JobStatus struct {
	JobID         int64      `json:"job_id"`
	IsActive      bool       `json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at"`
	PaymentID     *int64     `json:"payment_id"`
	PaymentStatus *string    `json:"payment_status"`
}

type RepositoryAPI interface {
	Create(ctx context.Context, p *datamodel.Payment) error
	GetByID(ctx context.Context, id int64) (*datamodel.Payment, error)
	ListByPayer(ctx context.Context, payerID int64) ([]datamodel.Payment, error)
	// Settle locks the entry matching the correlation ids, applies fn and
	// persists the result with its side effects in one transaction. On
	// ErrAlreadySettled the returned Settlement still carries the entry.
	Settle(ctx context.Context, merchantRequestID, checkoutRequestID string, fn ApplyFunc) (*Settlement, error)
	AppendCallback(ctx context.Context, entry *datamodel.CallbackLog) error
	JobStatus(ctx context.Context, ownerID, jobID int64, now time.Time) (*JobStatus, error)
}

type Gateway interface {
	STKPush(ctx context.Context, phone string, amount int64, description string) (*mpesa.STKPushResponse, error)
}

type ServiceAPI interface {
	Initiate(ctx context.Context, in InitiateInput) (*datamodel.Payment, error)
	HandleCallback(ctx context.Context, body []byte) (string, error)
	Get(ctx context.Context, requester *internal.User, id int64) (*datamodel.Payment, error)
	ListMine(ctx context.Context, payerID int64) ([]datamodel.Payment, error)
	JobStatus(ctx context.Context, ownerID, jobID int64) (*JobStatus, error)
}

type InitiateInput struct {
	PayerID  *int64
	Phone    string
	Purpose  string
	TargetID *int64
}

func (in InitiateInput) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("phone", in.Phone).Required().Phone()
	v.Field("purpose", in.Purpose).Required().OneOf(internal.ErrCodeInvalidPurpose, Purposes()...)
	v.Field("target_id", in.TargetID).Positive(internal.ErrCodeInvalidTarget).Custom(func(value interface{}) *internal.AppError {
		if in.TargetID != nil && !ListingPurpose(in.Purpose) {
			return internal.NewValidationFieldError("target_id", "target_id is only accepted for post_job and post_ad", internal.ErrCodeInvalidTarget)
		}
		return nil
	})
	return v.Validate()
}

type Service struct {
	repo    RepositoryAPI
	gateway Gateway
	locker  lock.Locker
	bus     events.Publisher
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, gateway Gateway, locker lock.Locker, bus events.Publisher, opts Options, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		locker:  locker,
		bus:     bus,
		opts:    opts,
		now:     time.Now,
		logger:  lg,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Initiate sends the STK push and records a Pending entry once the gateway
// has accepted it. The amount is always the server price for the purpose.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*datamodel.Payment, error) {
	if appErr := in.Validate(); appErr != nil {
		return nil, appErr
	}

	lg := logger.FromOr(ctx, s.logger)
	phone := validation.NormalizePhone(in.Phone)
	amount, _ := AmountFor(in.Purpose)

	resp, err := s.gateway.STKPush(ctx, phone, amount, in.Purpose)
	if err != nil {
		lg.Error("stk push failed", "purpose", in.Purpose, "error", err)
		appErr := internal.NewExternalError("Payment gateway request failed", internal.ErrCodeGatewayUnavailable, err)
		var gwErr *mpesa.GatewayError
		if errors.As(err, &gwErr) && gwErr.Body != "" {
			appErr = appErr.WithDetails(map[string]string{"upstream": gwErr.Body})
		}
		return nil, appErr
	}
	if !resp.Accepted() {
		lg.Warn("stk push rejected",
			"purpose", in.Purpose,
			"response_code", resp.ResponseCode,
			"response_description", resp.ResponseDescription)
		msg := resp.CustomerMessage
		if msg == "" {
			msg = resp.ResponseDescription
		}
		return nil, internal.NewExternalError("Payment request was not accepted", internal.ErrCodeGatewayRejected, nil).
			WithDetails(map[string]string{"response_code": resp.ResponseCode, "message": msg})
	}

	p := &datamodel.Payment{
		PayerID:           in.PayerID,
		Phone:             phone,
		Amount:            decimal.NewFromInt(amount),
		Purpose:           in.Purpose,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Status:            datamodel.StatusPending,
		Description:       resp.CustomerMessage,
		TargetID:          in.TargetID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		lg.Error("failed to record pending payment",
			"merchant_request_id", resp.MerchantRequestID,
			"checkout_request_id", resp.CheckoutRequestID,
			"error", err)
		return nil, internal.NewInternalError("failed to record payment", err)
	}

	metrics.IncPaymentInitiated(in.Purpose)
	lg.Info("payment initiated",
		"payment_id", p.ID,
		"purpose", p.Purpose,
		"amount", amount,
		"checkout_request_id", p.CheckoutRequestID)
	return p, nil
}

// HandleCallback settles the entry a gateway callback refers to. Unmatched,
// duplicate and malformed callbacks are outcomes, not errors; an error is
// returned only when the store failed.
func (s *Service) HandleCallback(ctx context.Context, body []byte) (string, error) {
	lg := logger.FromOr(ctx, s.logger)

	cb, parseErr := ParseCallback(body)
	if parseErr != nil {
		lg.Warn("ignoring malformed payment callback", "error", parseErr)
		s.audit(ctx, cb, OutcomeInvalid, nil, body)
		return OutcomeInvalid, nil
	}

	lg = lg.With("merchant_request_id", cb.MerchantRequestID, "checkout_request_id", cb.CheckoutRequestID)

	// the row lock inside Settle still serializes writers when this fails
	release, err := s.locker.Acquire(ctx, LockKey(cb.MerchantRequestID, cb.CheckoutRequestID))
	if err != nil {
		lg.Warn("settling without the settlement lock", "error", err)
		release = func() {}
	}

	now := s.now().UTC()
	settlement, err := s.repo.Settle(ctx, cb.MerchantRequestID, cb.CheckoutRequestID,
		func(p datamodel.Payment, payer *user.User) (datamodel.Payment, []SideEffect, error) {
			return Transition(p, payer, cb, now, s.opts)
		})
	release()

	var paymentID *int64
	if settlement != nil && settlement.Payment.ID != 0 {
		id := settlement.Payment.ID
		paymentID = &id
		lg = lg.With("payment_id", id)
	}

	switch {
	case errors.Is(err, ErrUnmatchedCallback):
		lg.Warn("payment callback matches no ledger entry", "result_code", cb.ResultCode)
		s.audit(ctx, cb, OutcomeUnmatched, nil, body)
		return OutcomeUnmatched, nil
	case errors.Is(err, ErrAlreadySettled):
		lg.Warn("duplicate payment callback ignored")
		s.audit(ctx, cb, OutcomeDuplicate, paymentID, body)
		return OutcomeDuplicate, nil
	case err != nil:
		lg.Error("payment settlement failed", "error", err)
		s.audit(ctx, cb, OutcomeError, paymentID, body)
		return OutcomeError, fmt.Errorf("settle payment: %w", err)
	}

	s.audit(ctx, cb, OutcomeApplied, paymentID, body)
	lg.Info("payment settled",
		"purpose", settlement.Payment.Purpose,
		"status", settlement.Payment.Status,
		"effects", len(settlement.Applied))
	s.publish(ctx, settlement, cb, now)
	return OutcomeApplied, nil
}

func (s *Service) audit(ctx context.Context, cb Callback, outcome string, paymentID *int64, body []byte) {
	metrics.IncCallback(outcome)

	entry := &datamodel.CallbackLog{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		Outcome:           outcome,
		PaymentID:         paymentID,
		Payload:           string(body),
	}
	if cb.HasResultCode {
		code := cb.ResultCode
		entry.ResultCode = &code
	}
	if err := s.repo.AppendCallback(ctx, entry); err != nil {
		logger.FromOr(ctx, s.logger).Error("failed to append callback log", "outcome", outcome, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, st *Settlement, cb Callback, now time.Time) {
	if s.bus == nil {
		return
	}
	p := st.Payment

	var evs []events.Event
	if p.Status == datamodel.StatusFailed {
		evs = append(evs, events.NewPaymentFailedEvent(p.ID, p.Purpose, cb.ResultCode, cb.ResultDesc, now))
	} else {
		targetFound := true
		for _, a := range st.Applied {
			switch e := a.Effect.(type) {
			case ExtendSubscription:
				evs = append(evs, events.NewSubscriptionExtendedEvent(e.UserID, p.ID, e.Until, now))
			case ActivateListing:
				if !a.Found() {
					targetFound = false
					continue
				}
				evs = append(evs, events.NewListingActivatedEvent(e.Listing, a.TargetID, p.ID, e.ExpiresAt, now))
			}
		}
		if ListingPurpose(p.Purpose) && len(st.Applied) == 0 {
			targetFound = false
		}
		receipt := ""
		if p.ReceiptNumber != nil {
			receipt = *p.ReceiptNumber
		}
		evs = append([]events.Event{events.NewPaymentCompletedEvent(p.ID, p.PayerID, p.Purpose, p.Amount, receipt, targetFound, now)}, evs...)
	}

	for _, ev := range evs {
		if err := s.bus.Publish(ctx, ev); err != nil {
			logger.FromOr(ctx, s.logger).Error("failed to publish event", "event_type", ev.EventType(), "error", err)
		}
	}
}

func (s *Service) Get(ctx context.Context, requester *internal.User, id int64) (*datamodel.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, internal.NewInternalError("failed to load payment", err)
	}
	if requester == nil || p.PayerID == nil || *p.PayerID != requester.ID {
		// other people's payments are reported as missing
		return nil, internal.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) ListMine(ctx context.Context, payerID int64) ([]datamodel.Payment, error) {
	payments, err := s.repo.ListByPayer(ctx, payerID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list payments", err)
	}
	return payments, nil
}

func (s *Service) JobStatus(ctx context.Context, ownerID, jobID int64) (*JobStatus, error) {
	if jobID <= 0 {
		return nil, internal.NewValidationFieldError("job_id", "job_id is required", internal.ErrCodeInvalidRequest)
	}
	st, err := s.repo.JobStatus(ctx, ownerID, jobID, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, internal.ErrJobNotFound
		}
		return nil, internal.NewInternalError("failed to load job status", err)
	}
	return st, nil
}
