package payment

import (
	"time"

	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
)

const (
	KindJob          = "job"
	KindAd           = "ad"
	KindSubscription = "subscription"
)

type Options struct {
	// StackSubscriptions extends a running subscription instead of resetting it.
	StackSubscriptions bool
}

// SideEffect is a write that settlement asks the store to perform in the
// same transaction as the status change.
type SideEffect interface {
	Kind() string
}

type ExtendSubscription struct {
	UserID int64
	Until  time.Time
}

func (ExtendSubscription) Kind() string { return KindSubscription }

// ActivateListing switches on one of the owner's unpaid listings. TargetID
// is tried first when set; otherwise the newest inactive unpaid listing wins.
type ActivateListing struct {
	Listing   string
	OwnerID   int64
	TargetID  *int64
	PaymentID int64
	ExpiresAt time.Time
}

func (a ActivateListing) Kind() string { return a.Listing }

// Transition computes the settled ledger entry and the activation it funds.
// It performs no I/O. A terminal entry yields ErrAlreadySettled and no
// effects.
func Transition(p datamodel.Payment, payer *user.User, cb Callback, now time.Time, opts Options) (datamodel.Payment, []SideEffect, error) {
	if p.IsTerminal() {
		return p, nil, ErrAlreadySettled
	}

	now = now.UTC()
	next := p
	next.Description = cb.ResultDesc
	next.SettledAt = &now

	if !cb.Succeeded() {
		next.Status = datamodel.StatusFailed
		return next, nil, nil
	}

	next.Status = datamodel.StatusCompleted
	if amount, ok := cb.Amount(); ok {
		next.Amount = amount
	}
	if receipt := cb.Receipt(); receipt != "" {
		next.ReceiptNumber = &receipt
	}

	var effects []SideEffect
	switch p.Purpose {
	case datamodel.PurposeSubscription:
		if payer != nil && payer.Role == user.RoleFundi {
			effects = append(effects, ExtendSubscription{
				UserID: payer.ID,
				Until:  entitlement.NextSubscriptionEnd(now, payer.SubscriptionEnd, opts.StackSubscriptions),
			})
		}
	case datamodel.PurposePostJob, datamodel.PurposePostAd:
		kind, term := KindJob, JobTerm
		if p.Purpose == datamodel.PurposePostAd {
			kind, term = KindAd, AdTerm
		}
		expires := now.Add(term)
		expiryDate := entitlement.DateOf(expires)
		next.PostExpiryDate = &expiryDate
		if payer != nil {
			effects = append(effects, ActivateListing{
				Listing:   kind,
				OwnerID:   payer.ID,
				TargetID:  p.TargetID,
				PaymentID: p.ID,
				ExpiresAt: expires,
			})
		}
	}

	return next, effects, nil
}
