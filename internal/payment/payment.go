package payment

import (
	"errors"
	"time"

	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
)

const (
	// JobTerm and AdTerm are how long a listing stays live once paid for.
	JobTerm = 12 * 7 * 24 * time.Hour
	AdTerm  = 7 * 24 * time.Hour
)

var amounts = map[string]int64{
	datamodel.PurposeSubscription: 200,
	datamodel.PurposePostJob:      100,
	datamodel.PurposePostAd:       500,
}

var (
	// ErrUnmatchedCallback: the correlation ids match no ledger entry.
	ErrUnmatchedCallback = errors.New("callback matches no payment")
	// ErrAlreadySettled: the entry has left Pending, so the callback is a duplicate.
	ErrAlreadySettled    = errors.New("payment already settled")
	ErrInvalidCallback   = errors.New("invalid callback envelope")

	ErrPaymentNotFound = errors.New("payment not found")
	ErrJobNotFound     = errors.New("job not found")
)

// Purposes lists the accepted purposes in display order.
func Purposes() []string {
	return []string{datamodel.PurposeSubscription, datamodel.PurposePostJob, datamodel.PurposePostAd}
}

func ValidPurpose(purpose string) bool {
	_, ok := amounts[purpose]
	return ok
}

// AmountFor returns the server-side price of a purpose in whole shillings.
func AmountFor(purpose string) (int64, bool) {
	a, ok := amounts[purpose]
	return a, ok
}

// ListingPurpose reports whether the purpose pays for a job or ad.
func ListingPurpose(purpose string) bool {
	return purpose == datamodel.PurposePostJob || purpose == datamodel.PurposePostAd
}

// LockKey is the serialization key for settling one ledger entry.
func LockKey(merchantRequestID, checkoutRequestID string) string {
	return "payment:settle:" + merchantRequestID + ":" + checkoutRequestID
}
