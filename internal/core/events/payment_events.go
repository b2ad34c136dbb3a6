package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCompleted     = "payment.completed"
	EventTypePaymentFailed        = "payment.failed"
	EventTypeListingActivated     = "listing.activated"
	EventTypeSubscriptionExtended = "subscription.extended"
)

func newBase(eventType string, at time.Time) BaseEvent {
	return BaseEvent{ID: uuid.NewString(), Type: eventType, Timestamp: at}
}

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID     int64           `json:"payment_id"`
	PayerID       *int64          `json:"payer_id,omitempty"`
	Purpose       string          `json:"purpose"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	// TargetFound is false for listing purchases that found nothing to activate.
	TargetFound bool `json:"target_found"`
}

func NewPaymentCompletedEvent(paymentID int64, payerID *int64, purpose string, amount decimal.Decimal, receipt string, targetFound bool, at time.Time) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent:     newBase(EventTypePaymentCompleted, at),
		PaymentID:     paymentID,
		PayerID:       payerID,
		Purpose:       purpose,
		Amount:        amount,
		ReceiptNumber: receipt,
		TargetFound:   targetFound,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID  int64  `json:"payment_id"`
	Purpose    string `json:"purpose"`
	ResultCode int    `json:"result_code"`
	ResultDesc string `json:"result_desc"`
}

func NewPaymentFailedEvent(paymentID int64, purpose string, resultCode int, resultDesc string, at time.Time) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent:  newBase(EventTypePaymentFailed, at),
		PaymentID:  paymentID,
		Purpose:    purpose,
		ResultCode: resultCode,
		ResultDesc: resultDesc,
	}
}

type ListingActivatedEvent struct {
	BaseEvent
	Kind      string    `json:"kind"`
	ListingID int64     `json:"listing_id"`
	PaymentID int64     `json:"payment_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewListingActivatedEvent(kind string, listingID, paymentID int64, expiresAt, at time.Time) *ListingActivatedEvent {
	return &ListingActivatedEvent{
		BaseEvent: newBase(EventTypeListingActivated, at),
		Kind:      kind,
		ListingID: listingID,
		PaymentID: paymentID,
		ExpiresAt: expiresAt,
	}
}

type SubscriptionExtendedEvent struct {
	BaseEvent
	UserID          int64     `json:"user_id"`
	PaymentID       int64     `json:"payment_id"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}

func NewSubscriptionExtendedEvent(userID, paymentID int64, subscriptionEnd, at time.Time) *SubscriptionExtendedEvent {
	return &SubscriptionExtendedEvent{
		BaseEvent:       newBase(EventTypeSubscriptionExtended, at),
		UserID:          userID,
		PaymentID:       paymentID,
		SubscriptionEnd: subscriptionEnd,
	}
}
