package payment

import (
	"context"
	"fmt"
	"log/slog"

	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
	"github.com/ajirinow/backend/internal/core/events"
	"github.com/ajirinow/backend/internal/metrics"
)

// EventHandler turns settlement events into metrics and operator warnings.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func listingKind(purpose string) string {
	if purpose == datamodel.PurposePostAd {
		return KindAd
	}
	return KindJob
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	metrics.IncPaymentSettled(ev.Purpose, datamodel.StatusCompleted)
	if ListingPurpose(ev.Purpose) && !ev.TargetFound {
		metrics.IncActivation(listingKind(ev.Purpose), false)
		var payerID int64
		if ev.PayerID != nil {
			payerID = *ev.PayerID
		}
		h.logger.Warn("completed payment has no listing to activate",
			"payment_id", ev.PaymentID,
			"payer_id", payerID,
			"purpose", ev.Purpose,
			"receipt_number", ev.ReceiptNumber)
	}
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	metrics.IncPaymentSettled(ev.Purpose, datamodel.StatusFailed)
	h.logger.Info("payment failed",
		"payment_id", ev.PaymentID,
		"purpose", ev.Purpose,
		"result_code", ev.ResultCode,
		"result_desc", ev.ResultDesc)
	return nil
}

func (h *EventHandler) HandleListingActivated(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.ListingActivatedEvent)
	if !ok {
		return fmt.Errorf("expected ListingActivatedEvent, got %T", event)
	}
	metrics.IncActivation(ev.Kind, true)
	h.logger.Info("listing activated",
		"kind", ev.Kind,
		"listing_id", ev.ListingID,
		"payment_id", ev.PaymentID,
		"expires_at", ev.ExpiresAt)
	return nil
}

func (h *EventHandler) HandleSubscriptionExtended(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.SubscriptionExtendedEvent)
	if !ok {
		return fmt.Errorf("expected SubscriptionExtendedEvent, got %T", event)
	}
	metrics.IncActivation(KindSubscription, true)
	h.logger.Info("subscription extended",
		"user_id", ev.UserID,
		"payment_id", ev.PaymentID,
		"subscription_end", ev.SubscriptionEnd.Format("2006-01-02"))
	return nil
}

func (h *EventHandler) RegisterEventHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	bus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	bus.Subscribe(events.EventTypeListingActivated, h.HandleListingActivated)
	bus.Subscribe(events.EventTypeSubscriptionExtended, h.HandleSubscriptionExtended)
}
