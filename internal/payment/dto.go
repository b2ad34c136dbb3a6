package payment

import (
	"time"

	"github.com/shopspring/decimal"

	datamodel "github.com/ajirinow/backend/internal/core/datamodel/payment"
)

type InitiateRequest struct {
	Purpose  string `json:"purpose"`
	Phone    string `json:"phone"`
	TargetID *int64 `json:"target_id,omitempty"`
}

// GuestInitiateRequest is the unauthenticated variant. Amount is accepted for
// compatibility and ignored.
type GuestInitiateRequest struct {
	Phone   string      `json:"phone"`
	Amount  interface{} `json:"amount,omitempty"`
	Purpose string      `json:"purpose"`
}

type InitiateResponse struct {
	Message    string          `json:"message"`
	CheckoutID string          `json:"checkout_id"`
	PaymentID  int64           `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type PaymentResponse struct {
	ID             int64           `json:"id"`
	Phone          string          `json:"phone"`
	Amount         decimal.Decimal `json:"amount"`
	Purpose        string          `json:"purpose"`
	Status         string          `json:"status"`
	Description    string          `json:"description"`
	ReceiptNumber  *string         `json:"receipt_number,omitempty"`
	TargetID       *int64          `json:"target_id,omitempty"`
	CheckoutID     string          `json:"checkout_id"`
	PostExpiryDate *string         `json:"post_expiry_date,omitempty"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func ToPaymentResponse(p *datamodel.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID,
		Phone:         p.Phone,
		Amount:        p.Amount,
		Purpose:       p.Purpose,
		Status:        p.Status,
		Description:   p.Description,
		ReceiptNumber: p.ReceiptNumber,
		TargetID:      p.TargetID,
		CheckoutID:    p.CheckoutRequestID,
		SettledAt:     p.SettledAt,
		CreatedAt:     p.CreatedAt,
	}
	if p.PostExpiryDate != nil {
		d := p.PostExpiryDate.Format("2006-01-02")
		resp.PostExpiryDate = &d
	}
	return resp
}

// CallbackAck is the fixed body the gateway expects for every callback.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var Accepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}
