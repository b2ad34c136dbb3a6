package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
)

const (
	PurposeSubscription = "subscription"
	PurposePostJob      = "post_job"
	PurposePostAd       = "post_ad"
)

// Payment is one ledger entry. Rows are never deleted.
type Payment struct {
	ID                int64           `gorm:"primaryKey"`
	PayerID           *int64          `gorm:"column:payer_id;index"`
	Phone             string          `gorm:"column:phone;size:15;not null"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(10,2);not null"`
	Purpose           string          `gorm:"column:purpose;size:20;not null"`
	MerchantRequestID string          `gorm:"column:merchant_request_id;size:100;not null;uniqueIndex:idx_payments_correlation"`
	CheckoutRequestID string          `gorm:"column:checkout_request_id;size:100;not null;uniqueIndex:idx_payments_correlation"`
	Status            string          `gorm:"column:status;size:20;not null;index"`
	Description       string          `gorm:"column:description;type:text"`
	ReceiptNumber     *string         `gorm:"column:receipt_number;size:50"`
	TargetID          *int64          `gorm:"column:target_id"`
	PostExpiryDate    *time.Time      `gorm:"column:post_expiry_date;type:date"`
	SettledAt         *time.Time      `gorm:"column:settled_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// CallbackLog is the append-only audit trail of gateway callbacks.
type CallbackLog struct {
	ID                int64     `gorm:"primaryKey"`
	MerchantRequestID string    `gorm:"column:merchant_request_id;size:100;index:idx_callbacks_correlation"`
	CheckoutRequestID string    `gorm:"column:checkout_request_id;size:100;index:idx_callbacks_correlation"`
	ResultCode        *int      `gorm:"column:result_code"`
	Outcome           string    `gorm:"column:outcome;size:20;not null"`
	PaymentID         *int64    `gorm:"column:payment_id"`
	Payload           string    `gorm:"column:payload;type:text"`
	ReceivedAt        time.Time `gorm:"column:received_at;autoCreateTime"`
}

func (CallbackLog) TableName() string { return "payment_callbacks" }
