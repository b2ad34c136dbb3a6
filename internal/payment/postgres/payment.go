package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ajirinow/backend/internal/core/datamodel/listing"
	"github.com/ajirinow/backend/internal/core/datamodel/payment"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	paymentpkg "github.com/ajirinow/backend/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

var _ paymentpkg.RepositoryAPI = (*PaymentRepository)(nil)

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentpkg.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByPayer(ctx context.Context, payerID int64) ([]payment.Payment, error) {
	var out []payment.Payment
	err := r.db.WithContext(ctx).
		Where("payer_id = ?", payerID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *PaymentRepository) AppendCallback(ctx context.Context, entry *payment.CallbackLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Settle runs the whole read-check-modify-write of one ledger entry inside a
// transaction. The entry row is locked FOR UPDATE and the status write is
// conditional on the row still being Pending, so a concurrent settlement
// that slipped past the caller's lock still changes nothing.
func (r *PaymentRepository) Settle(ctx context.Context, merchantRequestID, checkoutRequestID string, fn paymentpkg.ApplyFunc) (*paymentpkg.Settlement, error) {
	var out *paymentpkg.Settlement

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current payment.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("merchant_request_id = ? AND checkout_request_id = ?", merchantRequestID, checkoutRequestID).
			First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymentpkg.ErrUnmatchedCallback
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		out = &paymentpkg.Settlement{Payment: current}

		payer, err := loadPayer(tx, current.PayerID)
		if err != nil {
			return err
		}

		next, effects, err := fn(current, payer)
		if err != nil {
			return err
		}

		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", current.ID, payment.StatusPending).
			Updates(map[string]interface{}{
				"status":           next.Status,
				"amount":           next.Amount,
				"description":      next.Description,
				"receipt_number":   next.ReceiptNumber,
				"post_expiry_date": next.PostExpiryDate,
				"settled_at":       next.SettledAt,
			})
		if res.Error != nil {
			return fmt.Errorf("update payment %d: %w", current.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return paymentpkg.ErrAlreadySettled
		}

		applied := make([]paymentpkg.Applied, 0, len(effects))
		for _, effect := range effects {
			targetID, err := applyEffect(tx, effect)
			if err != nil {
				return fmt.Errorf("apply %s for payment %d: %w", effect.Kind(), current.ID, err)
			}
			applied = append(applied, paymentpkg.Applied{Effect: effect, TargetID: targetID})
		}

		out = &paymentpkg.Settlement{Payment: next, Applied: applied}
		return nil
	})

	return out, err
}

func loadPayer(tx *gorm.DB, payerID *int64) (*user.User, error) {
	if payerID == nil {
		return nil, nil
	}
	var u user.User
	err := tx.First(&u, *payerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payer %d: %w", *payerID, err)
	}
	return &u, nil
}

func applyEffect(tx *gorm.DB, effect paymentpkg.SideEffect) (int64, error) {
	switch e := effect.(type) {
	case paymentpkg.ExtendSubscription:
		res := tx.Model(&user.User{}).Where("id = ?", e.UserID).Update("subscription_end", e.Until)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, nil
		}
		return e.UserID, nil
	case paymentpkg.ActivateListing:
		return activateListing(tx, e)
	default:
		return 0, fmt.Errorf("unknown side effect %T", effect)
	}
}

func listingModel(kind string) (interface{}, error) {
	switch kind {
	case paymentpkg.KindJob:
		return &listing.Job{}, nil
	case paymentpkg.KindAd:
		return &listing.Ad{}, nil
	}
	return nil, fmt.Errorf("unknown listing kind %q", kind)
}

// activateListing returns the id of the listing it switched on, or zero when
// the owner has nothing eligible.
func activateListing(tx *gorm.DB, e paymentpkg.ActivateListing) (int64, error) {
	model, err := listingModel(e.Listing)
	if err != nil {
		return 0, err
	}

	eligible := func() *gorm.DB {
		q := tx.Model(model).Select("id").
			Where("client_id = ? AND is_active = ? AND payment_id IS NULL", e.OwnerID, false)
		if e.Listing == paymentpkg.KindJob {
			q = q.Where("is_filled = ?", false)
		}
		return q
	}

	var row struct{ ID int64 }
	if e.TargetID != nil {
		if err := eligible().Where("id = ?", *e.TargetID).Limit(1).Scan(&row).Error; err != nil {
			return 0, err
		}
	}
	if row.ID == 0 {
		err := eligible().Order("created_at DESC").Order("id DESC").Limit(1).Scan(&row).Error
		if err != nil {
			return 0, err
		}
	}
	if row.ID == 0 {
		return 0, nil
	}

	res := tx.Model(model).
		Where("id = ? AND payment_id IS NULL", row.ID).
		Updates(map[string]interface{}{
			"payment_id": e.PaymentID,
			"is_active":  true,
			"expires_at": e.ExpiresAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	return row.ID, nil
}

// JobStatus applies lazy expiry to the job before reporting on it.
func (r *PaymentRepository) JobStatus(ctx context.Context, ownerID, jobID int64, now time.Time) (*paymentpkg.JobStatus, error) {
	db := r.db.WithContext(ctx)

	var job listing.Job
	err := db.Where("id = ? AND client_id = ?", jobID, ownerID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentpkg.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if job.Lapsed(now) {
		if err := db.Model(&listing.Job{}).Where("id = ?", job.ID).Update("is_active", false).Error; err != nil {
			return nil, fmt.Errorf("expire job %d: %w", job.ID, err)
		}
		job.IsActive = false
	}

	st := &paymentpkg.JobStatus{
		JobID:     job.ID,
		IsActive:  job.IsActive,
		ExpiresAt: job.ExpiresAt,
		PaymentID: job.PaymentID,
	}
	if job.PaymentID != nil {
		var p payment.Payment
		err := db.Select("status").First(&p, *job.PaymentID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			st.PaymentStatus = &p.Status
		}
	}
	return st, nil
}
