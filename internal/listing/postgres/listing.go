package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	datamodel "github.com/ajirinow/backend/internal/core/datamodel/listing"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
	listingpkg "github.com/ajirinow/backend/internal/listing"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

var _ listingpkg.RepositoryAPI = (*ListingRepository)(nil)

// expire switches off every listing in scope that is still active past its
// expiry, so the read that follows never sees a lapsed listing as active.
func expire(db *gorm.DB, model interface{}, now time.Time) error {
	res := db.Model(model).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("expire listings: %w", res.Error)
	}
	return nil
}

func (r *ListingRepository) CreateJob(ctx context.Context, j *datamodel.Job) error {
	j.IsActive = false
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *ListingRepository) ListActiveJobs(ctx context.Context, now time.Time) ([]datamodel.Job, error) {
	db := r.db.WithContext(ctx)
	if err := expire(db, &datamodel.Job{}, now); err != nil {
		return nil, err
	}
	var jobs []datamodel.Job
	err := db.Where("is_active = ? AND is_filled = ?", true, false).
		Order("created_at DESC").Order("id DESC").
		Find(&jobs).Error
	return jobs, err
}

func (r *ListingRepository) ListJobsByOwner(ctx context.Context, ownerID int64, now time.Time) ([]datamodel.Job, error) {
	db := r.db.WithContext(ctx)
	if err := expire(db.Where("client_id = ?", ownerID), &datamodel.Job{}, now); err != nil {
		return nil, err
	}
	var jobs []datamodel.Job
	err := r.db.WithContext(ctx).Where("client_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&jobs).Error
	return jobs, err
}

func (r *ListingRepository) GetJob(ctx context.Context, id int64, now time.Time) (*datamodel.Job, error) {
	db := r.db.WithContext(ctx)
	var j datamodel.Job
	err := db.First(&j, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, listingpkg.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if j.Lapsed(now) {
		if err := db.Model(&datamodel.Job{}).Where("id = ?", j.ID).Update("is_active", false).Error; err != nil {
			return nil, fmt.Errorf("expire job %d: %w", j.ID, err)
		}
		j.IsActive = false
	}
	return &j, nil
}

func (r *ListingRepository) MarkJobFilled(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&datamodel.Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_filled": true, "is_active": false})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return listingpkg.ErrJobNotFound
	}
	return nil
}

// settledColumns are written only by payment settlement and expiry.
var settledColumns = []string{"client_id", "is_active", "is_filled", "expires_at", "payment_id", "created_at"}

func (r *ListingRepository) UpdateJob(ctx context.Context, id int64, changes map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&datamodel.Job{}).Where("id = ?", id).
		Omit(settledColumns...).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return listingpkg.ErrJobNotFound
	}
	return nil
}

func (r *ListingRepository) DeleteJob(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&datamodel.Job{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return listingpkg.ErrJobNotFound
	}
	return nil
}

func (r *ListingRepository) CreateAd(ctx context.Context, a *datamodel.Ad) error {
	a.IsActive = false
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *ListingRepository) ListActiveAds(ctx context.Context, now time.Time) ([]datamodel.Ad, error) {
	db := r.db.WithContext(ctx)
	if err := expire(db, &datamodel.Ad{}, now); err != nil {
		return nil, err
	}
	var ads []datamodel.Ad
	err := db.Where("is_active = ?", true).
		Order("created_at DESC").Order("id DESC").
		Find(&ads).Error
	return ads, err
}

func (r *ListingRepository) ListAdsByOwner(ctx context.Context, ownerID int64, now time.Time) ([]datamodel.Ad, error) {
	db := r.db.WithContext(ctx)
	if err := expire(db.Where("client_id = ?", ownerID), &datamodel.Ad{}, now); err != nil {
		return nil, err
	}
	var ads []datamodel.Ad
	err := r.db.WithContext(ctx).Where("client_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&ads).Error
	return ads, err
}

func (r *ListingRepository) GetAd(ctx context.Context, id int64, now time.Time) (*datamodel.Ad, error) {
	db := r.db.WithContext(ctx)
	var a datamodel.Ad
	err := db.First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, listingpkg.ErrAdNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Lapsed(now) {
		if err := db.Model(&datamodel.Ad{}).Where("id = ?", a.ID).Update("is_active", false).Error; err != nil {
			return nil, fmt.Errorf("expire ad %d: %w", a.ID, err)
		}
		a.IsActive = false
	}
	return &a, nil
}

func (r *ListingRepository) UpdateAd(ctx context.Context, id int64, changes map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&datamodel.Ad{}).Where("id = ?", id).
		Omit(settledColumns...).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return listingpkg.ErrAdNotFound
	}
	return nil
}

func (r *ListingRepository) DeleteAd(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&datamodel.Ad{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return listingpkg.ErrAdNotFound
	}
	return nil
}

func (r *ListingRepository) EntitlementWindow(ctx context.Context, userID int64) (entitlement.Window, error) {
	var u user.User
	err := r.db.WithContext(ctx).Select("id", "trial_ends", "subscription_end").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entitlement.Window{}, nil
	}
	if err != nil {
		return entitlement.Window{}, err
	}
	return entitlement.WindowOf(&u), nil
}
