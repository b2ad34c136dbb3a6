package user

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ajirinow/backend/internal/core/datamodel/listing"
	"github.com/ajirinow/backend/internal/core/datamodel/payment"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/user"
	userpkg "github.com/ajirinow/backend/internal/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ userpkg.RepositoryAPI = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, u *datamodel.User, fundi *datamodel.FundiProfile, client *datamodel.ClientProfile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&datamodel.User{}).Where("phone_number = ?", u.PhoneNumber).Count(&taken).Error; err != nil {
			return fmt.Errorf("check phone number: %w", err)
		}
		if taken > 0 {
			return userpkg.ErrPhoneTaken
		}

		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return userpkg.ErrPhoneTaken
			}
			return fmt.Errorf("create user: %w", err)
		}
		if fundi != nil {
			fundi.UserID = u.ID
			if err := tx.Create(fundi).Error; err != nil {
				return fmt.Errorf("create fundi profile: %w", err)
			}
		}
		if client != nil {
			client.UserID = u.ID
			if err := tx.Create(client).Error; err != nil {
				return fmt.Errorf("create client profile: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*datamodel.User, error) {
	var u datamodel.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetByPhoneAndIDNumber(ctx context.Context, phone, idNumber string) (*datamodel.User, error) {
	var u datamodel.User
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND id_number = ?", phone, idNumber).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&datamodel.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return userpkg.ErrNotFound
	}
	return nil
}

func (r *Repository) GetFundiProfile(ctx context.Context, userID int64) (*datamodel.FundiProfile, error) {
	var p datamodel.FundiProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpdateFundiProfile(ctx context.Context, userID int64, changes map[string]interface{}) (*datamodel.FundiProfile, error) {
	res := r.db.WithContext(ctx).Model(&datamodel.FundiProfile{}).Where("user_id = ?", userID).Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, userpkg.ErrNotFound
	}
	return r.GetFundiProfile(ctx, userID)
}

func (r *Repository) ListClients(ctx context.Context) ([]userpkg.Client, error) {
	db := r.db.WithContext(ctx)
	var users []datamodel.User
	if err := db.Where("role = ? AND is_active = ?", datamodel.RoleClient, true).
		Order("created_at DESC").Order("id DESC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []userpkg.Client{}, nil
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	var profiles []datamodel.ClientProfile
	if err := db.Where("user_id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	byUser := make(map[int64]*datamodel.ClientProfile, len(profiles))
	for i := range profiles {
		byUser[profiles[i].UserID] = &profiles[i]
	}

	clients := make([]userpkg.Client, 0, len(users))
	for _, u := range users {
		clients = append(clients, userpkg.Client{User: u, Profile: byUser[u.ID]})
	}
	return clients, nil
}

func (r *Repository) GetClient(ctx context.Context, userID int64) (*userpkg.Client, error) {
	db := r.db.WithContext(ctx)
	var u datamodel.User
	err := db.Where("id = ? AND role = ?", userID, datamodel.RoleClient).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c := &userpkg.Client{User: u}
	var p datamodel.ClientProfile
	err = db.Where("user_id = ?", userID).First(&p).Error
	switch {
	case err == nil:
		c.Profile = &p
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return c, nil
}

func (r *Repository) UpdateClient(ctx context.Context, userID int64, userChanges, profileChanges map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&datamodel.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return userpkg.ErrNotFound
		}

		if len(userChanges) > 0 {
			if err := tx.Model(&datamodel.User{}).Where("id = ?", userID).
				Select("name").Updates(userChanges).Error; err != nil {
				return fmt.Errorf("update user: %w", err)
			}
		}
		if len(profileChanges) > 0 {
			res := tx.Model(&datamodel.ClientProfile{}).Where("user_id = ?", userID).Updates(profileChanges)
			if res.Error != nil {
				return fmt.Errorf("update client profile: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				// accounts created before profiles existed get one on first edit
				p := &datamodel.ClientProfile{UserID: userID}
				if note, ok := profileChanges["role_note"].(string); ok {
					p.RoleNote = note
				}
				if err := tx.Create(p).Error; err != nil {
					return fmt.Errorf("create client profile: %w", err)
				}
			}
		}
		return nil
	})
}

func (r *Repository) Delete(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&payment.Payment{}).Where("payer_id = ?", userID).
			Update("payer_id", nil).Error; err != nil {
			return fmt.Errorf("detach payments: %w", err)
		}
		for _, model := range []interface{}{&listing.Job{}, &listing.Ad{}} {
			if err := tx.Where("client_id = ?", userID).Delete(model).Error; err != nil {
				return fmt.Errorf("delete listings: %w", err)
			}
		}
		for _, model := range []interface{}{&datamodel.FundiProfile{}, &datamodel.ClientProfile{}} {
			if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
				return fmt.Errorf("delete profile: %w", err)
			}
		}

		res := tx.Delete(&datamodel.User{}, userID)
		if res.Error != nil {
			return fmt.Errorf("delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return userpkg.ErrNotFound
		}
		return nil
	})
}
