package user

import "time"

const (
	RoleFundi      = "fundi"
	RoleClient     = "client"
	RoleAdvertiser = "advertiser"
)

// TrialPeriod is granted to every fundi at registration.
const TrialPeriod = 7 * 24 * time.Hour

func ValidRole(role string) bool {
	switch role {
	case RoleFundi, RoleClient, RoleAdvertiser:
		return true
	}
	return false
}

// User stores entitlement timestamps only. Whether a user is on trial or
// subscribed is always derived from them at read time.
type User struct {
	ID              int64      `gorm:"primaryKey"`
	PhoneNumber     string     `gorm:"column:phone_number;size:20;not null;uniqueIndex"`
	Name            string     `gorm:"column:name;size:50;not null"`
	IDNumber        string     `gorm:"column:id_number;size:30"`
	Role            string     `gorm:"column:role;size:15;not null;index"`
	PasswordHash    string     `gorm:"column:password_hash;not null"`
	IsActive        bool       `gorm:"column:is_active;not null"`
	TrialStarted    *time.Time `gorm:"column:trial_started"`
	TrialEnds       *time.Time `gorm:"column:trial_ends"`
	SubscriptionEnd *time.Time `gorm:"column:subscription_end"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

type FundiProfile struct {
	ID          int64  `gorm:"primaryKey"`
	UserID      int64  `gorm:"column:user_id;not null;uniqueIndex"`
	Skills      string `gorm:"column:skills;type:text"`
	Location    string `gorm:"column:location;size:100"`
	IsAvailable bool   `gorm:"column:is_available;not null"`
	ShowContact bool   `gorm:"column:show_contact;not null"`
	RateNote    string `gorm:"column:rate_note;type:text"`
	User        *User  `gorm:"foreignKey:UserID"`
}

func (FundiProfile) TableName() string { return "fundi_profiles" }

type ClientProfile struct {
	ID       int64  `gorm:"primaryKey"`
	UserID   int64  `gorm:"column:user_id;not null;uniqueIndex"`
	RoleNote string `gorm:"column:role_note;size:100"`
}

func (ClientProfile) TableName() string { return "client_profiles" }
