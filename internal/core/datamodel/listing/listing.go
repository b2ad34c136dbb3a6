package listing

import "time"

// Job and Ad are the gated entities. Both start inactive and are switched on
// once by settlement of the payment that funds them.
type Job struct {
	ID          int64      `gorm:"primaryKey"`
	ClientID    int64      `gorm:"column:client_id;not null;index"`
	Title       string     `gorm:"column:title;size:100;not null"`
	Description string     `gorm:"column:description;type:text"`
	Location    string     `gorm:"column:location;size:100"`
	IsActive    bool       `gorm:"column:is_active;not null"`
	IsFilled    bool       `gorm:"column:is_filled;not null"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	PaymentID   *int64     `gorm:"column:payment_id;index"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Job) TableName() string { return "jobs" }

// Lapsed reports an entity that is still flagged active past its expiry.
func (j *Job) Lapsed(now time.Time) bool {
	return lapsed(j.IsActive, j.ExpiresAt, now)
}

type Ad struct {
	ID          int64      `gorm:"primaryKey"`
	ClientID    int64      `gorm:"column:client_id;not null;index"`
	Title       string     `gorm:"column:title;size:100;not null"`
	Description string     `gorm:"column:description;type:text"`
	ImageURL    string     `gorm:"column:image_url"`
	Link        string     `gorm:"column:link"`
	IsActive    bool       `gorm:"column:is_active;not null"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	PaymentID   *int64     `gorm:"column:payment_id;index"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Ad) TableName() string { return "ads" }

func (a *Ad) Lapsed(now time.Time) bool {
	return lapsed(a.IsActive, a.ExpiresAt, now)
}

func lapsed(active bool, expiresAt *time.Time, now time.Time) bool {
	return active && expiresAt != nil && expiresAt.Before(now)
}
