// Package listing holds the paid listings: jobs posted by clients and ads
// posted by advertisers. Listings are created inactive and only settlement of
// a payment switches them on. Expiry is applied lazily whenever they are read.
package listing

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/core/common/validation"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/listing"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrAdNotFound  = errors.New("ad not found")
)

var linkValidator = validator.New()

type CreateJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

func (r CreateJobRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("title", r.Title).Required().MaxLength(100)
	v.Field("description", r.Description).Required()
	v.Field("location", r.Location).Required().MaxLength(100)
	return v.Validate()
}

type CreateAdRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Link        string `json:"link"`
}

func (r CreateAdRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("title", r.Title).Required().MaxLength(100)
	v.Field("description", r.Description).Required()
	urlField(v, "image_url", r.ImageURL)
	urlField(v, "link", r.Link)
	return v.Validate()
}

// UpdateJobRequest is a partial update of the descriptive fields. Activation
// state and the funding payment are owned by settlement and cannot be set.
type UpdateJobRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
}

func (r UpdateJobRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	if r.Title != nil {
		v.Field("title", *r.Title).Required().MaxLength(100)
	}
	if r.Description != nil {
		v.Field("description", *r.Description).Required()
	}
	if r.Location != nil {
		v.Field("location", *r.Location).Required().MaxLength(100)
	}
	return v.Validate()
}

func (r UpdateJobRequest) Changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if r.Title != nil {
		changes["title"] = *r.Title
	}
	if r.Description != nil {
		changes["description"] = *r.Description
	}
	if r.Location != nil {
		changes["location"] = *r.Location
	}
	return changes
}

type UpdateAdRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	Link        *string `json:"link"`
}

func (r UpdateAdRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	if r.Title != nil {
		v.Field("title", *r.Title).Required().MaxLength(100)
	}
	if r.Description != nil {
		v.Field("description", *r.Description).Required()
	}
	if r.ImageURL != nil {
		urlField(v, "image_url", *r.ImageURL)
	}
	if r.Link != nil {
		urlField(v, "link", *r.Link)
	}
	return v.Validate()
}

func (r UpdateAdRequest) Changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if r.Title != nil {
		changes["title"] = *r.Title
	}
	if r.Description != nil {
		changes["description"] = *r.Description
	}
	if r.ImageURL != nil {
		changes["image_url"] = *r.ImageURL
	}
	if r.Link != nil {
		changes["link"] = *r.Link
	}
	return changes
}

func urlField(v *validation.ValidationBuilder, name, value string) {
	v.Field(name, value).Custom(func(value interface{}) *internal.AppError {
		if err := linkValidator.Var(value, "omitempty,url"); err != nil {
			return internal.NewValidationFieldError(name, name+" must be a valid URL", internal.ErrCodeValidationFailed)
		}
		return nil
	})
}

type JobResponse struct {
	ID          int64      `json:"id"`
	ClientID    int64      `json:"client_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	IsActive    bool       `json:"is_active"`
	IsFilled    bool       `json:"is_filled"`
	ExpiresAt   *time.Time `json:"expires_at"`
	PaymentID   *int64     `json:"payment_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

func ToJobResponse(j datamodel.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		ClientID:    j.ClientID,
		Title:       j.Title,
		Description: j.Description,
		Location:    j.Location,
		IsActive:    j.IsActive,
		IsFilled:    j.IsFilled,
		ExpiresAt:   j.ExpiresAt,
		PaymentID:   j.PaymentID,
		CreatedAt:   j.CreatedAt,
	}
}

func ToJobResponses(jobs []datamodel.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ToJobResponse(j))
	}
	return out
}

type AdResponse struct {
	ID          int64      `json:"id"`
	ClientID    int64      `json:"client_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url,omitempty"`
	Link        string     `json:"link,omitempty"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	PaymentID   *int64     `json:"payment_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

func ToAdResponse(a datamodel.Ad) AdResponse {
	return AdResponse{
		ID:          a.ID,
		ClientID:    a.ClientID,
		Title:       a.Title,
		Description: a.Description,
		ImageURL:    a.ImageURL,
		Link:        a.Link,
		IsActive:    a.IsActive,
		ExpiresAt:   a.ExpiresAt,
		PaymentID:   a.PaymentID,
		CreatedAt:   a.CreatedAt,
	}
}

func ToAdResponses(ads []datamodel.Ad) []AdResponse {
	out := make([]AdResponse, 0, len(ads))
	for _, a := range ads {
		out = append(out, ToAdResponse(a))
	}
	return out
}
