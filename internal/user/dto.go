package user

import (
	"time"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/core/common/validation"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
)

type RegisterRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	IDNumber    string `json:"id_number"`
	Role        string `json:"role"`
	Password    string `json:"password"`

	// fundi profile
	Skills   string `json:"skills"`
	Location string `json:"location"`
	RateNote string `json:"rate_note"`

	// client profile
	RoleNote string `json:"role_note"`
}

func (r RegisterRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("phone_number", r.PhoneNumber).Required().Phone()
	v.Field("name", r.Name).Required().MaxLength(50)
	v.Field("id_number", r.IDNumber).MaxLength(30)
	v.Field("role", r.Role).Required().OneOf(internal.ErrCodeInvalidRole,
		datamodel.RoleFundi, datamodel.RoleClient, datamodel.RoleAdvertiser)
	v.Field("password", r.Password).Required().MinLength(8)
	v.Field("location", r.Location).MaxLength(100)
	v.Field("role_note", r.RoleNote).MaxLength(100)
	return v.Validate()
}

type UpdateFundiProfileRequest struct {
	Skills      *string `json:"skills"`
	Location    *string `json:"location"`
	IsAvailable *bool   `json:"is_available"`
	ShowContact *bool   `json:"show_contact"`
	RateNote    *string `json:"rate_note"`
}

func (r UpdateFundiProfileRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	if r.Location != nil {
		v.Field("location", *r.Location).MaxLength(100)
	}
	return v.Validate()
}

// Changes lists only the columns present in the request.
func (r UpdateFundiProfileRequest) Changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if r.Skills != nil {
		changes["skills"] = *r.Skills
	}
	if r.Location != nil {
		changes["location"] = *r.Location
	}
	if r.IsAvailable != nil {
		changes["is_available"] = *r.IsAvailable
	}
	if r.ShowContact != nil {
		changes["show_contact"] = *r.ShowContact
	}
	if r.RateNote != nil {
		changes["rate_note"] = *r.RateNote
	}
	return changes
}

type UpdateClientRequest struct {
	Name     *string `json:"name"`
	RoleNote *string `json:"role_note"`
}

func (r UpdateClientRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	if r.Name != nil {
		v.Field("name", *r.Name).Required().MaxLength(50)
	}
	if r.RoleNote != nil {
		v.Field("role_note", *r.RoleNote).MaxLength(100)
	}
	return v.Validate()
}

// Changes splits the request into users and client_profiles columns.
func (r UpdateClientRequest) Changes() (userChanges, profileChanges map[string]interface{}) {
	userChanges = map[string]interface{}{}
	profileChanges = map[string]interface{}{}
	if r.Name != nil {
		userChanges["name"] = *r.Name
	}
	if r.RoleNote != nil {
		profileChanges["role_note"] = *r.RoleNote
	}
	return userChanges, profileChanges
}

type ResetPasswordRequest struct {
	PhoneNumber string `json:"phone_number"`
	IDNumber    string `json:"id_number"`
	NewPassword string `json:"new_password"`
}

func (r ResetPasswordRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("phone_number", r.PhoneNumber).Required().Phone()
	v.Field("id_number", r.IDNumber).Required()
	v.Field("new_password", r.NewPassword).Required().MinLength(8)
	return v.Validate()
}

// UserResponse is a user with entitlement flags computed at read time.
type UserResponse struct {
	ID              int64      `json:"id"`
	PhoneNumber     string     `json:"phone_number"`
	Name            string     `json:"name"`
	IDNumber        string     `json:"id_number,omitempty"`
	Role            string     `json:"role"`
	IsActive        bool       `json:"is_active"`
	TrialStarted    *time.Time `json:"trial_started,omitempty"`
	TrialEnds       *time.Time `json:"trial_ends,omitempty"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	IsOnTrial       bool       `json:"is_on_trial"`
	IsSubscribed    bool       `json:"is_subscribed"`
	IsEntitled      bool       `json:"is_entitled"`
	CreatedAt       time.Time  `json:"created_at"`
}

func ToUserResponse(u *datamodel.User, status entitlement.Status) *UserResponse {
	return &UserResponse{
		ID:              u.ID,
		PhoneNumber:     u.PhoneNumber,
		Name:            u.Name,
		IDNumber:        u.IDNumber,
		Role:            u.Role,
		IsActive:        u.IsActive,
		TrialStarted:    u.TrialStarted,
		TrialEnds:       u.TrialEnds,
		SubscriptionEnd: u.SubscriptionEnd,
		IsOnTrial:       status.OnTrial,
		IsSubscribed:    status.Subscribed,
		IsEntitled:      status.Entitled,
		CreatedAt:       u.CreatedAt,
	}
}

type FundiProfileResponse struct {
	Skills      string `json:"skills"`
	Location    string `json:"location"`
	IsAvailable bool   `json:"is_available"`
	ShowContact bool   `json:"show_contact"`
	RateNote    string `json:"rate_note"`
}

func ToFundiProfileResponse(p *datamodel.FundiProfile) *FundiProfileResponse {
	return &FundiProfileResponse{
		Skills:      p.Skills,
		Location:    p.Location,
		IsAvailable: p.IsAvailable,
		ShowContact: p.ShowContact,
		RateNote:    p.RateNote,
	}
}

// ClientResponse is what a client sees of their own account.
type ClientResponse struct {
	*UserResponse
	RoleNote string `json:"role_note"`
}

func ToClientResponse(c *Client, status entitlement.Status) *ClientResponse {
	resp := &ClientResponse{UserResponse: ToUserResponse(&c.User, status)}
	if c.Profile != nil {
		resp.RoleNote = c.Profile.RoleNote
	}
	return resp
}

type PublicClientResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	RoleNote  string    `json:"role_note"`
	CreatedAt time.Time `json:"created_at"`
}

func ToPublicClientResponse(c Client) PublicClientResponse {
	resp := PublicClientResponse{ID: c.User.ID, Name: c.User.Name, CreatedAt: c.User.CreatedAt}
	if c.Profile != nil {
		resp.RoleNote = c.Profile.RoleNote
	}
	return resp
}
