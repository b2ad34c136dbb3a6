package auth

import (
	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/core/common/validation"
)

type LoginDTO struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d LoginDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("phone_number", d.PhoneNumber).Required().Phone()
	v.Field("password", d.Password).Required()
	return v.Validate()
}

func (d RefreshTokenDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	return v.Validate()
}
