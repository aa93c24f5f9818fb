package dto

import "github.com/hongminglow/shopdesk-auth/internal/models"

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PinVerifyRequest struct {
	Pin string `json:"pin"`
}

type PinChangeRequest struct {
	OldPin string `json:"oldPin"`
	NewPin string `json:"newPin"`
}

type PinResetRequest struct {
	Password string `json:"password"`
}

type OTPRequest struct {
	Username string `json:"username"`
}

type OTPResetRequest struct {
	Username    string `json:"username"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type RecoveryResetRequest struct {
	Username    string `json:"username"`
	RecoveryKey string `json:"recoveryKey"`
	NewPassword string `json:"newPassword"`
}

type LoginResponse struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    models.PublicUser `json:"user"`
}

type VerifyResponse struct {
	Success bool              `json:"success"`
	User    models.PublicUser `json:"user"`
}

type PinValidResponse struct {
	Success bool `json:"success"`
	Valid   bool `json:"valid"`
}

type PinResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Pin     string `json:"pin"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
