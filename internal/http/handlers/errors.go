package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/http/respond"
	"github.com/hongminglow/shopdesk-auth/internal/logger"
	"github.com/hongminglow/shopdesk-auth/internal/service"
)

type httpError struct {
	status  int
	message string
}

var errorTable = []struct {
	err error
	httpError
}{
	{service.ErrInvalidCredentials, httpError{http.StatusUnauthorized, "Invalid credentials"}},
	{service.ErrInvalidOldPin, httpError{http.StatusUnauthorized, "Invalid old PIN"}},
	{service.ErrInvalidPassword, httpError{http.StatusUnauthorized, "Invalid password"}},
	{service.ErrInvalidRecoveryKey, httpError{http.StatusUnauthorized, "Invalid recovery key"}},
	{service.ErrRegistrationDisabled, httpError{http.StatusForbidden, "Registration disabled. Users already exist."}},
	{service.ErrUserNotFound, httpError{http.StatusNotFound, "User not found"}},
	{service.ErrRecoveryNotConfigured, httpError{http.StatusBadRequest, "Recovery key not set for this account"}},
	{service.ErrWeakPassword, httpError{http.StatusBadRequest, "Password must be at least 6 characters"}},
	{service.ErrGuessablePassword, httpError{http.StatusBadRequest, "Password is too easy to guess"}},
	{service.ErrInvalidPinLength, httpError{http.StatusBadRequest, "PIN must be 4-10 chars"}},
	{service.ErrNoEmailLinked, httpError{http.StatusBadRequest, "No email linked to this account"}},
	{service.ErrInvalidRequest, httpError{http.StatusBadRequest, "Invalid request"}},
	{service.ErrNoOTPPending, httpError{http.StatusBadRequest, "No OTP request pending"}},
	{service.ErrOTPExpired, httpError{http.StatusBadRequest, "OTP has expired"}},
	{service.ErrInvalidOTP, httpError{http.StatusBadRequest, "Invalid OTP"}},
}

func mapError(err error) httpError {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return httpError{http.StatusBadRequest, verr.Message}
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.httpError
		}
	}
	return httpError{http.StatusInternalServerError, "internal server error"}
}

// writeError translates a service error and logs anything unexpected.
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	he := mapError(err)
	if he.status == http.StatusInternalServerError {
		logger.WithContext(r.Context(), h.logger).Error(op+" failed", zap.Error(err))
	}
	respond.Error(w, he.status, he.message)
}
