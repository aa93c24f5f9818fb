package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/http/respond"
	"github.com/hongminglow/shopdesk-auth/internal/middleware"
	"github.com/hongminglow/shopdesk-auth/internal/models"
	"github.com/hongminglow/shopdesk-auth/internal/models/dto"
	"github.com/hongminglow/shopdesk-auth/internal/service"
)

const maxBodyBytes = 1 << 20

// AuthHandler owns the /auth routes: login, bootstrap registration, PIN
// management and password recovery.
type AuthHandler struct {
	svc       *service.AuthService
	logger    *zap.Logger
	prefix    string
	loginRate middleware.Middleware
	otpRate   middleware.Middleware
}

// HandlerOption customises an AuthHandler.
type HandlerOption func(*AuthHandler)

// WithPrefix mounts the routes under prefix, e.g. "/api".
func WithPrefix(prefix string) HandlerOption {
	return func(h *AuthHandler) { h.prefix = prefix }
}

// WithLoginLimiter guards login, register and reset-password.
func WithLoginLimiter(mw middleware.Middleware) HandlerOption {
	return func(h *AuthHandler) {
		if mw != nil {
			h.loginRate = mw
		}
	}
}

// WithOTPLimiter guards request-otp and verify-otp-reset.
func WithOTPLimiter(mw middleware.Middleware) HandlerOption {
	return func(h *AuthHandler) {
		if mw != nil {
			h.otpRate = mw
		}
	}
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc *service.AuthService, log *zap.Logger, opts ...HandlerOption) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &AuthHandler{
		svc:       svc,
		logger:    log,
		loginRate: middleware.Passthrough,
		otpRate:   middleware.Passthrough,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	guard := middleware.Authenticate(h.svc)
	route := func(path string, handler http.Handler) {
		mux.Handle(h.prefix+"/auth"+path, handler)
	}

	route("/login", h.loginRate(http.HandlerFunc(h.handleLogin)))
	route("/register", h.loginRate(http.HandlerFunc(h.handleRegister)))
	route("/reset-password", h.loginRate(http.HandlerFunc(h.handleRecoveryReset)))
	route("/request-otp", h.otpRate(http.HandlerFunc(h.handleRequestOTP)))
	route("/verify-otp-reset", h.otpRate(http.HandlerFunc(h.handleOTPReset)))

	route("/verify", guard(http.HandlerFunc(h.handleVerify)))
	route("/pin", guard(http.HandlerFunc(h.handleCurrentPin)))
	route("/pin/verify", guard(http.HandlerFunc(h.handlePinVerify)))
	route("/pin/change", guard(http.HandlerFunc(h.handlePinChange)))
	route("/pin/reset", guard(http.HandlerFunc(h.handlePinReset)))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.LoginResponse{Success: true, Token: sess.Token, User: sess.User})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	respond.JSON(w, http.StatusCreated, dto.LoginResponse{Success: true, Token: sess.Token, User: sess.User})
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respond.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	respond.JSON(w, http.StatusOK, dto.VerifyResponse{
		Success: true,
		User:    models.PublicUser{ID: id.UserID, Username: id.Username},
	})
}

func (h *AuthHandler) handlePinVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.PinVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	valid, err := h.svc.VerifyPin(r.Context(), id.UserID, req.Pin)
	if err != nil {
		h.writeError(w, r, "verify pin", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.PinValidResponse{Success: true, Valid: valid})
}

func (h *AuthHandler) handlePinChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.PinChangeRequest
	if !decode(w, r, &req) {
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	if err := h.svc.ChangePin(r.Context(), id.UserID, req.OldPin, req.NewPin); err != nil {
		h.writeError(w, r, "change pin", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "PIN changed successfully"})
}

func (h *AuthHandler) handlePinReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.PinResetRequest
	if !decode(w, r, &req) {
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	pin, err := h.svc.ResetPin(r.Context(), id.UserID, req.Password)
	if err != nil {
		h.writeError(w, r, "reset pin", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.PinResponse{
		Success: true,
		Message: "PIN reset to default (" + pin + ")",
		Pin:     pin,
	})
}

func (h *AuthHandler) handleCurrentPin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respond.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	pin, err := h.svc.CurrentPin(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, r, "get pin", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.PinResponse{Success: true, Pin: pin})
}

func (h *AuthHandler) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.OTPRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestOTP(r.Context(), req.Username); err != nil {
		h.writeError(w, r, "request otp", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{
		Success: true,
		Message: "If the account exists, an OTP has been sent to the linked email",
	})
}

func (h *AuthHandler) handleOTPReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.OTPResetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPasswordWithOTP(r.Context(), req.Username, req.OTP, req.NewPassword); err != nil {
		h.writeError(w, r, "otp reset", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Password reset successfully"})
}

func (h *AuthHandler) handleRecoveryReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req dto.RecoveryResetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPasswordWithRecoveryKey(r.Context(), req.Username, req.RecoveryKey, req.NewPassword); err != nil {
		h.writeError(w, r, "recovery reset", err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Password reset successfully"})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	// An empty body decodes to the zero request so field validation reports it.
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}
