package app

import (
	"errors"
	"net/http"

	"youredu/api/internal/authpw"
)

// routeAuth handles the routes that work without a session. It reports
// whether the request was handled.
func (s *HTTPServer) routeAuth(w http.ResponseWriter, r *http.Request) bool {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		s.handleAuthSignUp(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleAuthSignIn(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email":
		s.handleAuthVerifyEmail(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email/resend":
		s.handleAuthResendVerification(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request":
		s.handleAuthRequestReset(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password":
		s.handleAuthResetPassword(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh":
		s.handleSessionRefresh(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/session/logout":
		s.handleSessionLogout(w, r)
	default:
		return false
	}
	return true
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"email":         session.Email,
		"role":          session.Role,
	})
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		if errors.Is(err, authpw.ErrMissingFields) || errors.Is(err, authpw.ErrInvalidEmail) || errors.Is(err, authpw.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
			return
		}
		writeServiceError(w, err)
		return
	}

	s.service.SendVerification(r.Context(), resp.User, resp.VerificationToken)

	response := map[string]any{
		"userId":  resp.User.ID,
		"message": "Please check your email to verify your account",
	}
	// Without outbound mail the token is handed back so local setups can verify.
	if !s.service.EmailConfigured() {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthResendVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, token, err := s.service.AuthPasswordService().ResendVerification(r.Context(), body.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.service.SendVerification(r.Context(), user, token)

	response := map[string]any{
		"message": "If the account exists and is unverified, a new email has been sent",
	}
	if !s.service.EmailConfigured() && token != "" {
		response["devVerificationToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, token, err := s.service.AuthPasswordService().RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.service.SendPasswordReset(r.Context(), user, token)

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	if !s.service.EmailConfigured() && token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.AuthPasswordService().ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		if errors.Is(err, authpw.ErrInvalidReset) || errors.Is(err, authpw.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
