package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// MessageInvalidBody is returned for a signup or login body that is not
// {"email": ..., "password": ...}.
const MessageInvalidBody = "Body must be JSON with non-empty email and password"

// SessionResponse is the body of a successful signup, login or refresh.
type SessionResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Provider    string `json:"provider"`
}

// LogoutResponse is the body of a logout.
type LogoutResponse struct {
	Message string `json:"message"`
}

type handlers struct {
	engine   *tokenauth.Engine
	logger   *zap.Logger
	clientIP KeyExtractor
}

type credentialsFunc func(context.Context, http.ResponseWriter, tokenauth.Credentials) (tokenauth.TokenPair, tokenauth.Identity, error)

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	h.withCredentials(w, r, h.engine.SignUp)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	h.withCredentials(w, r, h.engine.Login)
}

func (h *handlers) withCredentials(w http.ResponseWriter, r *http.Request, fn credentialsFunc) {
	creds, err := decodeCredentials(r)
	if err != nil {
		h.logger.Debug("rejected credentials body", zap.String("path", r.URL.Path), zap.Error(err))
		tokenauth.WriteError(w, &tokenauth.AuthError{
			Status:  http.StatusBadRequest,
			Message: MessageInvalidBody,
			Err:     err,
		})
		return
	}

	pair, identity, err := fn(h.requestContext(r), w, creds)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		AccessToken: pair.AccessToken,
		UserID:      identity.ID,
		Provider:    identity.Provider,
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(h.requestContext(r))
	pair, identity, err := h.engine.Rotate(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		AccessToken: pair.AccessToken,
		UserID:      identity.ID,
		Provider:    identity.Provider,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(h.requestContext(r))
	if err := h.engine.Revoke(w, r); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LogoutResponse{Message: "Signed out"})
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := tokenauth.StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("auth request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	tokenauth.WriteError(w, err)
}

func decodeCredentials(r *http.Request) (tokenauth.Credentials, error) {
	var creds tokenauth.Credentials

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&creds); err != nil {
		return tokenauth.Credentials{}, err
	}
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return tokenauth.Credentials{}, errors.New("email and password are required")
	}
	return creds, nil
}

func (h *handlers) requestContext(r *http.Request) context.Context {
	ctx := tokenauth.WithClientIP(r.Context(), h.clientIP(r))
	return tokenauth.WithUserAgent(ctx, r.UserAgent())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
