// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/linkgate/internal/auth"
	"github.com/hitoshi/linkgate/internal/middleware"
	"github.com/hitoshi/linkgate/internal/model"
)

// maxRequestBodyBytes は認証APIが受け付けるリクエストボディの上限。
const maxRequestBodyBytes = 4 << 10

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RequestLink(ctx context.Context, email string) error
	VerifyLink(ctx context.Context, token string) (*model.Session, error)
	ValidateSession(ctx context.Context, token string) (*model.Session, error)
	Logout(ctx context.Context, token string) error
}

// EmailLimiter はメールアドレス単位のログインリンク要求制限のインターフェース。
type EmailLimiter interface {
	AllowEmail(email string) bool
	EmailRate() rate.Limit
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	NotifyTimeout time.Duration // 通知1回あたりの期限。0の場合はリクエストのコンテキストに従う
}

// AuthHandler はマジックリンク認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	limiter EmailLimiter
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。limiterがnilの場合はメールアドレス単位の制限を行わない。
func NewAuthHandler(service AuthServiceInterface, limiter EmailLimiter, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		limiter: limiter,
		config:  config,
	}
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type verifyResponse struct {
	Success bool            `json:"success"`
	Session sessionResponse `json:"session"`
}

type sessionStatusResponse struct {
	Valid     bool          `json:"valid"`
	User      *userResponse `json:"user,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// sessionInvalidResponse は無効なセッションの応答。統一エラーフォーマットにvalidとreasonを加える。
type sessionInvalidResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
	middleware.ErrorResponseBody
}

// RequestMagicLink はログインリンクの発行を要求する。
// POST /api/auth/magic-link
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.ErrInvalidEmail)
		return
	}

	if h.limiter != nil && !h.limiter.AllowEmail(email) {
		middleware.WriteRateLimitResponse(w, h.limiter.EmailRate())
		return
	}

	ctx := r.Context()
	if h.config.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.NotifyTimeout)
		defer cancel()
	}

	if err := h.service.RequestLink(ctx, email); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// VerifyMagicLink はログインリンクを検証し、セッションを発行する。
// POST /api/auth/verify
func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.service.VerifyLink(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, verifyResponse{
		Success: true,
		Session: sessionResponse{
			Token:     session.Token,
			ExpiresAt: session.ExpiresAt,
			User:      toUserResponse(session.Identity),
		},
	})
}

// VerifyMagicLinkRedirect はメール内のリンクからのブラウザ遷移を処理する。
// 成功時はCookieを設定してダッシュボードへ、失敗時はエラーコード付きでログイン画面へリダイレクトする。
// GET /auth/verify?token=xxx
func (h *AuthHandler) VerifyMagicLinkRedirect(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimSpace(r.URL.Query().Get("token"))

	session, err := h.service.VerifyLink(r.Context(), tok)
	if err != nil {
		code := model.ErrCodeInternal
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.Code
		} else {
			slog.Error("magic link verification failed", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, h.loginErrorURL(code), http.StatusFound)
		return
	}

	h.setSessionCookie(w, session)
	http.Redirect(w, r, h.config.BaseURL, http.StatusFound)
}

// Session はセッショントークンの有効性と紐づくユーザーを返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	tok := middleware.TokenFromRequest(r)
	if tok == "" {
		writeSessionInvalid(w, model.ErrSessionNotFound)
		return
	}

	session, err := h.service.ValidateSession(r.Context(), tok)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			writeSessionInvalid(w, apiErr)
			return
		}
		handleServiceError(w, err)
		return
	}

	user := toUserResponse(session.Identity)
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Valid:     true,
		User:      &user,
		ExpiresAt: &session.ExpiresAt,
	})
}

// Logout はセッションを破棄する。トークンの有無や状態に関わらず常に成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if tok := middleware.TokenFromRequest(r); tok != "" {
		// Logoutは呼び出し側に失敗を返さない
		_ = h.service.Logout(r.Context(), tok)
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		Expires:  session.ExpiresAt,
		MaxAge:   int(model.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// loginErrorURL はBaseURL配下のログイン画面にエラーコードを付けたURLを返す。
func (h *AuthHandler) loginErrorURL(code string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + "/login?error=" + url.QueryEscape(code)
}

func writeSessionInvalid(w http.ResponseWriter, apiErr *model.APIError) {
	writeJSON(w, http.StatusUnauthorized, sessionInvalidResponse{
		Valid:  false,
		Reason: apiErr.Code,
		ErrorResponseBody: middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
	})
}

// decodeBody はJSONリクエストボディを読み込む。失敗時は400を書き込んでfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return false
	}
	return true
}

func toUserResponse(identity model.Identity) userResponse {
	return userResponse{
		ID:    identity.UserID,
		Email: identity.Email,
		Name:  identity.Name,
		Role:  identity.Role,
	}
}
