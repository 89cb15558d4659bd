package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/linkgate/internal/middleware"
	"github.com/hitoshi/linkgate/internal/model"
)

// ProfileHandler はセッション済みユーザー向けのHTTPハンドラー。
// 認証はセッションミドルウェアが行い、ハンドラーはコンテキストのスナップショットのみを参照する。
type ProfileHandler struct{}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{}
}

type meResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type adminPingResponse struct {
	OK     bool   `json:"ok"`
	UserID string `json:"user_id"`
}

// Me は現在のログインユーザー情報を返す。
// GET /api/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:      toUserResponse(session.Identity),
		ExpiresAt: session.ExpiresAt,
	})
}

// AdminPing は管理者ロールの疎通確認用エンドポイント。
// GET /api/admin/ping
func (h *ProfileHandler) AdminPing(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, adminPingResponse{OK: true, UserID: userID})
}
