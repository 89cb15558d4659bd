package model

import "time"

// ロール
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// User はディレクトリに登録されたユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity はセッションに埋め込むユーザー情報のスナップショット。
// セッション作成時にディレクトリから1回だけ解決し、以後は変更しない。
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// Identity はユーザーからセッション用のスナップショットを作る。
func (u *User) Identity() Identity {
	return Identity{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
}
