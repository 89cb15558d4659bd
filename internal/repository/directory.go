package repository

import (
	"strings"

	"github.com/hitoshi/linkgate/internal/model"
)

// RolePolicy は新規作成するユーザーのロールを決める。
type RolePolicy struct {
	AdminEmails []string
	DefaultRole string
}

// RoleFor はメールアドレスに割り当てるロールを返す。
func (p RolePolicy) RoleFor(email string) string {
	for _, admin := range p.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return model.RoleAdmin
		}
	}
	if p.DefaultRole == "" {
		return model.RoleMember
	}
	return p.DefaultRole
}

// displayNameFromEmail はメールアドレスのローカル部を初期表示名にする。
func displayNameFromEmail(email string) string {
	if i := strings.LastIndex(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
