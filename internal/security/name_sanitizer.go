package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameRunes は表示名の最大文字数。
const maxDisplayNameRunes = 100

// maxUnescapePasses はエンティティの多重エンコードを剥がす最大回数。
const maxUnescapePasses = 8

// NameSanitizer はディレクトリから取得した表示名からマークアップと制御文字を取り除く。
// 表示名はセッションのスナップショットとしてダッシュボードにそのまま表示されるため、
// セッションへ埋め込む前に必ず通す。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はタグを一切許可しないポリシーでNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、制御文字を落とし、空白を正規化した表示名を返す。
func (s *NameSanitizer) Sanitize(name string) string {
	stripped := s.stripMarkup(name)

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	runes := []rune(cleaned)
	if len(runes) > maxDisplayNameRunes {
		cleaned = string(runes[:maxDisplayNameRunes])
	}
	return cleaned
}

// stripMarkup はタグ除去とエンティティのデコードを出力が変わらなくなるまで繰り返す。
// StrictPolicyは&等をエスケープして返すため表示用にテキストへ戻すが、
// デコードで現れたタグも次の周回で除去される。
func (s *NameSanitizer) stripMarkup(name string) string {
	current := name
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(current))
		if next == current {
			return next
		}
		current = next
	}
	// 収束しない入力はタグの区切り文字を落とす
	return strings.Map(func(r rune) rune {
		if r == '<' || r == '>' {
			return -1
		}
		return r
	}, current)
}
