package auth

import (
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

// maxEmailLength はRFC 5321のパス長制限から導いたアドレスの最大長。
const maxEmailLength = 254

var errMalformedEmail = errors.New("malformed email address")

// NormalizeEmail はメールアドレスを検証し、比較用の正規形を返す。
// 前後の空白を除去し、ドメインをIDNAでASCII化したうえで全体を小文字にする。
// 表示名付き（"Alice <a@example.com>"）やドットを含まないドメインは受け付けない。
func NormalizeEmail(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" || len(candidate) > maxEmailLength {
		return "", errMalformedEmail
	}

	at := strings.LastIndex(candidate, "@")
	if at <= 0 || at == len(candidate)-1 {
		return "", errMalformedEmail
	}
	local, domain := candidate[:at], candidate[at+1:]

	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", errMalformedEmail
	}
	if !strings.Contains(asciiDomain, ".") {
		return "", errMalformedEmail
	}

	normalized := strings.ToLower(local + "@" + asciiDomain)
	if len(normalized) > maxEmailLength {
		return "", errMalformedEmail
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Name != "" || addr.Address != normalized {
		return "", errMalformedEmail
	}
	return normalized, nil
}
