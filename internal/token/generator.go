// Package token はログインリンクとセッションに使う推測不能なトークンを生成する。
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// tokenBytes はトークンのエントロピー（256bit）。
const tokenBytes = 32

// Generator はトークン生成のインターフェース。
// テストで衝突を再現するために差し替え可能にしている。
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator は暗号論的乱数源から256bitのトークンを生成する。
// トークンはベアラークレデンシャルを兼ねるため、math/randは使用しない。
type RandomGenerator struct {
	source io.Reader
}

// NewGenerator はcrypto/randを乱数源とするRandomGeneratorを生成する。
func NewGenerator() *RandomGenerator {
	return &RandomGenerator{source: rand.Reader}
}

// Generate は32バイトの乱数を16進文字列（64文字）で返す。
func (g *RandomGenerator) Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(g.source, b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash はトークンのSHA-256ハッシュを返す。
// 永続ストアには生のトークンではなくハッシュを保存する。
func Hash(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// Fingerprint はログ出力用にトークンの先頭8文字だけを返す。
func Fingerprint(raw string) string {
	if len(raw) <= 8 {
		return raw
	}
	return raw[:8]
}

// compile-time interface check
var _ Generator = (*RandomGenerator)(nil)
