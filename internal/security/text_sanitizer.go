// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はレコードストアから取得した表示用文字列からHTMLを除去する。
// レコードストアは外部から書き込まれ得るため、パッケージ名や特徴の文言に
// マークアップが混入していてもUIにはプレーンテキストとして渡す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は表示用文字列のサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのタグを除去したプレーンテキストを返す。
	// script, styleの中身は破棄する。前後の空白は除去する。
	// 空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、StrictPolicyがエスケープした実体参照を元に戻す。
// 戻り値はHTMLではなくテキストとして扱うこと。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
