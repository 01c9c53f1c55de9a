// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はゲストが入力する自由記述（名前、間柄、メッセージ）から
// HTMLを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyを使用し、全てのタグと属性を除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses はエンティティで隠したタグを剥がすための最大反復回数。
const maxSanitizePasses = 4

// Sanitizer は自由記述テキストのサニタイズ機能のインターフェース。
type Sanitizer interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// 前後の空白は除去する。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// TextSanitizer はSanitizerの実装。並行利用可能。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、エンティティを元の文字に戻す。
// "&lt;script&gt;" のようにエスケープで隠されたタグも除去されるまで繰り返す。
func (s *TextSanitizer) Sanitize(raw string) string {
	out := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// 収束しない入力はエスケープしたまま返す
	return strings.TrimSpace(s.policy.Sanitize(out))
}
