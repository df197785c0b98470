// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はサインアップ時にユーザーが入力した氏名からマークアップを除去する。
// 氏名はプロバイダーのuser_metadataに保存され、ダッシュボードの挨拶として
// 表示されるため、保存前にタグを取り除いておく。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize は入力から全てのタグを除去したプレーンテキストを返す。
	// 前後の空白を除去し、連続する空白は1つにまとめる。
	Sanitize(raw string) string
}

// nameSanitizer はTextSanitizerの実装。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxPasses は実体参照で二重に包まれたタグを剥がす最大回数。
const maxPasses = 3

// Sanitize は氏名からタグを除去する。
// StrictPolicyはテキスト中の記号を実体参照にエスケープするため、
// 表示時の二重エスケープを避けて元の文字に戻す。
// 戻した結果がタグを含む場合は再度除去する。
func (s *nameSanitizer) Sanitize(raw string) string {
	text := raw
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			break
		}
		text = next
	}
	return strings.Join(strings.Fields(text), " ")
}
