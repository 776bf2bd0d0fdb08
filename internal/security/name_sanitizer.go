package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService はトレント名のサニタイズ機能のインターフェースを定義する。
// カタログが返すトレント名は外部入力であり、HTMLマークアップや
// エンティティが混入することがあるため、保存前に必ずプレーンテキスト化する。
type NameSanitizerService interface {
	// Sanitize はトレント名からHTMLタグを全て除去し、
	// エンティティを復号したプレーンテキストを返す。
	// 前後の空白は取り除かれる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawName string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグを除去し、テキストのみを残す。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はトレント名をプレーンテキスト化して返す。
// StrictPolicyの出力はエンティティエンコードされるため、
// "&amp;" のような表記を元の文字に戻してから返す。
func (s *nameSanitizer) Sanitize(rawName string) string {
	stripped := s.policy.Sanitize(rawName)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
