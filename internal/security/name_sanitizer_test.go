package security

import "testing"

// nameSanitizerがNameSanitizerServiceインターフェースを満たすことを検証
func TestNameSanitizer_ImplementsInterface(t *testing.T) {
	var _ NameSanitizerService = (*nameSanitizer)(nil)
}

// HTMLタグが除去されることを検証
func TestSanitize_StripsTags(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"タグなし", "Some.Release.2160p.WEB-DL", "Some.Release.2160p.WEB-DL"},
		{"boldタグ", "<b>Highlighted</b> Release", "Highlighted Release"},
		{"scriptタグ", `<script>alert(1)</script>Clean Name`, "Clean Name"},
		{"エンティティ復号", "Tom &amp; Jerry", "Tom & Jerry"},
		{"前後の空白", "  padded name  ", "padded name"},
		{"空文字列", "", ""},
		{"日本語名", "アニメ第1話", "アニメ第1話"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して出力が安定していることを検証
func TestSanitize_Idempotent(t *testing.T) {
	s := NewNameSanitizer()

	input := "<i>Some</i> &quot;Name&quot;"
	first := s.Sanitize(input)
	second := s.Sanitize(first)

	if first != second {
		t.Errorf("sanitize not idempotent: first=%q second=%q", first, second)
	}
}
