package actions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	limit := DefaultMaxInputSize

	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", limit - 1, false},
		{"Exact Limit", limit, false},
		{"Over Limit", limit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeInput(strings.Repeat("a", tt.inputSize))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "8")
	_, err := SanitizeInput("123456789")
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed", "Line1\nLine2\tTabbed"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput("bad\xff")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestSanitizeRichText(t *testing.T) {
	assert.Equal(t, "plain & simple", SanitizeRichText("plain & simple"))
	link := SanitizeRichText(`<a href="https://x.io" onclick="evil()">x</a>`)
	assert.Contains(t, link, `href="https://x.io"`)
	assert.NotContains(t, link, "onclick")
	assert.Equal(t, "<i>ok</i>", SanitizeRichText(`<i>ok</i><img src="x">`))
}

func TestRenderText(t *testing.T) {
	raw := `<b>hi</b><script>alert(1)</script>`
	for _, mode := range []string{"html", "HTML", "Html"} {
		assert.Equal(t, "<b>hi</b>", RenderText(raw, mode), mode)
	}
	assert.Equal(t, raw, RenderText(raw, ""), "plain text is sent as is")
	assert.Equal(t, raw, RenderText(raw, "MarkdownV2"))
}
