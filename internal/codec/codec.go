package codec

import "strings"

// Glyphs that stand in for SQL-sensitive characters inside stored text.
const (
	SingleQuoteGlyph = "\u02EE" // ˮ
	DoubleQuoteGlyph = "\u02DD" // ˝
	SemicolonGlyph   = "\u204F" // ⁏
	BackslashGlyph   = "\u2216" // ∖
	CommentGlyph     = "\u2014" // —
)

var (
	escaper = strings.NewReplacer(
		"'", SingleQuoteGlyph,
		`"`, DoubleQuoteGlyph,
		";", SemicolonGlyph,
		`\`, BackslashGlyph,
		"--", CommentGlyph,
	)
	unescaper = strings.NewReplacer(
		SingleQuoteGlyph, "'",
		DoubleQuoteGlyph, `"`,
		SemicolonGlyph, ";",
		BackslashGlyph, `\`,
		CommentGlyph, "--",
	)
)

// Escape replaces quote, semicolon, backslash and comment sequences with
// their glyphs. Unescape(Escape(s)) == s for any s free of the glyphs.
func Escape(s string) string {
	if s == "" {
		return s
	}
	return escaper.Replace(s)
}

func Unescape(s string) string {
	if s == "" {
		return s
	}
	return unescaper.Replace(s)
}

// Glyphs lists every substitution target, for collision checks.
func Glyphs() []string {
	return []string{SingleQuoteGlyph, DoubleQuoteGlyph, SemicolonGlyph, BackslashGlyph, CommentGlyph}
}

// ContainsGlyph reports whether s already holds one of the escape glyphs.
func ContainsGlyph(s string) bool {
	for _, g := range Glyphs() {
		if strings.Contains(s, g) {
			return true
		}
	}
	return false
}
