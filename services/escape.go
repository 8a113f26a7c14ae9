package services

import "strings"

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML replaces the five XML special characters with their entity
// references in a single left-to-right pass, so an existing "&amp;" becomes
// "&amp;amp;" rather than being left alone.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// xmlText strips runes that XML 1.0 cannot carry (most C0 controls, lone
// surrogates, U+FFFE/U+FFFF) and escapes the rest.
func xmlText(s string) string {
	return EscapeXML(strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r >= 0x20 && r <= 0xD7FF:
			return r
		case r >= 0xE000 && r <= 0xFFFD:
			return r
		case r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return -1
	}, s))
}
