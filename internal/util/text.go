package util

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	reNonID   = regexp.MustCompile(`[^a-z0-9\-.]+`)
	reDashes  = regexp.MustCompile(`-+`)
	reSpaces  = regexp.MustCompile(`\s+`)
	punctRepl = strings.NewReplacer(
		"\u00a0", " ",
		"\u2013", "-",
		"\u2014", "-",
		"|", " ",
	)
	glyphRepl = strings.NewReplacer(
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"ﬀ", "ff", "ﬁ", "fi", "ﬂ", "fl", "ﬃ", "ffi", "ﬄ", "ffl", "ﬅ", "ft", "ﬆ", "st",
		"\r\n", "\n",
	)
)

// Single-byte code pages text is commonly mis-decoded through. Order matters:
// the first one that round-trips to valid UTF-8 wins.
var mojibakeCodePages = []encoding.Encoding{
	charmap.Windows1252,
	charmap.Windows1250,
	charmap.ISO8859_1,
}

// RepairText fixes encoding corruption and normalizes punctuation in a free-text
// cell. It never fails; at worst the input comes back trimmed.
func RepairText(input string) string {
	s := FixEncoding(input)
	s = punctRepl.Replace(s)
	return strings.TrimSpace(s)
}

// FixEncoding undoes UTF-8 text that was decoded through a legacy code page,
// straightens lookalike glyphs and normalizes to NFC.
func FixEncoding(input string) string {
	s := input
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	for i := 0; i < 3; i++ {
		fixed, ok := redecode(s)
		if !ok || fixed == s {
			break
		}
		s = fixed
	}
	// Unescape until stable so double-escaped entities settle in one pass.
	for !strings.Contains(s, "<") && strings.Contains(s, "&") {
		unescaped := html.UnescapeString(s)
		if unescaped == s {
			break
		}
		s = unescaped
	}
	s = glyphRepl.Replace(s)
	s = width.Fold.String(s)
	s = removeControlChars(s)
	return norm.NFC.String(s)
}

func redecode(s string) (string, bool) {
	if isASCII(s) {
		return s, false
	}
	for _, cp := range mojibakeCodePages {
		raw, err := cp.NewEncoder().String(s)
		if err != nil {
			continue
		}
		if !utf8.ValidString(raw) || isASCII(raw) {
			continue
		}
		if utf8.RuneCountInString(raw) >= utf8.RuneCountInString(s) {
			continue
		}
		if !plausibleText(raw) {
			continue
		}
		return raw, true
	}
	return s, false
}

// plausibleText reports whether every non-ASCII rune of a re-decoded string
// falls in the Latin and punctuation blocks real mojibake decodes into. Valid
// Czech text such as "ČŠ" also forms a UTF-8 pair, but it lands in Latin
// Extended-B or other scripts and is rejected here.
func plausibleText(s string) bool {
	for _, r := range s {
		switch {
		case r < utf8.RuneSelf:
		case r >= 0xa0 && r <= 0x17f:
		case r >= 0x2010 && r <= 0x20cf:
		case r == 0x2122:
		default:
			return false
		}
	}
	return true
}

func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// SanitizeID turns a display string into an identifier token made of
// [a-z0-9.-] with no leading, trailing or doubled hyphens. The result may be
// empty.
func SanitizeID(input string) string {
	s := strings.ToLower(input)
	s = reNonID.ReplaceAllString(s, "-")
	s = reDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func IsBlank(input string) bool {
	return strings.TrimSpace(input) == ""
}

func StringPtr(v string) *string { return &v }
