package cocgw

import "strings"

// FormatTag returns tag ready to be placed in a URL path: a leading '#' is
// encoded as %23, and a tag without one gets %23 prepended.
func FormatTag(tag string) string {
	if strings.HasPrefix(tag, "#") {
		return "%23" + tag[1:]
	}
	return "%23" + tag
}

// FixTag normalises user input into a game tag: it uppercases, drops every
// character outside [A-Z0-9], turns the letter O into the digit 0 (tags never
// contain O) and prepends '#'. FixTag(FixTag(s)) == FixTag(s).
func FixTag(tag string) string {
	var b strings.Builder
	b.Grow(len(tag) + 1)
	b.WriteByte('#')
	for _, r := range strings.ToUpper(tag) {
		switch {
		case r == 'O':
			b.WriteByte('0')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
