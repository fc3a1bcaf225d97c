package action

import (
	"strconv"
	"strings"
)

// Key is a canonical dedup key. Two requests with equal keys are treated as
// the same logical request by the patience engine.
type Key string

func makeKey(kind Kind, label string, fields ...string) Key {
	var b strings.Builder
	b.WriteString(strconv.Quote(kind.String()))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(label))
	for _, f := range fields {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(f))
	}
	return Key(b.String())
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
