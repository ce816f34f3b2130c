package cachefs

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hwanginhyeok/stock/internal/models"
)

const asOfLayout = "2006-01-02"

// Key identifies one cache entry. Two keys with equal fields always produce
// the same canonical string; any differing field produces a different one.
type Key struct {
	Source      string
	Ticker      string
	Granularity models.Granularity
	Params      map[string]string
	AsOf        time.Time // date only; zero means "latest"
}

// With returns a copy of the key with one extra parameter
func (k Key) With(name, value string) Key {
	params := maps.Clone(k.Params)
	if params == nil {
		params = make(map[string]string, 1)
	}
	params[name] = value
	k.Params = params
	return k
}

var escaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, `,`, `\,`, `=`, `\=`)

// Canonical returns the escaped, pipe-separated form of the key:
// source|ticker|granularity|k1=v1,k2=v2|as-of
func (k Key) Canonical() string {
	names := slices.Sorted(maps.Keys(k.Params))
	params := make([]string, len(names))
	for i, name := range names {
		params[i] = escaper.Replace(name) + "=" + escaper.Replace(k.Params[name])
	}

	asOf := ""
	if !k.AsOf.IsZero() {
		asOf = k.AsOf.Format(asOfLayout)
	}

	return strings.Join([]string{
		escaper.Replace(k.Source),
		escaper.Replace(k.Ticker),
		escaper.Replace(string(k.Granularity)),
		strings.Join(params, ","),
		asOf,
	}, "|")
}

// ID returns the on-disk identifier: a readable prefix plus the SHA-256 of
// the canonical form
func (k Key) ID() string {
	sum := sha256.Sum256([]byte(k.Canonical()))
	return readable(k.Source) + "_" + readable(k.Ticker) + "_" + hex.EncodeToString(sum[:])
}

// String implements fmt.Stringer
func (k Key) String() string {
	return k.Canonical()
}

// TickerPrefix returns the canonical prefix shared by every key for a
// source and ticker
func TickerPrefix(source, ticker string) string {
	return escaper.Replace(source) + "|" + escaper.Replace(ticker) + "|"
}

// readable keeps a short, filesystem-safe slug of a key component
func readable(s string) string {
	const maxLen = 24
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxLen {
			break
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
