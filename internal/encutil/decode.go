// Package encutil recovers text from subprocess output whose encoding is not
// self-describing. Windows PowerShell redirected through a byte pipe emits
// the console code page, UTF-16LE (often with a BOM), or UTF-8 depending on
// host, locale and version; the decoder here must guess right for the common
// cases and must never fail, whatever the bytes are.
package encutil

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

const (
	// Sample at most this many bytes for the zero-byte heuristic.
	heuristicSampleBytes = 512
	// Fraction of NUL bytes in the sample above which a buffer is treated
	// as a 16-bit-per-unit encoding candidate (ASCII text in UTF-16 is
	// roughly 50% NUL).
	heuristicZeroRatio = 0.20
)

// Decode converts raw subprocess output bytes into text. It never returns an
// error and never panics; undecodable input degrades to a permissive
// one-byte-one-rune decode.
func Decode(b []byte) string {
	return DecodeWithFallback(b, nil)
}

// DecodeWithFallback is Decode with an optional host-configured code page
// tried after the UTF-16/UTF-8 candidates and before the permissive final
// fallback.
func DecodeWithFallback(b []byte, fallback encoding.Encoding) string {
	if len(b) == 0 {
		return ""
	}

	// BOM-directed UTF-16. Verification still applies: a buffer that merely
	// starts with FF FE but is not UTF-16 falls through.
	if bytes.HasPrefix(b, bomUTF16LE) && len(b)%2 == 0 {
		if s, ok := decodeUTF16(b[2:], unicode.LittleEndian); ok {
			return stripLeadingBOM(s)
		}
	}
	if bytes.HasPrefix(b, bomUTF16BE) && len(b)%2 == 0 {
		if s, ok := decodeUTF16(b[2:], unicode.BigEndian); ok {
			return stripLeadingBOM(s)
		}
	}

	// BOM-less UTF-16 shows up when PowerShell inherits a UTF-16 console
	// encoding; detect it by NUL density. Little-endian is overwhelmingly
	// more common on Windows, so it goes first.
	if len(b)%2 == 0 && looksLikeUTF16(b) {
		if s, ok := decodeUTF16(b, unicode.LittleEndian); ok {
			return stripLeadingBOM(s)
		}
		if s, ok := decodeUTF16(b, unicode.BigEndian); ok {
			return stripLeadingBOM(s)
		}
	}

	// UTF-8, with or without signature.
	trimmed := bytes.TrimPrefix(b, bomUTF8)
	if utf8.Valid(trimmed) {
		return stripLeadingBOM(string(trimmed))
	}

	if fallback != nil {
		if s, err := fallback.NewDecoder().Bytes(b); err == nil {
			return stripLeadingBOM(string(s))
		}
	}

	// Latin-1 maps every byte to a code point, so this step cannot fail.
	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(b)
	return string(s)
}

// EncodingByName resolves an IANA code page name ("windows-1252", "gbk",
// "shift_jis", ...) for the configured fallback step.
func EncodingByName(name string) (encoding.Encoding, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, false
	}
	return enc, true
}

// decodeUTF16 decodes payload (no BOM) as UTF-16 with the given endianness,
// accepting the result only if re-encoding reproduces the original bytes.
// The round trip rejects false positives on short ambiguous buffers, where
// the x/text decoder would otherwise silently substitute U+FFFD.
func decodeUTF16(payload []byte, e unicode.Endianness) (string, bool) {
	if len(payload)%2 != 0 {
		return "", false
	}
	enc := unicode.UTF16(e, unicode.IgnoreBOM)
	decoded, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return "", false
	}
	s := string(decoded)
	re, err := enc.NewEncoder().String(s)
	if err != nil || !bytes.Equal([]byte(re), payload) {
		return "", false
	}
	return s, true
}

func looksLikeUTF16(b []byte) bool {
	n := min(len(b), heuristicSampleBytes)
	if n == 0 {
		return false
	}
	zeros := 0
	for _, c := range b[:n] {
		if c == 0 {
			zeros++
		}
	}
	return float64(zeros)/float64(n) > heuristicZeroRatio
}

func stripLeadingBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
