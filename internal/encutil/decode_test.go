package encutil

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func encodeUTF16(t *testing.T, s string, e unicode.Endianness, withBOM bool) []byte {
	t.Helper()
	bom := unicode.IgnoreBOM
	if withBOM {
		bom = unicode.UseBOM
	}
	b, err := unicode.UTF16(e, bom).NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode utf16: %v", err)
	}
	return []byte(b)
}

func TestDecode_EmptyInput(t *testing.T) {
	if got := Decode(nil); got != "" {
		t.Fatalf("got %q want empty", got)
	}
	if got := Decode([]byte{}); got != "" {
		t.Fatalf("got %q want empty", got)
	}
}

func TestDecode_ASCIIPassesThroughUnchanged(t *testing.T) {
	cases := []string{
		"hello\r\n",
		"Get-ChildItem -Path C:/Temp",
		"exit code 5",
		"   ",
	}
	for _, in := range cases {
		if got := Decode([]byte(in)); got != in {
			t.Fatalf("ascii %q decoded to %q", in, got)
		}
	}
}

func TestDecode_UTF16WithBOM(t *testing.T) {
	cases := []struct {
		name string
		text string
		e    unicode.Endianness
	}{
		{name: "le_ascii", text: "hello world\r\n", e: unicode.LittleEndian},
		{name: "le_cjk", text: "你好", e: unicode.LittleEndian},
		{name: "be_ascii", text: "hello", e: unicode.BigEndian},
		{name: "be_mixed", text: "Grüße 漢字", e: unicode.BigEndian},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := encodeUTF16(t, tc.text, tc.e, true)
			if got := Decode(b); got != tc.text {
				t.Fatalf("got %q want %q", got, tc.text)
			}
		})
	}
}

func TestDecode_UTF16LEWithoutBOMByHeuristic(t *testing.T) {
	text := "Directory listing of C:\\Temp\r\n"
	b := encodeUTF16(t, text, unicode.LittleEndian, false)
	if got := Decode(b); got != text {
		t.Fatalf("got %q want %q", got, text)
	}
}

func TestDecode_UTF8SignatureStripped(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	if got := Decode(in); got != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}
}

func TestDecode_ValidUTF8MultiByte(t *testing.T) {
	in := "héllo wörld — 你好"
	if got := Decode([]byte(in)); got != in {
		t.Fatalf("got %q want %q", got, in)
	}
}

func TestDecode_GarbageNeverFails(t *testing.T) {
	cases := [][]byte{
		{0xC3, 0x28},             // invalid UTF-8 continuation
		{0xFF, 0xFD, 0x00},       // odd length, not a BOM pair
		{0x80, 0x81, 0x82, 0x83}, // bare continuation bytes
		{0x00},                   // single NUL
	}
	for _, in := range cases {
		got := Decode(in)
		if len(got) == 0 {
			t.Fatalf("garbage %v decoded to empty", in)
		}
	}
}

func TestDecode_FallbackCodePage(t *testing.T) {
	// 0x93/0x94 are curly quotes in windows-1252 but invalid UTF-8.
	in := []byte{0x93, 0x68, 0x69, 0x94}
	got := DecodeWithFallback(in, charmap.Windows1252)
	if got != "“hi”" {
		t.Fatalf("got %q want %q", got, "“hi”")
	}
}

func TestDecode_RoundTripRejectsFalsePositive(t *testing.T) {
	// Starts with FF FE but the remainder is not the UTF-16 encoding of
	// anything that re-encodes to the same bytes once it holds an unpaired
	// surrogate; must fall through instead of returning mojibake silently.
	in := []byte{0xFF, 0xFE, 0x00, 0xD8, 0x41, 0x00} // lone high surrogate
	got := Decode(in)
	if strings.ContainsRune(got, '\uFFFD') {
		t.Fatalf("replacement char leaked through round-trip gate: %q", got)
	}
}

func TestEncodingByName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{name: "windows1252", in: "windows-1252", ok: true},
		{name: "gbk", in: "GBK", ok: true},
		{name: "empty", in: "", ok: false},
		{name: "unknown", in: "no-such-codepage", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := EncodingByName(tc.in)
			if ok != tc.ok {
				t.Fatalf("EncodingByName(%q) ok=%v want %v", tc.in, ok, tc.ok)
			}
		})
	}
}

func TestLooksLikeUTF16(t *testing.T) {
	if looksLikeUTF16([]byte("plain ascii text")) {
		t.Fatalf("ascii misdetected as utf16")
	}
	if !looksLikeUTF16([]byte{'h', 0, 'i', 0, '!', 0}) {
		t.Fatalf("padded text not detected as utf16")
	}
}
