// Package textenc detects the text encoding of source files and decodes them
// to UTF-8.
package textenc

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/phobologic/pydependra/internal/model"
)

// Fallback is the encoding assumed when nothing in the bytes identifies one.
const Fallback = "utf-8"

// cookieRe matches a PEP 263 coding declaration.
var cookieRe = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)

// aliases maps Python codec spellings that WHATWG labels do not cover.
var aliases = map[string]string{
	"latin-1":     "iso-8859-1",
	"iso-latin-1": "iso-8859-1",
	"l1":          "iso-8859-1",
	"utf8":        "utf-8",
	"u8":          "utf-8",
	"utf-8-sig":   "utf-8",
	"cp65001":     "utf-8",
	"ascii":       "us-ascii",
	"646":         "us-ascii",
}

// Detection is the outcome of Detect.
type Detection struct {
	Name     string
	Encoding encoding.Encoding
	BOM      int // bytes of byte-order mark to strip
	Declared bool
}

// Detect guesses the encoding of src: byte-order mark, then a coding
// declaration in the first two lines, then UTF-16 without a BOM, then UTF-8
// validity, and finally Windows-1252, which decodes any byte sequence.
func Detect(src []byte) (Detection, error) {
	switch {
	case bytes.HasPrefix(src, []byte{0xEF, 0xBB, 0xBF}):
		return Detection{Name: "utf-8", Encoding: unicode.UTF8, BOM: 3}, nil
	case bytes.HasPrefix(src, []byte{0xFF, 0xFE}):
		return Detection{Name: "utf-16le", Encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), BOM: 2}, nil
	case bytes.HasPrefix(src, []byte{0xFE, 0xFF}):
		return Detection{Name: "utf-16be", Encoding: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), BOM: 2}, nil
	}

	if name, ok := declared(src); ok {
		enc, canonical, err := lookup(name)
		if err != nil {
			return Detection{}, err
		}
		return Detection{Name: canonical, Encoding: enc, Declared: true}, nil
	}

	if bytes.IndexByte(src, 0) >= 0 {
		if e, ok := utf16Guess(src); ok {
			return Detection{Name: e, Encoding: unicode.UTF16(endianFor(e), unicode.IgnoreBOM)}, nil
		}
	}
	if len(src) == 0 || utf8.Valid(src) {
		return Detection{Name: Fallback, Encoding: unicode.UTF8}, nil
	}
	return Detection{Name: "windows-1252", Encoding: charmap.Windows1252}, nil
}

// Decode converts src to UTF-8 using the detected encoding and returns the
// encoding's name. Errors wrap model.ErrDecode.
func Decode(src []byte) ([]byte, string, error) {
	det, err := Detect(src)
	if err != nil {
		return nil, "", err
	}
	body := src[det.BOM:]

	if det.Name == "us-ascii" {
		for _, b := range body {
			if b >= 0x80 {
				return nil, det.Name, fmt.Errorf("%w: non-ascii byte 0x%02x", model.ErrDecode, b)
			}
		}
		return body, det.Name, nil
	}
	if det.Encoding == unicode.UTF8 {
		if !utf8.Valid(body) {
			return nil, det.Name, fmt.Errorf("%w: invalid %s", model.ErrDecode, det.Name)
		}
		return body, det.Name, nil
	}

	out, err := det.Encoding.NewDecoder().Bytes(body)
	if err != nil {
		return nil, det.Name, fmt.Errorf("%w: %s: %v", model.ErrDecode, det.Name, err)
	}
	return out, det.Name, nil
}

func declared(src []byte) (string, bool) {
	for i := 0; i < 2 && len(src) > 0; i++ {
		line := src
		if j := bytes.IndexByte(src, '\n'); j >= 0 {
			line, src = src[:j], src[j+1:]
		} else {
			src = nil
		}
		if m := cookieRe.FindSubmatch(line); m != nil {
			return string(m[1]), true
		}
		// Only a comment or blank first line lets the second line declare.
		if t := bytes.TrimSpace(line); len(t) > 0 && t[0] != '#' {
			break
		}
	}
	return "", false
}

func lookup(name string) (encoding.Encoding, string, error) {
	key := strings.ReplaceAll(strings.ToLower(name), "_", "-")
	if a, ok := aliases[key]; ok {
		key = a
	}
	switch key {
	case "utf-8":
		return unicode.UTF8, "utf-8", nil
	case "us-ascii":
		return unicode.UTF8, "us-ascii", nil
	case "iso-8859-1":
		// WHATWG folds latin-1 into windows-1252; Python does not.
		return charmap.ISO8859_1, "iso-8859-1", nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, "", fmt.Errorf("%w: unknown encoding %q", model.ErrDecode, name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = key
	}
	return enc, canonical, nil
}

// utf16Guess spots BOM-less UTF-16 by the zero high bytes of ASCII text.
func utf16Guess(src []byte) (string, bool) {
	if len(src) < 4 || len(src)%2 != 0 {
		return "", false
	}
	var even, odd int
	for i := 0; i+1 < len(src); i += 2 {
		if src[i] == 0 {
			even++
		}
		if src[i+1] == 0 {
			odd++
		}
	}
	pairs := len(src) / 2
	switch {
	case odd*10 >= pairs*9 && even == 0:
		return "utf-16le", true
	case even*10 >= pairs*9 && odd == 0:
		return "utf-16be", true
	}
	return "", false
}

func endianFor(name string) unicode.Endianness {
	if name == "utf-16be" {
		return unicode.BigEndian
	}
	return unicode.LittleEndian
}
