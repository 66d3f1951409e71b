package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	xunicode "golang.org/x/text/encoding/unicode"
)

// Encoding is a candidate text encoding in the decoder chain.
type Encoding struct {
	Name   string
	codec  encoding.Encoding
	decode func(sample []byte, truncated bool) (string, bool)
}

// Supported encodings, in the order they are tried.
var (
	UTF8        = &Encoding{Name: "utf-8", codec: xunicode.UTF8, decode: decodeUTF8}
	GBK         = &Encoding{Name: "gbk", codec: simplifiedchinese.GBK, decode: decodeGBK}
	GB2312      = &Encoding{Name: "gb2312", codec: simplifiedchinese.GBK, decode: decodeGB2312}
	Latin1      = &Encoding{Name: "latin-1", codec: charmap.ISO8859_1, decode: decodeWith(charmap.ISO8859_1, false)}
	Windows1252 = &Encoding{Name: "windows-1252", codec: charmap.Windows1252, decode: decodeWith(charmap.Windows1252, false)}
)

var decoderChain = []*Encoding{UTF8, GBK, GB2312, Latin1, Windows1252}

// Encodings returns the decoder chain in evaluation order.
func Encodings() []*Encoding {
	out := make([]*Encoding, len(decoderChain))
	copy(out, decoderChain)
	return out
}

// LookupEncoding returns the encoding with the given name.
func LookupEncoding(name string) (*Encoding, bool) {
	for _, enc := range decoderChain {
		if strings.EqualFold(enc.Name, name) {
			return enc, true
		}
	}
	return nil, false
}

// NewDecoder returns a decoder that replaces invalid sequences with U+FFFD.
func (e *Encoding) NewDecoder() *encoding.Decoder {
	return e.codec.NewDecoder()
}

// String implements fmt.Stringer.
func (e *Encoding) String() string {
	return e.Name
}

// decodeUTF8 accepts only valid UTF-8. A rune cut off by the sample boundary is dropped.
func decodeUTF8(sample []byte, truncated bool) (string, bool) {
	if truncated {
		sample = trimPartialRune(sample)
	}
	if !utf8.Valid(sample) {
		return "", false
	}
	return string(sample), true
}

// trimPartialRune drops an incomplete multi-byte sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if utf8.RuneStart(b[start]) {
			if !utf8.FullRune(b[start:]) {
				return b[:start]
			}
			return b
		}
	}
	return b
}

// decodeWith decodes with a replacing x/text decoder and rejects any replacement.
// The x/text single and double byte decoders report invalid input as U+FFFD
// rather than as an error, so the output is scanned for it. Only multi-byte
// codecs may end a truncated sample with a cut-off sequence.
func decodeWith(codec encoding.Encoding, multiByte bool) func([]byte, bool) (string, bool) {
	return func(sample []byte, truncated bool) (string, bool) {
		out, err := codec.NewDecoder().Bytes(sample)
		if err != nil {
			return "", false
		}
		s := string(out)
		if truncated && multiByte {
			s = strings.TrimSuffix(s, string(utf8.RuneError))
		}
		if strings.ContainsRune(s, utf8.RuneError) {
			return "", false
		}
		return s, true
	}
}

var decodeGBK = decodeWith(simplifiedchinese.GBK, true)

// decodeGB2312 restricts GBK to the EUC-CN byte ranges of GB2312.
func decodeGB2312(sample []byte, truncated bool) (string, bool) {
	for i := 0; i < len(sample); i++ {
		c := sample[i]
		if c < utf8.RuneSelf {
			continue
		}
		if c < 0xA1 || c > 0xF7 {
			return "", false
		}
		if i+1 == len(sample) {
			if truncated {
				break
			}
			return "", false
		}
		if t := sample[i+1]; t < 0xA1 || t > 0xFE {
			return "", false
		}
		i++
	}
	return decodeGBK(sample, truncated)
}

// printableRatio returns the share of runes that are printable or common whitespace.
func printableRatio(s string) float64 {
	total, printable := 0, 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || strings.ContainsRune("\t\n\r\f\v", r) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}
