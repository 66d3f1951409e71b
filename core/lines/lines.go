// Package lines counts lines of decoded text files.
package lines

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/huangsam/locstat/core/classify"
	"golang.org/x/text/transform"
)

const bufferSize = 32 * 1024

// CountFile counts the lines of the file at path decoded with enc.
// Any I/O failure yields 0; undecodable sequences are replaced, never fatal.
func CountFile(path string, enc *classify.Encoding) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	n, err := Count(f, enc)
	if err != nil {
		return 0
	}
	return n
}

// Count counts lines in r decoded with enc. Lines end at "\n", "\r\n" or a lone "\r";
// a final line without a terminator still counts. A nil enc reads r as UTF-8.
func Count(r io.Reader, enc *classify.Encoding) (int, error) {
	if enc == nil {
		enc = classify.UTF8
	}
	br := bufio.NewReaderSize(transform.NewReader(r, enc.NewDecoder()), bufferSize)
	buf := make([]byte, bufferSize)

	count := 0
	pending := false // bytes seen since the last terminator
	prevCR := false
	for {
		n, err := br.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case '\n':
				if !prevCR {
					count++
				}
				prevCR = false
				pending = false
			case '\r':
				count++
				prevCR = true
				pending = false
			default:
				prevCR = false
				pending = true
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if pending {
		count++
	}
	return count, nil
}
