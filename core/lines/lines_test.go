package lines

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/huangsam/locstat/core/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestCount(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"single unterminated", "hello", 1},
		{"two lf", "hello\nworld\n", 2},
		{"trailing line", "hello\nworld", 2},
		{"crlf", "a\r\nb\r\n", 2},
		{"lone cr", "a\rb\rc", 3},
		{"mixed", "a\nb\r\nc\rd", 4},
		{"blank lines", "\n\n\n", 3},
		{"cr then lf split across lines", "\r\n\r\n", 2},
		{"cr cr", "\r\r", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Count(strings.NewReader(tt.content), classify.UTF8)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountAcrossBufferBoundary(t *testing.T) {
	// Place a CRLF exactly on the internal buffer boundary.
	content := strings.Repeat("x", bufferSize-1) + "\r\n" + "tail"
	got, err := Count(iotest.HalfReader(strings.NewReader(content)), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestCountDecodesWithEncoding(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String("第一行\n第二行\n第三行")
	require.NoError(t, err)

	got, err := Count(strings.NewReader(gbk), classify.GBK)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	// Invalid bytes are replaced rather than aborting the count.
	got, err = Count(strings.NewReader("ok\n\xff\xfe\nend"), classify.UTF8)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestCountReaderError(t *testing.T) {
	_, err := Count(iotest.ErrReader(errors.New("boom")), classify.UTF8)
	assert.Error(t, err)
}

func TestCountFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("import os\nprint(os)\n"), 0o644))

	assert.Equal(t, 2, CountFile(path, classify.UTF8))
	assert.Equal(t, 0, CountFile(filepath.Join(dir, "missing.py"), classify.UTF8))
}
