package contract

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlainLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"zero", 0.0, TraceValue},
		{"just before minor", 0.99, TraceValue},
		{"exactly minor", 1.0, MinorValue},
		{"just before major", 9.99, MinorValue},
		{"exactly major", 10.0, MajorValue},
		{"exactly dominant", 25.0, DominantValue},
		{"everything", 100.0, DominantValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetPlainLabel(tt.input))
		})
	}
}

func TestGetColorLabel(t *testing.T) {
	for _, pct := range []float64{0, 5, 15, 50} {
		assert.Contains(t, GetColorLabel(pct), GetPlainLabel(pct))
	}
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		path     string
		excludes []string
		expected bool
	}{
		{"vendor/lib/a.go", []string{"vendor/"}, true},
		{"vendor", []string{"vendor/"}, true},
		{"src/vendor.go", []string{"vendor/"}, false},
		{"web/app.min.js", []string{"*.min.js"}, true},
		{"web/app.js", []string{"*.min.js"}, false},
		{"docs/readme.md", []string{".md"}, true},
		{"pkg/generated_pb.go", []string{"generated"}, true},
		{"main.go", []string{"", "  "}, false},
		{"main.go", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path+"_"+strings.Join(tt.excludes, ","), func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldIgnore(tt.path, tt.excludes))
		})
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.go", TruncatePath("short.go", 20))
	assert.Equal(t, "...c/d.go", TruncatePath("a/b/c/d.go", 9))
	assert.Equal(t, "abcdef", TruncatePath("abcdef", 3))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "TRUE", "1"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v)
	}
	for _, s := range []string{"no", "False", "0"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

func TestSelectOutputFile(t *testing.T) {
	f, err := SelectOutputFile("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, f)

	path := filepath.Join(t.TempDir(), "out.json")
	f, err = SelectOutputFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestDBFilePaths(t *testing.T) {
	assert.NotEqual(t, GetCacheDBFilePath(), GetAnalysisDBFilePath())
	assert.True(t, strings.HasSuffix(GetCacheDBFilePath(), ".locstat_cache.db"))
}

func TestConfigureLogging(t *testing.T) {
	var buf bytes.Buffer
	ConfigureLogging(logrus.WarnLevel, "json", &buf)
	defer ConfigureLogging(logrus.InfoLevel, "text", os.Stderr)

	ComponentLogger("test").Info("hidden")
	LogWarn("visible", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"visible"`)
	assert.Contains(t, out, `"error":"boom"`)
}
