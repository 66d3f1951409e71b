// Package classify decides whether a file holds text and which encoding decodes it.
package classify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/huangsam/locstat/schema"
)

// Sampling and threshold limits.
const (
	MaxSampleBytes           = 8192
	MaxFileSize        int64 = 10 << 20
	nullThreshold            = 0.01
	controlThreshold         = 0.02
	printableThreshold       = 0.85
)

// Reason explains a classification.
type Reason string

// Reasons in decision order.
const (
	ReasonEmpty        Reason = "empty"
	ReasonTooLarge     Reason = "too-large"
	ReasonExtension    Reason = "extension"
	ReasonSignature    Reason = "signature"
	ReasonNullBytes    Reason = "null-bytes"
	ReasonControlBytes Reason = "control-bytes"
	ReasonUndecodable  Reason = "undecodable"
	ReasonText         Reason = "text"
)

// Classification is the verdict for one file.
type Classification struct {
	Verdict  schema.Verdict
	Encoding *Encoding // nil unless Verdict is text
	Reason   Reason
	Detail   string
}

// IsText reports whether the file should be counted.
func (c Classification) IsText() bool {
	return c.Verdict == schema.TextVerdict
}

// String implements fmt.Stringer.
func (c Classification) String() string {
	switch {
	case c.IsText():
		return fmt.Sprintf("text (%s)", c.Encoding)
	case c.Detail != "":
		return fmt.Sprintf("binary (%s: %s)", c.Reason, c.Detail)
	default:
		return fmt.Sprintf("binary (%s)", c.Reason)
	}
}

func binary(reason Reason, detail string) Classification {
	return Classification{Verdict: schema.BinaryVerdict, Reason: reason, Detail: detail}
}

// classifyMeta applies the decisions that need no file content.
func classifyMeta(fullSize int64, ext string) (Classification, bool) {
	switch {
	case fullSize == 0:
		return binary(ReasonEmpty, ""), true
	case fullSize > MaxFileSize:
		return binary(ReasonTooLarge, fmt.Sprintf("%d bytes", fullSize)), true
	case IsBinaryExtension(strings.ToLower(ext)):
		return binary(ReasonExtension, strings.ToLower(ext)), true
	}
	return Classification{}, false
}

// Classify decides whether a file is text from a prefix of its content.
// sample holds at most MaxSampleBytes from the start of a file of fullSize bytes.
// The first matching rule wins; the result depends only on the arguments.
func Classify(sample []byte, fullSize int64, ext string) Classification {
	if c, done := classifyMeta(fullSize, ext); done {
		return c
	}
	if len(sample) == 0 {
		return binary(ReasonUndecodable, "no content")
	}
	if name, ok := matchSignature(sample); ok {
		return binary(ReasonSignature, name)
	}

	var nulls, controls int
	for _, b := range sample {
		switch {
		case b == 0:
			nulls++
			controls++
		case b < 0x20 && b != '\t' && b != '\n' && b != '\r':
			controls++
		}
	}
	n := float64(len(sample))
	if float64(nulls)/n > nullThreshold {
		return binary(ReasonNullBytes, "")
	}
	if float64(controls)/n > controlThreshold {
		return binary(ReasonControlBytes, "")
	}

	truncated := int64(len(sample)) < fullSize
	for _, enc := range decoderChain {
		text, ok := enc.decode(sample, truncated)
		if !ok {
			continue
		}
		if printableRatio(text) >= printableThreshold {
			return Classification{Verdict: schema.TextVerdict, Encoding: enc, Reason: ReasonText}
		}
	}
	return binary(ReasonUndecodable, "")
}

// Inspection is the classification of a file on disk along with what was read.
type Inspection struct {
	Classification
	Size   int64
	Sample []byte
}

// ClassifyFile stats and samples the file at path, then classifies it.
func ClassifyFile(path string) (Inspection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Inspection{}, err
	}
	if !info.Mode().IsRegular() {
		return Inspection{}, fmt.Errorf("%s is not a regular file", path)
	}
	size := info.Size()
	ext := filepath.Ext(path)
	if c, done := classifyMeta(size, ext); done {
		return Inspection{Classification: c, Size: size}, nil
	}

	sample, err := readSample(path)
	if err != nil {
		return Inspection{}, err
	}
	return Inspection{Classification: Classify(sample, size, ext), Size: size, Sample: sample}, nil
}

// readSample reads up to MaxSampleBytes from the start of path.
func readSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, MaxSampleBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf[:n], nil
}
