// Package schema defines the data model shared by the analysis engine and its adapters.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// Identity names a repository independently of the URL it is fetched from.
type Identity struct {
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
}

// NewIdentity returns a trimmed Identity.
func NewIdentity(owner, name string) Identity {
	return Identity{Owner: strings.TrimSpace(owner), Name: strings.TrimSpace(name)}
}

// Key returns the "owner/name" form used for map and store keys.
func (id Identity) Key() string {
	return id.Owner + "/" + id.Name
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return id.Key()
}

// Validate reports whether both parts are usable as a key and as a path component.
func (id Identity) Validate() error {
	for _, part := range []struct{ label, value string }{{"owner", id.Owner}, {"name", id.Name}} {
		switch {
		case part.value == "":
			return fmt.Errorf("%s must not be empty", part.label)
		case part.value == "." || part.value == "..":
			return fmt.Errorf("%s must not be %q", part.label, part.value)
		case strings.ContainsAny(part.value, "/\\ \t\r\n"):
			return fmt.Errorf("%s %q must not contain slashes or whitespace", part.label, part.value)
		}
	}
	return nil
}

// ParseIdentity parses the "owner/name" form.
func ParseIdentity(s string) (Identity, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Identity{}, fmt.Errorf("identity %q must have the form owner/name", s)
	}
	id := NewIdentity(owner, name)
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// FileRecord holds the counted lines of one text file.
type FileRecord struct {
	Path       string  `json:"path" yaml:"path"`
	Lines      int     `json:"lines" yaml:"lines"`
	Extension  string  `json:"extension" yaml:"extension"`
	Language   string  `json:"language" yaml:"language"`
	SizeBytes  int64   `json:"size_bytes" yaml:"size_bytes"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// FolderAggregate sums the files whose immediate parent is Path.
type FolderAggregate struct {
	Path       string  `json:"path" yaml:"path"`
	Lines      int     `json:"lines" yaml:"lines"`
	Files      int     `json:"files" yaml:"files"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// AnalysisResult is the immutable outcome of a successful walk.
type AnalysisResult struct {
	TotalLines int                         `json:"total_lines" yaml:"total_lines"`
	TotalFiles int                         `json:"total_files" yaml:"total_files"`
	Files      map[string]*FileRecord      `json:"files" yaml:"files"`
	Folders    map[string]*FolderAggregate `json:"folders" yaml:"folders"`
	Extensions map[string]int              `json:"extensions" yaml:"extensions"`
	Languages  map[string]int              `json:"languages" yaml:"languages"`
}

// NewAnalysisResult returns an empty result with initialized maps.
func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		Files:      make(map[string]*FileRecord),
		Folders:    make(map[string]*FolderAggregate),
		Extensions: make(map[string]int),
		Languages:  make(map[string]int),
	}
}

// AnalysisFailure records why a pipeline produced no result.
type AnalysisFailure struct {
	Kind   FailureKind `json:"kind" yaml:"kind"`
	Reason string      `json:"reason" yaml:"reason"`
}

// Error implements error.
func (f *AnalysisFailure) Error() string {
	return fmt.Sprintf("%s failed: %s", f.Kind, f.Reason)
}

// CacheEntry is the completed outcome of one pipeline for an identity.
// Exactly one of Result and Failure is set.
type CacheEntry struct {
	Identity   Identity         `json:"identity" yaml:"identity"`
	Source     string           `json:"source" yaml:"source"`
	RunID      string           `json:"run_id" yaml:"run_id"`
	Result     *AnalysisResult  `json:"result,omitempty" yaml:"result,omitempty"`
	Failure    *AnalysisFailure `json:"failure,omitempty" yaml:"failure,omitempty"`
	ProducedAt time.Time        `json:"produced_at" yaml:"produced_at"`
}

// Succeeded reports whether the entry carries a result.
func (e *CacheEntry) Succeeded() bool {
	return e != nil && e.Result != nil && e.Failure == nil
}

// FreshAt reports whether the entry is still within the freshness window at now.
func (e *CacheEntry) FreshAt(now time.Time, freshness time.Duration) bool {
	return e != nil && now.Sub(e.ProducedAt) < freshness
}

// RequestOutcome is the answer to an analysis request.
type RequestOutcome struct {
	Accepted  bool        `json:"accepted"`
	Coalesced bool        `json:"coalesced,omitempty"`
	Cached    bool        `json:"cached"`
	Entry     *CacheEntry `json:"entry,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
}

// PollOutcome is the answer to a status poll.
type PollOutcome struct {
	State  PollState       `json:"state"`
	Result *AnalysisResult `json:"result,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// TaskInfo describes a running pipeline.
type TaskInfo struct {
	Identity  Identity  `json:"identity"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
}

// ClassificationReport is the printable verdict for one inspected file.
type ClassificationReport struct {
	Path      string  `json:"path" yaml:"path"`
	Verdict   Verdict `json:"verdict" yaml:"verdict"`
	Encoding  string  `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Reason    string  `json:"reason" yaml:"reason"`
	Detail    string  `json:"detail,omitempty" yaml:"detail,omitempty"`
	SizeBytes int64   `json:"size_bytes" yaml:"size_bytes"`
	Lines     int     `json:"lines" yaml:"lines"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
}
