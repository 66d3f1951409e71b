package outwriter

import (
	"cmp"
	"slices"
	"time"

	"github.com/huangsam/locstat/schema"
)

// Share is one row of an extension or language breakdown.
type Share struct {
	Label      string  `json:"label" yaml:"label"`
	Lines      int     `json:"lines" yaml:"lines"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// ResultReport is the ordered, serializable view of one analysis result.
type ResultReport struct {
	Owner      string                   `json:"owner" yaml:"owner"`
	Name       string                   `json:"name" yaml:"name"`
	Source     string                   `json:"source,omitempty" yaml:"source,omitempty"`
	RunID      string                   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ProducedAt *time.Time               `json:"produced_at,omitempty" yaml:"produced_at,omitempty"`
	TotalLines int                      `json:"total_lines" yaml:"total_lines"`
	TotalFiles int                      `json:"total_files" yaml:"total_files"`
	Files      []schema.FileRecord      `json:"files" yaml:"files"`
	Folders    []schema.FolderAggregate `json:"folders" yaml:"folders"`
	Extensions []Share                  `json:"extensions" yaml:"extensions"`
	Languages  []Share                  `json:"languages" yaml:"languages"`
}

// BuildReport orders a result for presentation: files and folders by lines
// descending then path, breakdowns by lines descending then label.
// A positive limit caps the file and folder lists.
func BuildReport(id schema.Identity, result *schema.AnalysisResult, limit int) ResultReport {
	report := ResultReport{Owner: id.Owner, Name: id.Name}
	if result == nil {
		return report
	}
	report.TotalLines = result.TotalLines
	report.TotalFiles = result.TotalFiles
	report.Files = capped(SortedFiles(result), limit)
	report.Folders = capped(SortedFolders(result), limit)
	report.Extensions = sortedShares(result.Extensions, result.TotalLines)
	report.Languages = sortedShares(result.Languages, result.TotalLines)
	return report
}

// BuildEntryReport is BuildReport plus the provenance of a cached entry.
func BuildEntryReport(entry *schema.CacheEntry, limit int) ResultReport {
	report := BuildReport(entry.Identity, entry.Result, limit)
	report.Source = entry.Source
	report.RunID = entry.RunID
	if !entry.ProducedAt.IsZero() {
		producedAt := entry.ProducedAt
		report.ProducedAt = &producedAt
	}
	return report
}

// SortedFiles returns the file records ordered by lines descending, then path.
func SortedFiles(result *schema.AnalysisResult) []schema.FileRecord {
	files := make([]schema.FileRecord, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, *f)
	}
	slices.SortFunc(files, func(a, b schema.FileRecord) int {
		if c := cmp.Compare(b.Lines, a.Lines); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return files
}

// SortedFolders returns the folder aggregates ordered by lines descending, then path.
func SortedFolders(result *schema.AnalysisResult) []schema.FolderAggregate {
	folders := make([]schema.FolderAggregate, 0, len(result.Folders))
	for _, f := range result.Folders {
		folders = append(folders, *f)
	}
	slices.SortFunc(folders, func(a, b schema.FolderAggregate) int {
		if c := cmp.Compare(b.Lines, a.Lines); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return folders
}

func sortedShares(lines map[string]int, total int) []Share {
	shares := make([]Share, 0, len(lines))
	for label, n := range lines {
		var pct float64
		if total > 0 {
			pct = float64(n) / float64(total) * 100
		}
		shares = append(shares, Share{Label: label, Lines: n, Percentage: pct})
	}
	slices.SortFunc(shares, func(a, b Share) int {
		if c := cmp.Compare(b.Lines, a.Lines); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return shares
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
