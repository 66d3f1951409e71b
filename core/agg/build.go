package agg

import (
	"path"
	"strings"

	"github.com/huangsam/locstat/schema"
)

// buildResult merges file records into totals and derived aggregates.
// The output does not depend on the order of records.
func buildResult(records []*schema.FileRecord) *schema.AnalysisResult {
	result := schema.NewAnalysisResult()

	for _, rec := range records {
		result.TotalLines += rec.Lines
		result.TotalFiles++
		result.Files[rec.Path] = rec

		folder := folderOf(rec.Path)
		fa, ok := result.Folders[folder]
		if !ok {
			fa = &schema.FolderAggregate{Path: folder}
			result.Folders[folder] = fa
		}
		fa.Lines += rec.Lines
		fa.Files++

		result.Extensions[rec.Extension] += rec.Lines
		result.Languages[rec.Language] += rec.Lines
	}

	applyPercentages(result)
	return result
}

// applyPercentages fills in shares of the total. All shares stay 0 when
// the total is 0.
func applyPercentages(result *schema.AnalysisResult) {
	if result.TotalLines == 0 {
		return
	}
	total := float64(result.TotalLines)
	for _, f := range result.Files {
		f.Percentage = float64(f.Lines) / total * 100
	}
	for _, f := range result.Folders {
		f.Percentage = float64(f.Lines) / total * 100
	}
}

// folderOf returns the immediate parent of a slash path, or the root label.
func folderOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "" {
		return schema.RootFolder
	}
	return dir
}

// extensionLabel returns the lowercase extension of rel, or the no-extension label.
func extensionLabel(rel string) string {
	ext := strings.ToLower(path.Ext(path.Base(rel)))
	if ext == "" || ext == "." {
		return schema.NoExtensionLabel
	}
	return ext
}
