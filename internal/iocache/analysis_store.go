package iocache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
)

// Table names for analysis tracking.
const (
	analysisRunsTable = "locstat_analysis_runs"
	fileLinesTable    = "locstat_file_lines"
)

// analysisTables lists the run history tables in dependency order.
var analysisTables = []string{analysisRunsTable, fileLinesTable}

// AnalysisStoreImpl implements the AnalysisStore interface.
type AnalysisStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.AnalysisStore = &AnalysisStoreImpl{} // Compile-time check

// NewAnalysisStore creates a new AnalysisStore with the specified backend.
func NewAnalysisStore(backend schema.DatabaseBackend, connStr string) (contract.AnalysisStore, error) {
	if backend == schema.NoneBackend {
		// Return a no-op store for disabled tracking
		return &AnalysisStoreImpl{backend: backend}, nil
	}

	db, err := openDB(backend, connStr, GetAnalysisDBFilePath())
	if err != nil {
		return nil, err
	}

	// Create the table schemas
	if err := createAnalysisTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create analysis tables: %w", err)
	}

	return &AnalysisStoreImpl{db: db, backend: backend}, nil
}

// createAnalysisTables creates the analysis tracking tables.
func createAnalysisTables(db *sql.DB, backend schema.DatabaseBackend) error {
	tables := []struct {
		name  string
		query string
	}{
		{analysisRunsTable, getCreateAnalysisRunsQuery(backend)},
		{fileLinesTable, getCreateFileLinesQuery(backend)},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}

	return nil
}

// getCreateAnalysisRunsQuery returns the CREATE TABLE query for locstat_analysis_runs.
func getCreateAnalysisRunsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(analysisRunsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				analysis_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				run_id VARCHAR(64) NOT NULL,
				owner VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				source TEXT NOT NULL,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms BIGINT,
				outcome VARCHAR(32),
				failure_reason TEXT,
				total_files INT NOT NULL DEFAULT 0,
				total_lines BIGINT NOT NULL DEFAULT 0
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				analysis_id BIGSERIAL PRIMARY KEY,
				run_id TEXT NOT NULL,
				owner TEXT NOT NULL,
				name TEXT NOT NULL,
				source TEXT NOT NULL,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms BIGINT,
				outcome TEXT,
				failure_reason TEXT,
				total_files INT NOT NULL DEFAULT 0,
				total_lines BIGINT NOT NULL DEFAULT 0
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				analysis_id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				owner TEXT NOT NULL,
				name TEXT NOT NULL,
				source TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				outcome TEXT,
				failure_reason TEXT,
				total_files INTEGER NOT NULL DEFAULT 0,
				total_lines INTEGER NOT NULL DEFAULT 0
			);
		`, quotedTableName)
	}
}

// getCreateFileLinesQuery returns the CREATE TABLE query for locstat_file_lines.
func getCreateFileLinesQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(fileLinesTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				analysis_id BIGINT NOT NULL,
				file_path VARCHAR(512) NOT NULL,
				extension VARCHAR(64) NOT NULL,
				language VARCHAR(128) NOT NULL,
				line_count BIGINT NOT NULL,
				size_bytes BIGINT NOT NULL,
				PRIMARY KEY (analysis_id, file_path)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				analysis_id BIGINT NOT NULL,
				file_path TEXT NOT NULL,
				extension TEXT NOT NULL,
				language TEXT NOT NULL,
				line_count BIGINT NOT NULL,
				size_bytes BIGINT NOT NULL,
				PRIMARY KEY (analysis_id, file_path)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				analysis_id INTEGER NOT NULL,
				file_path TEXT NOT NULL,
				extension TEXT NOT NULL,
				language TEXT NOT NULL,
				line_count INTEGER NOT NULL,
				size_bytes INTEGER NOT NULL,
				PRIMARY KEY (analysis_id, file_path)
			);
		`, quotedTableName)
	}
}

// BeginAnalysis creates a new analysis run and returns its unique ID.
func (as *AnalysisStoreImpl) BeginAnalysis(runID string, id schema.Identity, source string, startTime time.Time) (int64, error) {
	// Skip for NoneBackend
	if as.backend == schema.NoneBackend || as.db == nil {
		return 0, nil
	}

	quotedTableName := quoteTableName(analysisRunsTable, as.backend)
	columns := "run_id, owner, name, source, start_time"
	args := []any{runID, id.Owner, id.Name, source, formatTime(startTime, as.backend)}

	var analysisID int64
	var err error
	switch as.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING analysis_id`,
			quotedTableName, columns, placeholders(as.backend, len(args)))
		err = as.db.QueryRow(query, args...).Scan(&analysisID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			quotedTableName, columns, placeholders(as.backend, len(args)))
		var result sql.Result
		result, err = as.db.Exec(query, args...)
		if err == nil {
			analysisID, err = result.LastInsertId()
		}
	}

	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis run: %w", err)
	}
	return analysisID, nil
}

// EndAnalysis updates the analysis run with completion data.
func (as *AnalysisStoreImpl) EndAnalysis(analysisID int64, endTime time.Time, outcome string, failureReason string, totalFiles int, totalLines int) error {
	// Skip for NoneBackend
	if as.backend == schema.NoneBackend || as.db == nil {
		return nil
	}

	// 1. Get the start_time to calculate duration
	quotedTableName := quoteTableName(analysisRunsTable, as.backend)
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE analysis_id = %s`, quotedTableName, placeholders(as.backend, 1))
	startTime, err := as.scanTime(as.db.QueryRow(query, analysisID))
	if err != nil {
		return fmt.Errorf("failed to get start_time for analysis %d: %w", analysisID, err)
	}

	// 2. Update the run with completion data
	durationMs := endTime.Sub(startTime).Milliseconds()
	var reason any
	if failureReason != "" {
		reason = failureReason
	}

	var updateQuery string
	switch as.backend {
	case schema.PostgreSQLBackend:
		updateQuery = fmt.Sprintf(`UPDATE %s SET end_time = $1, run_duration_ms = $2, outcome = $3, failure_reason = $4,
			total_files = $5, total_lines = $6 WHERE analysis_id = $7`, quotedTableName)
	default: // SQLite and MySQL
		updateQuery = fmt.Sprintf(`UPDATE %s SET end_time = ?, run_duration_ms = ?, outcome = ?, failure_reason = ?,
			total_files = ?, total_lines = ? WHERE analysis_id = ?`, quotedTableName)
	}

	args := []any{formatTime(endTime, as.backend), durationMs, outcome, reason, totalFiles, totalLines, analysisID}
	if _, err := as.db.Exec(updateQuery, args...); err != nil {
		return fmt.Errorf("failed to update analysis run: %w", err)
	}
	return nil
}

// RecordFileLines stores every file record of a result in one transaction.
func (as *AnalysisStoreImpl) RecordFileLines(analysisID int64, files []*schema.FileRecord) error {
	// Skip for NoneBackend
	if as.backend == schema.NoneBackend || as.db == nil || len(files) == 0 {
		return nil
	}

	tx, err := as.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin file lines transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (analysis_id, file_path, extension, language, line_count, size_bytes) VALUES (%s)`,
		quoteTableName(fileLinesTable, as.backend), placeholders(as.backend, 6))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare file lines insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range files {
		if _, err := stmt.Exec(analysisID, f.Path, f.Extension, f.Language, f.Lines, f.SizeBytes); err != nil {
			return fmt.Errorf("failed to insert file lines for %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file lines: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (as *AnalysisStoreImpl) Close() error {
	if as.db != nil {
		return as.db.Close()
	}
	return nil
}

// GetStatus returns status information about the analysis store.
func (as *AnalysisStoreImpl) GetStatus() (schema.AnalysisStatus, error) {
	status := schema.AnalysisStatus{
		Backend:    string(as.backend),
		Connected:  as.db != nil,
		TableSizes: make(map[string]int64),
	}

	if as.backend == schema.NoneBackend || as.db == nil {
		return status, nil
	}

	quotedRuns := quoteTableName(analysisRunsTable, as.backend)

	// Get total runs
	if err := as.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedRuns)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		// Get last run info
		row := as.db.QueryRow(fmt.Sprintf("SELECT analysis_id, start_time FROM %s ORDER BY analysis_id DESC LIMIT 1", quotedRuns))
		lastRunID, lastRunTime, err := as.scanIDAndTime(row)
		if err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		status.LastRunID = lastRunID
		status.LastRunTime = lastRunTime

		// Get oldest run time
		row = as.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY analysis_id ASC LIMIT 1", quotedRuns))
		if status.OldestRunTime, err = as.scanTime(row); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}

		// Get total files analyzed
		row = as.db.QueryRow(fmt.Sprintf("SELECT COALESCE(SUM(total_files), 0) FROM %s", quotedRuns))
		if err := row.Scan(&status.TotalFilesAnalyzed); err != nil {
			return status, fmt.Errorf("failed to get total files analyzed: %w", err)
		}
	}

	// Get table sizes
	for _, table := range analysisTables {
		var count int64
		row := as.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, as.backend)))
		if err := row.Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	return status, nil
}

// GetAllAnalysisRuns retrieves all analysis runs from the store.
func (as *AnalysisStoreImpl) GetAllAnalysisRuns() ([]schema.AnalysisRunRecord, error) {
	// Skip for NoneBackend
	if as.backend == schema.NoneBackend || as.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT analysis_id, run_id, owner, name, source, start_time, end_time,
		run_duration_ms, outcome, failure_reason, total_files, total_lines
		FROM %s ORDER BY analysis_id`, quoteTableName(analysisRunsTable, as.backend))

	rows, err := as.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.AnalysisRunRecord
	for rows.Next() {
		var record schema.AnalysisRunRecord
		fields := []any{&record.AnalysisID, &record.RunID, &record.Owner, &record.Name, &record.Source}
		tail := []any{&record.RunDurationMs, &record.Outcome, &record.FailureReason, &record.TotalFiles, &record.TotalLines}

		switch as.backend {
		case schema.SQLiteBackend:
			var startTimeStr string
			var endTimeStr *string
			if err := rows.Scan(append(append(fields, &startTimeStr, &endTimeStr), tail...)...); err != nil {
				return nil, fmt.Errorf("failed to scan analysis run: %w", err)
			}
			if record.StartTime, err = parseTime(startTimeStr); err != nil {
				return nil, fmt.Errorf("failed to parse start_time: %w", err)
			}
			if endTimeStr != nil {
				endTime, err := parseTime(*endTimeStr)
				if err != nil {
					return nil, fmt.Errorf("failed to parse end_time: %w", err)
				}
				record.EndTime = &endTime
			}
		default: // MySQL and PostgreSQL store as native datetime
			if err := rows.Scan(append(append(fields, &record.StartTime, &record.EndTime), tail...)...); err != nil {
				return nil, fmt.Errorf("failed to scan analysis run: %w", err)
			}
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis runs: %w", err)
	}
	return results, nil
}

// GetAllFileLines retrieves all per-file line counts from the store.
func (as *AnalysisStoreImpl) GetAllFileLines() ([]schema.FileLinesRecord, error) {
	// Skip for NoneBackend
	if as.backend == schema.NoneBackend || as.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT analysis_id, file_path, extension, language, line_count, size_bytes
		FROM %s ORDER BY analysis_id, file_path`, quoteTableName(fileLinesTable, as.backend))

	rows, err := as.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query file lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.FileLinesRecord
	for rows.Next() {
		var record schema.FileLinesRecord
		if err := rows.Scan(&record.AnalysisID, &record.FilePath, &record.Extension, &record.Language,
			&record.Lines, &record.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan file lines: %w", err)
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file lines: %w", err)
	}
	return results, nil
}

// scanTime reads a single timestamp column stored in the backend's format.
func (as *AnalysisStoreImpl) scanTime(row *sql.Row) (time.Time, error) {
	if as.backend == schema.SQLiteBackend {
		var s string
		if err := row.Scan(&s); err != nil {
			return time.Time{}, err
		}
		return parseTime(s)
	}
	var t time.Time
	err := row.Scan(&t)
	return t, err
}

// scanIDAndTime reads an ID column followed by a timestamp column.
func (as *AnalysisStoreImpl) scanIDAndTime(row *sql.Row) (int64, time.Time, error) {
	var id int64
	if as.backend == schema.SQLiteBackend {
		var s string
		if err := row.Scan(&id, &s); err != nil {
			return 0, time.Time{}, err
		}
		t, err := parseTime(s)
		return id, t, err
	}
	var t time.Time
	err := row.Scan(&id, &t)
	return id, t, err
}
