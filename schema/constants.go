package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for durable storage.
	DatabaseBackend string

	// FetcherKind selects how repositories are materialized.
	FetcherKind string

	// Verdict is the outcome of content classification.
	Verdict string

	// FailureKind names the stage at which an analysis failed.
	FailureKind string

	// PollState is the state reported for an identity by a status poll.
	PollState string
)

// All output modes supported.
const (
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	CSVOut     OutputMode = "csv"
	YAMLOut    OutputMode = "yaml"
	ParquetOut OutputMode = "parquet"
)

// All database backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// All fetchers supported.
const (
	GitCLIFetcher FetcherKind = "git" // default
	GoGitFetcher  FetcherKind = "go-git"
)

// Classification verdicts.
const (
	TextVerdict   Verdict = "text"
	BinaryVerdict Verdict = "binary"
)

// Failure kinds.
const (
	FetchFailure FailureKind = "fetch"
	WalkFailure  FailureKind = "walk"
)

// Poll states.
const (
	NotReady PollState = "not_ready"
	Ready    PollState = "ready"
	Failed   PollState = "failed"
)

// Labels used by the aggregation.
const (
	NoExtensionLabel = "(none)"
	RootFolder       = "."
	UnknownLanguage  = "Other"
)

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut:    {},
	JSONOut:    {},
	CSVOut:     {},
	YAMLOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid database backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidFetcherKinds lists all valid fetchers.
var ValidFetcherKinds = map[FetcherKind]struct{}{
	GitCLIFetcher: {},
	GoGitFetcher:  {},
}
