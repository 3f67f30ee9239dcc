package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoWorkDir is returned when no working directory is specified.
	ErrNoWorkDir = errors.New("no working directory specified")

	// ErrInvalidBatchSize is returned when the scan batch size is <= 0.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be > 0")

	// ErrInvalidRescanInterval is returned when the rescan interval is <= 0.
	ErrInvalidRescanInterval = errors.New("invalid rescan interval: must be > 0")

	// ErrInvalidSearchMode is returned when the search mode is not recognized.
	ErrInvalidSearchMode = errors.New("invalid search mode: must be prefix or contains")

	// ErrInvalidMaxResults is returned when the result cap is <= 0.
	ErrInvalidMaxResults = errors.New("invalid max results: must be > 0")

	// ErrInvalidBudget is returned when a search budget is <= 0.
	ErrInvalidBudget = errors.New("invalid search budget: must be > 0")

	// ErrInvalidLiveBatch is returned when the live batch size is <= 0.
	ErrInvalidLiveBatch = errors.New("invalid live batch size: must be > 0")

	// ErrInvalidWatchTiming is returned when a watcher duration is <= 0.
	ErrInvalidWatchTiming = errors.New("invalid watch timing: must be > 0")

	// ErrInvalidCircuitBreaker is returned when the breaker threshold is <= 0.
	ErrInvalidCircuitBreaker = errors.New("invalid circuit breaker threshold: must be > 0")

	// ErrInvalidCompactRatio is returned when the compaction ratio is outside (0, 1].
	ErrInvalidCompactRatio = errors.New("invalid compact ratio: must be in (0, 1]")

	// ErrInvalidQueueSize is returned when the bus queue size is <= 0.
	ErrInvalidQueueSize = errors.New("invalid queue size: must be > 0")

	// ErrInvalidDisplayMode is returned when display mode is not recognized.
	ErrInvalidDisplayMode = errors.New("invalid display mode: must be table, json, or simple")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")

	// ErrInvalidSettings is returned when a JSON settings file cannot be decoded.
	ErrInvalidSettings = errors.New("invalid settings file")
)
