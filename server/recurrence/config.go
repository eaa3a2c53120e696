package recurrence

import (
	"io"
	"log/slog"
	"time"
)

// DefaultMaxOccurrences caps how many occurrences a single rule may produce.
const DefaultMaxOccurrences = 500

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// MaxOccurrences bounds every expansion, including rules that never end.
	// Values below 1 mean DefaultMaxOccurrences.
	MaxOccurrences int
	// Location is used for floating DTSTART/UNTIL values and for "now" when a
	// rule has no DTSTART. Nil means UTC.
	Location *time.Location
	// BulkCreate persists a generation in one insert; otherwise one insert per occurrence.
	BulkCreate bool

	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	MaxOccurrences: DefaultMaxOccurrences,
	Location:       time.UTC,
	BulkCreate:     true,
	CacheEnabled:   false,
}

// CachedEngineConfig memoizes expansions of rules with an explicit DTSTART.
// Suited to hosts that regenerate the same schedules often.
var CachedEngineConfig = EngineConfig{
	MaxOccurrences: DefaultMaxOccurrences,
	Location:       time.UTC,
	BulkCreate:     true,
	CacheEnabled:   true,
	CacheConfig:    DefaultCacheConfig,
}

func (c EngineConfig) maxOccurrences() int {
	if c.MaxOccurrences < 1 {
		return DefaultMaxOccurrences
	}
	return c.MaxOccurrences
}

func (c EngineConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now, which supplies the start of rules without DTSTART.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	e := &Engine{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	if config.CacheEnabled {
		e.cache = NewExpansionCache(config.CacheConfig)
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}
