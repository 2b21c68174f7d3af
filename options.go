package elmrequirements

import "github.com/gofhir/elmrequirements/pkg/logger"

// Option configures an analysis.
type Option func(*Options)

// Options holds all configuration for an analysis run.
type Options struct {
	// SyntheticIDStart is the floor of generated local ids. Generated ids are
	// strictly greater than this value so they never collide with ids of
	// nodes produced by the translator.
	SyntheticIDStart int

	// LibraryCacheSize bounds the number of compiled library handles kept
	// by the library manager.
	LibraryCacheSize int

	// DetectCycles makes a reference to a definition that is still being
	// analyzed fail with ErrCyclicDefinition.
	DetectCycles bool

	// ValidateMustSupport compiles must-support paths with FHIRPath before
	// they are reported.
	ValidateMustSupport bool

	// ReportFormat is the serialization used by report writers.
	ReportFormat string

	// Logger receives diagnostics. Defaults to logger.Default().
	Logger *logger.Logger

	// Metrics receives traversal counters. Nil disables recording.
	Metrics *Metrics

	// WorkerCount bounds the number of libraries analyzed in parallel by
	// batch analysis.
	WorkerCount int
}

// Report formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		SyntheticIDStart:    10000,
		LibraryCacheSize:    100,
		DetectCycles:        true,
		ValidateMustSupport: true,
		ReportFormat:        FormatJSON,
		Logger:              logger.Default(),
		WorkerCount:         4,
	}
}

// Apply returns DefaultOptions with opts applied in order.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithSyntheticIDStart sets the floor of generated local ids.
func WithSyntheticIDStart(start int) Option {
	return func(o *Options) {
		if start >= 0 {
			o.SyntheticIDStart = start
		}
	}
}

// WithLibraryCacheSize sets the library handle cache size.
func WithLibraryCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.LibraryCacheSize = size
		}
	}
}

// WithCycleDetection enables or disables detection of self-referential
// definitions.
func WithCycleDetection(enable bool) Option {
	return func(o *Options) {
		o.DetectCycles = enable
	}
}

// WithMustSupportValidation enables FHIRPath compilation of must-support
// paths in reports.
func WithMustSupportValidation(enable bool) Option {
	return func(o *Options) {
		o.ValidateMustSupport = enable
	}
}

// WithReportFormat sets the report serialization ("json" or "yaml").
// Unknown formats are ignored.
func WithReportFormat(format string) Option {
	return func(o *Options) {
		switch format {
		case FormatJSON, FormatYAML:
			o.ReportFormat = format
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithMetrics records traversal counters into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithWorkerCount sets the batch analysis parallelism.
func WithWorkerCount(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.WorkerCount = n
		}
	}
}

// --- Presets ---

// LenientOptions returns options for analyzing libraries that are known to
// contain recursive definitions or non-FHIR models.
func LenientOptions() []Option {
	return []Option{
		WithCycleDetection(false),
		WithMustSupportValidation(false),
	}
}
