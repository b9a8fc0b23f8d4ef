package ivfgo

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
}

// Option configures Manager behavior.
type Option func(*options)

// WithLogger configures structured logging.
//
// If nil is passed, logging is disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetricsCollector configures operational metrics collection.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector == nil {
			collector = NoopMetricsCollector{}
		}
		o.metricsCollector = collector
	}
}

// CreateOption configures collection creation.
type CreateOption func(*createOptions)

type createOptions struct {
	metric    MetricType
	overwrite bool
}

// WithMetric sets the distance metric for the collection. Defaults to L2.
func WithMetric(metric MetricType) CreateOption {
	return func(o *createOptions) {
		o.metric = metric
	}
}

// WithOverwrite drops an existing collection with the same name instead of
// failing with ErrAlreadyExists.
func WithOverwrite() CreateOption {
	return func(o *createOptions) {
		o.overwrite = true
	}
}
