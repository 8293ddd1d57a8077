package analytics

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/trace"

	"github.com/internhub/internhub/pkg/observability"
)

const (
	defaultCacheTTL          = 30 * time.Second
	defaultBucketConcurrency = 3
	defaultBatchConcurrency  = 10
	defaultUserTimeout       = 30 * time.Second
)

type options struct {
	logger            *observability.Logger
	metrics           *observability.Metrics
	now               func() time.Time
	cacheTTL          time.Duration
	bucketConcurrency int
	batchConcurrency  int
	userTimeout       time.Duration
}

// Option configures a Service, Updater or Scheduler. Options that do not apply
// to a component are ignored by it.
type Option func(*options)

// WithLogger sets the logger. Nil falls back to the default stdout logger.
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCacheTTL sets how long a clean dashboard bundle is served from memory.
// Zero or negative disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cacheTTL = ttl }
}

// WithBucketConcurrency bounds concurrent monthly bucket reads.
func WithBucketConcurrency(n int) Option {
	return func(o *options) { o.bucketConcurrency = n }
}

// WithBatchConcurrency bounds concurrent recomputes inside one batch.
func WithBatchConcurrency(n int) Option {
	return func(o *options) { o.batchConcurrency = n }
}

// WithUserTimeout bounds a single user's recompute inside a batch.
func WithUserTimeout(d time.Duration) Option {
	return func(o *options) { o.userTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		now:               time.Now,
		cacheTTL:          defaultCacheTTL,
		bucketConcurrency: defaultBucketConcurrency,
		batchConcurrency:  defaultBatchConcurrency,
		userTimeout:       defaultUserTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.DefaultLogger()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.bucketConcurrency <= 0 {
		o.bucketConcurrency = defaultBucketConcurrency
	}
	if o.batchConcurrency <= 0 {
		o.batchConcurrency = defaultBatchConcurrency
	}
	if o.userTimeout <= 0 {
		o.userTimeout = defaultUserTimeout
	}
	return o
}

// Service computes the read-only dashboard aggregates.
type Service struct {
	repo    Repository
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	bucketConcurrency int
	cache             *lru.LRU[string, *CompleteAnalytics]
}

// NewService creates a new analytics service
func NewService(repo Repository, opts ...Option) *Service {
	o := buildOptions(opts)

	s := &Service{
		repo:              repo,
		logger:            o.logger.WithField("component", "analytics_service"),
		metrics:           o.metrics,
		tracer:            observability.Tracer(),
		now:               o.now,
		bucketConcurrency: o.bucketConcurrency,
	}
	if o.cacheTTL > 0 {
		s.cache = lru.NewLRU[string, *CompleteAnalytics](1, nil, o.cacheTTL)
	}
	return s
}
