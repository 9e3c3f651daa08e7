package goAuthClient

import (
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goAuthClient/apiclient"
	"github.com/MrEthical07/goAuthClient/internal/flows"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/tokenstore"
)

// Builder assembles a [Session].
//
// A Builder is single-use: Build fails on a second call.
type Builder struct {
	config    Config
	store     tokenstore.Store
	log       logrus.FieldLogger
	clock     clockwork.Clock
	auditSink AuditSink
	transport http.RoundTripper

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. The default is an in-memory store, so
// sessions do not survive a restart.
func (b *Builder) WithStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// WithClock replaces the clock used for expiry checks and latency metrics.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHTTPTransport sets the round tripper shared by the identity and API
// clients.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Session in the restoring
// state. Call [Session.Restore] before reading the view.
func (b *Builder) Build() (*Session, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)
	cfg.Origin = normalizeBaseURL(cfg.Origin)

	log := b.log
	if log == nil {
		log = logrus.StandardLogger()
	}
	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	store := b.store
	if store == nil {
		store = tokenstore.NewMemoryStore()
	}

	identity, err := newIdentityClient(cfg, b.transport, log)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		store:    store,
		codec:    jwt.NewCodec(jwt.CodecConfig{Skew: cfg.ExpirySkew, Clock: clock}),
		clock:    clock,
		log:      log.WithField("component", "session"),
		identity: identity,
		metrics:  NewMetrics(cfg.Metrics),
		state:    StateRestoring,
		subs:     map[uint64]func(View){},
	}
	s.audit = newAuditDispatcher(cfg.Audit, b.auditSink, func() {
		s.metrics.Inc(MetricAuditDropped)
	})

	s.api = apiclient.New(s, s, apiclient.Options{
		BaseURL:   cfg.ResolvedBaseURL(),
		Timeout:   cfg.RequestTimeout,
		Transport: b.transport,
		Policy:    cfg.apiPolicy(),
		Logger:    log,
		OnRetry: func() {
			s.metrics.Inc(MetricRequestRetried)
		},
	})
	s.flows = flows.New(s.flowDeps())

	b.built = true

	return s, nil
}
