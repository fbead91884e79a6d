package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/cache"
	"github.com/plexsphere/pcpmon/internal/session"
)

// Sessions runs gateway calls under the session of a target host.
// *session.Manager satisfies it.
type Sessions interface {
	Do(ctx context.Context, host string, fn func(ctx context.Context, s session.Session) error) error
}

// Classifier resolves metric descriptors. Well-known metrics are answered
// from a built-in table; everything else is looked up through the gateway and
// kept in the metadata cache.
type Classifier struct {
	transport api.Transport
	sessions  Sessions
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(transport api.Transport, sessions Sessions, c *cache.Cache, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		transport: transport,
		sessions:  sessions,
		cache:     c,
		logger:    logger.With("component", "classifier"),
	}
}

// Classify returns the descriptor of name on host.
func (c *Classifier) Classify(ctx context.Context, host, name string) (Descriptor, error) {
	if d, ok := Lookup(name); ok {
		return d, nil
	}
	return c.Describe(ctx, host, name)
}

// Describe returns the gateway's descriptor of name, bypassing the built-in
// table so help text and units come from the host itself.
func (c *Classifier) Describe(ctx context.Context, host, name string) (Descriptor, error) {
	return cache.GetOrFetch(ctx, c.cache, cache.DescribeKey(host, name), func(ctx context.Context) (Descriptor, error) {
		c.logger.Debug("metadata cache miss", "host", host, "metric", name)
		return c.lookup(ctx, host, name)
	})
}

func (c *Classifier) lookup(ctx context.Context, host, name string) (Descriptor, error) {
	var desc Descriptor
	err := c.sessions.Do(ctx, host, func(ctx context.Context, s session.Session) error {
		resp, err := api.LookupMetrics(ctx, c.transport, s.ID, []string{name})
		if err != nil {
			if api.Classify(err) == api.FailureUnknownMetric {
				return &UnknownMetricError{Name: name, Err: err}
			}
			return err
		}
		for _, info := range resp.Metrics {
			if info.Name == name {
				desc = descriptorFromInfo(info)
				return nil
			}
		}
		return &UnknownMetricError{Name: name}
	})
	if err != nil {
		return Descriptor{}, fmt.Errorf("metrics: describe %s: %w", name, err)
	}
	return desc, nil
}

func descriptorFromInfo(info api.MetricInfo) Descriptor {
	return Descriptor{
		Name:         info.Name,
		Kind:         ParseKind(info.Sem),
		Unit:         info.UnitString(),
		Type:         info.Type,
		HasInstances: info.HasInstances(),
		Help:         info.Help(),
		InDom:        info.InDom,
	}
}
