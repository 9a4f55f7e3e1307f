package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/ports"
)

// StrategySource implements ContentSource via registered loaders.
type StrategySource struct {
	registry *Registry
	sources  []config.SourceConfig
	location *time.Location
	logger   *slog.Logger
}

var _ ports.ContentSource = (*StrategySource)(nil)

// NewStrategySource wires the loader registry with config-defined sources.
func NewStrategySource(reg *Registry, sources []config.SourceConfig, loc *time.Location, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		location: loc,
		logger:   log,
	}
}

// Items iterates over configured sources and executes their loaders.
// Items sharing an identity are all flagged as defective.
func (s *StrategySource) Items(ctx context.Context) ([]domain.ContentItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("content registry is not configured")
	}

	s.debug("load content", "sources", len(s.sources))

	var aggregated []domain.ContentItem
	for _, src := range s.sources {
		s.debug("process source", "source", src.Name, "type", src.Type, "root", src.Root)
		loader, err := s.registry.Resolve(src.Type)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		results, err := loader.Load(ctx, Request{
			SourceName: src.Name,
			Root:       src.Root,
			Location:   s.location,
		})
		if err != nil {
			return nil, fmt.Errorf("load source %s: %w", src.Name, err)
		}

		s.debug("source produced items", "source", src.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	markDuplicates(aggregated)
	s.debug("content load done", "total_items", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
