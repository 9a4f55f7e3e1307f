package content

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ArticlePublisher/internal/domain"
)

// ManifestTypeTag selects ManifestLoader.
const ManifestTypeTag = "manifest"

// ManifestLoader reads a single YAML file listing frontmatter mappings:
//
//	items:
//	  - id: stormwind-harbor
//	    path: news/2026/stormwind-harbor.md
//	    title: Harbor reopens
//	    ...
//
// The optional path key stands in for the source file when building links.
type ManifestLoader struct{}

type manifest struct {
	Items []yaml.Node `yaml:"items"`
}

// Type implements Loader.
func (ManifestLoader) Type() string { return ManifestTypeTag }

// Load implements Loader.
func (ManifestLoader) Load(_ context.Context, req Request) ([]domain.ContentItem, error) {
	data, err := os.ReadFile(req.Root)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", req.Root, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", req.Root, err)
	}

	items := make([]domain.ContentItem, 0, len(m.Items))
	for i := range m.Items {
		fields, err := decodeFields(&m.Items[i])
		if err != nil {
			return nil, fmt.Errorf("parse manifest %s item %d: %w", req.Root, i, err)
		}
		sourcePath := fmt.Sprintf("%s#%d", req.Root, i)
		if p, ok := fields["path"].(string); ok && p != "" {
			sourcePath = p
		}
		items = append(items, ParseFields(fields, sourcePath, req.Location))
	}
	return items, nil
}
