package providerfactory

import (
	"fmt"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/providers/azure"
	"fulcrum-hq/portunus/pkg/providers/openai"
	"fulcrum-hq/portunus/pkg/providers/unique"
)

// Build creates the adapter for one upstream model. The provider family
// selects the wire dialect:
//
//   - azure: deployment-scoped paths with the api-version parameter and
//     api-key header
//   - unique: OpenAI shape plus tenant headers
//   - openai, anthropic, mistral, cohere: the plain OpenAI surface;
//     these upstreams all expose OpenAI-compatible endpoints, so one
//     adapter serves the family
//
// cfg.Name must be the catalog technical name; for Azure it doubles as
// the deployment path segment.
func Build(cfg providers.Config, family catalog.Provider) (providers.Provider, error) {
	switch family {
	case catalog.ProviderAzure:
		return azure.New(cfg)
	case catalog.ProviderUnique:
		return unique.New(cfg)
	case catalog.ProviderOpenAI, catalog.ProviderAnthropic,
		catalog.ProviderMistral, catalog.ProviderCohere:
		return openai.New(cfg)
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "provider",
			Message:  fmt.Sprintf("unsupported provider family %q", family),
		}
	}
}
