package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tokensale/native/sale"
)

// FeedSpec declares one price feed in the manifest. Type selects the adapter:
// "http" polls a JSON round endpoint, "static" serves a fixed round for
// manual deployments.
type FeedSpec struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"`
	Endpoint    string `yaml:"endpoint"`
	APIKeyEnv   string `yaml:"apiKeyEnv"`
	Decimals    uint8  `yaml:"decimals"`
	Description string `yaml:"description"`
	Answer      string `yaml:"answer"`
}

// FeedManifest is the YAML document listing the feeds a deployment serves.
type FeedManifest struct {
	Feeds []FeedSpec `yaml:"feeds"`
}

// LoadFeedManifest parses the manifest at path. A missing manifest yields an
// empty document so oracle-free deployments need no file at all.
func LoadFeedManifest(path string) (*FeedManifest, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return &FeedManifest{}, nil
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return &FeedManifest{}, nil
		}
		return nil, err
	}
	manifest := &FeedManifest{}
	if err := yaml.Unmarshal(raw, manifest); err != nil {
		return nil, fmt.Errorf("config: parse feed manifest: %w", err)
	}
	return manifest, nil
}

// Build registers every declared feed in the registry.
func (m *FeedManifest) Build(registry *sale.FeedRegistry, client sale.HTTPDoer) error {
	if m == nil || registry == nil {
		return nil
	}
	for _, spec := range m.Feeds {
		feed, err := spec.build(client)
		if err != nil {
			return err
		}
		if err := registry.Register(spec.ID, feed); err != nil {
			return err
		}
	}
	return nil
}

func (s FeedSpec) build(client sale.HTTPDoer) (sale.PriceFeed, error) {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "http":
		if strings.TrimSpace(s.Endpoint) == "" {
			return nil, fmt.Errorf("config: feed %q: endpoint required", s.ID)
		}
		apiKey := ""
		if s.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(s.APIKeyEnv))
		}
		return sale.NewHTTPFeed(client, s.Endpoint, apiKey), nil
	case "static":
		feed := sale.NewStaticFeed(s.Decimals, s.Description)
		if answer := strings.TrimSpace(s.Answer); answer != "" {
			value, ok := new(big.Int).SetString(answer, 10)
			if !ok {
				return nil, fmt.Errorf("config: feed %q: invalid answer %q", s.ID, s.Answer)
			}
			feed.SetRound(value, time.Now())
		}
		return feed, nil
	default:
		return nil, fmt.Errorf("config: feed %q: unknown type %q", s.ID, s.Type)
	}
}
