// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Key files read from the secrets directory.
const (
	GroqAPIKey            = "groq-api-key"
	OpenAIAPIKey          = "openai-api-key"
	AnthropicAPIKey       = "anthropic-api-key"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
	TavilyAPIKey          = "tavily-api-key"
)

var providerKeys = map[types.Provider]string{
	types.ProviderGroq:      GroqAPIKey,
	types.ProviderOpenAI:    OpenAIAPIKey,
	types.ProviderAnthropic: AnthropicAPIKey,
}

// Secrets maps key file names to their trimmed contents.
type Secrets map[string]string

// Load reads all files in dir. A missing directory is not an error; Load
// returns an empty set. Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (Secrets, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("could not read secret", zap.String("key", name), zap.Error(err))
			continue
		}
		if info, err := entry.Info(); err == nil && info.Mode().Perm()&0o077 != 0 {
			logger.Debug("secret file is readable by other users", zap.String("path", path))
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// Get returns current when it is set, otherwise the secret stored under key.
func (s Secrets) Get(key, current string) string {
	if current != "" {
		return current
	}
	return s[key]
}

// Keys returns the loaded key names in sorted order.
func (s Secrets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply fills empty credentials in cfg. Values already set by the config
// file or environment win.
func (s Secrets) Apply(cfg *types.PipelineConfig) {
	if key, ok := providerKeys[cfg.Generation.Provider]; ok {
		cfg.Generation.APIKey = s.Get(key, cfg.Generation.APIKey)
	}
	cfg.Sources.SemanticScholarAPIKey = s.Get(SemanticScholarAPIKey, cfg.Sources.SemanticScholarAPIKey)
	cfg.Sources.OpenAlexEmail = s.Get(OpenAlexEmail, cfg.Sources.OpenAlexEmail)
	cfg.Sources.TavilyAPIKey = s.Get(TavilyAPIKey, cfg.Sources.TavilyAPIKey)
}
