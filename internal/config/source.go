package config

import (
	"strconv"
	"sync"

	"github.com/opencode-ai/emigo/pkg/types"
)

// Keys understood by Provider.Get.
const (
	KeyModel     = "emigo-model"
	KeyBaseURL   = "emigo-base-url"
	KeyAPIKey    = "emigo-api-key"
	KeyMapTokens = "emigo-map-tokens"
	KeyTokenizer = "emigo-tokenizer"
)

// Provider answers configuration lookups. Unset or unknown keys yield "".
type Provider interface {
	Get(keys ...string) []string
}

// Source is a Provider backed by a loaded Config. The config can be
// replaced at runtime; sessions created afterwards see the new values.
type Source struct {
	mu     sync.RWMutex
	config *types.Config
}

// NewSource creates a Source over cfg.
func NewSource(cfg *types.Config) *Source {
	if cfg == nil {
		cfg = &types.Config{}
	}
	return &Source{config: cfg}
}

// Set replaces the backing config.
func (s *Source) Set(cfg *types.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// Config returns the backing config.
func (s *Source) Config() *types.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Get implements Provider.
func (s *Source) Get(keys ...string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = lookup(s.config, key)
	}
	return values
}

func lookup(cfg *types.Config, key string) string {
	switch key {
	case KeyModel:
		return cfg.Model
	case KeyBaseURL:
		return cfg.BaseURL
	case KeyAPIKey:
		return cfg.APIKey
	case KeyMapTokens:
		if cfg.MapTokens == 0 {
			return ""
		}
		return strconv.Itoa(cfg.MapTokens)
	case KeyTokenizer:
		return cfg.Tokenizer
	default:
		return ""
	}
}

// Masked returns a copy of cfg safe to print: the credential is replaced
// by its last four characters.
func Masked(cfg *types.Config) *types.Config {
	out := *cfg
	if n := len(out.APIKey); n > 0 {
		if n <= 4 {
			out.APIKey = "****"
		} else {
			out.APIKey = "****" + out.APIKey[n-4:]
		}
	}
	return &out
}
