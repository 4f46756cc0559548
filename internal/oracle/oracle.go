// Package oracle wraps the language model behind the two questions a turn
// asks of it: which intent comes next, and what to say.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/turnguard/internal/memory"
)

// Oracle is the model boundary. Implementations must honour ctx and return
// every failure as an error; they are never trusted to respect allowed.
type Oracle interface {
	// ChooseNextIntent proposes the next intent. The answer may lie outside
	// allowed; the caller clamps it.
	ChooseNextIntent(ctx context.Context, allowed []string, c IntentContext) (string, error)
	// DraftReply produces the unguarded assistant reply.
	DraftReply(ctx context.Context, system string, history []memory.Message, c DraftContext) (string, error)
}

// IntentContext carries what the model may use to pick the next intent.
type IntentContext struct {
	Current  string
	Fallback string
	UserText string
}

// DraftContext carries what the model may use to draft a reply.
type DraftContext struct {
	Intent      string
	Description string
}

// Provider names.
const (
	ProviderMock    = "mock"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Config selects and configures a provider.
type Config struct {
	Provider      string        `yaml:"provider" json:"provider"`
	Model         string        `yaml:"model" json:"model"`
	APIURL        string        `yaml:"api_url" json:"api_url,omitempty"`
	APIKey        string        `yaml:"api_key" json:"-"`
	Region        string        `yaml:"region" json:"region,omitempty"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second,omitempty"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens,omitempty"`
}

// ErrUnknownProvider is returned by New for an unregistered provider name.
var ErrUnknownProvider = errors.New("oracle: unknown provider")

// Factory builds an Oracle from a Config.
type Factory func(cfg Config) (Oracle, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider available to New. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the oracle for cfg.Provider. An empty provider means mock.
// Unknown providers are an error, never a silent fallback.
func New(cfg Config) (Oracle, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderMock
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Providers(), ", "))
	}
	return f(cfg)
}

// ParseSelector maps "provider[:model]" to a Config, e.g. "openai:gpt-4o-mini".
func ParseSelector(s string) Config {
	provider, model, _ := strings.Cut(strings.TrimSpace(s), ":")
	return Config{Provider: strings.ToLower(provider), Model: model}
}

func init() {
	Register(ProviderMock, func(Config) (Oracle, error) { return NewMock(), nil })
	Register(ProviderOpenAI, func(cfg Config) (Oracle, error) { return NewOpenAI(cfg) })
	Register(ProviderBedrock, func(cfg Config) (Oracle, error) { return NewBedrock(context.Background(), cfg) })
}
