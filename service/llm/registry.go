// Package llm manages the generation backends and the ordered failover
// between them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"mathchat-backend/config"
	"mathchat-backend/utils"
)

type Provider string

const (
	ProviderOllamaCloud Provider = "ollama_cloud"
	ProviderOllamaLocal Provider = "ollama_local"
	ProviderOpenAI      Provider = "openai"
)

// providerOrder is the authoritative failover order. Fallback always walks
// this list from the preferred provider's successor, wrapping around.
var providerOrder = []Provider{ProviderOllamaCloud, ProviderOllamaLocal, ProviderOpenAI}

func ValidProvider(p Provider) bool {
	for _, known := range providerOrder {
		if p == known {
			return true
		}
	}
	return false
}

var ErrNoProviderAvailable = errors.New("no llm provider available")

// AllProvidersFailedError reports one generation error per attempted
// provider, keyed in attempt order.
type AllProvidersFailedError struct {
	Errs map[Provider]error
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, p := range providerOrder {
		if err, ok := e.Errs[p]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", p, err))
		}
	}
	return "all llm providers failed: " + strings.Join(parts, "; ")
}

func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err)
	}
	return errs
}

type factoryFunc func() (llms.Model, error)

// slot holds one backend, constructed lazily so a misconfigured provider
// only fails when selected.
type slot struct {
	id      Provider
	factory factoryFunc

	once  sync.Once
	model llms.Model
	err   error
}

func (s *slot) get() (llms.Model, error) {
	s.once.Do(func() {
		s.model, s.err = s.factory()
		if s.err != nil {
			slog.Warn("llm provider unavailable", "provider", s.id, "err", s.err)
		} else {
			slog.Info("llm provider initialized", "provider", s.id)
		}
	})
	return s.model, s.err
}

// Registry resolves providers by name and runs generation with ordered
// failover across the remaining backends.
type Registry struct {
	slots map[Provider]*slot
}

func NewRegistry(cfg config.Model) *Registry {
	return NewRegistryWithFactories(map[Provider]func() (llms.Model, error){
		ProviderOllamaCloud: func() (llms.Model, error) {
			if cfg.OllamaCloudAPIKey == "" {
				return nil, errors.New("ollama cloud api key is not configured")
			}
			return ollama.New(
				ollama.WithServerURL(cfg.OllamaCloudURL),
				ollama.WithModel(cfg.OllamaModel),
				ollama.WithHTTPClient(utils.NewHTTPClient(utils.WithBearerToken(cfg.OllamaCloudAPIKey))),
			)
		},
		ProviderOllamaLocal: func() (llms.Model, error) {
			return ollama.New(
				ollama.WithServerURL(cfg.OllamaLocalURL),
				ollama.WithModel(cfg.OllamaModel),
				ollama.WithHTTPClient(utils.DefaultHTTPClient()),
			)
		},
		ProviderOpenAI: func() (llms.Model, error) {
			if cfg.OpenAIAPIKey == "" {
				return nil, errors.New("openai api key is not configured")
			}
			return openai.New(
				openai.WithModel(cfg.OpenAIModel),
				openai.WithToken(cfg.OpenAIAPIKey),
				openai.WithHTTPClient(utils.DefaultHTTPClient()),
			)
		},
	})
}

// NewRegistryWithFactories builds a registry from explicit constructors.
func NewRegistryWithFactories(factories map[Provider]func() (llms.Model, error)) *Registry {
	slots := make(map[Provider]*slot, len(providerOrder))
	for _, p := range providerOrder {
		f, ok := factories[p]
		if !ok {
			p := p
			f = func() (llms.Model, error) {
				return nil, fmt.Errorf("provider %s is not configured", p)
			}
		}
		slots[p] = &slot{id: p, factory: f}
	}
	return &Registry{slots: slots}
}

// Get resolves the preferred provider, falling through the priority order
// when it cannot be initialized. It reports which provider was resolved.
func (r *Registry) Get(preferred Provider) (llms.Model, Provider, error) {
	for _, p := range attemptOrder(preferred) {
		model, err := r.slots[p].get()
		if err != nil {
			continue
		}
		if p != preferred {
			slog.Info("preferred llm provider unavailable, substituting",
				"preferred", preferred, "actual", p)
		}
		return model, p, nil
	}
	return nil, "", ErrNoProviderAvailable
}

// Available reports whether a provider initializes without error.
func (r *Registry) Available(p Provider) bool {
	s, ok := r.slots[p]
	if !ok {
		return false
	}
	_, err := s.get()
	return err == nil
}

// PrimaryProvider is the highest-priority provider that initializes.
func (r *Registry) PrimaryProvider() (Provider, error) {
	for _, p := range providerOrder {
		if r.Available(p) {
			return p, nil
		}
	}
	return "", ErrNoProviderAvailable
}

// InvokeWithFallback generates a completion, trying the preferred provider
// first and then each remaining provider in priority order exactly once.
// It returns the text and the provider that produced it.
func (r *Registry) InvokeWithFallback(ctx context.Context, messages []llms.MessageContent, preferred Provider, temperature float64) (string, Provider, error) {
	failures := make(map[Provider]error)

	for _, p := range attemptOrder(preferred) {
		model, err := r.slots[p].get()
		if err != nil {
			failures[p] = err
			continue
		}

		resp, err := model.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
		if err != nil {
			slog.Warn("llm generation failed, trying next provider", "provider", p, "err", err)
			failures[p] = err
			continue
		}
		if len(resp.Choices) == 0 {
			failures[p] = fmt.Errorf("provider %s returned no choices", p)
			continue
		}

		slog.Debug("llm generation succeeded", "provider", p)
		return resp.Choices[0].Content, p, nil
	}

	return "", "", &AllProvidersFailedError{Errs: failures}
}

// attemptOrder lists every provider exactly once, starting at preferred and
// continuing through the priority order.
func attemptOrder(preferred Provider) []Provider {
	start := 0
	for i, p := range providerOrder {
		if p == preferred {
			start = i
			break
		}
	}
	out := make([]Provider, 0, len(providerOrder))
	for i := 0; i < len(providerOrder); i++ {
		out = append(out, providerOrder[(start+i)%len(providerOrder)])
	}
	return out
}
