package llm

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
)

// Registry — провайдеры по имени.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry создаёт реестр. Пустое defaultName заменяется DefaultProvider.
func NewRegistry(defaultName string, providers ...Provider) *Registry {
	if defaultName == "" {
		defaultName = DefaultProvider
	}
	r := &Registry{
		providers:   make(map[string]Provider, len(providers)),
		defaultName: defaultName,
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register добавляет или заменяет провайдера.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve возвращает провайдера; пустое имя — провайдер по умолчанию.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names возвращает отсортированные имена провайдеров.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// DefaultName возвращает имя провайдера по умолчанию.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// NewCatalogRegistry регистрирует все провайдеры Catalog как OpenAI-совместимые.
// baseURLs переопределяет endpoint по имени провайдера.
func NewCatalogRegistry(defaultName string, baseURLs map[string]string, httpClient *http.Client) *Registry {
	r := NewRegistry(defaultName)
	for _, info := range Catalog {
		baseURL := info.BaseURL
		if override, ok := baseURLs[info.Name]; ok && override != "" {
			baseURL = override
		}
		r.Register(NewOpenAIProvider(OpenAIConfig{
			Name:         info.Name,
			BaseURL:      baseURL,
			DefaultModel: info.DefaultModel,
			HTTPClient:   httpClient,
		}))
	}
	return r
}
