package llm

// Имена провайдеров.
const (
	ProviderAnthropic    = "anthropic"
	ProviderOpenAI       = "openai"
	ProviderGoogleVertex = "google-vertex"
)

// DefaultProvider — провайдер для узлов без явного провайдера.
const DefaultProvider = ProviderAnthropic

// ProviderInfo — описание провайдера для редактора и CLI.
type ProviderInfo struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	DefaultModel string   `json:"default_model"`
	BaseURL      string   `json:"base_url"`
	Models       []string `json:"models"`
}

// Catalog — известные провайдеры и их модели.
var Catalog = []ProviderInfo{
	{
		Name:         ProviderAnthropic,
		Label:        "Anthropic",
		DefaultModel: "claude-sonnet-4-5-20250929",
		BaseURL:      "https://api.anthropic.com/v1/",
		Models: []string{
			"claude-opus-4-6",
			"claude-sonnet-4-5-20250929",
			"claude-haiku-4-5-20251001",
			"claude-opus-4-5-20251101",
		},
	},
	{
		Name:         ProviderOpenAI,
		Label:        "OpenAI",
		DefaultModel: "gpt-4o",
		BaseURL:      "https://api.openai.com/v1",
		Models:       []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano", "o3", "o3-mini", "o4-mini"},
	},
	{
		Name:         ProviderGoogleVertex,
		Label:        "Google Vertex",
		DefaultModel: "gemini-2.5-flash",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai/",
		Models:       []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-3-pro-preview", "gemini-3-flash-preview"},
	},
}

// LookupProvider возвращает описание провайдера по имени.
func LookupProvider(name string) (ProviderInfo, bool) {
	for _, p := range Catalog {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// Providers возвращает копию каталога провайдеров.
func Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(Catalog))
	for i, p := range Catalog {
		p.Models = append([]string(nil), p.Models...)
		out[i] = p
	}
	return out
}
