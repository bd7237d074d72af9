package llm

import "fmt"

// Pricing — цена за миллион токенов: вход и выход, в долларах.
type Pricing struct {
	Input  float64
	Output float64
}

// DefaultPricing — цена для неизвестных моделей (уровень Sonnet 4.5).
var DefaultPricing = Pricing{Input: 3, Output: 15}

// modelPricing — цены известных моделей.
var modelPricing = map[string]Pricing{
	// Claude 4.x
	"claude-opus-4-6":            {5, 25},
	"claude-opus-4-5-20250929":   {5, 25},
	"claude-opus-4-1-20250414":   {15, 75},
	"claude-opus-4-20250514":     {15, 75},
	"claude-sonnet-4-5-20250929": {3, 15},
	"claude-sonnet-4-20250514":   {3, 15},
	"claude-haiku-4-5-20251001":  {1, 5},

	// Claude 3.x
	"claude-3-5-sonnet-20241022": {3, 15},
	"claude-3-5-sonnet-20240620": {3, 15},
	"claude-3-5-haiku-20241022":  {0.8, 4},
	"claude-3-haiku-20240307":    {0.25, 1.25},
	"claude-3-opus-20240229":     {15, 75},
	"claude-3-sonnet-20240229":   {3, 15},
}

// ModelPricing возвращает цену модели или DefaultPricing.
func ModelPricing(model string) Pricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	return DefaultPricing
}

// Cost считает стоимость вызова в долларах.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := ModelPricing(model)
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1_000_000
}

// FormatCost форматирует стоимость для вывода.
func FormatCost(cost float64) string {
	switch {
	case cost < 0.001:
		return "<$0.001"
	case cost < 0.01:
		return fmt.Sprintf("$%.4f", cost)
	default:
		return fmt.Sprintf("$%.3f", cost)
	}
}
