package providers

import (
	"math"

	"go.uber.org/zap"
)

// ModelTier groups catalog entries by intended workload.
type ModelTier string

const (
	TierReasoning ModelTier = "reasoning"
	TierBalanced  ModelTier = "balanced"
	TierEfficient ModelTier = "efficient"
	TierCoding    ModelTier = "coding"
)

// CatalogEntry describes one model in the static price table.
type CatalogEntry struct {
	Provider        string    `json:"provider"`
	ModelID         string    `json:"model_id"`
	DisplayName     string    `json:"display_name"`
	Description     string    `json:"description"`
	CostPer1kTokens float64   `json:"cost_per_1k_tokens"`
	MaxTokens       int       `json:"max_tokens"`
	Tier            ModelTier `json:"tier"`
}

// Catalog is the static (provider, modelID) -> price table. A model
// missing from the catalog is non-fatal: its calls cost 0 cents and a
// warning is logged.
type Catalog struct {
	entries map[catalogKey]CatalogEntry
	logger  *zap.Logger
}

type catalogKey struct {
	provider string
	modelID  string
}

// NewCatalog creates a catalog with the built-in model entries.
func NewCatalog(logger *zap.Logger) *Catalog {
	c := &Catalog{
		entries: make(map[catalogKey]CatalogEntry),
		logger:  logger,
	}
	for _, e := range defaultEntries {
		c.entries[catalogKey{e.Provider, e.ModelID}] = e
	}
	return c
}

// Lookup returns the catalog entry for a (provider, modelID) pair.
func (c *Catalog) Lookup(provider, modelID string) (CatalogEntry, bool) {
	e, ok := c.entries[catalogKey{provider, modelID}]
	return e, ok
}

// CostCents computes the cost in whole cents for a call:
// round(((inputTokens+outputTokens)/1000) * pricePer1k * 100).
// Rounding is math.Round (half away from zero). An unknown model costs
// 0 with a warning.
func (c *Catalog) CostCents(provider, modelID string, inputTokens, outputTokens int64) int64 {
	entry, ok := c.Lookup(provider, modelID)
	if !ok {
		c.logger.Warn("model not found in catalog, cost defaults to 0",
			zap.String("provider", provider),
			zap.String("model_id", modelID))
		return 0
	}

	totalCost := float64(inputTokens+outputTokens) / 1000 * entry.CostPer1kTokens
	return int64(math.Round(totalCost * 100))
}

// ByProvider returns all entries for a provider.
func (c *Catalog) ByProvider(provider string) []CatalogEntry {
	var out []CatalogEntry
	for _, e := range defaultEntries {
		if e.Provider == provider {
			out = append(out, e)
		}
	}
	return out
}

// ByTier returns all entries in a tier.
func (c *Catalog) ByTier(tier ModelTier) []CatalogEntry {
	var out []CatalogEntry
	for _, e := range defaultEntries {
		if e.Tier == tier {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns every catalog entry in declaration order.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, len(defaultEntries))
	copy(out, defaultEntries)
	return out
}

var defaultEntries = []CatalogEntry{
	// OpenAI models
	{
		Provider:        "openai",
		ModelID:         "gpt-4o",
		DisplayName:     "GPT-4o",
		Description:     "Balanced model for general-purpose tasks",
		CostPer1kTokens: 0.005,
		MaxTokens:       128000,
		Tier:            TierBalanced,
	},
	{
		Provider:        "openai",
		ModelID:         "gpt-4o-mini",
		DisplayName:     "GPT-4o Mini",
		Description:     "Efficient model optimized for high-volume tasks",
		CostPer1kTokens: 0.00015,
		MaxTokens:       128000,
		Tier:            TierEfficient,
	},
	{
		Provider:        "openai",
		ModelID:         "o1",
		DisplayName:     "O1",
		Description:     "Advanced reasoning model for complex analytical tasks",
		CostPer1kTokens: 0.015,
		MaxTokens:       200000,
		Tier:            TierReasoning,
	},

	// Anthropic models (served through OpenRouter when no native endpoint exists)
	{
		Provider:        "anthropic",
		ModelID:         "claude-sonnet-4-5-20250929",
		DisplayName:     "Claude Sonnet 4",
		Description:     "Balanced model with strong coding and implementation capabilities",
		CostPer1kTokens: 0.003,
		MaxTokens:       200000,
		Tier:            TierBalanced,
	},
	{
		Provider:        "anthropic",
		ModelID:         "claude-opus-4-6",
		DisplayName:     "Claude Opus 4",
		Description:     "Top-tier reasoning model for complex architecture and planning",
		CostPer1kTokens: 0.015,
		MaxTokens:       200000,
		Tier:            TierReasoning,
	},
	{
		Provider:        "anthropic",
		ModelID:         "claude-haiku-4-5-20251001",
		DisplayName:     "Claude Haiku 4",
		Description:     "Efficient model optimized for speed and high-volume tasks",
		CostPer1kTokens: 0.0008,
		MaxTokens:       200000,
		Tier:            TierEfficient,
	},

	// OpenRouter models
	{
		Provider:        "openrouter",
		ModelID:         "qwen/qwen3-coder",
		DisplayName:     "Qwen 3 Coder",
		Description:     "Specialized coding model for code generation",
		CostPer1kTokens: 0.0003,
		MaxTokens:       65536,
		Tier:            TierCoding,
	},
	{
		Provider:        "openrouter",
		ModelID:         "qwen/qwen3-coder:free",
		DisplayName:     "Qwen 3 Coder (Free)",
		Description:     "Free-tier coding model for code generation",
		CostPer1kTokens: 0,
		MaxTokens:       65536,
		Tier:            TierCoding,
	},
	{
		Provider:        "openrouter",
		ModelID:         "google/gemini-2.5-flash-preview",
		DisplayName:     "Gemini 2.5 Flash",
		Description:     "Ultra-efficient model for fast, high-volume tasks",
		CostPer1kTokens: 0.00015,
		MaxTokens:       1000000,
		Tier:            TierEfficient,
	},
	{
		Provider:        "openrouter",
		ModelID:         "google/gemini-2.5-pro-preview",
		DisplayName:     "Gemini 2.5 Pro",
		Description:     "Balanced model for general-purpose tasks with extended context",
		CostPer1kTokens: 0.00125,
		MaxTokens:       1000000,
		Tier:            TierBalanced,
	},
	{
		Provider:        "openrouter",
		ModelID:         "deepseek/deepseek-r1",
		DisplayName:     "DeepSeek R1",
		Description:     "Reasoning-focused model with strong math capabilities",
		CostPer1kTokens: 0.003,
		MaxTokens:       65536,
		Tier:            TierReasoning,
	},
	{
		Provider:        "openrouter",
		ModelID:         "meta-llama/llama-4-maverick",
		DisplayName:     "Llama 4 Maverick",
		Description:     "Balanced general-purpose model with extended context",
		CostPer1kTokens: 0.0005,
		MaxTokens:       524288,
		Tier:            TierBalanced,
	},
}
