package llm

import (
	"fmt"
	"sort"
)

// Provider identifies a chat or embedding backend
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	// ProviderLocal marks in-process models such as the hashing embedder.
	ProviderLocal Provider = "local"
)

// ModelKind separates chat models from embedding models
type ModelKind string

const (
	KindChat      ModelKind = "chat"
	KindEmbedding ModelKind = "embedding"
)

// Model describes a known model
type Model struct {
	Provider    Provider  `json:"provider"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Kind        ModelKind `json:"kind"`
	ContextSize int       `json:"context_size"`
	// Dimensions is the vector length of an embedding model
	Dimensions   int          `json:"dimensions,omitempty"`
	InputCost    float64      `json:"input_cost"`  // USD per 1M input tokens
	OutputCost   float64      `json:"output_cost"` // USD per 1M output tokens
	Capabilities Capabilities `json:"capabilities"`
}

// Capabilities represents what a chat model can do
type Capabilities struct {
	FunctionCalling bool `json:"function_calling"`
	JSON            bool `json:"json"`
	Streaming       bool `json:"streaming"`
}

const (
	ModelGPT4o     = "gpt-4o"
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT41Mini = "gpt-4.1-mini"

	ModelClaude35Haiku  = "claude-3-5-haiku-20241022"
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelClaudeSonnet4  = "claude-sonnet-4-20250514"

	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"
	ModelTextEmbeddingAda002 = "text-embedding-ada-002"

	// ModelHashing is the local feature-hashing embedder
	ModelHashing = "hashing"
)

// DefaultEmbeddingModel is used when a provider config names none.
const DefaultEmbeddingModel = ModelTextEmbedding3Small

var chatCaps = Capabilities{FunctionCalling: true, JSON: true, Streaming: true}

// AvailableModels contains the catalog keyed by model name
var AvailableModels = map[string]Model{
	ModelGPT4o: {
		Provider: ProviderOpenAI, Name: ModelGPT4o, DisplayName: "GPT-4o", Kind: KindChat,
		ContextSize: 128000, InputCost: 2.5, OutputCost: 10.0, Capabilities: chatCaps,
	},
	ModelGPT4oMini: {
		Provider: ProviderOpenAI, Name: ModelGPT4oMini, DisplayName: "GPT-4o mini", Kind: KindChat,
		ContextSize: 128000, InputCost: 0.15, OutputCost: 0.6, Capabilities: chatCaps,
	},
	ModelGPT41Mini: {
		Provider: ProviderOpenAI, Name: ModelGPT41Mini, DisplayName: "GPT-4.1 mini", Kind: KindChat,
		ContextSize: 1047576, InputCost: 0.4, OutputCost: 1.6, Capabilities: chatCaps,
	},
	ModelClaude35Haiku: {
		Provider: ProviderAnthropic, Name: ModelClaude35Haiku, DisplayName: "Claude 3.5 Haiku", Kind: KindChat,
		ContextSize: 200000, InputCost: 0.8, OutputCost: 4.0, Capabilities: chatCaps,
	},
	ModelClaude35Sonnet: {
		Provider: ProviderAnthropic, Name: ModelClaude35Sonnet, DisplayName: "Claude 3.5 Sonnet", Kind: KindChat,
		ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0, Capabilities: chatCaps,
	},
	ModelClaudeSonnet4: {
		Provider: ProviderAnthropic, Name: ModelClaudeSonnet4, DisplayName: "Claude Sonnet 4", Kind: KindChat,
		ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0, Capabilities: chatCaps,
	},
	ModelTextEmbedding3Small: {
		Provider: ProviderOpenAI, Name: ModelTextEmbedding3Small, DisplayName: "text-embedding-3-small",
		Kind: KindEmbedding, ContextSize: 8191, Dimensions: 1536, InputCost: 0.02,
	},
	ModelTextEmbedding3Large: {
		Provider: ProviderOpenAI, Name: ModelTextEmbedding3Large, DisplayName: "text-embedding-3-large",
		Kind: KindEmbedding, ContextSize: 8191, Dimensions: 3072, InputCost: 0.13,
	},
	ModelTextEmbeddingAda002: {
		Provider: ProviderOpenAI, Name: ModelTextEmbeddingAda002, DisplayName: "text-embedding-ada-002",
		Kind: KindEmbedding, ContextSize: 8191, Dimensions: 1536, InputCost: 0.1,
	},
	ModelHashing: {
		Provider: ProviderLocal, Name: ModelHashing, DisplayName: "Feature hashing",
		Kind: KindEmbedding, Dimensions: 256,
	},
}

// GetModel returns model metadata for a given model name
func GetModel(name string) (Model, error) {
	model, exists := AvailableModels[name]
	if !exists {
		return Model{}, fmt.Errorf("unknown model: %s", name)
	}
	return model, nil
}

// GetModelsByProvider returns the provider's models sorted by name
func GetModelsByProvider(provider Provider) []Model {
	var models []Model
	for _, model := range AvailableModels {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// ValidateModel checks that name is a known model of the given kind
func ValidateModel(name string, kind ModelKind) error {
	m, err := GetModel(name)
	if err != nil {
		return err
	}
	if m.Kind != kind {
		return fmt.Errorf("model %s is a %s model, not %s", name, m.Kind, kind)
	}
	return nil
}

// String returns a human-readable representation of the model
func (m Model) String() string {
	return fmt.Sprintf("%s (%s) - %s", m.DisplayName, m.Name, m.Provider)
}

// EstimateCost estimates the cost for given token counts
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	inputCost := (float64(inputTokens) / 1000000) * m.InputCost
	outputCost := (float64(outputTokens) / 1000000) * m.OutputCost
	return inputCost + outputCost
}
