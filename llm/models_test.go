package llm

import (
	"math"
	"testing"
)

func TestGetModel(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		provider Provider
		kind     ModelKind
		wantErr  bool
	}{
		{"openai chat", ModelGPT4oMini, ProviderOpenAI, KindChat, false},
		{"anthropic chat", ModelClaude35Haiku, ProviderAnthropic, KindChat, false},
		{"openai embedding", ModelTextEmbedding3Small, ProviderOpenAI, KindEmbedding, false},
		{"local embedding", ModelHashing, ProviderLocal, KindEmbedding, false},
		{"unknown", "gpt-0", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := GetModel(tt.model)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetModel(%q) error = %v, wantErr %v", tt.model, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if m.Provider != tt.provider || m.Kind != tt.kind {
				t.Errorf("GetModel(%q) = %s/%s, want %s/%s", tt.model, m.Provider, m.Kind, tt.provider, tt.kind)
			}
		})
	}
}

func TestValidateModel(t *testing.T) {
	if err := ValidateModel(ModelGPT4o, KindChat); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateModel(ModelTextEmbedding3Small, KindChat); err == nil {
		t.Error("expected kind mismatch error")
	}
	if err := ValidateModel("nope", KindEmbedding); err == nil {
		t.Error("expected unknown model error")
	}
}

func TestModelEstimateCost(t *testing.T) {
	m := AvailableModels[ModelGPT4o]
	got := m.EstimateCost(1000000, 500000)
	if math.Abs(got-7.5) > 1e-9 {
		t.Errorf("EstimateCost = %f, want 7.5", got)
	}
}

func TestAllModelsHaveValidData(t *testing.T) {
	for name, m := range AvailableModels {
		if m.Name != name {
			t.Errorf("model %s has mismatched name %s", name, m.Name)
		}
		if m.DisplayName == "" || m.Provider == "" {
			t.Errorf("model %s missing display name or provider", name)
		}
		if m.Kind == KindEmbedding && m.Dimensions <= 0 {
			t.Errorf("embedding model %s has no dimensions", name)
		}
		if m.InputCost < 0 || m.OutputCost < 0 {
			t.Errorf("model %s has negative cost", name)
		}
	}
}

func TestGetModelsByProviderSorted(t *testing.T) {
	models := GetModelsByProvider(ProviderAnthropic)
	if len(models) != 3 {
		t.Fatalf("want 3 anthropic models, got %d", len(models))
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].Name > models[i].Name {
			t.Errorf("models not sorted: %s > %s", models[i-1].Name, models[i].Name)
		}
	}
}
