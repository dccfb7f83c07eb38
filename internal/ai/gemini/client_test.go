package gemini

import (
	"context"
	"testing"
)

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "   ", "gemini-1.5-flash"); err == nil {
		t.Fatalf("expected an error for a blank api key")
	}
}

func TestNewGeneratorDefaultsModel(t *testing.T) {
	gen, err := NewGenerator(context.Background(), "test-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Model() != defaultModel {
		t.Fatalf("expected model %q, got %q", defaultModel, gen.Model())
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	gen, err := NewGenerator(context.Background(), "test-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gen.Generate(context.Background(), "   ", 500, 0.7); err == nil {
		t.Fatalf("expected an error for an empty prompt")
	}
}

func TestGenerateNilReceiver(t *testing.T) {
	var gen *Generator
	if _, err := gen.Generate(context.Background(), "prompt", 500, 0.7); err == nil {
		t.Fatalf("expected an error from an uninitialized generator")
	}
	if gen.Model() != "" {
		t.Fatalf("nil generator must report an empty model name")
	}
}
