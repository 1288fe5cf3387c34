package codegen

import (
	"context"
	"strings"
	"testing"

	"promptguessr/internal/gameerr"
)

func TestGenerateUsesAlphabet(t *testing.T) {
	code, err := Generate(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 4 {
		t.Fatalf("expected length 4, got %d", len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(alphabet, c) {
			t.Fatalf("code %q contains character outside alphabet", code)
		}
	}
}

func TestGenerateUniqueRetriesUntilFree(t *testing.T) {
	seen := map[string]bool{}
	attempts := 0
	isCodeTaken := func(_ context.Context, code string) (bool, error) {
		attempts++
		if attempts < 3 {
			return true, nil
		}
		return seen[code], nil
	}
	code, err := GenerateUnique(context.Background(), 4, isCodeTaken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 4 {
		t.Fatalf("expected length 4, got %d", len(code))
	}
	if attempts < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", attempts)
	}
}

func TestGenerateUniqueExhaustion(t *testing.T) {
	alwaysTaken := func(context.Context, string) (bool, error) { return true, nil }
	_, err := GenerateUnique(context.Background(), 4, alwaysTaken)
	if gameerr.KindOf(err) != gameerr.KindCodeExhaustion {
		t.Fatalf("expected CodeExhaustion, got %v", err)
	}
}
