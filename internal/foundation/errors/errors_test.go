package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "mllt.toml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "mllt.toml" {
			t.Errorf("expected context file=mllt.toml, got %v", file)
		}
	})

	t.Run("Taxonomy severities", func(t *testing.T) {
		fatal := []*ClassifiedError{
			ConfigError("c").Build(),
			CatalogError("c").Build(),
			TemplateLoadError("t").Build(),
		}
		for _, err := range fatal {
			if !err.IsFatal() {
				t.Errorf("expected %s to be fatal", err.Category())
			}
		}
		perItem := []*ClassifiedError{
			RenderError("r").Build(),
			AssetCopyError("a").Build(),
		}
		for _, err := range perItem {
			if err.IsFatal() {
				t.Errorf("expected %s not to be fatal", err.Category())
			}
		}
	})
}

func TestErrorBuilder_WrapAndContext(t *testing.T) {
	originalErr := errors.New("permission denied")
	err := WrapError(originalErr, CategoryAssetCopy, "copy failed").
		WithContext("asset", "css/site.css").
		Build()

	if !errors.Is(err, originalErr) {
		t.Error("expected error to wrap original error")
	}
	asset, _ := err.Context().GetString("asset")
	if asset != "css/site.css" {
		t.Errorf("expected asset context, got %q", asset)
	}

	derived := err.WithContext("attempt", 1)
	if _, ok := err.Context().Get("attempt"); ok {
		t.Error("WithContext must not mutate the original error")
	}
	if v, _ := derived.Context().Get("attempt"); v != 1 {
		t.Errorf("expected attempt=1 on derived error, got %v", v)
	}
}

func TestAsClassified_FollowsWrapChain(t *testing.T) {
	inner := RenderError("missing variable").WithContext("page", "index").Build()
	wrapped := fmt.Errorf("rendering: %w", inner)

	got, ok := AsClassified(wrapped)
	if !ok {
		t.Fatal("expected classified error in chain")
	}
	if got != inner {
		t.Error("expected the inner classified error")
	}
	if !HasCategory(wrapped, CategoryRender) {
		t.Error("expected render category")
	}
	if GetCategory(errors.New("plain")) != CategoryInternal {
		t.Error("unclassified errors default to internal")
	}
	if GetSeverity(errors.New("plain")) != SeverityError {
		t.Error("unclassified errors default to error severity")
	}
}

func TestErrorsIs_ComparesCategoryAndMessage(t *testing.T) {
	a := CatalogError("identity collision").WithContext("identity", "a").Build()
	b := CatalogError("identity collision").WithContext("identity", "b").Build()
	c := ConfigError("identity collision").Build()

	if !errors.Is(a, b) {
		t.Error("same category and message should match")
	}
	if errors.Is(a, c) {
		t.Error("different categories must not match")
	}
}
