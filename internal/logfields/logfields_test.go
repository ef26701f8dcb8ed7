package logfields

import (
	"errors"
	"testing"
)

func TestHelpers(t *testing.T) {
	if a := Page("blog/index"); a.Key != KeyPage || a.Value.String() != "blog/index" {
		t.Fatalf("unexpected page attr: %v", a)
	}
	if a := Asset("css/site.css"); a.Key != KeyAsset {
		t.Fatalf("unexpected asset attr: %v", a)
	}
	if a := Count(3); a.Value.Int64() != 3 {
		t.Fatalf("unexpected count attr: %v", a)
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should be empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("unexpected error attr: %v", a)
	}
}
