package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/kotae/pkg/utils"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "pricing plans")
	b, _ := e.Embed(ctx, "Pricing   PLANS")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same tokens should give the same embedding")
		}
	}
	if n := utils.L2Norm(a); math.Abs(n-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", n)
	}
}

func TestMockEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "pricing tiers")
	near, _ := e.Embed(ctx, "pricing tiers and billing")
	far, _ := e.Embed(ctx, "shift scheduling calendar")
	if utils.Dot(q, near) <= utils.Dot(q, far) {
		t.Errorf("expected overlap to raise similarity: near=%v far=%v", utils.Dot(q, near), utils.Dot(q, far))
	}
}

func TestMockEmbedder_EmptyText(t *testing.T) {
	e := NewMockEmbedder(8)
	v, err := e.Embed(context.Background(), "")
	if err != nil || len(v) != 8 || v[0] != 1 {
		t.Errorf("Embed(\"\") = %v, %v", v, err)
	}
}

func TestFailingEmbedder(t *testing.T) {
	e := NewFailingEmbedder(8)
	if _, err := e.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, ErrProviderDown) {
		t.Errorf("EmbedBatch() error = %v", err)
	}
	if e.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}

func TestNew(t *testing.T) {
	e, err := New(Options{Provider: ProviderMock, Dimensions: 16, CacheSize: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	if _, err := New(Options{Provider: "bogus"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(Options{Provider: ProviderHTTP, Dimensions: 4}, nil); err == nil {
		t.Error("expected error for http provider without url")
	}
}
