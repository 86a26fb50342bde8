package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type brokenStore struct{}

func (brokenStore) Name() string { return "broken" }
func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, []byte) error { return errors.New("connection refused") }
func (brokenStore) Close() error                            { return nil }

func TestKey(t *testing.T) {
	a := Key("ev-range", "abc", "m1", []float64{1, 2, 3})
	b := Key("ev-range", "abc", "m1", []float64{1, 2, 3})
	if a != b {
		t.Fatalf("Key is not deterministic: %s != %s", a, b)
	}

	for name, other := range map[string]string{
		"app":         Key("heart-disease", "abc", "m1", []float64{1, 2, 3}),
		"fingerprint": Key("ev-range", "abd", "m1", []float64{1, 2, 3}),
		"vector":      Key("ev-range", "abc", "m1", []float64{1, 2, 3.0000001}),
		"length":      Key("ev-range", "abc", "m1", []float64{1, 2, 3, 0}),
		"model":       Key("ev-range", "abc", "m2", []float64{1, 2, 3}),
	} {
		if other == a {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Minute)

	m.Set(ctx, "a", []byte("1"))
	m.Set(ctx, "b", []byte("2"))
	m.Set(ctx, "c", []byte("3"))

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	v, ok, err := m.Get(ctx, "c")
	if err != nil || !ok || string(v) != "3" {
		t.Errorf("Get(c) = %q, %v, %v", v, ok, err)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(8, 10*time.Millisecond)
	m.Set(ctx, "a", []byte("1"))

	time.Sleep(50 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("expected entry to expire")
	}
}

func TestTiered_Backfill(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemory(8, time.Minute)
	l2 := NewMemory(8, time.Minute)
	c := NewTiered(nil, l1, l2)

	l2.Set(ctx, "k", []byte("payload"))

	v, ok := c.Get(ctx, "k")
	if !ok || string(v) != "payload" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if _, ok, _ := l1.Get(ctx, "k"); !ok {
		t.Error("expected hit in the slower tier to backfill the faster one")
	}
}

func TestTiered_ErrorsDegradeToMiss(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := context.Background()
	l1 := NewMemory(8, time.Minute)
	c := NewTiered(zap.New(core), l1, brokenStore{})

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss")
	}
	c.Set(ctx, "k", []byte("v"))

	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Errorf("expected the healthy tier to serve the value, got %q, %v", v, ok)
	}
	if logs.FilterMessage("cache read failed").Len() != 1 {
		t.Errorf("expected one read warning, got %d", logs.FilterMessage("cache read failed").Len())
	}
	if logs.FilterMessage("cache write failed").Len() != 1 {
		t.Errorf("expected one write warning, got %d", logs.FilterMessage("cache write failed").Len())
	}
}

func TestTiered_Enabled(t *testing.T) {
	var nilCache *Tiered
	if nilCache.Enabled() {
		t.Error("nil cache reported enabled")
	}
	if NewTiered(nil).Enabled() {
		t.Error("cache without stores reported enabled")
	}
	if NewTiered(nil, nil, NewMemory(1, 0)).Enabled() != true {
		t.Error("cache with a store reported disabled")
	}
}
