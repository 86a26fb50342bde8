// Package cache memoizes predictions keyed by app, schema and feature vector.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"go.uber.org/zap"

	"github.com/SyedDaiam9101/predict-service/internal/metrics"
)

// Store is one cache tier.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key identifies one prediction. The schema fingerprint changes whenever the
// layout does and the model identity whenever the artifact does, so entries
// written by an older layout or model never match.
func Key(app, fingerprint, model string, vec []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return "predict:" + app + ":" + fingerprint + ":" + model + ":" + hex.EncodeToString(h.Sum(nil))
}

// Tiered reads through its stores in order and writes to all of them. Store
// errors are logged and treated as misses; the cache never fails a prediction.
type Tiered struct {
	stores []Store
	logger *zap.Logger
}

// NewTiered builds a cache over stores, fastest first. Nil stores are skipped.
func NewTiered(logger *zap.Logger, stores ...Store) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tiered{logger: logger}
	for _, s := range stores {
		if s != nil {
			t.stores = append(t.stores, s)
		}
	}
	return t
}

// Get returns the first hit, backfilling faster tiers.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, s := range t.stores {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			t.logger.Warn("cache read failed", zap.String("tier", s.Name()), zap.Error(err))
			metrics.RecordCacheLookup(s.Name(), "error")
			continue
		}
		if !ok {
			metrics.RecordCacheLookup(s.Name(), "miss")
			continue
		}
		metrics.RecordCacheLookup(s.Name(), "hit")
		for _, faster := range t.stores[:i] {
			if err := faster.Set(ctx, key, v); err != nil {
				t.logger.Warn("cache backfill failed", zap.String("tier", faster.Name()), zap.Error(err))
			}
		}
		return v, true
	}
	return nil, false
}

// Set writes value to every tier.
func (t *Tiered) Set(ctx context.Context, key string, value []byte) {
	for _, s := range t.stores {
		if err := s.Set(ctx, key, value); err != nil {
			t.logger.Warn("cache write failed", zap.String("tier", s.Name()), zap.Error(err))
		}
	}
}

// Enabled reports whether any tier is configured.
func (t *Tiered) Enabled() bool { return t != nil && len(t.stores) > 0 }

// Close closes every tier.
func (t *Tiered) Close() error {
	var first error
	for _, s := range t.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
