// Package predictor runs apps' models: it encodes selections, invokes the
// engine behind a recover boundary, and turns raw outputs into display results.
package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/predict-service/internal/cache"
	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/inference"
	"github.com/SyedDaiam9101/predict-service/internal/logging"
	"github.com/SyedDaiam9101/predict-service/internal/metrics"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

var (
	// ErrUnknownApp is returned for app names the catalog does not hold.
	ErrUnknownApp = catalog.ErrUnknownApp
	// ErrModelUnavailable is returned when the app's artifact failed to load.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInferenceFailure is returned when the engine errors, panics, or
	// returns output the app cannot interpret.
	ErrInferenceFailure = errors.New("inference failed")
)

// Loader opens a model artifact.
type Loader func(spec inference.Spec) (inference.InferenceEngine, error)

// Options configures a Service.
type Options struct {
	Logger *zap.Logger
	Cache  *cache.Tiered

	// ModelDir resolves relative artifact paths.
	ModelDir string
	// SharedLibrary is the ONNX Runtime library path.
	SharedLibrary string
	// UseMock replaces every artifact with a mock engine.
	UseMock bool

	// Loader defaults to inference.Load.
	Loader Loader
	// Engines, keyed by app name, bypass the loader.
	Engines map[string]inference.InferenceEngine
}

type deployment struct {
	app     *catalog.App
	engine  inference.InferenceEngine
	loadErr error
	// modelID names the loaded artifact in cache keys.
	modelID string
}

// Service serves predictions for every app in a catalog.
type Service struct {
	catalog     *catalog.Catalog
	deployments map[string]*deployment
	cache       *cache.Tiered
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New loads a model for every app. An app whose artifact cannot be loaded stays
// listed but reports ErrModelUnavailable; the other apps keep serving.
func New(cat *catalog.Catalog, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := opts.Loader
	if loader == nil {
		loader = inference.Load
	}

	s := &Service{
		catalog:     cat,
		deployments: make(map[string]*deployment),
		cache:       opts.Cache,
		logger:      logger,
		tracer:      otel.Tracer("predict-service/predictor"),
	}

	for _, app := range cat.Apps() {
		d := &deployment{app: app}
		if engine, ok := opts.Engines[app.Name]; ok {
			d.engine = engine
			d.modelID = "engine-" + uuid.NewString()
		} else {
			spec := app.ModelSpec()
			spec.SharedLibrary = opts.SharedLibrary
			if spec.Path != "" && !filepath.IsAbs(spec.Path) && opts.ModelDir != "" {
				spec.Path = filepath.Join(opts.ModelDir, spec.Path)
			}
			if opts.UseMock {
				spec.Kind = inference.KindMock
			}
			d.engine, d.loadErr = loader(spec)
			if d.loadErr == nil {
				d.modelID = modelIdentity(logger, app.Name, spec)
			}
		}

		if d.loadErr != nil {
			logger.Warn("model unavailable",
				zap.String("app", app.Name),
				zap.String("path", app.Model.Path),
				zap.Error(d.loadErr),
			)
		} else {
			logger.Info("model loaded",
				zap.String("app", app.Name),
				zap.String("kind", app.Model.Kind),
				zap.String("schema", app.Schema.String()),
			)
		}
		metrics.SetModelAvailable(app.Name, d.loadErr == nil)
		s.deployments[app.Name] = d
	}
	return s
}

// AppStatus describes one app and whether it can serve.
type AppStatus struct {
	App       *catalog.App
	Available bool
	Error     string
}

// Apps lists every app, sorted by name.
func (s *Service) Apps() []AppStatus {
	apps := s.catalog.Apps()
	out := make([]AppStatus, 0, len(apps))
	for _, a := range apps {
		d := s.deployments[a.Name]
		st := AppStatus{App: a, Available: d.loadErr == nil}
		if d.loadErr != nil {
			st.Error = d.loadErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// App returns the named app.
func (s *Service) App(name string) (*catalog.App, error) {
	return s.catalog.Get(name)
}

// Available returns nil when the app can serve predictions.
func (s *Service) Available(name string) error {
	d, err := s.deployment(name)
	if err != nil {
		return err
	}
	return d.unavailable()
}

// Ready reports whether at least one app can serve.
func (s *Service) Ready() bool {
	for _, d := range s.deployments {
		if d.loadErr == nil {
			return true
		}
	}
	return false
}

// Metrics evaluates the app's derived display metrics for sel. It does not
// need the model.
func (s *Service) Metrics(name string, sel schema.Selections) ([]catalog.MetricValue, error) {
	app, err := s.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return app.EvaluateMetrics(sel)
}

// Predict serves one interaction: one selection set, one model call.
func (s *Service) Predict(ctx context.Context, name string, sel schema.Selections) (*Result, error) {
	results, err := s.PredictBatch(ctx, name, []schema.Selections{sel})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// PredictBatch validates every selection set before running any of them, then
// packs the uncached vectors into a single model call.
func (s *Service) PredictBatch(ctx context.Context, name string, sels []schema.Selections) (results []*Result, err error) {
	ctx, span := s.tracer.Start(ctx, "predictor.Predict", trace.WithAttributes(
		attribute.String("app", name),
		attribute.Int("batch_size", len(sels)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()
	log := logging.For(ctx, s.logger).With(zap.String("app", name))

	d, err := s.deployment(name)
	if err != nil {
		return nil, err
	}
	if len(sels) == 0 {
		return nil, fmt.Errorf("%w: no selections", schema.ErrInvalidValue)
	}

	app := d.app
	vecs := make([]schema.FeatureVector, len(sels))
	inputs := make([][]schema.Input, len(sels))
	for i, sel := range sels {
		if inputs[i], vecs[i], err = app.Schema.Resolve(sel); err != nil {
			metrics.RecordPrediction(name, "invalid")
			return nil, rowError(len(sels), i, err)
		}
	}

	if err := d.unavailable(); err != nil {
		metrics.RecordPrediction(name, "unavailable")
		return nil, err
	}

	outputs := make([]inference.Output, len(sels))
	cached := make([]bool, len(sels))
	keys := make([]string, len(sels))
	var pending []int
	fingerprint := app.Schema.Fingerprint()
	for i, vec := range vecs {
		if s.cache.Enabled() {
			keys[i] = cache.Key(app.Name, fingerprint, d.modelID, vec)
			if data, ok := s.cache.Get(ctx, keys[i]); ok {
				if jerr := json.Unmarshal(data, &outputs[i]); jerr == nil {
					cached[i] = true
					continue
				}
			}
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		batch := make([][]float64, len(pending))
		for j, i := range pending {
			batch[j] = vecs[i]
		}
		fresh, err := s.invoke(ctx, d, batch)
		if err != nil {
			metrics.RecordPrediction(name, "failed")
			log.Error("inference failed", zap.Int("rows", len(batch)), zap.Error(err))
			return nil, err
		}
		for j, i := range pending {
			outputs[i] = fresh[j]
		}
	}

	results = make([]*Result, len(sels))
	for i := range sels {
		r, err := present(app, outputs[i])
		if err != nil {
			metrics.RecordPrediction(name, "failed")
			log.Error("unusable model output", zap.Int("row", i), zap.Error(err))
			return nil, err
		}
		r.Inputs = inputs[i]
		r.Cached = cached[i]
		if r.Metrics, err = app.EvaluateMetrics(sels[i]); err != nil {
			log.Warn("derived metrics failed", zap.Error(err))
		}
		results[i] = r

		if !cached[i] && s.cache.Enabled() {
			if data, err := json.Marshal(outputs[i]); err == nil {
				s.cache.Set(ctx, keys[i], data)
			}
		}
		outcome := "ok"
		if cached[i] {
			outcome = "cached"
		}
		metrics.RecordPrediction(name, outcome)
	}

	log.Debug("prediction served", zap.Int("rows", len(results)), zap.Int("model_rows", len(pending)))
	return results, nil
}

// invoke runs the engine, converting errors and panics into ErrInferenceFailure.
func (s *Service) invoke(ctx context.Context, d *deployment, batch [][]float64) (out []inference.Output, err error) {
	_, span := s.tracer.Start(ctx, "inference.Predict", trace.WithAttributes(
		attribute.String("engine", d.app.Model.Kind),
		attribute.Int("rows", len(batch)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: engine panic: %v", ErrInferenceFailure, r)
		}
		metrics.RecordInference(d.app.Name, len(batch), time.Since(start).Seconds())
	}()

	out, err = d.engine.Predict(batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}
	if len(out) != len(batch) {
		return nil, fmt.Errorf("%w: engine returned %d outputs for %d rows", ErrInferenceFailure, len(out), len(batch))
	}
	return out, nil
}

// Close releases every loaded engine.
func (s *Service) Close() error {
	var first error
	for _, d := range s.deployments {
		if d.engine == nil {
			continue
		}
		if err := d.engine.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Service) deployment(name string) (*deployment, error) {
	d, ok := s.deployments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	return d, nil
}

func (d *deployment) unavailable() error {
	if d.loadErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, d.app.Name, d.loadErr)
	}
	return nil
}

// modelIdentity falls back to an id unique to this process when the artifact
// cannot be hashed, so its outputs are never shared with other processes.
func modelIdentity(logger *zap.Logger, app string, spec inference.Spec) string {
	id, err := inference.Identity(spec)
	if err != nil {
		logger.Warn("cannot fingerprint model artifact; cache entries stay private to this process",
			zap.String("app", app),
			zap.Error(err),
		)
		return "process-" + uuid.NewString()
	}
	return id
}

func rowError(n, i int, err error) error {
	if n == 1 {
		return err
	}
	return fmt.Errorf("row %d: %w", i, err)
}
