// internal/handler/handler.go
package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyedDaiam9101/predict-service/internal/logging"
	"github.com/SyedDaiam9101/predict-service/internal/predictor"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

// Predictor is the part of predictor.Service the handler needs.
type Predictor interface {
	Apps() []predictor.AppStatus
	PredictBatch(ctx context.Context, app string, sels []schema.Selections) ([]*predictor.Result, error)
}

// Handler implements PredictorServer.
type Handler struct {
	svc    Predictor
	logger *zap.Logger
}

var _ PredictorServer = (*Handler)(nil)

// New creates a new Handler over svc.
func New(svc Predictor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListApps describes every app and its input fields.
func (h *Handler) ListApps(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if h.svc == nil {
		return nil, failedPreconditionError("predictor not initialized")
	}

	apps := make([]any, 0)
	for _, st := range h.svc.Apps() {
		apps = append(apps, map[string]any{
			"name":      st.App.Name,
			"title":     st.App.Title,
			"task":      string(st.App.Task),
			"available": st.Available,
			"schema":    st.App.Schema.String(),
			"fields":    st.App.Schema.Fields,
		})
	}
	return toStruct(map[string]any{"apps": apps})
}

// Predict handles a single prediction by delegating to BatchPredict
func (h *Handler) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}

	inputs := req.GetFields()["inputs"]
	if inputs == nil {
		inputs = structpb.NewStructValue(&structpb.Struct{})
	}
	batchReq := &structpb.Struct{Fields: map[string]*structpb.Value{
		"app":      req.GetFields()["app"],
		"requests": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{inputs}}),
	}}

	batchResp, err := h.BatchPredict(ctx, batchReq)
	if err != nil {
		return nil, err
	}

	results := batchResp.GetFields()["results"].GetListValue().GetValues()
	if len(results) == 0 {
		return nil, internalError("no response from batch predict")
	}
	return results[0].GetStructValue(), nil
}

// BatchPredict runs every request of one app in a single model call.
func (h *Handler) BatchPredict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	log := logging.For(ctx, h.logger)

	if req == nil {
		return nil, invalidArgumentError("batch request cannot be nil")
	}
	if h.svc == nil {
		return nil, failedPreconditionError("predictor not initialized")
	}

	app := req.GetFields()["app"].GetStringValue()
	if app == "" {
		return nil, invalidArgumentError("app is required")
	}

	values := req.GetFields()["requests"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, invalidArgumentError("batch request cannot be empty")
	}

	sels := make([]schema.Selections, len(values))
	for i, v := range values {
		s := v.GetStructValue()
		if s == nil {
			return nil, invalidArgumentError("request %d is not an object", i)
		}
		sels[i] = schema.Selections(s.AsMap())
	}

	results, err := h.svc.PredictBatch(ctx, app, sels)
	if err != nil {
		log.Warn("batch predict failed", zap.String("app", app), zap.Int("batch_size", len(sels)), zap.Error(err))
		return nil, grpcError(err)
	}

	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r
	}
	resp, err := toStruct(map[string]any{"results": out})
	if err != nil {
		return nil, err
	}

	log.Info("batch predict",
		zap.String("app", app),
		zap.Int("batch_size", len(sels)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, internalError("encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, internalError("encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, internalError("encode response: %v", err)
	}
	return s, nil
}
