// internal/handler/handler_test.go
package handler

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/inference"
	"github.com/SyedDaiam9101/predict-service/internal/middleware"
	"github.com/SyedDaiam9101/predict-service/internal/predictor"
)

func newService(t *testing.T, engines map[string]inference.InferenceEngine, loader predictor.Loader) *predictor.Service {
	t.Helper()
	cat, err := catalog.Load("", nil)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	svc := predictor.New(cat, predictor.Options{Engines: engines, UseMock: loader == nil, Loader: loader})
	t.Cleanup(func() { svc.Close() })
	return svc
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %v error, got nil", want)
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("Expected gRPC status error, got: %v", err)
	}
	if st.Code() != want {
		t.Errorf("Expected %v, got: %v (%s)", want, st.Code(), st.Message())
	}
}

func TestPredictWithNilPredictor(t *testing.T) {
	h := New(nil, nil)

	_, err := h.Predict(context.Background(), mustStruct(t, map[string]any{"app": "ev-range"}))
	expectCode(t, err, codes.FailedPrecondition)
}

func TestPredictWithNilRequest(t *testing.T) {
	h := New(newService(t, nil, nil), nil)

	_, err := h.Predict(context.Background(), nil)
	expectCode(t, err, codes.InvalidArgument)
}

func TestPredictWithMockInference(t *testing.T) {
	mock := inference.NewMockWithOutput(inference.Regression, inference.Output{Value: 215.4})
	h := New(newService(t, map[string]inference.InferenceEngine{"ev-range": mock}, nil), nil)

	resp, err := h.Predict(context.Background(), mustStruct(t, map[string]any{
		"app":    "ev-range",
		"inputs": map[string]any{"vehicle_make": "BMW", "model_year": 2021},
	}))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	fields := resp.GetFields()
	if got := fields["text"].GetStringValue(); got != "215 miles" {
		t.Errorf("text = %q, want %q", got, "215 miles")
	}
	if got := fields["level"].GetStringValue(); got != "success" {
		t.Errorf("level = %q, want success", got)
	}
	if got := fields["value"].GetNumberValue(); got != 215.4 {
		t.Errorf("value = %v, want 215.4", got)
	}

	if mock.Calls() != 1 {
		t.Errorf("Expected 1 model call, got %d", mock.Calls())
	}
}

func TestPredictWithoutInputsUsesDefaults(t *testing.T) {
	mock := inference.NewMock()
	h := New(newService(t, map[string]inference.InferenceEngine{"ipl-batting": mock}, nil), nil)

	resp, err := h.Predict(context.Background(), mustStruct(t, map[string]any{"app": "ipl-batting"}))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got := resp.GetFields()["text"].GetStringValue(); got != "150" {
		t.Errorf("text = %q, want 150", got)
	}
	if mock.LastBatch[0][0] != 15 {
		t.Errorf("expected default matches 15, got %v", mock.LastBatch[0][0])
	}
}

func TestBatchPredictWithMockInference(t *testing.T) {
	mock := inference.NewMockWithOutput(inference.Classification, inference.Output{Label: 0, Probabilities: []float64{0.9, 0.1}})
	h := New(newService(t, map[string]inference.InferenceEngine{"heart-disease": mock}, nil), nil)

	resp, err := h.BatchPredict(context.Background(), mustStruct(t, map[string]any{
		"app": "heart-disease",
		"requests": []any{
			map[string]any{"age": 45, "sex": "Female"},
			map[string]any{"age": 70, "sex": "Male", "cp": "Asymptomatic"},
		},
	}))
	if err != nil {
		t.Fatalf("BatchPredict failed: %v", err)
	}

	results := resp.GetFields()["results"].GetListValue().GetValues()
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	first := results[0].GetStructValue().GetFields()
	if first["class_name"].GetStringValue() != "Low Risk" {
		t.Errorf("class_name = %q, want Low Risk", first["class_name"].GetStringValue())
	}
	if first["confidence_text"].GetStringValue() != "Confidence: 90.0%" {
		t.Errorf("confidence_text = %q", first["confidence_text"].GetStringValue())
	}

	// Verify mock was called once for the batch
	if mock.Calls() != 1 {
		t.Errorf("Expected mock.Calls()=1, got %d", mock.Calls())
	}
}

func TestBatchPredictErrors(t *testing.T) {
	mock := inference.NewMock()
	broken := &inference.MockInference{TaskKind: inference.Regression, PanicMessage: "shape mismatch"}
	svc := newService(t, map[string]inference.InferenceEngine{"ipl-batting": mock, "ipl-bowling": broken}, nil)
	h := New(svc, nil)

	tests := []struct {
		name string
		req  map[string]any
		want codes.Code
	}{
		{"missing app", map[string]any{"requests": []any{map[string]any{}}}, codes.InvalidArgument},
		{"empty batch", map[string]any{"app": "ipl-batting", "requests": []any{}}, codes.InvalidArgument},
		{"non-object request", map[string]any{"app": "ipl-batting", "requests": []any{"matches"}}, codes.InvalidArgument},
		{"unknown app", map[string]any{"app": "weather", "requests": []any{map[string]any{}}}, codes.NotFound},
		{"unknown field", map[string]any{"app": "ipl-batting", "requests": []any{map[string]any{"ducks": 3}}}, codes.InvalidArgument},
		{"out of range", map[string]any{"app": "ipl-batting", "requests": []any{map[string]any{"matches": 99}}}, codes.InvalidArgument},
		{"inference failure", map[string]any{"app": "ipl-bowling", "requests": []any{map[string]any{}}}, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.BatchPredict(context.Background(), mustStruct(t, tt.req))
			expectCode(t, err, tt.want)
		})
	}

	if mock.Calls() != 0 {
		t.Errorf("invalid requests reached the model %d times", mock.Calls())
	}
}

func TestInferenceFailureIsGeneric(t *testing.T) {
	broken := &inference.MockInference{TaskKind: inference.Regression, ShouldError: true, ErrorMessage: "onnxruntime: node 7 rejected input"}
	h := New(newService(t, map[string]inference.InferenceEngine{"ipl-bowling": broken}, nil), nil)

	_, err := h.Predict(context.Background(), mustStruct(t, map[string]any{"app": "ipl-bowling"}))
	expectCode(t, err, codes.Internal)
	if msg := status.Convert(err).Message(); msg != "prediction failed" {
		t.Errorf("expected generic message, got %q", msg)
	}
}

func TestModelUnavailable(t *testing.T) {
	loader := func(spec inference.Spec) (inference.InferenceEngine, error) {
		return nil, inference.ErrInvalidArtifact
	}
	h := New(newService(t, nil, loader), nil)

	_, err := h.Predict(context.Background(), mustStruct(t, map[string]any{"app": "ev-range"}))
	expectCode(t, err, codes.FailedPrecondition)

	resp, err := h.ListApps(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListApps failed: %v", err)
	}
	for _, v := range resp.GetFields()["apps"].GetListValue().GetValues() {
		if v.GetStructValue().GetFields()["available"].GetBoolValue() {
			t.Errorf("app reported available: %v", v)
		}
	}
}

func TestListApps(t *testing.T) {
	h := New(newService(t, nil, nil), nil)

	resp, err := h.ListApps(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListApps failed: %v", err)
	}

	apps := resp.GetFields()["apps"].GetListValue().GetValues()
	if len(apps) != 4 {
		t.Fatalf("Expected 4 apps, got %d", len(apps))
	}
	ev := apps[0].GetStructValue().GetFields()
	if ev["name"].GetStringValue() != "ev-range" || ev["task"].GetStringValue() != "regression" {
		t.Errorf("unexpected first app: %v", ev)
	}
	if n := len(ev["fields"].GetListValue().GetValues()); n != 4 {
		t.Errorf("expected 4 ev-range fields, got %d", n)
	}
	if !ev["available"].GetBoolValue() {
		t.Error("expected mock-backed app to be available")
	}
}

func TestServiceOverGRPC(t *testing.T) {
	mock := inference.NewMockWithOutput(inference.Regression, inference.Output{Value: 14})
	h := New(newService(t, map[string]inference.InferenceEngine{"ipl-bowling": mock}, nil), nil)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	))
	RegisterPredictorServer(srv, h)
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx := metadata.AppendToOutgoingContext(context.Background(), middleware.RequestIDHeader, "grpc-test-1")
	req := mustStruct(t, map[string]any{"app": "ipl-bowling", "inputs": map[string]any{"runs": 380}})
	resp := new(structpb.Struct)
	var header metadata.MD
	if err := conn.Invoke(ctx, "/"+ServiceName+"/Predict", req, resp, grpc.Header(&header)); err != nil {
		t.Fatalf("Invoke Predict: %v", err)
	}

	if got := resp.GetFields()["message"].GetStringValue(); got != "Good Bowling Performance Expected!" {
		t.Errorf("message = %q", got)
	}
	if got := header.Get(middleware.RequestIDHeader); len(got) != 1 || got[0] != "grpc-test-1" {
		t.Errorf("expected request id echoed, got %v", got)
	}

	err = conn.Invoke(context.Background(), "/"+ServiceName+"/Predict", mustStruct(t, map[string]any{"app": "weather"}), new(structpb.Struct))
	expectCode(t, err, codes.NotFound)
}
