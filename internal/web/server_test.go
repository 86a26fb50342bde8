package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/inference"
	"github.com/SyedDaiam9101/predict-service/internal/predictor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	server *Server
	ev     *inference.MockInference
	heart  *inference.MockInference
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Load("", nil)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	f := &fixture{
		ev:    inference.NewMockWithOutput(inference.Regression, inference.Output{Value: 215.4}),
		heart: inference.NewMockWithOutput(inference.Classification, inference.Output{Label: 1, Probabilities: []float64{0.2, 0.8}}),
	}
	svc := predictor.New(cat, predictor.Options{
		Engines: map[string]inference.InferenceEngine{"ev-range": f.ev, "heart-disease": f.heart},
		Loader: func(spec inference.Spec) (inference.InferenceEngine, error) {
			if strings.Contains(spec.Path, "bowling") {
				return nil, inference.ErrInvalidArtifact
			}
			spec.Kind = inference.KindMock
			return inference.Load(spec)
		},
	})
	t.Cleanup(func() { svc.Close() })
	f.server = New(svc, nil)
	return f
}

func (f *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestIndex(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Electric Vehicle Range Predictor", "Heart Disease Predictor", "/apps/ipl-batting"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if !strings.Contains(body, "model unavailable") {
		t.Error("expected the bowling app to be flagged unavailable")
	}
	if w.Header().Get("x-request-id") == "" {
		t.Error("expected a request id header")
	}
}

func TestShowForm(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/apps/ev-range", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="model_year" type="number" value="2020" min="2010" max="2024" step="1"`) {
		t.Errorf("expected model year slider defaults in form:\n%s", body)
	}
	if !strings.Contains(body, "<option selected>TESLA</option>") || !strings.Contains(body, "<option>BMW</option>") {
		t.Error("expected vehicle make options")
	}
	if f.ev.Calls() != 0 {
		t.Error("showing the form must not run the model")
	}

	if w := f.do(http.MethodGet, "/apps/weather", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown app, got %d", w.Code)
	}
}

func TestForm_AdvancedMetrics(t *testing.T) {
	f := newFixture(t)

	// The bowling model is unavailable; its metrics only need the inputs.
	w := f.do(http.MethodGet, "/apps/ipl-bowling", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Advanced Metrics", "Economy Rate", "<td>8.00</td>", "disabled"} {
		if !strings.Contains(body, want) {
			t.Errorf("form missing %q", want)
		}
	}

	form := url.Values{"runs": {"300"}, "overs": {"40"}}
	w = f.do(http.MethodPost, "/apps/ipl-bowling", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<td>7.50</td>") {
		t.Error("expected metrics for the submitted values")
	}

	form = url.Values{"overs": {"-3"}}
	w = f.do(http.MethodPost, "/apps/ipl-bowling", "application/x-www-form-urlencoded", form.Encode())
	if strings.Contains(w.Body.String(), "Advanced Metrics") {
		t.Error("invalid values should not produce metrics")
	}

	w = f.do(http.MethodGet, "/apps/ev-range", "", "")
	if strings.Contains(w.Body.String(), "Advanced Metrics") {
		t.Error("apps without metrics should not show the section")
	}
}

func TestSubmitForm(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"vehicle_make": {"BMW"}, "model_year": {"2022"}, "price_range": {"$50K-$80K"}}
	w := f.do(http.MethodPost, "/apps/ev-range", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "215 miles") || !strings.Contains(body, "Excellent range! Perfect for long trips.") {
		t.Errorf("expected rendered result, got:\n%s", body)
	}
	if !strings.Contains(body, "<option selected>BMW</option>") {
		t.Error("expected the submitted make to stay selected")
	}
	if row := f.ev.LastBatch[0]; row[13] != 1 || row[1] != 2022 {
		t.Errorf("unexpected vector: %v", row)
	}
}

func TestSubmitForm_Errors(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/apps/ev-range", "application/x-www-form-urlencoded", url.Values{"vehicle_make": {"DELOREAN"}}.Encode())
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unknown category") || !strings.Contains(w.Body.String(), "<form") {
		t.Error("expected an error block next to the form")
	}
	if f.ev.Calls() != 0 {
		t.Error("invalid input reached the model")
	}

	w = f.do(http.MethodPost, "/apps/ipl-bowling", "application/x-www-form-urlencoded", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Model unavailable.") || !strings.Contains(w.Body.String(), "disabled") {
		t.Error("expected the blocking unavailable message")
	}

	f.heart.SetError("onnxruntime: bad input shape")
	w = f.do(http.MethodPost, "/apps/heart-disease", "application/x-www-form-urlencoded", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "onnxruntime") || !strings.Contains(w.Body.String(), msgFailed) {
		t.Error("expected a generic failure message")
	}
}

func TestAPI_ListAndGet(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/apps", "", "")
	var list struct {
		Apps []appSummary `json:"apps"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Apps) != 4 || list.Apps[0].Name != "ev-range" {
		t.Errorf("unexpected apps: %+v", list.Apps)
	}

	w = f.do(http.MethodGet, "/api/v1/apps/heart-disease", "", "")
	var detail map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail["available"] != true || detail["task"] != "classification" {
		t.Errorf("unexpected detail: %v", detail)
	}
	if _, ok := detail["model"]; ok {
		t.Error("model spec should not be exposed")
	}

	w = f.do(http.MethodGet, "/api/v1/apps/ipl-bowling", "", "")
	if !strings.Contains(w.Body.String(), `"available":false`) {
		t.Errorf("expected bowling unavailable: %s", w.Body.String())
	}

	if w := f.do(http.MethodGet, "/api/v1/apps/weather", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAPI_Predict(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/apps/heart-disease/predict", "application/json",
		`{"inputs": {"age": 67, "sex": "Male", "cp": "Asymptomatic", "oldpeak": "1.5"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result predictor.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.ClassName != "High Risk" || result.ConfidenceText != "Confidence: 80.0%" {
		t.Errorf("unexpected result: %+v", result)
	}

	tests := []struct {
		name  string
		path  string
		body  string
		code  int
		field string
	}{
		{"bad json", "/api/v1/apps/heart-disease/predict", `{"inputs":`, http.StatusBadRequest, ""},
		{"unknown category", "/api/v1/apps/heart-disease/predict", `{"inputs": {"cp": "Sharp"}}`, http.StatusUnprocessableEntity, "cp"},
		{"out of range", "/api/v1/apps/heart-disease/predict", `{"inputs": {"age": 7}}`, http.StatusUnprocessableEntity, "age"},
		{"unknown app", "/api/v1/apps/weather/predict", `{}`, http.StatusNotFound, ""},
		{"unavailable", "/api/v1/apps/ipl-bowling/predict", `{}`, http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tt.path, "application/json", tt.body)
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			var body errorBody
			json.Unmarshal(w.Body.Bytes(), &body)
			if body.Error == "" || body.Field != tt.field {
				t.Errorf("unexpected error body: %+v", body)
			}
		})
	}
}

func TestAPI_Metrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/apps/ipl-bowling/metrics", "application/json",
		`{"inputs": {"runs": 300, "overs": 40, "matches": 10, "four_wickets": 2, "five_wickets": 1}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics should not need the model, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Metrics []catalog.MetricValue `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{"economy": "7.50", "wicket_hauls_per_match": "0.30", "overs_per_match": "4.0"}
	for _, m := range resp.Metrics {
		if want[m.Name] != m.Display {
			t.Errorf("%s = %q, want %q", m.Name, m.Display, want[m.Name])
		}
	}

	w = f.do(http.MethodPost, "/api/v1/apps/ev-range/metrics", "application/json", `{}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"metrics":[]`) {
		t.Errorf("expected empty metrics, got %d %s", w.Code, w.Body.String())
	}
}
