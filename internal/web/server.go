// Package web serves the single-page predictor forms and the JSON API.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/middleware"
	"github.com/SyedDaiam9101/predict-service/internal/predictor"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Predictor is the part of predictor.Service the web layer needs.
type Predictor interface {
	Apps() []predictor.AppStatus
	App(name string) (*catalog.App, error)
	Available(name string) error
	Predict(ctx context.Context, app string, sel schema.Selections) (*predictor.Result, error)
	Metrics(app string, sel schema.Selections) ([]catalog.MetricValue, error)
}

// Server routes browser and API traffic to a Predictor.
type Server struct {
	svc    Predictor
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router.
func New(svc Predictor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger, engine: gin.New()}

	s.engine.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.Metrics(),
	)
	s.engine.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	s.engine.GET("/", s.index)
	s.engine.GET("/apps/:app", s.showForm)
	s.engine.POST("/apps/:app", s.submitForm)

	api := s.engine.Group("/api/v1")
	api.GET("/apps", s.listApps)
	api.GET("/apps/:app", s.getApp)
	api.POST("/apps/:app/predict", s.predict)
	api.POST("/apps/:app/metrics", s.metrics)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}
