// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/predict-service/internal/cache"
	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/config"
	"github.com/SyedDaiam9101/predict-service/internal/handler"
	"github.com/SyedDaiam9101/predict-service/internal/logging"
	"github.com/SyedDaiam9101/predict-service/internal/metrics"
	"github.com/SyedDaiam9101/predict-service/internal/middleware"
	"github.com/SyedDaiam9101/predict-service/internal/predictor"
	"github.com/SyedDaiam9101/predict-service/internal/web"
)

const (
	serviceName     = "predict-service"
	drainDelay      = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", serviceName))

	logger.Info("starting",
		zap.Int("grpc_port", cfg.Port),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.String("model_dir", cfg.ModelDir),
		zap.String("redis", cfg.Redis),
		zap.Bool("otel", cfg.OTELEnabled),
		zap.Bool("mock", cfg.UseMockInference),
	)

	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = initTracer(logger, cfg.OTELEndpoint)
		if err != nil {
			logger.Warn("failed to initialize tracer", zap.Error(err))
		} else {
			logger.Info("tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	cat, err := catalog.Load(cfg.AppsDir, cfg.Apps)
	if err != nil {
		logger.Fatal("failed to load apps", zap.Error(err))
	}

	predictions := newCache(logger, cfg)
	defer predictions.Close()

	svc := predictor.New(cat, predictor.Options{
		Logger:        logger,
		Cache:         predictions,
		ModelDir:      cfg.ModelDir,
		SharedLibrary: cfg.ONNXLibrary,
		UseMock:       cfg.UseMockInference,
	})
	defer svc.Close()
	if !svc.Ready() {
		logger.Warn("no model loaded; every app will report the model as unavailable")
	}

	healthServer := health.NewServer()
	opsServer := startOpsServer(logger, cfg.MetricsPort, healthServer, svc)

	// Web UI and JSON API
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	webServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           web.New(svc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("web server listening", zap.String("addr", webServer.Addr))
		if err := webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("web server error", zap.Error(err))
		}
	}()

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryLoggingInterceptor(logger),
		middleware.UnaryMetricsInterceptor(),
	}

	if cfg.OTELEnabled {
		interceptors = append(interceptors, otelgrpc.UnaryServerInterceptor())
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
	)

	handler.RegisterPredictorServer(grpcServer, handler.New(svc, logger))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", addr), zap.Error(err))
	}

	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)

	stop, cancelSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelSignals()
	go func() {
		<-stop.Done()
		logger.Info("shutting down")
		setServing(healthServer, healthpb.HealthCheckResponse_NOT_SERVING)

		// Load balancers poll /healthz before connections drain.
		time.Sleep(drainDelay)
		grpcServer.GracefulStop()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range []*http.Server{webServer, opsServer} {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(ctx); err != nil {
				logger.Warn("tracer shutdown", zap.Error(err))
			}
		}
	}()

	logger.Info("grpc server listening", zap.String("addr", addr))

	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}

	logger.Info("server shutdown complete")
}

// newCache builds the in-process tier and, when configured, the Redis tier.
// An unreachable Redis is logged and skipped.
func newCache(logger *zap.Logger, cfg *config.Config) *cache.Tiered {
	stores := []cache.Store{cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)}

	if cfg.Redis != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			logger.Warn("redis unavailable, continuing with the in-process cache", zap.Error(err))
		} else {
			logger.Info("redis connected", zap.String("addr", cfg.Redis))
			stores = append(stores, r)
		}
	}
	return cache.NewTiered(logger, stores...)
}

// setServing flips the overall status and the predictor service together.
func setServing(hs *health.Server, st healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus("", st)
	hs.SetServingStatus(handler.ServiceName, st)
	if st == healthpb.HealthCheckResponse_SERVING {
		metrics.SetHealthy()
	} else {
		metrics.SetUnhealthy()
	}
}

func startOpsServer(logger *zap.Logger, port int, healthServer *health.Server, svc *predictor.Service) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	serving := func(r *http.Request) bool {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}

	probe := func(ok func(*http.Request) bool, up, down string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !ok(r) {
				http.Error(w, down, http.StatusServiceUnavailable)
				return
			}
			fmt.Fprintln(w, up)
		}
	}
	mux.Handle("/healthz", probe(serving, "OK", "Service Unavailable"))
	// Ready needs at least one loaded model.
	mux.Handle("/readyz", probe(func(r *http.Request) bool { return serving(r) && svc.Ready() }, "Ready", "Not Ready"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ops server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	return server
}

func initTracer(logger *zap.Logger, endpoint string) (func(context.Context) error, error) {
	if endpoint != "" {
		// OTLP export needs a collector client; spans go to stdout until then.
		logger.Info("using stdout trace exporter", zap.String("otlp_endpoint", endpoint))
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
