// internal/middleware/metrics.go
package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/predict-service/internal/metrics"
)

// UnaryMetricsInterceptor observes handling time per method and status code.
func UnaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordGRPCLatency(info.FullMethod, grpcCode(err), time.Since(start).Seconds())
		return resp, err
	}
}

// Metrics records HTTP latency by route template, so /apps/ev-range and
// /apps/heart-disease share the /apps/:app series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPLatency(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// grpcCode is "OK" for nil and "Unknown" for errors that carry no status.
func grpcCode(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return "Unknown"
	}
	return st.Code().String()
}
