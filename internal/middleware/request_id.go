// internal/middleware/request_id.go
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/SyedDaiam9101/predict-service/internal/logging"
)

// RequestIDHeader carries the request id in HTTP headers and gRPC metadata.
const RequestIDHeader = "x-request-id"

// UnaryRequestIDInterceptor tags the call context with the caller's request id,
// minting a UUID when none came in, and returns it in the response header.
func UnaryRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		var incoming string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDHeader); len(v) > 0 {
				incoming = v[0]
			}
		}
		id := requestIDOrNew(incoming)
		ctx = logging.WithRequestID(ctx, id)

		// Fails only when headers were already sent; the call still proceeds.
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		return handler(ctx, req)
	}
}

// RequestID does the same for the web server.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestIDOrNew(c.GetHeader(RequestIDHeader))
		c.Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id attached by either middleware, or "".
func GetRequestID(ctx context.Context) string {
	return logging.RequestID(ctx)
}

func requestIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
