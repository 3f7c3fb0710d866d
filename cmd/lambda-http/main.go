package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http
//
// API Gateway HTTP APIs cannot upgrade connections, so clients behind this
// entrypoint poll GET /api/v1/analyses/:id instead of opening the stream.

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"coach-backend/internal/bootstrap"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/telemetry"
)

var (
	coldStart sync.Once
	buildErr  error
	proxy     *ginadapter.GinLambdaV2
)

func buildProxy() {
	app, err := bootstrap.Build(context.Background(), config.Load())
	if err != nil {
		buildErr = err
		telemetry.Error("lambda_http.bootstrap_failed", map[string]any{"error": err.Error()})
		return
	}
	proxy = ginadapter.NewV2(app.Router)
}

// unavailable mirrors the API's error envelope so the frontend can show its usual banner.
func unavailable(message string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": "internal_error", "message": message},
	})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	coldStart.Do(buildProxy)
	if buildErr != nil {
		return unavailable("coaching service failed to start"), buildErr
	}
	if proxy == nil {
		return unavailable("coaching service not ready"), nil
	}
	return proxy.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
