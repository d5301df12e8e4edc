package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(GinMiddleware("/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/tile/:z/:x/:y", func(c *gin.Context) {
		if !SpanFromContext(c).SpanContext().IsValid() {
			t.Error("expected a request span in the handler context")
		}
		c.Status(http.StatusNotFound)
	})

	for _, path := range []string{"/healthz", "/tile/1/0/0"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if name := spans[0].Name(); name != "GET /tile/:z/:x/:y" {
		t.Errorf("unexpected span name %q", name)
	}
	if code := spans[0].Status().Code.String(); code != "Error" {
		t.Errorf("expected error status for 404, got %s", code)
	}
}
