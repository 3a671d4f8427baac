package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/ratewatch/ratewatch/internal/config"
	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/observability"
)

// metricsTransport reaches the exporter on loopback.
var metricsTransport http.RoundTripper = &http.Transport{
	ResponseHeaderTimeout: 5 * time.Second,
}

// MetricsHandler serves /metrics on the main listener by reverse proxying
// the Prometheus exporter.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	target := exporterURL()
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = "/metrics"
			pr.Out.URL.RawQuery = ""
		},
		Transport: metricsTransport,
		ModifyResponse: func(resp *http.Response) error {
			if resp.Header.Get("Content-Type") == "" {
				resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			HandleError(w, r, apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable"))
		},
	}
	proxy.ServeHTTP(w, r)
}

func exporterURL() *url.URL {
	port := observability.GetMetricsPort()
	if port == 0 {
		if cfg := config.GetConfig(); cfg != nil {
			port = cfg.Metrics.Port
		}
	}
	if port == 0 {
		port = 9090
	}
	return &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port)}
}
