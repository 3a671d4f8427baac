package server

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/intercept"
	"github.com/ratewatch/ratewatch/internal/observability"
)

// upstreamProxy forwards /proxy/{name}/* to the named upstream through the
// intercepting transport, so API traffic routed through it feeds detection.
type upstreamProxy struct {
	proxies map[string]*httputil.ReverseProxy
}

func newUpstreamProxy(upstreams map[string]string, i *intercept.Interceptor) *upstreamProxy {
	transport := i.ProxyTransport(http.DefaultTransport)
	p := &upstreamProxy{proxies: make(map[string]*httputil.ReverseProxy, len(upstreams))}

	for name, raw := range upstreams {
		target, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || target.Scheme == "" || target.Host == "" {
			if logger := observability.ServerLogger; logger != nil {
				logger.Warn("Skipping invalid proxy upstream",
					zap.String("name", name),
					zap.String("url", raw))
			}
			continue
		}
		p.proxies[strings.ToLower(name)] = newReverseProxy(name, target, transport)
	}
	return p
}

func newReverseProxy(name string, target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.URL.Path = singleJoin(target.Path, upstreamPath(pr.In.URL.Path))
			pr.Out.URL.RawPath = ""
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			HandleError(w, r, apperrors.WrapExternalService(r.Context(), err, "upstream "+name+" unavailable"))
		},
	}
}

// upstreamPath drops the /proxy/{name} prefix.
func upstreamPath(path string) string {
	rest := strings.TrimPrefix(path, "/proxy/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return ""
}

func singleJoin(base, rest string) string {
	if rest == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(rest, "/")
}

func (p *upstreamProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))
	proxy, ok := p.proxies[name]
	if !ok {
		HandleError(w, r, apperrors.NewUnknownUpstreamError("unknown proxy upstream: "+name))
		return
	}

	// streamed completions outlive the server's WriteTimeout
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		observability.Component("proxy").Warn("Could not clear write deadline",
			zap.String("upstream", name),
			zap.Error(err))
	}
	proxy.ServeHTTP(w, r)
}
