package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/status-im/status-escrow/common"
	"github.com/status-im/status-escrow/logutils"
)

// Server runs and controls a HTTP prometheus interface.
type Server struct {
	server *http.Server
}

func NewMetricsServer(port int, gatherer prom.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prom.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	p := Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		},
	}
	return &p
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("OK"))
		if err != nil {
			logutils.ZapLogger().Error("health handler error", zap.Error(err))
		}
	})
}

// Handler exposes the mux for tests and embedding.
func (p *Server) Handler() http.Handler {
	return p.server.Handler
}

// Listen starts the HTTP server in the background.
func (p *Server) Listen() {
	defer common.LogOnPanic()
	logutils.ZapLogger().Info("metrics server stopped", zap.Error(p.server.ListenAndServe()))
}

// Stop gracefully shuts down the HTTP server.
func (p *Server) Stop(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
