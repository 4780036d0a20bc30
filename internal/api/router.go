package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(svc *Service, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/specs", SpecListHandler(svc))
		apiGroup.GET("/specs/:name", SpecMetaHandler(svc))
		apiGroup.GET("/specs/:name/lint", LintHandler(svc))
		apiGroup.POST("/specs/:name/verify", VerifyHandler(svc))
		apiGroup.GET("/specs/:name/runs", RunsHandler(svc))
		apiGroup.GET("/specs/:name/suspicious", SuspiciousHandler(svc))
		apiGroup.POST("/specs/:name/counterexample", CounterexampleHandler(svc))

		apiGroup.POST("/verify", AdhocVerifyHandler(svc))
		apiGroup.GET("/runs/:id", RunHandler(svc))
		apiGroup.POST("/admin/reload", AdminReloadHandler(svc))
	}

	return r
}

// RunServer слушает addr до отмены ctx, потом гасит сервер.
func RunServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
