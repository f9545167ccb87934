package main

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/udhos/queuemover/cmd/queuemover/zlog"
)

type serverGin struct {
	server *http.Server
	router *gin.Engine
}

func newServerGin(addr string, middlewares ...gin.HandlerFunc) *serverGin {
	r := gin.New()
	r.Use(ginzap.GinzapWithConfig(zlog.Logger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		Context:    zlog.GinContext,
	}))
	r.Use(ginzap.RecoveryWithZap(zlog.Logger, true))
	r.Use(middlewares...)
	return &serverGin{
		router: r,
		server: &http.Server{Addr: addr, Handler: r},
	}
}

func (s *serverGin) start(name string) {
	go func() {
		zlog.Infof("%s server: listening on %s", name, s.server.Addr)
		err := s.server.ListenAndServe()
		zlog.Infof("%s server: exited: %v", name, err)
	}()
}

func (s *serverGin) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		zlog.Infof("shutdown error: %v", err)
	}
}

// serverMiddlewares returns the metrics middleware plus otelgin when
// tracing is enabled.
func serverMiddlewares(app *application) []gin.HandlerFunc {
	list := []gin.HandlerFunc{app.metrics.Middleware(app.config.metricsMaskPath)}
	if app.tracing != nil {
		list = append(list, otelgin.Middleware(app.me))
	}
	return list
}
