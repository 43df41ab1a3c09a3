package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/quotamailer/pkg/metrics"
)

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/status", h.GetStatus)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/docs/openapi.yaml", h.OpenAPI)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
