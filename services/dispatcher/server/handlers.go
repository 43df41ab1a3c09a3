package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/quotamailer/docs"
	"github.com/Mutter0815/quotamailer/internal/campaign"
)

type statusAPI interface {
	Snapshot() campaign.Report
}

type Handlers struct {
	Status statusAPI
}

func NewHandlers(s statusAPI) *Handlers {
	return &Handlers{Status: s}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GetStatus returns the live report of the current run, or the last finished one.
func (h *Handlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Status.Snapshot())
}

func (h *Handlers) OpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", docs.StatusOpenAPI)
}
