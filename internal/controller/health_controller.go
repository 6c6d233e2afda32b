package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthController struct {
	svc Service
}

func NewHealthController(svc Service) *HealthController {
	return &HealthController{svc: svc}
}

// HealthCheck godoc
// @Summary Report database and model reachability
// @Description Always answers 200. Each collaborator is probed independently,
// so a down model still reports the database state and vice versa.
// @Tags health
// @Produce json
// @Success 200 {object} model.HealthResponse
// @Router /health [get]
func (hc *HealthController) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, hc.svc.Health(c.Request.Context()))
}
