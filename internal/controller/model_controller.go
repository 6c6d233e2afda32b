package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nl2sql-tool/pkg/response"
)

type ModelController struct {
	svc Service
}

func NewModelController(svc Service) *ModelController {
	return &ModelController{svc: svc}
}

// ListModels godoc
// @Summary List models installed on the Ollama server
// @Tags models
// @Produce json
// @Success 200 {object} response.StandardResponse{data=model.ModelsResponse}
// @Failure 503 {object} response.StandardResponse
// @Router /models [get]
func (mc *ModelController) ListModels(c *gin.Context) {
	correlationID := getCorrelationID(c)

	models, err := mc.svc.Models(c.Request.Context())
	if err != nil {
		respondError(c, err, correlationID)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(models, correlationID))
}
