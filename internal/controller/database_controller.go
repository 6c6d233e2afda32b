package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nl2sql-tool/internal/utils"
	"nl2sql-tool/pkg/response"
)

type DatabaseController struct {
	svc Service
	log zerolog.Logger
}

func NewDatabaseController(svc Service, log zerolog.Logger) *DatabaseController {
	return &DatabaseController{svc: svc, log: log}
}

// GetSchema godoc
// @Summary Describe the connected database
// @Tags database
// @Produce json
// @Success 200 {object} model.DatabaseSchema
// @Failure 500 {object} response.StandardResponse
// @Router /schema [get]
func (dc *DatabaseController) GetSchema(c *gin.Context) {
	correlationID := getCorrelationID(c)

	schema, err := dc.svc.Schema(c.Request.Context())
	if err != nil {
		dc.log.Error().Err(err).Str("correlation_id", correlationID).Msg("schema introspection failed")
		// An unreachable database is a server error on this route.
		c.JSON(http.StatusInternalServerError, response.ErrorResponseFromAppError(utils.AsAppError(err), correlationID))
		return
	}

	c.JSON(http.StatusOK, schema)
}
