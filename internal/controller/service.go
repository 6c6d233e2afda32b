package controller

import (
	"context"

	"github.com/gin-gonic/gin"

	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/utils"
	"nl2sql-tool/pkg/response"
)

// Service is the subset of *service.NL2SQLService the controllers call.
type Service interface {
	Generate(ctx context.Context, req *model.NL2SQLRequest) (*model.NL2SQLResponse, error)
	Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error)
	ExecuteSQL(ctx context.Context, sqlQuery string, limit int) (*model.SQLExecutionResponse, error)
	Schema(ctx context.Context) (*model.DatabaseSchema, error)
	Health(ctx context.Context) *model.HealthResponse
	Models(ctx context.Context) (*model.ModelsResponse, error)
}

func getCorrelationID(c *gin.Context) string {
	if id := c.GetString("correlation_id"); id != "" {
		return id
	}
	return utils.GenerateUUID()
}

// respondError writes err in the standard envelope with the status its code maps to.
func respondError(c *gin.Context, err error, correlationID string) {
	appErr := utils.AsAppError(err)
	c.JSON(utils.GetErrorStatus(appErr), response.ErrorResponseFromAppError(appErr, correlationID))
}
