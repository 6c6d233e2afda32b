package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/utils"
	"nl2sql-tool/pkg/response"
)

type QueryController struct {
	svc       Service
	validator *validator.Validate
	log       zerolog.Logger
}

func NewQueryController(svc Service, log zerolog.Logger) *QueryController {
	return &QueryController{
		svc:       svc,
		validator: validator.New(),
		log:       log,
	}
}

// Translate godoc
// @Summary Translate a question into SQL
// @Description Generates SQL for the question without running it.
// @Tags queries
// @Accept json
// @Produce json
// @Param request body model.NL2SQLRequest true "Question"
// @Success 200 {object} model.NL2SQLResponse
// @Failure 400 {object} response.StandardResponse
// @Failure 422 {object} response.StandardResponse
// @Failure 503 {object} response.StandardResponse
// @Router /nl2sql [post]
func (qc *QueryController) Translate(c *gin.Context) {
	correlationID := getCorrelationID(c)

	var req model.NL2SQLRequest
	if !qc.bindJSON(c, &req, correlationID) {
		return
	}

	result, err := qc.svc.Generate(c.Request.Context(), &req)
	if err != nil {
		qc.logFailure(err, "nl2sql", correlationID)
		respondError(c, err, correlationID)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Query godoc
// @Summary Translate a question and run the SQL
// @Description Statements outside the read-only policy are returned with a note
// and are not executed.
// @Tags queries
// @Accept json
// @Produce json
// @Param request body model.QueryRequest true "Question and row limit"
// @Success 200 {object} model.QueryResponse
// @Failure 400 {object} response.StandardResponse
// @Failure 422 {object} response.StandardResponse
// @Failure 500 {object} response.StandardResponse
// @Failure 503 {object} response.StandardResponse
// @Router /query [post]
func (qc *QueryController) Query(c *gin.Context) {
	correlationID := getCorrelationID(c)

	var req model.QueryRequest
	if !qc.bindJSON(c, &req, correlationID) {
		return
	}

	result, err := qc.svc.Query(c.Request.Context(), &req)
	if err != nil {
		qc.logFailure(err, "query", correlationID)
		respondError(c, err, correlationID)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExecuteSQL godoc
// @Summary Run caller-supplied SQL
// @Tags queries
// @Produce json
// @Param sql_query query string true "SELECT or WITH statement"
// @Param limit query int false "Maximum rows returned (default 100)"
// @Success 200 {object} response.StandardResponse{data=model.SQLExecutionResponse}
// @Failure 422 {object} response.StandardResponse
// @Failure 500 {object} response.StandardResponse
// @Router /execute-sql [post]
func (qc *QueryController) ExecuteSQL(c *gin.Context) {
	correlationID := getCorrelationID(c)

	var req model.ExecuteSQLRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(
			utils.ErrCodeInvalidRequest,
			"Invalid query parameters: "+err.Error(),
			"",
			correlationID,
		))
		return
	}

	if err := qc.validator.Struct(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(err.Error(), correlationID))
		return
	}
	req.ApplyDefaults()

	result, err := qc.svc.ExecuteSQL(c.Request.Context(), req.SQLQuery, req.Limit)
	if err != nil {
		qc.logFailure(err, "execute-sql", correlationID)
		respondError(c, err, correlationID)
		return
	}

	c.JSON(http.StatusOK, response.SuccessMessageResponse(result, result.Summary, correlationID))
}

func (qc *QueryController) bindJSON(c *gin.Context, req interface{}, correlationID string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(
			utils.ErrCodeInvalidRequest,
			"Invalid request body: "+err.Error(),
			"",
			correlationID,
		))
		return false
	}

	if err := qc.validator.Struct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(err.Error(), correlationID))
		return false
	}
	return true
}

func (qc *QueryController) logFailure(err error, route, correlationID string) {
	appErr := utils.AsAppError(err)
	event := qc.log.Warn()
	if utils.GetErrorStatus(appErr) >= http.StatusInternalServerError {
		event = qc.log.Error()
	}
	event.Err(err).
		Str("route", route).
		Str("code", appErr.Code).
		Str("correlation_id", correlationID).
		Msg("request failed")
}
