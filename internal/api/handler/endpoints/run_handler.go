package endpoints

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/internal/api/handler/middleware"
	"github.com/wonhochoi1/nature/internal/api/handler/request"
	"github.com/wonhochoi1/nature/internal/api/handler/response"
	"github.com/wonhochoi1/nature/internal/api/service"
	"github.com/wonhochoi1/nature/internal/engine"
	"github.com/wonhochoi1/nature/pkg"
)

type runHandler struct {
	logger     zerolog.Logger
	config     nature.AppConfig
	runService *service.RunService
}

func newRunHandler(runService *service.RunService) *runHandler {
	return &runHandler{
		logger:     nature.Logger,
		config:     nature.GetConfig(),
		runService: runService,
	}
}

func RunHandler(router gin.IRouter, runService *service.RunService) {
	h := newRunHandler(runService)

	routes := router.Group("/api/v1/runs")
	routes.Use(middleware.AuthMiddleware(h.config))
	{
		routes.POST("", h.run)
		routes.POST("/parse", h.parse)
	}
}

func (slf *runHandler) run(c *gin.Context) {
	var req request.RunRequest
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse run request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	report, err := slf.runService.Execute(c.Request.Context(), req.Document)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyDocument) {
			c.JSON(http.StatusBadRequest, response.APIError{Message: `No valid functions found. Start each function block with "function:".`})
			return
		}
		slf.logger.Error().Err(err).Msg("Failed to run document")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.NewRunResponse(report))
}

func (slf *runHandler) parse(c *gin.Context) {
	var req request.RunRequest
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse document request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	defs, err := slf.runService.Parse(req.Document)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.NewParseResponse(defs))
}
