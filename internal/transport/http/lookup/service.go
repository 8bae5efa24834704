// Package lookup exposes the aggregate vehicle lookup over HTTP.
package lookup

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domain "consulta-vehicular-go/internal/domain/lookup"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
	httptransport "consulta-vehicular-go/internal/transport/http"
)

// Service is the HTTP side of the aggregator.
type Service struct {
	aggregator *domain.Aggregator
	logger     *logging.Logger
}

func NewService(aggregator *domain.Aggregator, logger *logging.Logger) (*Service, error) {
	if aggregator == nil {
		return nil, errors.New(errors.KindConfig, "lookup.new", "aggregator is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "lookup.new", "logger is required")
	}
	return &Service{aggregator: aggregator, logger: logger}, nil
}

// Register mounts the lookup routes on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/consulta-vehicular-full", s.handleFull)
	router.GET("/servicios", s.handleCatalog)
	s.logger.InfoTag("HTTP", "lookup routes registered")
	return nil
}

func (s *Service) handleFull(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "identifier is required", nil)
		return
	}

	resp, err := s.aggregator.Execute(c.Request.Context(), req)
	if err != nil {
		httptransport.RespondError(c, errors.HTTPStatus(err), errors.PublicMessage(err), nil)
		return
	}
	// The aggregate envelope is its own wire shape.
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleCatalog(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"services": domain.Catalog(),
		"aliases":  domain.Aliases(),
	}, "")
}
