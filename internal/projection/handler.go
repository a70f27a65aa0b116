package projection

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	httperr "github.com/kiln-data/shopfunnel/internal/core/errors"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/engagement", s.HandleEngagement)
	r.GET("/v1/summary", s.HandleSummary)
	r.GET("/v1/runs", s.HandleRuns)
}

// HandleEngagement handles GET /v1/engagement
// Query parameters: list_name, event_name, limit
func (s *Service) HandleEngagement(c *gin.Context) {
	var query struct {
		ListName  string `form:"list_name"`
		EventName string `form:"event_name"`
		Limit     int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	rows, err := s.Engagement(c.Request.Context(), EngagementQuery{
		ListName:  query.ListName,
		EventName: query.EventName,
		Limit:     query.Limit,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidQueryError,
				Message:   "Invalid engagement query",
				Details:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query engagement view",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
}

// HandleSummary handles GET /v1/summary
func (s *Service) HandleSummary(c *gin.Context) {
	rows, err := s.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query event summary",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": rows})
}

// HandleRuns handles GET /v1/runs
// Query parameters: limit
func (s *Service) HandleRuns(c *gin.Context) {
	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": s.Runs(query.Limit)})
}
