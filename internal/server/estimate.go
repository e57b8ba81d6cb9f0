package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
)

type estimateRequest struct {
	Address string `json:"address"`
}

// GetEstimate serves an instant estimate for ?address=.
func (s *Server) GetEstimate(c *gin.Context) {
	s.estimate(c, c.Query("address"))
}

// PostEstimate serves an instant estimate for a JSON body.
func (s *Server) PostEstimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, orderdomain.ErrInvalidAddress)
		return
	}
	s.estimate(c, req.Address)
}

func (s *Server) estimate(c *gin.Context, address string) {
	if strings.TrimSpace(address) == "" {
		AbortWithError(c, orderdomain.ErrInvalidAddress)
		return
	}

	m, err := s.estimator.Estimate(c.Request.Context(), address)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
