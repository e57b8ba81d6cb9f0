package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
)

// CreateOrder places a paid verified-measurement order.
func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, orderdomain.ErrInvalidAddress)
		return
	}

	ord, err := s.orderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ord.Response())
}

// ListOrders returns the most recent orders, newest first.
func (s *Server) ListOrders(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	orders, err := s.orderSvc.List(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	responses := make([]orderdomain.OrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, orders[i].Response())
	}
	c.JSON(http.StatusOK, gin.H{"orders": responses})
}

// GetOrder returns one order by id.
func (s *Server) GetOrder(c *gin.Context) {
	ord, err := s.orderSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ord.Response())
}

// CheckOrder reconciles one order immediately instead of waiting for the
// next background pass. Accepts internal and external order ids, like
// GetOrder.
func (s *Server) CheckOrder(c *gin.Context) {
	ord, err := s.orderSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ord, err = s.checker.ForceCheck(c.Request.Context(), ord.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ord.Response())
}
