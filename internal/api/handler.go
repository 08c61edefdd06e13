package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"checkout-service/config"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout  *service.CheckoutService
	orders    *service.OrderService
	reconcile *service.ReconcileService
	frontend  config.FrontendConfig
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	orders *service.OrderService,
	reconcile *service.ReconcileService,
	frontend config.FrontendConfig,
) *Handler {
	return &Handler{
		checkout:  checkout,
		orders:    orders,
		reconcile: reconcile,
		frontend:  frontend,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders/checkout", h.checkoutOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:code", h.getOrder)
		v1.POST("/orders/:code/cancel", h.cancelOrder)
		v1.POST("/orders/:code/payment-url", h.paymentURL)
		v1.PUT("/orders/:code/status", h.updateOrderStatus)

		// Gateway callbacks: browser redirect and instant notification.
		v1.GET("/payments/vnpay/return", h.vnpayReturn)
		v1.GET("/payments/vnpay/ipn", h.vnpayIPN)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// checkoutRequest is the inbound checkout payload. The caller identity
// comes from the X-User-ID header set by the upstream auth layer.
type checkoutRequest struct {
	ShippingAddress struct {
		FullName   string `json:"full_name" binding:"required"`
		Phone      string `json:"phone" binding:"required"`
		Address    string `json:"address" binding:"required"`
		City       string `json:"city" binding:"required"`
		PostalCode string `json:"postal_code"`
		Notes      string `json:"notes"`
	} `json:"shipping_address" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	Notes         string `json:"notes"`
}

func (h *Handler) checkoutOrder(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.checkout.Checkout(c.Request.Context(), &service.CheckoutRequest{
		UserID: userID,
		ShippingAddress: models.ShippingAddress{
			FullName:   req.ShippingAddress.FullName,
			Phone:      req.ShippingAddress.Phone,
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Notes:      req.ShippingAddress.Notes,
		},
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("code"), c.GetHeader("X-User-ID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) listOrders(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.orders.ListOrders(c.Request.Context(), userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), c.Param("code"), userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) paymentURL(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	paymentURL, err := h.orders.PaymentURL(c.Request.Context(), c.Param("code"), userID, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_url": paymentURL})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateOrderStatus is the admin transition endpoint; authorization is
// enforced upstream.
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("code"), models.OrderStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// vnpayReturn handles the browser redirect back from the gateway and
// sends the customer to the matching frontend page.
func (h *Handler) vnpayReturn(c *gin.Context) {
	result := h.reconcile.HandleReturn(c.Request.Context(), queryParams(c))

	var target string
	switch result.Outcome {
	case service.ReturnSuccess:
		target = h.frontend.PaymentSuccessURL
	case service.ReturnFailed:
		target = h.frontend.PaymentFailedURL
	default:
		target = h.frontend.PaymentErrorURL
	}

	q := url.Values{}
	if result.OrderCode != "" {
		q.Set("order_code", result.OrderCode)
	}
	q.Set("message", result.Message)

	c.Redirect(http.StatusFound, target+"?"+q.Encode())
}

// vnpayIPN handles the gateway's server-to-server notification and
// answers with the acknowledgement code its retry loop expects.
func (h *Handler) vnpayIPN(c *gin.Context) {
	resp := h.reconcile.HandleIPN(c.Request.Context(), queryParams(c))
	c.JSON(http.StatusOK, resp)
}

// queryParams flattens the request query into the parameter bag the
// signer verifies (first value per key).
func queryParams(c *gin.Context) map[string]string {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

func respondError(c *gin.Context, err error) {
	var unavailable *service.ProductUnavailableError
	var insufficient *service.InsufficientStockError

	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrInvalidPaymentMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &unavailable), errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
