package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StoreUseCaseInterface define a interface para o use case
type StoreUseCaseInterface interface {
	RegisterUser(ctx context.Context, user *User) error
	GetAccount(ctx context.Context, userID string) (*User, error)
	ListProducts(ctx context.Context, category string) ([]*Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	Purchase(ctx context.Context, buyerID, productID string, quantity int) (*Order, *Challenge, error)
	ListOrders(ctx context.Context, buyerID string) ([]*OrderSummary, error)
	ListAllOrders(ctx context.Context) ([]*OrderSummary, error)
	GetStatistics(ctx context.Context) (*Statistics, error)
}

// RegisterUserRequest representa a requisição de registro de usuário
type RegisterUserRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PurchaseRequest representa a requisição de compra
type PurchaseRequest struct {
	BuyerID   string `json:"buyer_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// StoreHandler contém os handlers HTTP
type StoreHandler struct {
	useCase StoreUseCaseInterface
	tracer  trace.Tracer
}

// NewStoreHandler cria uma nova instância de StoreHandler
func NewStoreHandler(useCase StoreUseCaseInterface, tracer trace.Tracer) *StoreHandler {
	return &StoreHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// RegisterUser registra o comprador no primeiro contato
func (h *StoreHandler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &User{
		ID:        req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := h.useCase.RegisterUser(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"result": "success"})
}

// GetAccount retorna os dados da conta do comprador
func (h *StoreHandler) GetAccount(c *gin.Context) {
	user, err := h.useCase.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListProducts lista produtos disponíveis, com filtro opcional por categoria
func (h *StoreHandler) ListProducts(c *gin.Context) {
	products, err := h.useCase.ListProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// ListCategories lista as categorias com produtos em estoque
func (h *StoreHandler) ListCategories(c *gin.Context) {
	categories, err := h.useCase.ListCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// Purchase inicia o fluxo de compra e retorna o desafio KHQR
func (h *StoreHandler) Purchase(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "purchase")
	defer span.End()

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	span.SetAttributes(
		attribute.String("buyer_id", req.BuyerID),
		attribute.String("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	order, challenge, err := h.useCase.Purchase(ctx, req.BuyerID, req.ProductID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))

	c.JSON(http.StatusCreated, gin.H{
		"order_id":     order.ID,
		"total_cents":  order.TotalCents,
		"reference":    challenge.Reference,
		"khqr_payload": challenge.Payload,
		"currency":     challenge.Currency,
		"message":      "Scan the KHQR code to pay; delivery is automatic after settlement",
	})
}

// ListOrders lista os pedidos do comprador
func (h *StoreHandler) ListOrders(c *gin.Context) {
	buyerID := c.Query("buyer_id")
	if buyerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buyer_id is required"})
		return
	}

	orders, err := h.useCase.ListOrders(c.Request.Context(), buyerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// ListAllOrders lista todos os pedidos (painel administrativo)
func (h *StoreHandler) ListAllOrders(c *gin.Context) {
	orders, err := h.useCase.ListAllOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetStatistics retorna as estatísticas do painel administrativo
func (h *StoreHandler) GetStatistics(c *gin.Context) {
	stats, err := h.useCase.GetStatistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HealthCheck verifica a saúde do serviço
func (h *StoreHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "store-service",
	})
}

// errorStatus mapeia erros de domínio para status HTTP
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
