package main

import (
	"errors"
	"time"
)

// Erros de domínio da loja
var (
	ErrOutOfStock        = errors.New("out of stock")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrAlreadyDelivered  = errors.New("order already delivered")
	ErrOrderNotCompleted = errors.New("order is not completed")
)

// Product representa um produto digital do catálogo.
// Preços são mantidos em centavos (ponto fixo) para evitar erros de float.
type Product struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	Category    string    `json:"category" db:"category"`
	Stock       int       `json:"stock" db:"stock"`
	IsDigital   bool      `json:"is_digital" db:"is_digital"`
	DigitalKey  string    `json:"-" db:"digital_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Order representa um pedido no sistema
type Order struct {
	ID            int64      `json:"id" db:"id"`
	BuyerID       string     `json:"buyer_id" db:"buyer_id"`
	ProductID     string     `json:"product_id" db:"product_id"`
	Quantity      int        `json:"quantity" db:"quantity"`
	TotalCents    int64      `json:"total_cents" db:"total_cents"`
	SettlementRef string     `json:"settlement_ref" db:"settlement_ref"`
	Status        string     `json:"status" db:"status"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// NewOrder cria uma nova instância de Order em status pending.
// TotalCents é congelado no momento da criação: mudanças de preço
// posteriores não afetam pedidos existentes.
func NewOrder(buyerID, productID string, quantity int, unitPriceCents int64) *Order {
	return &Order{
		BuyerID:    buyerID,
		ProductID:  productID,
		Quantity:   quantity,
		TotalCents: unitPriceCents * int64(quantity),
		Status:     OrderStatusPending,
		CreatedAt:  time.Now(),
	}
}

// IsTerminal retorna true quando o pedido já atingiu um status final
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusFailed
}

// OrderStatus representa os possíveis status de um pedido.
// pending -> completed | failed; status terminais são finais.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// IsTerminalStatus indica se o status informado é terminal
func IsTerminalStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusFailed
}

// User representa um comprador registrado
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	BalanceCents int64     `json:"balance_cents" db:"balance_cents"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// OrderSummary é a visão de listagem de pedidos com nomes resolvidos
type OrderSummary struct {
	ID          int64     `json:"id"`
	BuyerID     string    `json:"buyer_id"`
	Username    string    `json:"username,omitempty"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	TotalCents  int64     `json:"total_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Statistics agrega os números do painel administrativo.
// TotalRevenueCents soma total_cents apenas de pedidos completed.
type Statistics struct {
	TotalUsers        int   `json:"total_users"`
	TotalOrders       int   `json:"total_orders"`
	CompletedOrders   int   `json:"completed_orders"`
	TotalRevenueCents int64 `json:"total_revenue_cents"`
}
