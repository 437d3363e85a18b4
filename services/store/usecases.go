package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// StoreUseCase contém a lógica de negócio da loja
type StoreUseCase struct {
	catalog     CatalogRepository
	orders      OrderRepository
	users       UserRepository
	gateway     PaymentGateway
	coordinator *SettlementCoordinator
	notifier    Notifier
	adminID     string

	ordersCreatedCounter metric.Int64Counter
}

// newInt64Counter cria o instrumento do meter; se a criação falhar o
// contador vira noop para que os Add posteriores nunca derrubem o fluxo
func newInt64Counter(meter metric.Meter, name string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name)
	if err != nil {
		log.Printf("⚠️  Failed to create counter %s: %v", name, err)
		counter, _ = noop.NewMeterProvider().Meter("fallback").Int64Counter(name)
	}
	return counter
}

// NewStoreUseCase cria uma nova instância de StoreUseCase.
// adminID vazio desliga os avisos administrativos.
func NewStoreUseCase(
	catalog CatalogRepository,
	orders OrderRepository,
	users UserRepository,
	gateway PaymentGateway,
	coordinator *SettlementCoordinator,
	notifier Notifier,
	adminID string,
) *StoreUseCase {
	return &StoreUseCase{
		catalog:              catalog,
		orders:               orders,
		users:                users,
		gateway:              gateway,
		coordinator:          coordinator,
		notifier:             notifier,
		adminID:              adminID,
		ordersCreatedCounter: newInt64Counter(otel.Meter("store-usecase"), "orders_created_total"),
	}
}

// RegisterUser registra o comprador no primeiro contato; chamadas
// repetidas são ignoradas
func (uc *StoreUseCase) RegisterUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if err := uc.users.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// GetAccount busca os dados da conta do comprador
func (uc *StoreUseCase) GetAccount(ctx context.Context, userID string) (*User, error) {
	return uc.users.GetUser(ctx, userID)
}

// ListProducts lista produtos disponíveis, opcionalmente por categoria
func (uc *StoreUseCase) ListProducts(ctx context.Context, category string) ([]*Product, error) {
	return uc.catalog.ListProducts(ctx, category)
}

// ListCategories lista as categorias com produtos em estoque
func (uc *StoreUseCase) ListCategories(ctx context.Context) ([]string, error) {
	return uc.catalog.ListCategories(ctx)
}

// Purchase executa o fluxo de compra: reserva estoque, cria o pedido
// pending, emite o desafio KHQR e agenda o ciclo de liquidação.
// A reserva é devolvida se qualquer passo posterior falhar — nenhuma
// reserva fica órfã.
func (uc *StoreUseCase) Purchase(ctx context.Context, buyerID, productID string, quantity int) (*Order, *Challenge, error) {
	log.Printf("➡️ [PURCHASE] BuyerID: %s | ProductID: %s | Qty: %d", buyerID, productID, quantity)

	if quantity < 1 {
		return nil, nil, ErrInvalidQuantity
	}

	product, err := uc.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	// Preço congelado na criação do pedido; reserva e criação são uma
	// unidade atômica, então uma falha aqui não deixa estoque debitado
	order := NewOrder(buyerID, productID, quantity, product.PriceCents)
	orderID, err := uc.orders.ReserveAndCreateOrder(ctx, order)
	if err != nil {
		log.Printf("❌ [PURCHASE] Reservation denied | ProductID: %s | Error: %v", productID, err)
		return nil, nil, err
	}

	challenge, err := uc.gateway.RequestChallenge(ctx, order.TotalCents, orderID)
	if err != nil {
		// Fail-closed: sem desafio não há liquidação possível
		log.Printf("❌ [PURCHASE] Challenge issuance failed | OrderID: %d | Error: %v", orderID, err)
		if won, terr := uc.orders.TransitionOrder(ctx, orderID, OrderStatusFailed, ""); terr != nil {
			log.Printf("❌ [PURCHASE] Failed to fail order after gateway error | OrderID: %d | Error: %v", orderID, terr)
		} else if won {
			if relErr := uc.catalog.ReleaseStock(ctx, productID, quantity); relErr != nil {
				log.Printf("❌ [PURCHASE] Failed to release reservation | ProductID: %s | Error: %v", productID, relErr)
			}
		}
		return nil, nil, fmt.Errorf("failed to issue payment challenge: %w", err)
	}

	order.SettlementRef = challenge.Reference
	if err := uc.orders.SetSettlementRef(ctx, orderID, challenge.Reference); err != nil {
		log.Printf("⚠️  [PURCHASE] Failed to persist settlement ref | OrderID: %d | Error: %v", orderID, err)
	}

	if err := uc.coordinator.Schedule(orderID, challenge.Reference); err != nil {
		log.Printf("⚠️  [PURCHASE] Failed to schedule verification | OrderID: %d | Error: %v", orderID, err)
	}

	uc.ordersCreatedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("product_id", productID),
	))

	// Aviso administrativo best-effort
	if uc.adminID != "" {
		notice := fmt.Sprintf("🛒 New order #%d | Buyer: %s | %s x%d | Total: %s",
			orderID, buyerID, product.Name, quantity, FormatAmount(order.TotalCents))
		if err := uc.notifier.Notify(ctx, uc.adminID, notice); err != nil {
			log.Printf("⚠️  [PURCHASE] Failed to notify admin | OrderID: %d | Error: %v", orderID, err)
		}
	}

	log.Printf("✅ [PURCHASE] Order created | OrderID: %d | Ref: %s | Total: %s",
		orderID, challenge.Reference, FormatAmount(order.TotalCents))
	return order, challenge, nil
}

// ListOrders lista os pedidos do comprador, mais recentes primeiro
func (uc *StoreUseCase) ListOrders(ctx context.Context, buyerID string) ([]*OrderSummary, error) {
	return uc.orders.ListOrdersByBuyer(ctx, buyerID)
}

// ListAllOrders lista todos os pedidos (painel administrativo)
func (uc *StoreUseCase) ListAllOrders(ctx context.Context) ([]*OrderSummary, error) {
	return uc.orders.ListAllOrders(ctx)
}

// GetStatistics agrega os números do painel administrativo
func (uc *StoreUseCase) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats, err := uc.orders.GetStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load order statistics: %w", err)
	}

	totalUsers, err := uc.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	stats.TotalUsers = totalUsers
	return stats, nil
}
