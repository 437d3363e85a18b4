package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrVerificationInFlight indica que o pedido já tem um ciclo de
// verificação ativo; no máximo um por pedido.
var ErrVerificationInFlight = errors.New("verification already in flight for order")

// SettlementCoordinator dirige o ciclo assíncrono de liquidação:
// espera o atraso configurado, consulta o gateway uma única vez e
// aplica a transição terminal via CAS no ledger. Quem vence o CAS é
// dono dos efeitos colaterais (entrega ou devolução de estoque);
// quem perde não faz nada.
type SettlementCoordinator struct {
	catalog    CatalogRepository
	orders     OrderRepository
	gateway    PaymentGateway
	dispatcher *FulfillmentDispatcher
	notifier   Notifier
	adminID    string
	delay      time.Duration

	tracer         trace.Tracer
	settledCounter metric.Int64Counter
	revenueCounter metric.Int64Counter

	mu       sync.Mutex
	inflight map[int64]struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSettlementCoordinator cria uma nova instância de SettlementCoordinator
func NewSettlementCoordinator(
	catalog CatalogRepository,
	orders OrderRepository,
	gateway PaymentGateway,
	dispatcher *FulfillmentDispatcher,
	notifier Notifier,
	adminID string,
	delay time.Duration,
) *SettlementCoordinator {
	ctx, cancel := context.WithCancel(context.Background())

	meter := otel.Meter("settlement-coordinator")
	return &SettlementCoordinator{
		catalog:        catalog,
		orders:         orders,
		gateway:        gateway,
		dispatcher:     dispatcher,
		notifier:       notifier,
		adminID:        adminID,
		delay:          delay,
		tracer:         otel.Tracer("settlement-coordinator"),
		settledCounter: newInt64Counter(meter, "orders_settled_total"),
		revenueCounter: newInt64Counter(meter, "revenue_cents_total"),
		inflight:       make(map[int64]struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Schedule agenda exatamente um ciclo de verificação para o pedido
func (c *SettlementCoordinator) Schedule(orderID int64, reference string) error {
	c.mu.Lock()
	if _, ok := c.inflight[orderID]; ok {
		c.mu.Unlock()
		return ErrVerificationInFlight
	}
	c.inflight[orderID] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(orderID, reference)

	log.Printf("🚀 [SETTLEMENT] Verification scheduled | OrderID: %d | Ref: %s", orderID, reference)
	return nil
}

// Wait bloqueia até todos os ciclos agendados terminarem.
// Dá determinismo aos testes sem depender de sleeps de relógio.
func (c *SettlementCoordinator) Wait() {
	c.wg.Wait()
}

// Shutdown cancela ciclos ainda em espera e aguarda os demais.
// Pedidos cujo ciclo foi cancelado permanecem pending e dependem
// de reconciliação manual.
func (c *SettlementCoordinator) Shutdown() {
	c.cancel()
	c.wg.Wait()
}

func (c *SettlementCoordinator) run(orderID int64, reference string) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, orderID)
		c.mu.Unlock()
	}()

	// Modela a latência de liquidação; parâmetro de política,
	// não requisito de corretude
	select {
	case <-time.After(c.delay):
	case <-c.ctx.Done():
		log.Printf("⚠️  [SETTLEMENT] Cancelled before verification, order stays pending | OrderID: %d", orderID)
		return
	}

	// Ciclo iniciado roda até o fim, mesmo durante shutdown
	ctx, span := c.tracer.Start(context.Background(), "settle_order")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("settlement_ref", reference),
	)

	result, err := c.gateway.Verify(ctx, reference)
	if err != nil {
		// Fail-closed: erro de gateway é tratado como falha de pagamento
		log.Printf("❌ [SETTLEMENT] Gateway error, failing closed | OrderID: %d | Error: %v", orderID, err)
		span.RecordError(err)
		c.fail(ctx, orderID, reference)
		return
	}

	span.SetAttributes(attribute.String("verification_result", result))

	switch result {
	case VerificationSuccess:
		c.complete(ctx, span, orderID, reference)
	case VerificationPending:
		// TODO: política de retry com backoff para resultados pending;
		// hoje o ciclo é único e pending falha fechado
		log.Printf("⚠️  [SETTLEMENT] Verification still pending, failing closed | OrderID: %d", orderID)
		c.fail(ctx, orderID, reference)
	default:
		log.Printf("❌ [SETTLEMENT] Payment failed | OrderID: %d | Ref: %s", orderID, reference)
		c.fail(ctx, orderID, reference)
	}
}

func (c *SettlementCoordinator) complete(ctx context.Context, span trace.Span, orderID int64, reference string) {
	won, err := c.orders.TransitionOrder(ctx, orderID, OrderStatusCompleted, reference)
	if err != nil {
		// Erro de persistência é fatal para este ciclo, nunca para o processo;
		// o pedido fica pending e entra na reconciliação
		log.Printf("❌ [SETTLEMENT] Failed to complete order | OrderID: %d | Error: %v", orderID, err)
		span.RecordError(err)
		return
	}
	if !won {
		log.Printf("ℹ️  [SETTLEMENT] Order already finalized, skipping | OrderID: %d", orderID)
		return
	}

	c.settledCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", OrderStatusCompleted)))

	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		log.Printf("⚠️  [SETTLEMENT] Failed to load settled order | OrderID: %d | Error: %v", orderID, err)
	} else {
		c.revenueCounter.Add(ctx, order.TotalCents)
	}

	// Vencer o CAS dá a este ciclo a posse exclusiva da entrega
	if err := c.dispatcher.Deliver(ctx, orderID); err != nil {
		log.Printf("❌ [SETTLEMENT] Delivery failed | OrderID: %d | Error: %v", orderID, err)
		span.RecordError(err)
		return
	}

	// Aviso administrativo best-effort
	if c.adminID != "" && order != nil {
		notice := fmt.Sprintf("💰 Order #%d settled | Buyer: %s | Total: %s",
			orderID, order.BuyerID, FormatAmount(order.TotalCents))
		if err := c.notifier.Notify(ctx, c.adminID, notice); err != nil {
			log.Printf("⚠️  [SETTLEMENT] Failed to notify admin | OrderID: %d | Error: %v", orderID, err)
		}
	}

	log.Printf("✅ [SETTLEMENT] Order completed | OrderID: %d", orderID)
}

func (c *SettlementCoordinator) fail(ctx context.Context, orderID int64, reference string) {
	won, err := c.orders.TransitionOrder(ctx, orderID, OrderStatusFailed, reference)
	if err != nil {
		log.Printf("❌ [SETTLEMENT] Failed to mark order as failed | OrderID: %d | Error: %v", orderID, err)
		return
	}
	if !won {
		log.Printf("ℹ️  [SETTLEMENT] Order already finalized, skipping | OrderID: %d", orderID)
		return
	}

	c.settledCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", OrderStatusFailed)))

	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		log.Printf("❌ [SETTLEMENT] Failed to load order for stock release | OrderID: %d | Error: %v", orderID, err)
		return
	}

	// Devolve a reserva; só o vencedor do CAS chega aqui, uma única vez
	if err := c.catalog.ReleaseStock(ctx, order.ProductID, order.Quantity); err != nil {
		log.Printf("❌ [SETTLEMENT] Failed to release stock | OrderID: %d | Product: %s | Error: %v",
			orderID, order.ProductID, err)
	}

	message := fmt.Sprintf("❌ Payment failed for order #%d. Please try again or contact support.", order.ID)
	if err := c.notifier.Notify(ctx, order.BuyerID, message); err != nil {
		log.Printf("⚠️  [SETTLEMENT] Failed to notify buyer | OrderID: %d | Error: %v", orderID, err)
	}

	log.Printf("↩️  [SETTLEMENT] Order failed, stock released | OrderID: %d", orderID)
}
