package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Notifier abstrai o canal de notificação do comprador (send-once).
// A implementação real fica no transporte da plataforma de chat,
// fora do escopo do core.
type Notifier interface {
	Notify(ctx context.Context, recipientID, message string) error
}

// LogNotifier implementa Notifier escrevendo no log do serviço
type LogNotifier struct{}

// Notify registra a mensagem no log
func (LogNotifier) Notify(_ context.Context, recipientID, message string) error {
	log.Printf("📨 [NOTIFY] To: %s | %s", recipientID, message)
	return nil
}

// FulfillmentDispatcher entrega a chave digital de um pedido completado.
// A entrega é exactly-once: o CAS sobre delivered_at decide um único
// vencedor mesmo com despachos concorrentes ou replays manuais.
type FulfillmentDispatcher struct {
	catalog  CatalogRepository
	orders   OrderRepository
	notifier Notifier
}

// NewFulfillmentDispatcher cria uma nova instância de FulfillmentDispatcher
func NewFulfillmentDispatcher(
	catalog CatalogRepository,
	orders OrderRepository,
	notifier Notifier,
) *FulfillmentDispatcher {
	return &FulfillmentDispatcher{
		catalog:  catalog,
		orders:   orders,
		notifier: notifier,
	}
}

// Deliver emite o ativo digital do pedido ao comprador.
// Pré-condição verificada (não assumida): o pedido precisa estar completed.
func (d *FulfillmentDispatcher) Deliver(ctx context.Context, orderID int64) error {
	order, err := d.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order for delivery: %w", err)
	}

	if order.Status != OrderStatusCompleted {
		return ErrOrderNotCompleted
	}

	won, err := d.orders.MarkDelivered(ctx, orderID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark order as delivered: %w", err)
	}
	if !won {
		log.Printf("ℹ️  [DELIVER] Order already delivered, skipping | OrderID: %d", orderID)
		return ErrAlreadyDelivered
	}

	product, err := d.catalog.GetProduct(ctx, order.ProductID)
	if err != nil {
		log.Printf("❌ [DELIVER] Failed to load product | OrderID: %d | Error: %v", orderID, err)
		return fmt.Errorf("failed to load product for delivery: %w", err)
	}

	if !product.IsDigital {
		log.Printf("ℹ️  [DELIVER] Product is not digital, nothing to emit | OrderID: %d", orderID)
		return nil
	}

	message := fmt.Sprintf("🎉 Payment successful! Order #%d (%s) — your key: %s",
		order.ID, product.Name, product.DigitalKey)
	if err := d.notifier.Notify(ctx, order.BuyerID, message); err != nil {
		return fmt.Errorf("failed to notify buyer: %w", err)
	}

	log.Printf("✅ [DELIVER] Key delivered | OrderID: %d | Product: %s", orderID, product.Name)
	return nil
}
