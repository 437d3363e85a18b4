package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RecordingNotifier captura as mensagens emitidas para asserção
type RecordingNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{messages: make(map[string][]string)}
}

func (n *RecordingNotifier) Notify(_ context.Context, recipientID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[recipientID] = append(n.messages[recipientID], message)
	return nil
}

// Messages retorna as mensagens recebidas pelo destinatário
func (n *RecordingNotifier) Messages(recipientID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[recipientID]...)
}

func newFulfillmentFixture(t *testing.T) (*MemoryCatalogRepository, *MemoryOrderRepository, *RecordingNotifier, *FulfillmentDispatcher) {
	t.Helper()
	catalog := NewMemoryCatalogRepository()
	seedMemoryCatalog(t, catalog)
	orders := NewMemoryOrderRepository(catalog, nil)
	notifier := NewRecordingNotifier()
	dispatcher := NewFulfillmentDispatcher(catalog, orders, notifier)
	return catalog, orders, notifier, dispatcher
}

func TestDeliverEmitsDigitalKey(t *testing.T) {
	// Arrange
	ctx := context.Background()
	_, orders, notifier, dispatcher := newFulfillmentFixture(t)

	orderID, err := orders.CreateOrder(ctx, NewOrder("buyer-1", "steam-wallet-20", 1, 2000))
	require.NoError(t, err)
	_, err = orders.TransitionOrder(ctx, orderID, OrderStatusCompleted, "txn_1")
	require.NoError(t, err)

	// Act
	err = dispatcher.Deliver(ctx, orderID)

	// Assert
	require.NoError(t, err)
	messages := notifier.Messages("buyer-1")
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "STEAM-7418-5296")

	order, err := orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.NotNil(t, order.DeliveredAt)
}

func TestDeliverRequiresCompletedOrder(t *testing.T) {
	ctx := context.Background()
	_, orders, notifier, dispatcher := newFulfillmentFixture(t)

	orderID, err := orders.CreateOrder(ctx, NewOrder("buyer-1", "steam-wallet-20", 1, 2000))
	require.NoError(t, err)

	err = dispatcher.Deliver(ctx, orderID)

	assert.ErrorIs(t, err, ErrOrderNotCompleted)
	assert.Empty(t, notifier.Messages("buyer-1"))

	order, err := orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, order.DeliveredAt)
}

func TestDeliverExactlyOnceUnderConcurrency(t *testing.T) {
	// Arrange
	ctx := context.Background()
	_, orders, notifier, dispatcher := newFulfillmentFixture(t)

	orderID, err := orders.CreateOrder(ctx, NewOrder("buyer-1", "steam-wallet-20", 1, 2000))
	require.NoError(t, err)
	_, err = orders.TransitionOrder(ctx, orderID, OrderStatusCompleted, "txn_1")
	require.NoError(t, err)

	// Act: despachos concorrentes disputando o marcador de entrega
	const racers = 10
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- dispatcher.Deliver(ctx, orderID)
		}()
	}
	wg.Wait()
	close(errs)

	// Assert: o ativo é emitido exatamente uma vez
	var delivered, replayed int
	for err := range errs {
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrAlreadyDelivered):
			replayed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, delivered)
	assert.Equal(t, racers-1, replayed)
	assert.Len(t, notifier.Messages("buyer-1"), 1)
}

func TestDeliverNonDigitalProductEmitsNothing(t *testing.T) {
	ctx := context.Background()
	catalog, _, _, _ := newFulfillmentFixture(t)
	require.NoError(t, catalog.CreateProduct(ctx, &Product{
		ID: "mug", Name: "Mug", PriceCents: 500, Category: "merch", Stock: 3, IsDigital: false,
	}))

	orders := NewMemoryOrderRepository(catalog, nil)
	notifier := NewRecordingNotifier()
	dispatcher := NewFulfillmentDispatcher(catalog, orders, notifier)

	orderID, err := orders.CreateOrder(ctx, NewOrder("buyer-1", "mug", 1, 500))
	require.NoError(t, err)
	_, err = orders.TransitionOrder(ctx, orderID, OrderStatusCompleted, "")
	require.NoError(t, err)

	require.NoError(t, dispatcher.Deliver(ctx, orderID))
	assert.Empty(t, notifier.Messages("buyer-1"))

	// marcador gravado mesmo sem ativo digital
	order, err := orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.NotNil(t, order.DeliveredAt)
}
