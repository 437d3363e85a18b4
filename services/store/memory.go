package main

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCatalogRepository implementa CatalogRepository em memória.
// Usada em testes e no modo standalone; as operações sobre o estoque
// aplicam a mesma semântica de RMW atômico da implementação Postgres.
type MemoryCatalogRepository struct {
	mu       sync.Mutex
	products map[string]*Product
}

// NewMemoryCatalogRepository cria um catálogo em memória vazio
func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{
		products: make(map[string]*Product),
	}
}

func (r *MemoryCatalogRepository) GetProduct(_ context.Context, productID string) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	clone := *product
	return &clone, nil
}

func (r *MemoryCatalogRepository) ListProducts(_ context.Context, category string) ([]*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var products []*Product
	for _, product := range r.products {
		if product.Stock <= 0 {
			continue
		}
		if category != "" && product.Category != category {
			continue
		}
		clone := *product
		products = append(products, &clone)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (r *MemoryCatalogRepository) ListCategories(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	for _, product := range r.products {
		if product.Stock > 0 {
			seen[product.Category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories, nil
}

// ReserveStock decrementa o estoque se houver quantidade suficiente.
// Checagem e decremento acontecem sob o mesmo lock: sem lost updates.
func (r *MemoryCatalogRepository) ReserveStock(_ context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	if product.Stock < quantity {
		return ErrOutOfStock
	}
	product.Stock -= quantity
	return nil
}

func (r *MemoryCatalogRepository) ReleaseStock(_ context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	product.Stock += quantity
	return nil
}

func (r *MemoryCatalogRepository) CreateProduct(_ context.Context, product *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *product
	r.products[product.ID] = &clone
	return nil
}

func (r *MemoryCatalogRepository) CountProducts(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products), nil
}

// MemoryOrderRepository implementa OrderRepository em memória
type MemoryOrderRepository struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*Order

	// usados apenas para resolver nomes nas listagens
	catalog *MemoryCatalogRepository
	users   *MemoryUserRepository
}

// NewMemoryOrderRepository cria um ledger de pedidos em memória.
// catalog e users podem ser nil quando as listagens não são usadas.
func NewMemoryOrderRepository(catalog *MemoryCatalogRepository, users *MemoryUserRepository) *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:  make(map[int64]*Order),
		catalog: catalog,
		users:   users,
	}
}

// CreateOrder cria um novo pedido com ID monotônico
func (r *MemoryOrderRepository) CreateOrder(_ context.Context, order *Order) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	clone := *order
	clone.ID = r.nextID
	r.orders[clone.ID] = &clone
	order.ID = clone.ID
	return clone.ID, nil
}

// ReserveAndCreateOrder debita o estoque e insere o pedido sob o mesmo
// lock do ledger; depois da reserva a inserção não tem como falhar, então
// a unidade é atômica como na implementação Postgres
func (r *MemoryOrderRepository) ReserveAndCreateOrder(ctx context.Context, order *Order) (int64, error) {
	if r.catalog == nil {
		return 0, ErrProductNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.catalog.ReserveStock(ctx, order.ProductID, order.Quantity); err != nil {
		return 0, err
	}
	r.nextID++
	clone := *order
	clone.ID = r.nextID
	r.orders[clone.ID] = &clone
	order.ID = clone.ID
	return clone.ID, nil
}

func (r *MemoryOrderRepository) GetOrder(_ context.Context, orderID int64) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

// TransitionOrder aplica pending -> newStatus sob lock (mesma semântica CAS do Postgres)
func (r *MemoryOrderRepository) TransitionOrder(_ context.Context, orderID int64, newStatus, settlementRef string) (bool, error) {
	if !IsTerminalStatus(newStatus) {
		return false, ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status != OrderStatusPending {
		return false, nil
	}
	order.Status = newStatus
	if settlementRef != "" {
		order.SettlementRef = settlementRef
	}
	return true, nil
}

func (r *MemoryOrderRepository) SetSettlementRef(_ context.Context, orderID int64, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.SettlementRef == "" {
		order.SettlementRef = reference
	}
	return nil
}

func (r *MemoryOrderRepository) MarkDelivered(_ context.Context, orderID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status != OrderStatusCompleted || order.DeliveredAt != nil {
		return false, nil
	}
	ts := at
	order.DeliveredAt = &ts
	return true, nil
}

func (r *MemoryOrderRepository) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*OrderSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var summaries []*OrderSummary
	for _, order := range r.orders {
		if order.BuyerID != buyerID {
			continue
		}
		summaries = append(summaries, r.summarize(order, false))
	}
	sortSummaries(summaries)
	return summaries, nil
}

func (r *MemoryOrderRepository) ListAllOrders(ctx context.Context) ([]*OrderSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var summaries []*OrderSummary
	for _, order := range r.orders {
		summaries = append(summaries, r.summarize(order, true))
	}
	sortSummaries(summaries)
	return summaries, nil
}

func (r *MemoryOrderRepository) summarize(order *Order, withUsername bool) *OrderSummary {
	s := &OrderSummary{
		ID:         order.ID,
		BuyerID:    order.BuyerID,
		Quantity:   order.Quantity,
		TotalCents: order.TotalCents,
		Status:     order.Status,
		CreatedAt:  order.CreatedAt,
	}
	if r.catalog != nil {
		if product, err := r.catalog.GetProduct(context.Background(), order.ProductID); err == nil {
			s.ProductName = product.Name
		}
	}
	if withUsername && r.users != nil {
		if user, err := r.users.GetUser(context.Background(), order.BuyerID); err == nil {
			s.Username = user.Username
		}
	}
	return s
}

func sortSummaries(summaries []*OrderSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
}

func (r *MemoryOrderRepository) GetStatistics(_ context.Context) (*Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats Statistics
	for _, order := range r.orders {
		stats.TotalOrders++
		if order.Status == OrderStatusCompleted {
			stats.CompletedOrders++
			stats.TotalRevenueCents += order.TotalCents
		}
	}
	return &stats, nil
}

// MemoryUserRepository implementa UserRepository em memória
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*User
}

// NewMemoryUserRepository cria um repositório de usuários em memória
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]*User),
	}
}

func (r *MemoryUserRepository) UpsertUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return nil
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUserRepository) GetUser(_ context.Context, userID string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryUserRepository) CountUsers(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}
