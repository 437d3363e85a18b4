package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository define a interface para operações de catálogo e estoque
type CatalogRepository interface {
	// GetProduct busca um produto pelo ID
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// ListProducts lista produtos com estoque disponível, opcionalmente por categoria
	ListProducts(ctx context.Context, category string) ([]*Product, error)

	// ListCategories lista as categorias distintas com produtos em estoque
	ListCategories(ctx context.Context) ([]string, error)

	// ReserveStock decrementa o estoque atomicamente se houver quantidade suficiente
	ReserveStock(ctx context.Context, productID string, quantity int) error

	// ReleaseStock devolve a quantidade reservada ao estoque
	ReleaseStock(ctx context.Context, productID string, quantity int) error

	// CreateProduct insere um novo produto no catálogo
	CreateProduct(ctx context.Context, product *Product) error

	// CountProducts retorna o total de produtos cadastrados
	CountProducts(ctx context.Context) (int, error)
}

// OrderRepository define a interface para operações de banco de dados de pedidos
type OrderRepository interface {
	// CreateOrder cria um novo pedido e retorna o ID gerado
	CreateOrder(ctx context.Context, order *Order) (int64, error)

	// ReserveAndCreateOrder debita o estoque e insere o pedido como uma
	// unidade atômica: ou o pedido pending existe com o estoque reservado,
	// ou nada mudou
	ReserveAndCreateOrder(ctx context.Context, order *Order) (int64, error)

	// GetOrder busca um pedido pelo ID
	GetOrder(ctx context.Context, orderID int64) (*Order, error)

	// TransitionOrder aplica a transição pending -> newStatus de forma atômica.
	// Retorna false quando o pedido já está em status terminal (CAS perdido).
	TransitionOrder(ctx context.Context, orderID int64, newStatus, settlementRef string) (bool, error)

	// SetSettlementRef grava a referência de liquidação na emissão do desafio.
	// Set-once: uma referência já gravada não é sobrescrita.
	SetSettlementRef(ctx context.Context, orderID int64, reference string) error

	// MarkDelivered grava o marcador de entrega uma única vez (CAS sobre delivered_at)
	MarkDelivered(ctx context.Context, orderID int64, at time.Time) (bool, error)

	// ListOrdersByBuyer lista os pedidos de um comprador, mais recentes primeiro
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*OrderSummary, error)

	// ListAllOrders lista todos os pedidos, mais recentes primeiro
	ListAllOrders(ctx context.Context) ([]*OrderSummary, error)

	// GetStatistics agrega totais de pedidos e receita de pedidos completed
	GetStatistics(ctx context.Context) (*Statistics, error)
}

// UserRepository define a interface para operações de usuários
type UserRepository interface {
	// UpsertUser registra o usuário no primeiro contato (insert or ignore)
	UpsertUser(ctx context.Context, user *User) error

	// GetUser busca um usuário pelo ID
	GetUser(ctx context.Context, userID string) (*User, error)

	// CountUsers retorna o total de usuários registrados
	CountUsers(ctx context.Context) (int, error)
}

// PostgresCatalogRepository implementa CatalogRepository usando PostgreSQL
type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository cria uma nova instância de PostgresCatalogRepository
func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

// GetProduct busca um produto pelo ID
func (r *PostgresCatalogRepository) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, price_cents, category, stock, is_digital, digital_key, created_at
		FROM products WHERE id = $1
	`, productID).Scan(&product.ID, &product.Name, &product.Description, &product.PriceCents,
		&product.Category, &product.Stock, &product.IsDigital, &product.DigitalKey, &product.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts lista produtos com estoque disponível, opcionalmente por categoria
func (r *PostgresCatalogRepository) ListProducts(ctx context.Context, category string) ([]*Product, error) {
	query := `
		SELECT id, name, description, price_cents, category, stock, is_digital, digital_key, created_at
		FROM products WHERE stock > 0
	`
	args := []any{}
	if category != "" {
		query += " AND category = $1"
		args = append(args, category)
	}
	query += " ORDER BY name"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var product Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Description, &product.PriceCents,
			&product.Category, &product.Stock, &product.IsDigital, &product.DigitalKey, &product.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, &product)
	}
	return products, rows.Err()
}

// ListCategories lista as categorias distintas com produtos em estoque
func (r *PostgresCatalogRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT category FROM products WHERE stock > 0 ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// ReserveStock decrementa o estoque com UPDATE condicional.
// O WHERE stock >= quantity garante que o estoque nunca fica negativo
// mesmo com compradores concorrentes do mesmo produto.
func (r *PostgresCatalogRepository) ReserveStock(ctx context.Context, productID string, quantity int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetProduct(ctx, productID); err != nil {
			return err
		}
		return ErrOutOfStock
	}
	return nil
}

// ReleaseStock devolve a quantidade reservada ao estoque
func (r *PostgresCatalogRepository) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// CreateProduct insere um novo produto no catálogo
func (r *PostgresCatalogRepository) CreateProduct(ctx context.Context, product *Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, description, price_cents, category, stock, is_digital, digital_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, product.ID, product.Name, product.Description, product.PriceCents, product.Category,
		product.Stock, product.IsDigital, product.DigitalKey, product.CreatedAt)
	return err
}

// CountProducts retorna o total de produtos cadastrados
func (r *PostgresCatalogRepository) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	return count, err
}

// PostgresOrderRepository implementa OrderRepository usando PostgreSQL
type PostgresOrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository cria uma nova instância de PostgresOrderRepository
func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &PostgresOrderRepository{
		db: db,
	}
}

// CreateOrder cria um novo pedido e retorna o ID gerado
func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, order *Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (buyer_id, product_id, quantity, total_cents, settlement_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, order.BuyerID, order.ProductID, order.Quantity, order.TotalCents,
		order.SettlementRef, order.Status, order.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	order.ID = id
	return id, nil
}

// ReserveAndCreateOrder executa a reserva condicional e o INSERT do
// pedido na mesma transação. Um crash entre os dois passos nunca deixa
// estoque debitado sem pedido correspondente: o rollback desfaz a reserva.
func (r *PostgresOrderRepository) ReserveAndCreateOrder(ctx context.Context, order *Order) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2
	`, order.ProductID, order.Quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
		`, order.ProductID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrProductNotFound
		}
		return 0, ErrOutOfStock
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (buyer_id, product_id, quantity, total_cents, settlement_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, order.BuyerID, order.ProductID, order.Quantity, order.TotalCents,
		order.SettlementRef, order.Status, order.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit order creation: %w", err)
	}
	order.ID = id
	return id, nil
}

// GetOrder busca um pedido pelo ID
func (r *PostgresOrderRepository) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	var order Order
	err := r.db.QueryRow(ctx, `
		SELECT id, buyer_id, product_id, quantity, total_cents, settlement_ref, status, delivered_at, created_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.BuyerID, &order.ProductID, &order.Quantity,
		&order.TotalCents, &order.SettlementRef, &order.Status, &order.DeliveredAt, &order.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrder aplica a transição de status de forma atômica.
// O WHERE status = 'pending' é o ponto único que garante processamento
// terminal at-most-once: apenas um chamador concorrente vence o CAS.
func (r *PostgresOrderRepository) TransitionOrder(ctx context.Context, orderID int64, newStatus, settlementRef string) (bool, error) {
	if !IsTerminalStatus(newStatus) {
		return false, ErrInvalidTransition
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $2,
		    settlement_ref = COALESCE(NULLIF($3, ''), settlement_ref)
		WHERE id = $1 AND status = 'pending'
	`, orderID, newStatus, settlementRef)
	if err != nil {
		return false, fmt.Errorf("failed to transition order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, orderID); err != nil {
			return false, err
		}
		// Pedido existe mas já está terminal: CAS perdido, sem mutação
		return false, nil
	}
	return true, nil
}

// SetSettlementRef grava a referência de liquidação (set-once)
func (r *PostgresOrderRepository) SetSettlementRef(ctx context.Context, orderID int64, reference string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET settlement_ref = $2 WHERE id = $1 AND settlement_ref = ''
	`, orderID, reference)
	if err != nil {
		return fmt.Errorf("failed to set settlement reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// MarkDelivered grava o marcador de entrega uma única vez.
// O WHERE delivered_at IS NULL garante entrega exactly-once mesmo
// com chamadas de despacho concorrentes.
func (r *PostgresOrderRepository) MarkDelivered(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET delivered_at = $2
		WHERE id = $1 AND status = 'completed' AND delivered_at IS NULL
	`, orderID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark order as delivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListOrdersByBuyer lista os pedidos de um comprador, mais recentes primeiro
func (r *PostgresOrderRepository) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*OrderSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT o.id, o.buyer_id, p.name, o.quantity, o.total_cents, o.status, o.created_at
		FROM orders o
		JOIN products p ON o.product_id = p.id
		WHERE o.buyer_id = $1
		ORDER BY o.created_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrderSummaries(rows, false)
}

// ListAllOrders lista todos os pedidos com usuário e produto resolvidos
func (r *PostgresOrderRepository) ListAllOrders(ctx context.Context) ([]*OrderSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT o.id, o.buyer_id, u.username, p.name, o.quantity, o.total_cents, o.status, o.created_at
		FROM orders o
		JOIN users u ON o.buyer_id = u.id
		JOIN products p ON o.product_id = p.id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrderSummaries(rows, true)
}

func scanOrderSummaries(rows pgx.Rows, withUsername bool) ([]*OrderSummary, error) {
	var summaries []*OrderSummary
	for rows.Next() {
		var s OrderSummary
		var err error
		if withUsername {
			err = rows.Scan(&s.ID, &s.BuyerID, &s.Username, &s.ProductName,
				&s.Quantity, &s.TotalCents, &s.Status, &s.CreatedAt)
		} else {
			err = rows.Scan(&s.ID, &s.BuyerID, &s.ProductName,
				&s.Quantity, &s.TotalCents, &s.Status, &s.CreatedAt)
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// GetStatistics agrega totais de pedidos e receita de pedidos completed
func (r *PostgresOrderRepository) GetStatistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COALESCE(SUM(total_cents) FILTER (WHERE status = 'completed'), 0)
		FROM orders
	`).Scan(&stats.TotalOrders, &stats.CompletedOrders, &stats.TotalRevenueCents)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// PostgresUserRepository implementa UserRepository usando PostgreSQL
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository cria uma nova instância de PostgresUserRepository
func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &PostgresUserRepository{
		db: db,
	}
}

// UpsertUser registra o usuário no primeiro contato (insert or ignore)
func (r *PostgresUserRepository) UpsertUser(ctx context.Context, user *User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, first_name, last_name, balance_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.Username, user.FirstName, user.LastName, user.BalanceCents, user.CreatedAt)
	return err
}

// GetUser busca um usuário pelo ID
func (r *PostgresUserRepository) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, balance_cents, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName,
		&user.BalanceCents, &user.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CountUsers retorna o total de usuários registrados
func (r *PostgresUserRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// InitSchema cria as tabelas do serviço quando ainda não existem
func InitSchema(ctx context.Context, db *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			balance_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			price_cents BIGINT NOT NULL,
			category TEXT,
			stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
			is_digital BOOLEAN NOT NULL DEFAULT FALSE,
			digital_key TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			buyer_id TEXT NOT NULL REFERENCES users (id),
			product_id TEXT NOT NULL REFERENCES products (id),
			quantity INT NOT NULL DEFAULT 1 CHECK (quantity > 0),
			total_cents BIGINT NOT NULL,
			settlement_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			delivered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
