package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func main() {
	// Initialize OpenTelemetry
	tp, err := initTracer()
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	mp, err := initMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter: %v", err)
		}
	}()

	// Initialize storage
	var (
		catalog CatalogRepository
		orders  OrderRepository
		users   UserRepository
	)

	if getEnv("STORAGE_DRIVER", "postgres") == "memory" {
		log.Printf("⚠️  Using in-memory storage (no durability)")
		memCatalog := NewMemoryCatalogRepository()
		memUsers := NewMemoryUserRepository()
		catalog = memCatalog
		users = memUsers
		orders = NewMemoryOrderRepository(memCatalog, memUsers)
	} else {
		dbPool, err := initDB()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer dbPool.Close()

		if err := InitSchema(context.Background(), dbPool); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}

		catalog = NewCatalogRepository(dbPool)
		orders = NewOrderRepository(dbPool)
		users = NewUserRepository(dbPool)
	}

	if err := SeedCatalog(context.Background(), catalog); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	// Payment gateway: Bakong real quando há credenciais, mock caso contrário
	var gateway PaymentGateway
	if apiKey := getEnv("KHQR_API_KEY", ""); apiKey != "" {
		gateway = NewBakongGateway(
			getEnv("KHQR_BASE_URL", "https://api.khqr.bakong.nbc.gov.kh"),
			apiKey,
			getEnv("KHQR_MERCHANT_ID", ""),
		)
	} else {
		gateway = NewMockGateway()
	}

	// Initialize dependencies
	notifier := LogNotifier{}
	adminID := getEnv("ADMIN_ID", "")
	dispatcher := NewFulfillmentDispatcher(catalog, orders, notifier)
	settlementDelay := time.Duration(getEnvInt("SETTLEMENT_DELAY_MS", 10000)) * time.Millisecond
	coordinator := NewSettlementCoordinator(catalog, orders, gateway, dispatcher, notifier, adminID, settlementDelay)
	tracer := tp.Tracer("store-service")
	useCase := NewStoreUseCase(catalog, orders, users, gateway, coordinator, notifier, adminID)
	handler := NewStoreHandler(useCase, tracer)

	// Setup Gin router
	r := gin.Default()
	r.Use(otelgin.Middleware(getEnv("SERVICE_NAME", "store-service")))

	// Health check
	r.GET("/health", handler.HealthCheck)

	// Buyer endpoints
	r.POST("/api/users", handler.RegisterUser)
	r.GET("/api/users/:id", handler.GetAccount)
	r.GET("/api/products", handler.ListProducts)
	r.GET("/api/categories", handler.ListCategories)
	r.POST("/api/purchases", handler.Purchase)
	r.GET("/api/orders", handler.ListOrders)

	// Admin endpoints
	r.GET("/api/admin/orders", handler.ListAllOrders)
	r.GET("/api/admin/stats", handler.GetStatistics)

	port := getEnv("PORT", "8080")
	log.Printf("🚀 Store Service listening on port %s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown: para o servidor e espera os ciclos de
	// liquidação já iniciados terminarem
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("⏳ Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
	coordinator.Shutdown()
	log.Printf("👋 Store Service stopped")
}

func initDB() (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=25&pool_min_conns=5",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "store_db"),
	)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure connection pool
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to store database with connection pool")
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

func initTracer() (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	otlpEndpoint := getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(otlpEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(getEnv("SERVICE_NAME", "store-service")),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMetrics() (*sdkmetric.MeterProvider, error) {
	ctx := context.Background()

	otlpEndpoint := getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(otlpEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(getEnv("SERVICE_NAME", "store-service")),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
