/**
 * @description
 * This is the main entry point for the payment-service. It loads configuration,
 * opens the payment ledger, builds the Stripe client and webhook verifier, wires the
 * optional Redis rate limiter, RabbitMQ publisher and pending sweep, and starts the
 * HTTP server.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver for the postgres ledger.
 * - github.com/prometheus/client_golang: Metrics registry and /metrics handler.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/stripeclient: Client for the Stripe API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Yousefjoo17/stripe-backend/internal/api"
	"github.com/Yousefjoo17/stripe-backend/internal/app"
	"github.com/Yousefjoo17/stripe-backend/internal/config"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
	rmrabbit "github.com/Yousefjoo17/stripe-backend/pkg/rabbitmq"
	"github.com/Yousefjoo17/stripe-backend/pkg/stripeclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, relying on environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe secret key must be configured\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"webhook secret must be configured\" env=STRIPE_WEBHOOK_SECRET")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s ledger=%s", cfg.ServerPort, cfg.LedgerDriver)

	ledger, closeLedger := openLedger(cfg)
	defer closeLedger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(registry)

	stripeClient := stripeclient.NewClient(cfg.StripeSecretKey, cfg.StripeAPIBaseURL, cfg.ProviderTimeout())
	verifier := stripeclient.NewVerifier(cfg.StripeWebhookSecret)

	paymentService := app.NewService(
		ledger,
		stripeClient,
		verifier,
		metrics,
		cfg.DefaultCurrency,
		cfg.ProviderTimeout(),
	)

	if strings.TrimSpace(cfg.CatalogPath) != "" {
		paymentService.SetCatalog(store.NewFileCatalog(cfg.CatalogPath))
		log.Printf("level=info component=bootstrap msg=\"product catalog enabled\" path=%s", cfg.CatalogPath)
	}

	if cfg.IntentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; intent rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; intent rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				pingErr := redisClient.Ping(pingCtx).Err()
				cancelPing()
				if pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; intent rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					paymentService.SetIntentRateLimiter(
						app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
						cfg.IntentRateLimitPerMinute,
					)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	var publisher rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.PaymentEventsExchange)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		} else {
			publisher = producer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}
	defer publisher.Close()
	paymentService.SetPublisher(publisher)

	var scheduler *app.Scheduler
	if strings.TrimSpace(cfg.PendingSweepSchedule) != "" {
		scheduler = app.NewScheduler(paymentService, cfg.PendingSweepSchedule, cfg.PendingSweepAfter())
		if err := scheduler.Start(); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"pending sweep schedule invalid\" schedule=%q err=%v", cfg.PendingSweepSchedule, err)
		}
	}

	handlers := api.NewPaymentHandlers(paymentService)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router := api.NewRouter(handlers, cfg.JWTSecret, cfg.AllowedOrigins(), metricsHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=bootstrap msg=\"shutting down server\"")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"server forced to shutdown\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"server exited\"")
}

// openLedger returns the configured ledger and a cleanup func.
func openLedger(cfg config.Config) (store.Ledger, func()) {
	if cfg.LedgerDriver != config.LedgerDriverPostgres {
		ledger, err := store.OpenFileLedger(cfg.LedgerPath)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"ledger open failed\" path=%s err=%v", cfg.LedgerPath, err)
		}
		log.Printf("level=info component=bootstrap msg=\"file ledger opened\" path=%s", cfg.LedgerPath)
		return ledger, func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}

	ledger := store.NewPostgresLedger(dbpool)
	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ledger.EnsureSchema(schemaCtx); err != nil {
		dbpool.Close()
		log.Fatalf("level=fatal component=bootstrap msg=\"schema migration failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return ledger, dbpool.Close
}
