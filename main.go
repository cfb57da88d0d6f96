package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/xlzd/gotp"
	"golang.org/x/sync/errgroup"

	"ms-admission/internal/admission"
	"ms-admission/internal/auth"
	"ms-admission/internal/checkin"
	"ms-admission/internal/checkin/nonce"
	"ms-admission/internal/config"
	"ms-admission/internal/database"
	"ms-admission/internal/inventory"
	inventorydb "ms-admission/internal/inventory/db"
	inventoryredis "ms-admission/internal/inventory/redis"
	"ms-admission/internal/kafka"
	"ms-admission/internal/logger"
	"ms-admission/internal/shows"
	"ms-admission/internal/staff"
	ticket_db "ms-admission/internal/tickets/db"
	tickets "ms-admission/internal/tickets/service"
	"ms-admission/internal/tickets/ticket_api"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, using sql inventory")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, client.Options().DB))
	return client
}

func newPublisher(cfg config.KafkaConfig, log *logger.Logger) (kafka.Publisher, func()) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, ticket events are not published")
		return kafka.NopPublisher{}, func() {}
	}
	requiredTopics := []string{
		cfg.Topics.TicketIssued,
		cfg.Topics.TicketCheckedIn,
		cfg.Topics.TicketCancelled,
		cfg.Topics.CheckinRejected,
		cfg.Topics.RefundsCompleted,
	}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, requiredTopics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}
	producer := kafka.NewProducer(cfg.Brokers, log)
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

func newSeatLedger(cfg config.InventoryConfig, db *inventorydb.DB, rdb *redis.Client, log *logger.Logger) inventory.SeatLedger {
	if cfg.Backend == "redis" {
		if rdb != nil {
			return inventoryredis.NewRedis(rdb)
		}
		log.Warn("INVENTORY", "redis inventory requested without redis, falling back to sql")
	}
	return db
}

func newNonceGuard(cfg config.CheckinConfig, log *logger.Logger) *nonce.Guard {
	var policy nonce.Policy
	switch cfg.NoncePolicy {
	case nonce.PolicyAny:
		policy = nonce.AnyPolicy{Digits: cfg.NonceDigits}
	default:
		secret := cfg.NonceSecret
		if secret == "" {
			secret = gotp.RandomSecret(32)
			log.Warn("CHECKIN", "CHECKIN_NONCE_SECRET not set, generated a secret for this process only")
		}
		policy = nonce.NewTOTPPolicy(secret, cfg.NonceDigits, cfg.NoncePeriod, cfg.NonceSkew)
	}

	log.Info("CHECKIN", fmt.Sprintf("Nonce policy %s", cfg.NoncePolicy))
	return nonce.NewGuard(policy)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger("admission-service", cfg.Log.Dir)
	log.SetLevel(cfg.Log.Level)
	defer log.Close()

	log.Info("APP", "Starting Admission Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open database: %v", err))
	}
	defer bunDB.Close()
	log.Info("DATABASE", fmt.Sprintf("✅ %s connection successful", cfg.Database.Driver))

	if err := database.Prepare(ctx, bunDB, cfg.Database, log); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to prepare schema: %v", err))
	}

	rdb := connectRedis(ctx, cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	publisher, closePublisher := newPublisher(cfg.Kafka, log)
	defer closePublisher()

	catalog := &shows.Store{Bun: bunDB}
	seats := newSeatLedger(cfg.Inventory, &inventorydb.DB{Bun: bunDB}, rdb, log)
	inv := inventory.New(catalog, seats, log)
	log.Info("INVENTORY", fmt.Sprintf("Seat inventory backend: %s", seats.Name()))

	ticketService := tickets.NewTicketService(&ticket_db.DB{Bun: bunDB}, inv, catalog, publisher, cfg.Kafka.Topics, log)
	ticketService.ReclaimOnCancel = cfg.Inventory.ReclaimOnCancel

	guard := newNonceGuard(cfg.Checkin, log)
	protocol := checkin.NewProtocol(cfg.Checkin.PersonalSign)

	roster := &staff.Roster{Bun: bunDB}
	verifier := &admission.Verifier{
		Ledger:        ticketService,
		Staff:         roster,
		Nonces:        guard,
		Protocol:      protocol,
		Producer:      publisher,
		RejectedTopic: cfg.Kafka.Topics.CheckinRejected,
		Logger:        log,
	}

	tokenVerifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up staff authentication: %v", err))
	}

	handler := &ticket_api.Handler{
		TicketService: ticketService,
		Inventory:     inv,
		Verifier:      verifier,
		Staff:         roster,
		Shows:         catalog,
		Nonces:        guard,
		Protocol:      protocol,
		Logger:        log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      ticket_api.NewRouter(handler, auth.Middleware(tokenVerifier)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("🚀 Admission Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.RefundsCompleted, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Start(gctx, ticketService.HandleRefund)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		log.Error("APP", fmt.Sprintf("Service stopped with error: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "✅ Admission Service shutdown complete")
}
