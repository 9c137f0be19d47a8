package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/csschan/unitpay-sub001/internal/clients"
	"github.com/csschan/unitpay-sub001/internal/config"
	"github.com/csschan/unitpay-sub001/internal/db"
	"github.com/csschan/unitpay-sub001/internal/events"
	"github.com/csschan/unitpay-sub001/internal/repository"
	"github.com/csschan/unitpay-sub001/internal/services"
)

// ServiceContainer wires repositories, services and clients in dependency
// order and owns their lifecycles.
type ServiceContainer struct {
	DB *gorm.DB

	// Repositories
	PaymentIntentRepo repository.PaymentIntentRepository
	LPRepo            repository.LPRepository
	SettlementJobRepo repository.SettlementJobRepository

	// Core services
	QuotaLedger       *services.QuotaLedger
	LPMatchingService *services.LPMatchingService
	ClaimCoordinator  *services.ClaimCoordinator
	SettlementQueue   *services.SettlementQueueService
	TimeoutSweeper    *services.TimeoutSweeperService

	// Notifications
	WebSocketPushService *services.WebSocketPushService
	NATSClient           *clients.NATSClient
	Emitter              services.NotificationEmitter

	// Chain
	ChainClient *clients.ChainClient
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		container := &ServiceContainer{DB: db.DB}

		container.initRepositories()

		if err := container.initNotifications(); err != nil {
			// Notifications are best-effort; run with the log emitter.
			log.Printf("⚠️ Notification transports degraded: %v", err)
		}

		if err := container.initCoreServices(); err != nil {
			initErr = fmt.Errorf("failed to initialize core services: %w", err)
			return
		}

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initRepositories() {
	log.Println("📦 Initializing Repositories...")
	c.PaymentIntentRepo = repository.NewPaymentIntentRepository(c.DB)
	c.LPRepo = repository.NewLPRepository(c.DB)
	c.SettlementJobRepo = repository.NewSettlementJobRepository(c.DB)
}

func (c *ServiceContainer) initNotifications() error {
	c.WebSocketPushService = services.NewWebSocketPushService()
	c.WebSocketPushService.Start()

	emitters := services.MultiEmitter{c.WebSocketPushService}

	cfg := config.AppConfig
	if cfg != nil && cfg.NATS.Enabled && cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(
			cfg.NATS.URL,
			events.StreamName,
			events.StreamSubjects,
			time.Duration(cfg.NATS.ConnectTimeout)*time.Second,
		)
		if err != nil {
			c.Emitter = emitters
			return fmt.Errorf("NATS unavailable: %w", err)
		}
		c.NATSClient = natsClient
		emitters = append(emitters, events.NewNATSPublisher(natsClient))
		log.Println("✅ NATS JetStream publisher attached")
	}

	c.Emitter = emitters
	return nil
}

func (c *ServiceContainer) initCoreServices() error {
	log.Println("🔧 Initializing Core Services...")
	cfg := config.AppConfig

	c.QuotaLedger = services.NewQuotaLedger(c.DB, c.LPRepo)
	c.LPMatchingService = services.NewLPMatchingService(c.LPRepo)

	verifier := services.NewPlatformProofVerifier()
	c.ClaimCoordinator = services.NewClaimCoordinator(
		c.PaymentIntentRepo, c.LPRepo, c.QuotaLedger, c.LPMatchingService, verifier, c.Emitter,
	)
	if cfg != nil {
		c.ClaimCoordinator.
			WithClaimTTL(cfg.ClaimTTL()).
			WithMaxReclaims(cfg.Claim.MaxReclaims)
	}

	submitter, err := c.initChainClient()
	if err != nil {
		return err
	}

	c.SettlementQueue = services.NewSettlementQueueService(
		c.SettlementJobRepo, c.PaymentIntentRepo, submitter, c.Emitter,
	)
	if cfg != nil {
		c.SettlementQueue.
			WithWorkers(cfg.Settlement.Workers).
			WithPollInterval(cfg.SettlementPollInterval()).
			WithMaxRetries(cfg.Settlement.MaxRetries).
			WithReceiptTimeout(cfg.SettlementReceiptTimeout())
	}

	c.TimeoutSweeper = services.NewTimeoutSweeperService(
		c.PaymentIntentRepo, c.SettlementJobRepo, c.QuotaLedger, c.Emitter,
	)
	if cfg != nil {
		c.TimeoutSweeper.
			WithInterval(cfg.SweepInterval()).
			WithMaxReclaims(cfg.Claim.MaxReclaims)
	}

	return nil
}

func (c *ServiceContainer) initChainClient() (services.SettlementSubmitter, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	networkName := cfg.Blockchain.DefaultNetwork
	network, err := config.GetNetworkConfig(networkName)
	if err != nil {
		return nil, err
	}
	if network.RPCEndpoint == "" || network.PrivateKey == "" {
		return nil, fmt.Errorf("network %s missing rpc endpoint or private key", networkName)
	}

	chainClient, err := clients.NewChainClient(
		network.RPCEndpoint, networkName, network.PrivateKey, network.TokenContract, network.GasLimit,
	)
	if err != nil {
		return nil, err
	}
	c.ChainClient = chainClient
	return chainClient, nil
}

// StartBackgroundServices launches the settlement workers and the sweeper.
func (c *ServiceContainer) StartBackgroundServices() {
	c.SettlementQueue.Start()
	c.TimeoutSweeper.Start()
}

// Shutdown stops background services and closes external connections.
func (c *ServiceContainer) Shutdown() {
	log.Println("🛑 Shutting down services...")
	c.TimeoutSweeper.Stop()
	c.SettlementQueue.Stop()
	c.WebSocketPushService.Stop()
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.ChainClient != nil {
		c.ChainClient.Close()
	}
	log.Println("🛑 Services stopped")
}
