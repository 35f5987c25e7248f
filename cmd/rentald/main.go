package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gamecenter-reservation-backend/config"
	"gamecenter-reservation-backend/internal/booking"
	"gamecenter-reservation-backend/internal/clock"
	"gamecenter-reservation-backend/internal/db"
	"gamecenter-reservation-backend/internal/devstate"
	"gamecenter-reservation-backend/internal/noshow"
	"gamecenter-reservation-backend/internal/notification"
	"gamecenter-reservation-backend/internal/queue"
	"gamecenter-reservation-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	logger := log.New(os.Stdout, "rentald ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	clk := clock.NewSystemClock(cfg.Timezone)

	// Without a DSN the engine runs on the in-memory store; useful for local
	// development, useless for anything that must survive a restart.
	var gormDB *gorm.DB
	var appStore store.Store
	if cfg.Database.DSN != "" {
		gormDB, err = db.Init(&cfg.Database)
		if err != nil {
			logger.Fatalf("failed to initialize database: %v", err)
		}
		appStore = store.NewGormStore(gormDB, clk.Location())
		logger.Println("database initialized successfully")
	} else {
		appStore = store.NewMemoryStore()
		logger.Println("no database DSN configured; using in-memory store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Assemble the notifier chain: always log, push and AMQP when configured.
	notifiers := []notification.EventNotifier{notification.LogNotifier{}}

	var workerPool *notification.WorkerPool
	if cfg.Push.Enabled && gormDB != nil {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("VAPID keys must be configured when push is enabled")
		}
		webpushOptions := webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions, rate.Limit(cfg.Push.RatePerSec), cfg.Push.Burst)
		workerPool.Start(ctx)
		notifiers = append(notifiers, workerPool)
		logger.Println("push notification worker pool started")
	}

	if cfg.Events.Enabled {
		notifiers = append(notifiers, notification.NewAMQPNotifier(cfg.Events.URL, cfg.Events.Queue))
		logger.Printf("AMQP event publishing enabled on queue %s", cfg.Events.Queue)
	}

	notifier := notification.MultiNotifier(notifiers)

	manager := devstate.NewManager(clk, notifier, appStore)
	if err := manager.Restore(ctx, appStore); err != nil {
		logger.Fatalf("failed to restore device state: %v", err)
	}

	detector := noshow.NewDetector(appStore, clk, noshow.Policy{
		InteractiveGrace: cfg.Policy.InteractiveNoShowGrace,
		SweepGrace:       cfg.Policy.BatchNoShowGrace,
		BoundaryHour:     cfg.Policy.DayBoundaryHour,
	}, manager)
	go noshow.NewScheduler(detector, clk, cfg.Sweep.Enabled).Run(ctx)

	devices := store.NewCachedDeviceRepository(appStore, cfg.Policy.DeviceCacheTTL)
	svc := booking.NewService(appStore, devices, manager, detector, notifier, clk, booking.Policy{
		AdvanceNotice: cfg.Policy.AdvanceNotice,
	})

	if cfg.Events.Enabled {
		consumer := queue.NewConsumer(cfg.Events.URL, cfg.Events.CommandQueue, svc, clk.Location())
		go consumer.Run(ctx)
		logger.Printf("command consumer started on queue %s", cfg.Events.CommandQueue)
	}
	logger.Println("reservation engine ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	cancel()
	manager.Shutdown()
	logger.Println("Reservation engine gracefully stopped")
}
