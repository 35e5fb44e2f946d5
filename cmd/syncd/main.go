package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/internal/core/services"
	httphandlers "confsync/internal/handlers/http"
	snapshots "confsync/internal/infrastructure/backup"
	"confsync/internal/infrastructure/distributed"
	"confsync/internal/infrastructure/loadbalancer"
	"confsync/internal/infrastructure/middleware"
	"confsync/internal/infrastructure/monitoring"
	"confsync/internal/infrastructure/reliability"
	repositories "confsync/internal/infrastructure/repositories"
	sig "confsync/internal/infrastructure/signal"
	"confsync/pkg/backup"
	"confsync/pkg/circuitbreaker"
	"confsync/pkg/config"
	"confsync/pkg/logger"
	"confsync/pkg/retry"
	"confsync/pkg/tracing"
	"confsync/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// fanoutProxy breaks the construction cycle between the sync service and the
// websocket gateway: the service is built against the proxy and the gateway
// is bound afterwards.
type fanoutProxy struct {
	mu     sync.RWMutex
	target ports.NotificationFanout
}

func (p *fanoutProxy) Bind(target ports.NotificationFanout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
}

func (p *fanoutProxy) Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error {
	p.mu.RLock()
	target := p.target
	p.mu.RUnlock()

	if target == nil {
		return nil
	}
	return target.Publish(ctx, conferenceID, participantIDs, objectKey, value, previousValue)
}

func main() {
	restoreSnapshot := flag.String("restore", "", "restore conference state from the named snapshot before serving")
	flag.Parse()

	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/confsync/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "confsync",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize repositories
	subscriptionRepo := repoFactory.CreateSubscriptionRepository()
	objectStore := repoFactory.CreateObjectStore()
	roomRepo := repoFactory.CreateRoomRepository()
	sceneRepo := repoFactory.CreateSceneRepository()

	instanceID := utils.GenerateInstanceID()
	redisClient := repoFactory.RedisClient()

	// Initialize services
	registry := services.NewProviderRegistry()
	metricsService := services.NewMetricsService()

	permOpts := services.DefaultPermissionOptions()
	if cfg.Permissions.CacheTTL > 0 {
		permOpts.CacheTTL = cfg.Permissions.CacheTTL
	}
	permissionService := services.NewPermissionService(permOpts, log)

	proxy := &fanoutProxy{}
	var fanout ports.NotificationFanout = proxy
	var locker ports.ConferenceLocker = services.NewMemoryLocker()

	var bus *distributed.EventBus
	var relay *reliability.RelayWrapper
	if redisClient != nil {
		bus = distributed.NewEventBus(redisClient, instanceID, log)
		relay = reliability.NewRelayWrapper(bus, retry.DefaultConfig(), circuitbreaker.DefaultConfig(), log)
		fanout = distributed.NewBusFanout(proxy, relay, log)
		locker = distributed.NewRedisLocker(redisClient, log)
	}

	syncService := services.NewSyncService(registry, subscriptionRepo, objectStore, fanout, metricsService, log)
	roomService := services.NewRoomService(roomRepo, permissionService, syncService, log)

	sceneOpts := services.DefaultSceneOptions()
	if cfg.Scenes.DefaultRoomScene != "" {
		sceneOpts.DefaultRoomScene = domain.Scene{Type: domain.SceneType(cfg.Scenes.DefaultRoomScene)}
	}
	if cfg.Scenes.RoomScene != "" {
		sceneOpts.RoomScene = domain.Scene{Type: domain.SceneType(cfg.Scenes.RoomScene)}
	}
	sceneService := services.NewSceneService(
		roomRepo,
		sceneRepo,
		syncService,
		permissionService,
		services.DefaultSceneProviders(),
		sceneOpts,
		locker,
		metricsService,
		log,
	)
	sceneService.Attach(roomService)
	defer sceneService.Close()
	permissionService.SetSceneLayerSource(sceneService)

	if err := registry.Register(sceneService, roomService); err != nil {
		log.Fatalw("failed to register object providers", "error", err)
	}

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Initialize websocket gateway
	wsServer := sig.NewWebSocketServer(authService, syncService, sceneService, roomService, permissionService, log)
	wsServer.SetPingInterval(cfg.Signal.PingInterval)
	wsServer.SetPongTimeout(cfg.Signal.PongTimeout)
	if cfg.RateLimiting.Enabled {
		wsServer.SetMessageRateLimit(
			cfg.RateLimiting.WebSocket.MessagesPerSecond,
			cfg.RateLimiting.WebSocket.Burst,
			cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		)
	}
	proxy.Bind(wsServer)

	// Initialize monitoring
	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector()
		wsServer.SetMetricsCollector(collector)
	}

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddRepositoryCheck(roomRepo, cfg.Monitoring.MetricsInterval, 2*time.Second)
	if redisClient != nil {
		healthChecker.AddRedisCheck(redisClient, cfg.Monitoring.MetricsInterval, 2*time.Second)
	}

	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()

	if bus != nil {
		presence := distributed.NewPresenceRegistry(redisClient, instanceID, log)
		wsServer.SetPresenceRegistry(presence)
		defer presence.CleanupInstance(context.Background(), instanceID)

		refresher := distributed.NewPresenceRefresher(presence, 64, 2*time.Second, log)
		wsServer.SetPresenceRefresher(refresher)
		defer refresher.Close()

		bridge := distributed.NewNotificationBridge(wsServer, log)
		go func() {
			if err := bus.Subscribe(busCtx, bridge.Handle); err != nil && busCtx.Err() == nil {
				log.Errorw("event bus subscription ended", "error", err)
			}
		}()
		defer bus.Close()

		detach := roomService.SubscribeRoomEvents(func(ctx context.Context, event ports.RoomLifecycleEvent) {
			var err error
			switch event.Kind {
			case ports.RoomsCreated:
				err = relay.PublishRoomsCreated(ctx, event.ConferenceID, event.Rooms)
			case ports.RoomsRemoved:
				err = relay.PublishRoomsRemoved(ctx, event.ConferenceID, event.RoomIDs)
			}
			if err != nil {
				log.Warnw("failed to publish room event", "kind", event.Kind, "error", err)
			}
		})
		defer detach()
	}

	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			log.Fatalw("failed to create snapshot storage", "error", err)
		}
		snapshotService := backup.NewBackupService(storage, "1")

		if *restoreSnapshot != "" {
			restoreService := snapshots.NewRestoreService(snapshotService, roomRepo, sceneRepo, log)
			if err := restoreService.RestoreFromSnapshot(context.Background(), *restoreSnapshot, snapshots.DefaultRestoreOptions()); err != nil {
				log.Fatalw("failed to restore snapshot", "snapshot_name", *restoreSnapshot, "error", err)
			}
		}

		scheduler := snapshots.NewScheduler(snapshotService, wsServer, roomRepo, sceneRepo, snapshots.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
		}, log)
		go scheduler.Start(busCtx)
		defer scheduler.Stop()
	} else if *restoreSnapshot != "" {
		log.Fatal("cannot restore a snapshot while backup.enabled=false")
	}

	// Initialize HTTP handlers
	tokenHandler := httphandlers.NewTokenHandler(authService)
	conferenceHandler := httphandlers.NewConferenceHandler(roomService, sceneService, sceneService, permissionService)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	// Token endpoint (public)
	tokenHandler.SetupRoutes(router)

	// Conference routes with authentication
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	conferenceHandler.SetupRoutes(api)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    utils.FormatDuration(time.Since(startTime)),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		status := healthChecker.GetReadinessStatus(ctx)
		if status.Status != "healthy" {
			c.JSON(503, gin.H{
				"status":    "not_ready",
				"timestamp": time.Now(),
				"checks":    status.Checks,
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Websocket server on its own listener. The affinity cookie lets an
	// upstream balancer keep a conference's participants on one instance.
	affinity := loadbalancer.NewConferenceAffinity(cfg.Auth.JWTSecret, "confsync_affinity", 3600, func(r *http.Request) string {
		token := r.URL.Query().Get("token")
		if token == "" {
			return ""
		}
		claims, err := authService.ValidateToken(token)
		if err != nil {
			return ""
		}
		return string(claims.ConferenceID)
	})

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", affinity.Middleware(http.HandlerFunc(wsServer.HandleWebSocket)))
	wsMux.HandleFunc("/health", wsServer.HealthCheck)
	wsSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: wsMux,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting confsync API server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting confsync gateway on %s", cfg.Signal.Address)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case s := <-sigChan:
		log.Infow("Received shutdown signal", "signal", s)
	}

	log.Info("Shutting down confsync...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing API server", "error", closeErr)
		}
	}
	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during gateway shutdown", "error", err)
		if closeErr := wsSrv.Close(); closeErr != nil {
			log.Errorw("Error force closing gateway", "error", closeErr)
		}
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error shutting down tracer", "error", err)
		}
	}

	log.Info("confsync stopped")
}
