package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldops/common/database"
	"fieldops/common/logger"
	commonmqtt "fieldops/common/mqtt"
	commonredis "fieldops/common/redis"
	"fieldops/internal/config"
	"fieldops/internal/events"
	httpapi "fieldops/internal/http"
	"fieldops/internal/repository"
	"fieldops/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "fieldops")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 存储：DB 不可用时回退到内存仓库
	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for fieldops", zap.String("dsn", cfg.Database.Redacted()))
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory", zap.Error(err))
		}
	}
	if db != nil && cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal("Schema migration failed", zap.Error(err))
		}
		log.Info("Schema migrated")
	}

	var (
		layoutsRepo repository.LayoutsRepository
		regionsRepo repository.RegionsRepository
		jobsRepo    repository.JobsRepository
	)
	if db != nil {
		layoutsRepo = repository.NewPostgresLayoutsRepository(db)
		regionsRepo = repository.NewPostgresRegionsRepository(db)
		jobsRepo = repository.NewPostgresJobsRepository(db)
	} else {
		dashboards := repository.NewMemoryDashboardRepo()
		layoutsRepo = dashboards
		regionsRepo = dashboards
		jobsRepo = repository.NewMemoryJobsRepo()
	}

	// 事件：Redis Stream 审计 + MQTT 布局变更通知
	var publishers events.Multi
	var redisClient *redis.Client
	var auditLog *events.RedisStreamPublisher
	if cfg.RedisEnabled {
		redisClient = commonredis.NewRedisClient(&cfg.Redis)
		if err := commonredis.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis unreachable, audit events disabled", zap.Error(err))
			_ = commonredis.Close(redisClient)
			redisClient = nil
		} else {
			auditLog = events.NewRedisStreamPublisher(redisClient, cfg.AuditStream)
			publishers = append(publishers, auditLog)
			log.Info("Audit stream enabled", zap.String("stream", cfg.AuditStream))
		}
	}
	var mqttClient *commonmqtt.Client
	if cfg.MQTTEnabled {
		if c, err := commonmqtt.NewClient(&cfg.MQTT, log); err == nil {
			mqttClient = c
			publishers = append(publishers, events.NewMQTTPublisher(c, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
			log.Info("MQTT layout notifications enabled", zap.String("broker", cfg.MQTT.Broker))
		} else {
			log.Warn("MQTT connection failed, layout notifications disabled", zap.Error(err))
		}
	}

	layoutService := service.NewLayoutService(layoutsRepo, regionsRepo, publishers, log)
	assignmentService := service.NewAssignmentService(jobsRepo, cfg.Scheduling, publishers, log)

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes(func() error {
		if db == nil {
			return nil
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return db.PingContext(pingCtx)
	})
	router.RegisterLayoutRoutes(httpapi.NewLayoutsHandler(layoutService, log))
	router.RegisterAssignmentRoutes(httpapi.NewAssignmentsHandler(assignmentService, log))
	if auditLog != nil {
		router.RegisterAuditRoutes(httpapi.NewAuditHandler(auditLog, log))
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		_ = commonredis.Close(redisClient)
	}
	if db != nil {
		_ = database.Close(db)
	}
}
