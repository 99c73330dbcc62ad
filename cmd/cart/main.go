package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/tieredcart/internal/cart/application"
	"github.com/wyfcoding/tieredcart/internal/cart/infrastructure/messaging"
	cartredis "github.com/wyfcoding/tieredcart/internal/cart/infrastructure/persistence/redis"
	grpcserver "github.com/wyfcoding/tieredcart/internal/cart/interfaces/grpc"
	httpserver "github.com/wyfcoding/tieredcart/internal/cart/interfaces/http"
	"github.com/wyfcoding/tieredcart/pkg/cache"
	"github.com/wyfcoding/tieredcart/pkg/config"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"github.com/wyfcoding/tieredcart/pkg/metrics"
	"github.com/wyfcoding/tieredcart/pkg/middleware"
	"github.com/wyfcoding/tieredcart/pkg/mq"
	"github.com/wyfcoding/tieredcart/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

var configPath = flag.String("config", "configs/cart/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log := logger.Get().With("service", cfg.ServiceName, "version", cfg.Version)
	slog.SetDefault(log)

	// 3. 初始化指标
	metricsImpl := metrics.New(cfg.ServiceName)

	// 4. 初始化基础设施
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, metricsImpl.RedisHook())
	if err != nil {
		log.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	client := redisCache.GetClient()

	sink, err := newSink(cfg, log)
	if err != nil {
		log.Error("failed to init event bus", "driver", cfg.Bus.Driver, "error", err)
		os.Exit(1)
	}
	publisher := messaging.NewBestEffortPublisher(sink, messaging.PublisherConfig{
		Timeout:            cfg.Bus.PublishTimeout(),
		BreakerFailures:    uint32(cfg.Bus.BreakerFailures),
		BreakerOpenTimeout: time.Duration(cfg.Bus.BreakerOpenSeconds) * time.Second,
	}, metricsImpl, log)
	defer publisher.Close()

	// 5. 初始化仓储
	itemRepo := cartredis.NewItemRepository(client)
	indexRepo := cartredis.NewIndexRepository(client)
	scanner := cartredis.NewScanner(client, cfg.Sweeper.ScanCount)

	// 6. 初始化应用服务
	queryService := application.NewCartQueryService(itemRepo, indexRepo, scanner, log, cfg.Sweeper.Fanout)
	commandService := application.NewCartCommandService(itemRepo, indexRepo, queryService, publisher, metricsImpl, log)
	sweeper := application.NewExpirySweeper(scanner, commandService, metricsImpl, log, cfg.Sweeper.SweepInterval())
	appService := application.NewCartApplicationService(commandService, queryService, sweeper)

	// 7. 初始化接口层
	// gRPC
	grpcSrv := grpc.NewServer()
	healthChecker := grpcserver.NewHealthChecker(redisCache, time.Duration(cfg.GRPC.HealthInterval)*time.Second, log)
	healthChecker.Register(grpcSrv)
	reflection.Register(grpcSrv)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery(), middleware.Metrics(metricsImpl))
	r.GET("/healthz", func(c *gin.Context) {
		if err := redisCache.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metricsImpl.Handler()))
	}

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRedisRateLimiter(client)
	}
	httpHandler := httpserver.NewCartHandler(appService, limiter, ratelimit.PerMinute(cfg.RateLimit.SweepPerMinute))
	httpHandler.RegisterRoutes(r)

	// 8. 启动服务
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// gRPC Start
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		log.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	// HTTP Start
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		log.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 后台任务
	g.Go(func() error {
		healthChecker.Start(ctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Start(ctx)
		return nil
	})

	// 9. 优雅关闭
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", "error", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
	}
}

// newSink 按 bus.driver 选择事件投递目标
func newSink(cfg *config.Config, log *slog.Logger) (messaging.Sink, error) {
	switch cfg.Bus.Driver {
	case "kafka":
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		return messaging.NewKafkaSink(producer, cfg.Kafka.Topic), nil
	case "rabbitmq":
		producer, err := mq.NewRabbitProducer(mq.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
		})
		if err != nil {
			return nil, err
		}
		return messaging.NewRabbitMQSink(producer), nil
	default:
		return messaging.NewLogSink(log), nil
	}
}
