package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/handler"
	"banksystem/internal/infrastructure/cache"
	"banksystem/internal/infrastructure/database"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/infrastructure/logging"
	"banksystem/internal/infrastructure/mq"
	"banksystem/internal/infrastructure/notify"
	"banksystem/internal/job"
	"banksystem/internal/service"
	"banksystem/pkg/idgen"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// 加载配置
	configPath := os.Getenv("BANK_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	logging.Init(&cfg.Log)

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化数据库
	db, err := database.Open(cfg)
	if err != nil {
		logrus.Fatalf("初始化数据库失败: %v", err)
	}

	// 账户锁：多实例部署使用 Redis，单实例使用进程内锁
	var locker lock.Locker
	if cfg.Lock.Backend == "redis" {
		redisClient, err := cache.InitRedis(&cfg.Redis)
		if err != nil {
			logrus.Fatalf("初始化 Redis 失败: %v", err)
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Lock.TTL, cfg.Lock.RetryInterval, cfg.Lock.MaxRetries)
	} else {
		locker = lock.NewLocalLocker()
	}

	// 初始化 Kafka
	var events job.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			logrus.Fatalf("初始化 Kafka 失败: %v", err)
		}
		defer publisher.Close()
		events = publisher
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, cfg, notify.New(&cfg.SMTP), events)
	go outboxSender.Start(ctx)

	scheduler := cron.New()
	reconcileJob := job.NewReconcileJob(db, service.NewAccountService(db, cfg))
	if _, err := reconcileJob.Schedule(scheduler, cfg.Business.ReconcileCron); err != nil {
		logrus.Fatalf("注册对账任务失败: %v", err)
	}
	scheduler.Start()

	// 设置路由
	router := handler.SetupRouter(db, locker, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logrus.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒），进行中的转账在此期间完成
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("服务关闭异常")
	}

	// 停止后台任务，等待正在执行的对账结束
	cancel()
	<-scheduler.Stop().Done()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logrus.Info("服务已关闭")
}
