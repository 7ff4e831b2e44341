package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"reentry-engine-go/config"
	"reentry-engine-go/gateway"
	"reentry-engine-go/infrastructure/logger"
	"reentry-engine-go/internal/engine"
	"reentry-engine-go/internal/policy"
	"reentry-engine-go/internal/server"
	"reentry-engine-go/metrics"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	listenAddr := flag.String("listenAddr", "", "控制台监听地址，覆盖配置文件")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单/撤单")
	autoStart := flag.Bool("autoStart", false, "启动进程时直接启动引擎")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *dryRun {
		cfg.Engine.DryRun = true
	}
	if *autoStart {
		cfg.Engine.AutoStart = true
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	metrics.StartMetricsServer(cfg.Metrics.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// tick 缓存 + 可选的 tick 流；没配流时 Tick 查询走 REST
	tickCache := gateway.NewTickCache(2 * time.Second)
	if cfg.Bridge.WSEndpoint != "" {
		stream := &gateway.TickStream{
			Endpoint: cfg.Bridge.WSEndpoint,
			Symbols:  cfg.Bridge.TickSymbols,
			Cache:    tickCache,
			OnConnect: func() {
				metrics.TickStreamConnects.Inc()
				zlog.Info("tick stream connected", zap.String("endpoint", cfg.Bridge.WSEndpoint))
			},
			OnDisconnect: func(err error) {
				metrics.TickStreamFailures.Inc()
				zlog.Warn("tick stream disconnected", zap.Error(err))
			},
		}
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				zlog.Error("tick stream exited", zap.Error(err))
			}
		}()
	}

	var broker engine.Broker = &gateway.BridgeClient{
		BaseURL:    cfg.Bridge.BaseURL,
		APIKey:     cfg.Bridge.APIKey,
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    gateway.NewTokenBucketLimiter(cfg.Bridge.RateLimit, cfg.Bridge.RateBurst),
		Ticks:      tickCache,
	}
	if cfg.Engine.DryRun {
		zlog.Warn("dry-run mode, orders will be logged but not submitted")
		broker = &dryRunBroker{Broker: broker, log: zlog}
	}

	policies := policy.NewStore(cfg.Policy.Defaults)
	for sym, s := range cfg.Policy.Symbols {
		if err := policies.SetSymbol(sym, s); err != nil {
			log.Fatalf("品种 %s 策略配置非法: %v", sym, err)
		}
	}

	eng, err := engine.New(engine.Config{
		DiscoveryInterval: cfg.Engine.DiscoveryInterval(),
		PollInterval:      cfg.Engine.PollInterval(),
		ClosureConfirms:   cfg.Engine.ClosureConfirms,
		Deviation:         cfg.Engine.Deviation,
		Magic:             cfg.Engine.Magic,
		Comment:           cfg.Engine.Comment,
	}, engine.Components{
		Broker:   broker,
		Policies: policies,
		Logger:   zlog,
	})
	if err != nil {
		log.Fatalf("初始化引擎失败: %v", err)
	}

	if cfg.Engine.AutoStart {
		if err := eng.Start(); err != nil {
			log.Fatalf("启动引擎失败: %v", err)
		}
	}

	// 配置热重载只刷新策略模板，引擎参数需要重启才生效
	if watcher, err := config.NewWatcher(*cfgPath); err == nil {
		watcher.Start(ctx, func(next config.AppConfig) {
			if err := policies.Set(next.Policy.Defaults); err != nil {
				zlog.Warn("reloaded policy defaults rejected", zap.Error(err))
				return
			}
			for sym, s := range next.Policy.Symbols {
				if err := policies.SetSymbol(sym, s); err != nil {
					zlog.Warn("reloaded symbol policy rejected",
						zap.String("symbol", sym), zap.Error(err))
				}
			}
			zlog.Info("policy defaults reloaded from config")
		})
		defer watcher.Stop()
	} else {
		zlog.Warn("config watcher disabled", zap.Error(err))
	}

	srv := server.NewServer(server.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		ProductionMode: cfg.Env == "prod",
	}, eng, policies, zlog)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zlog.Info("signal received, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			zlog.Error("control surface failed", zap.Error(err))
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	if eng.Running() {
		if err := eng.Stop(); err != nil {
			zlog.Error("engine stop failed", zap.Error(err))
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
}
