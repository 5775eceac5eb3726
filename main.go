package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/feizhen/virtual-try-on/internal/cache"
	"github.com/feizhen/virtual-try-on/internal/config"
	"github.com/feizhen/virtual-try-on/internal/executor"
	"github.com/feizhen/virtual-try-on/internal/gemini"
	"github.com/feizhen/virtual-try-on/internal/generate"
	"github.com/feizhen/virtual-try-on/internal/imagecodec"
	"github.com/feizhen/virtual-try-on/internal/logging"
	"github.com/feizhen/virtual-try-on/internal/metrics"
	"github.com/feizhen/virtual-try-on/internal/operation"
	"github.com/feizhen/virtual-try-on/internal/server"
	"github.com/feizhen/virtual-try-on/internal/server/routes"
	"github.com/feizhen/virtual-try-on/internal/storage"
	"github.com/feizhen/virtual-try-on/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

const shutdownTimeout = 15 * time.Second

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["operations"] = len(operation.Keys())
		fields["overrides"] = len(cfg.Operations)
		fields["storage"] = cfg.Global.StorageType
		fields["generator_configured"] = cfg.Gemini.APIKey != ""
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["operations"] = operation.Keys()
	fields["cache_capacity"] = cfg.Global.CacheCapacity
	fields["max_concurrent"] = cfg.Global.MaxConcurrent
	fields["storage"] = cfg.Global.StorageType
	fields["model"] = cfg.Gemini.Model
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(ctx, app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tryon-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TRYON_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TRYON_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// buildApp 按“缓存 → 执行池 → 生成后端 → 指标 → 结果存储 → 编排服务 → Fiber”顺序装配，
// 所有请求共享同一份缓存与执行池。
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, reg *prometheus.Registry) (*fiber.App, error) {
	resultCache, err := cache.New(cfg.Global.CacheCapacity)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	pool := executor.NewPool(cfg.Global.MaxConcurrent, executor.WithAbandonHandler(func(o executor.Outcome) {
		m.TaskAbandoned()
		entry := logger.WithFields(logrus.Fields{
			"action":     "abandoned_task",
			"runtime_ms": o.Runtime.Milliseconds(),
		})
		if o.Err != nil {
			entry = entry.WithError(o.Err)
		}
		entry.Info("abandoned task finished, result discarded")
	}))

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m = metrics.New(reg, metrics.Options{
		CacheEntries: resultCache.Len,
		InFlight:     pool.InFlight,
	})

	client := gemini.New(server.NewGeneratorClient(cfg), gemini.Config{
		APIKey:           cfg.Gemini.APIKey,
		BaseURL:          cfg.Gemini.BaseURL,
		Model:            cfg.Gemini.Model,
		AuthHeader:       cfg.Gemini.AuthHeader,
		BreakerThreshold: uint32(cfg.Gemini.BreakerThreshold),
		BreakerCooldown:  cfg.Gemini.BreakerCooldown.DurationValue(),
	}, logger)
	if !client.Configured() {
		logger.WithFields(logging.BaseFields("startup", "")).Warn("GEMINI_API_KEY 未配置，生成请求将返回 503")
	}

	results, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	svc, err := generate.NewService(generate.Dependencies{
		Cache:     resultCache,
		Pool:      pool,
		Generator: client,
		Codec:     imagecodec.New(),
		Logger:    logger,
		Metrics:   m,
		Settings:  cfg,
	}, generate.Options{
		MinTimeout:     cfg.Global.MinTimeout.DurationValue(),
		MaxTimeout:     cfg.Global.MaxTimeout.DurationValue(),
		DefaultTimeout: cfg.Global.DefaultTimeout.DurationValue(),
		Heartbeat:      cfg.Global.HeartbeatInterval.DurationValue(),
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		Service:   svc,
		Results:   results,
		Metrics:   m,
		BodyLimit: int(cfg.Global.MaxUploadSize),
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, routes.Diagnostics{
		Cache:     svc,
		Generator: client,
		Gatherer:  reg,
		Enabled:   cfg.OperationEnabled,
		Version:   version.Full(),
	})
	return app, nil
}

// startHTTPServer 阻塞监听，直到 ctx 结束后优雅关闭。
func startHTTPServer(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	go func() {
		<-ctx.Done()
		logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("收到退出信号，停止接收新请求")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Fiber 服务关闭超时")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	err := app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
