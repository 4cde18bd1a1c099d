// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"depot/internal/pkg/logger"
	"depot/internal/pkg/tracing"
)

// AppCtx 传给各服务的启动上下文。
type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 描述启动一个服务所需的信息。
type AppInfo struct {
	ServiceName string
	Port        int

	// RegisterHandlers 允许服务注册自己的 HTTP 路由。
	RegisterHandlers func(appCtx AppCtx)

	// Background 长期运行的后台任务（清扫器等），随服务一起启动，
	// 收到退出信号时通过 context 取消。
	Background []func(ctx context.Context) error

	// OnShutdown 关停时按注册顺序执行的清理回调。
	OnShutdown []func(ctx context.Context)
}

// StartService 封装通用的启动和优雅关停逻辑：tracer、HTTP server、
// 后台任务、信号处理。阻塞直到进程退出。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	log := logger.Logger()

	tp, err := tracing.InitTracerProvider(info.ServiceName, GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: GetCurrentConfig()})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	for _, task := range info.Background {
		task := task
		g.Go(func() error { return task(gCtx) })
	}

	// 阻塞等待退出信号或任一组件出错
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-gCtx.Done():
		log.Error().Msg("component failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 关停顺序：先停外部流量，再取消后台任务，最后清理资源
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("background task exited with error")
	}
	for _, fn := range info.OnShutdown {
		fn(shutdownCtx)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}
	log.Info().Msgf("%s gracefully shut down", info.ServiceName)
}
