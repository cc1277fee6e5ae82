package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/lobby"
	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/server"
	"github.com/palemoky/tetris-battle/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var (
	configFile string
	port       int
	httpPort   int
	gameBinary string
	backend    string
)

var rootCmd = &cobra.Command{
	Use:          "lobby",
	Short:        "lobby 大厅服务器：账号、房间、邀请与对局启动",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("配置文件 %s 不存在，使用默认配置", configFile)
			cfg, configFile = config.Default(), ""
		case err != nil:
			return fmt.Errorf("加载配置失败: %w", err)
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger.Init("lobby", cfg.Log.Level)
		return run(cfg)
	},
}

// applyFlags 命令行参数覆盖配置文件
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Lobby.Port = port
	}
	if f.Changed("http-port") {
		cfg.Lobby.HTTPPort = httpPort
	}
	if f.Changed("game-binary") {
		cfg.Lobby.GameBinary = gameBinary
	}
	if f.Changed("storage") {
		cfg.Storage.Backend = backend
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("关闭存储失败: %v", err)
		}
	}()

	l := lobby.New(lobby.Deps{
		Store:    store,
		Launcher: launcher.NewProcessLauncher(cfg.Lobby.GameBinary, configFile),
		Ports:    launcher.NewPortAllocator("", cfg.Lobby.PortMin, cfg.Lobby.PortMax),
		GameHost: cfg.Lobby.GameHost,
	})
	if err := l.Bootstrap(ctx); err != nil {
		return fmt.Errorf("初始化大厅失败: %w", err)
	}

	srv := server.NewServer(&cfg.Lobby, l)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("🎮 大厅已启动 (存储: %s, 对局端口 %d-%d)", cfg.Storage.Backend, cfg.Lobby.PortMin, cfg.Lobby.PortMax)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("收到信号 %v，正在关闭大厅...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("关闭超时: %v", err)
	}
	logger.Info("👋 大厅已关闭")
	return nil
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	f.IntVar(&port, "port", 0, "帧协议 TCP 端口")
	f.IntVar(&httpPort, "http-port", 0, "WebSocket / health / statsviz 端口，0 表示关闭")
	f.StringVar(&gameBinary, "game-binary", "", "对局进程可执行文件")
	f.StringVar(&backend, "storage", "", "存储后端 tcp | memory | redis | mongo")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("大厅异常退出: %v", err)
		os.Exit(1)
	}
}
