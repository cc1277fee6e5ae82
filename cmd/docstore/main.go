package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/storage"
)

var (
	configFile   string
	addr         string
	snapshotPath string
)

var rootCmd = &cobra.Command{
	Use:          "docstore",
	Short:        "docstore 文档存储服务，内存集合 + JSON 快照",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			cfg = config.Default()
		case err != nil:
			return fmt.Errorf("加载配置失败: %w", err)
		}
		if cmd.Flags().Changed("addr") {
			cfg.Storage.Addr = addr
		}
		if cmd.Flags().Changed("snapshot") {
			cfg.Storage.SnapshotPath = snapshotPath
		}
		logger.Init("docstore", cfg.Log.Level)

		store, err := storage.NewMemoryStore(cfg.Storage.SnapshotPath)
		if err != nil {
			return fmt.Errorf("加载快照失败: %w", err)
		}
		defer store.Close()

		l, err := net.Listen("tcp", cfg.Storage.Addr)
		if err != nil {
			return err
		}
		srv := storage.NewServer(store)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-quit
			logger.Info("收到信号 %v，正在关闭文档存储...", sig)
			if err := srv.Close(); err != nil {
				logger.Warn("关闭失败: %v", err)
			}
		}()

		return srv.Serve(l)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	f.StringVar(&addr, "addr", "", "监听地址，默认取 storage.addr")
	f.StringVar(&snapshotPath, "snapshot", "", "快照文件路径，默认取 storage.snapshot_path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("文档存储异常退出: %v", err)
		os.Exit(1)
	}
}
