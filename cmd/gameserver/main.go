package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/palemoky/tetris-battle/internal/config"
	"github.com/palemoky/tetris-battle/internal/gameserver"
	"github.com/palemoky/tetris-battle/internal/logger"
)

// 退出码
const (
	exitInvalidArgs = 1
	exitJoinTimeout = 2
	exitStopped     = 3
	exitFailed      = 4
)

var (
	configFile string
	opts       gameserver.Options
)

var rootCmd = &cobra.Command{
	Use:           "gameserver",
	Short:         "gameserver 单局对战进程，由大厅启动",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := opts.Validate(); err != nil {
			return err
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		logger.Init("game", cfg.Log.Level)

		srv := gameserver.New(opts, cfg.Game, 0)
		if err := srv.Listen(); err != nil {
			logger.Error("监听失败: %v", err)
			os.Exit(exitFailed)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-quit
			logger.Warn("收到信号 %v，停止对局", sig)
			srv.Stop()
		}()

		over, err := srv.Run(context.Background())
		switch {
		case errors.Is(err, gameserver.ErrJoinTimeout):
			os.Exit(exitJoinTimeout)
		case errors.Is(err, gameserver.ErrStopped):
			os.Exit(exitStopped)
		case err != nil:
			logger.Error("对局异常结束: %v", err)
			os.Exit(exitFailed)
		}
		logger.Info("房间 %d 对局完成 (%s)", opts.RoomID, over.Reason)
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.Host, "host", "0.0.0.0", "监听地址")
	f.IntVar(&opts.Port, "port", 0, "监听端口")
	f.IntVar(&opts.RoomID, "roomId", 0, "房间 ID")
	f.StringVar(&opts.Token, "token", "", "房间令牌")
	f.IntVar(&opts.P1, "p1", 0, "玩家 1 的用户 ID")
	f.IntVar(&opts.P2, "p2", 0, "玩家 2 的用户 ID")
	f.StringVar(&configFile, "config", "", "配置文件路径，为空时使用默认配置")
	for _, name := range []string{"port", "roomId", "token", "p1", "p2"} {
		_ = rootCmd.MarkFlagRequired(name)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("启动参数错误: %v", err)
		os.Exit(exitInvalidArgs)
	}
}
