package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/palemoky/tetris-battle/internal/logger"
)

// Spec 一局对局进程的启动参数
type Spec struct {
	Port   int
	RoomID int
	Token  string
	P1     int
	P2     int
}

// Args 返回对局进程的命令行参数
func (s Spec) Args() []string {
	return []string{
		"--port", strconv.Itoa(s.Port),
		"--roomId", strconv.Itoa(s.RoomID),
		"--token", s.Token,
		"--p1", strconv.Itoa(s.P1),
		"--p2", strconv.Itoa(s.P2),
	}
}

// Launcher 启动独立的对局进程，只报告启动是否成功，不跟踪进程生命周期
type Launcher interface {
	Launch(ctx context.Context, spec Spec) error
}

// ProcessLauncher 以子进程方式启动对局服务器
type ProcessLauncher struct {
	Binary     string
	ConfigPath string // 非空时追加 --config
}

// NewProcessLauncher 创建进程启动器
func NewProcessLauncher(binary, configPath string) *ProcessLauncher {
	return &ProcessLauncher{Binary: binary, ConfigPath: configPath}
}

// Launch 启动对局进程并在后台回收，不等待其结束
func (l *ProcessLauncher) Launch(_ context.Context, spec Spec) error {
	args := spec.Args()
	if l.ConfigPath != "" {
		args = append(args, "--config", l.ConfigPath)
	}

	// 不使用 CommandContext：对局进程的生命周期独立于发起请求的连接
	cmd := exec.Command(l.Binary, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", l.Binary, err)
	}

	pid := cmd.Process.Pid
	logger.Info("🎮 房间 %d 对局进程已启动 (pid=%d, port=%d)", spec.RoomID, pid, spec.Port)

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("房间 %d 对局进程 (pid=%d) 异常退出: %v", spec.RoomID, pid, err)
			return
		}
		logger.Info("房间 %d 对局进程 (pid=%d) 已退出", spec.RoomID, pid)
	}()
	return nil
}
