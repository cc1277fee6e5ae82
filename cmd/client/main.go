package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/palemoky/tetris-battle/internal/client"
	"github.com/palemoky/tetris-battle/internal/logger"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/ui/common"
	"github.com/palemoky/tetris-battle/internal/ui/view"
)

var (
	serverAddr string
	name       string
	password   string
	email      string

	roomID      int
	visibility  string
	waitTimeout time.Duration
	live        bool
)

// botActions 机器人随机选择的操作
var botActions = []string{
	protocol.ActionLeft, protocol.ActionLeft,
	protocol.ActionRight, protocol.ActionRight,
	protocol.ActionRotate, protocol.ActionSoft,
	protocol.ActionHard, protocol.ActionHold,
}

var rootCmd = &cobra.Command{
	Use:           "client",
	Short:         "client 命令行客户端：注册账号、用随机机器人完成一局对战",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 标准输出留给棋盘渲染
		return logger.InitFile("client", "info")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "注册账号",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.DialLobby(serverAddr, 5*time.Second)
		if err != nil {
			return err
		}
		defer c.Close()

		userID, err := c.Register(name, email, password)
		if err != nil {
			return err
		}
		fmt.Printf("✅ 注册成功，用户 ID %d\n", userID)
		return nil
	},
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "登录并进行一局对战；不指定 --room 时创建房间并等待对手",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.DialLobby(serverAddr, 5*time.Second)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Login(name, password); err != nil {
			return err
		}
		defer func() { _ = c.Logout() }()
		fmt.Printf("👋 %s (#%d) 已登录\n", c.Name, c.UserID)

		start, err := enterGame(c)
		if err != nil {
			return err
		}
		fmt.Printf("🎮 房间 %d 开局，对局服务器 %s:%d\n", start.RoomID, start.GameHost, start.GamePort)

		if err := play(c, start); err != nil {
			return err
		}
		return c.GameFinished(start.RoomID)
	},
}

// enterGame 创建或加入房间，直到拿到对局地址
func enterGame(c *client.LobbyClient) (*protocol.GameStartPayload, error) {
	if roomID > 0 {
		if _, err := c.JoinRoom(roomID); err != nil {
			return nil, err
		}
		fmt.Printf("🚪 已加入房间 %d，等待房主开局...\n", roomID)
		return c.WaitGameStart(roomID, 200*time.Millisecond, waitTimeout)
	}

	id, err := c.CreateRoom("", visibility)
	if err != nil {
		return nil, err
	}
	fmt.Printf("🏠 已创建房间 %d，等待对手加入...\n", id)

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		rooms, err := c.ListRooms()
		if err != nil {
			return nil, err
		}
		i := slices.IndexFunc(rooms, func(r protocol.RoomInfo) bool { return r.ID == id })
		if i >= 0 && len(rooms[i].Players) == 2 {
			return c.StartGame(id)
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, fmt.Errorf("no opponent joined room %d within %v", id, waitTimeout)
}

// play 连接对局，每收到一帧快照随机操作一次，结束后打印结果
func play(c *client.LobbyClient, start *protocol.GameStartPayload) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	g, err := client.JoinGame(ctx, start, c.UserID)
	if err != nil {
		return err
	}
	defer g.Close()
	fmt.Printf("🙋 角色 %s，种子 %d\n", g.Welcome.Role, g.Welcome.Seed)

	var snaps [2]*protocol.SnapshotPayload
	for {
		ev, err := g.Next()
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		if ev.GameOver != nil {
			fmt.Println(view.RenderMatch(g.Welcome, snaps, c.UserID))
			fmt.Println(view.RenderGameOver(ev.GameOver, c.UserID))
			return nil
		}

		// 同一 tick 的两份快照按 P1、P2 顺序到达
		if snaps[0] == nil || snaps[0].UserID == ev.Snapshot.UserID {
			snaps[0] = ev.Snapshot
		} else {
			snaps[1] = ev.Snapshot
		}
		if live && snaps[1] != nil && ev.Snapshot.UserID == snaps[1].UserID {
			fmt.Print("\033[H\033[2J")
			fmt.Println(view.RenderMatch(g.Welcome, snaps, c.UserID))
		}

		if rand.IntN(3) == 0 {
			if err := g.SendInput(botActions[rand.IntN(len(botActions))]); err != nil {
				return err
			}
		}
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverAddr, "server", "127.0.0.1:13000", "大厅地址")
	pf.StringVar(&name, "name", "", "用户名")
	pf.StringVar(&password, "password", "", "密码")
	_ = rootCmd.MarkPersistentFlagRequired("name")
	_ = rootCmd.MarkPersistentFlagRequired("password")

	registerCmd.Flags().StringVar(&email, "email", "", "邮箱")

	f := playCmd.Flags()
	f.IntVar(&roomID, "room", 0, "要加入的房间 ID，0 表示创建新房间")
	f.StringVar(&visibility, "visibility", protocol.VisibilityPublic, "新房间可见性 public | private")
	f.DurationVar(&waitTimeout, "wait", 2*time.Minute, "等待对手与开局的最长时间")
	f.BoolVar(&live, "live", false, "实时刷新棋盘")

	rootCmd.AddCommand(registerCmd, playCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		msg := err.Error()
		var serr *client.ServerError
		if errors.As(err, &serr) {
			msg = serr.Reason
		}
		fmt.Fprintln(os.Stderr, common.ErrorStyle.Render("❌ "+msg))
		os.Exit(1)
	}
}
