// Package view renders match state for the terminal client.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/palemoky/tetris-battle/internal/game/match"
	"github.com/palemoky/tetris-battle/internal/game/piece"
	"github.com/palemoky/tetris-battle/internal/protocol"
	"github.com/palemoky/tetris-battle/internal/ui/common"
)

// Grid merges the locked board with the falling piece and returns color codes row by row.
// Cells of the falling piece outside the board are dropped.
func Grid(snap *protocol.SnapshotPayload, width, height int) [][]int {
	grid := make([][]int, height)
	for y := range grid {
		grid[y] = make([]int, width)
		for x := range grid[y] {
			if i := y*width + x; i < len(snap.Board) {
				grid[y][x] = snap.Board[i]
			}
		}
	}

	if snap.Active == nil {
		return grid
	}
	kind, err := piece.ParseKind(snap.Active.Shape)
	if err != nil {
		return grid
	}
	for _, c := range piece.ShapeOf(kind, snap.Active.Rot) {
		x, y := snap.Active.X+c.X, snap.Active.Y+c.Y
		if x >= 0 && x < width && y >= 0 && y < height {
			grid[y][x] = kind.Color()
		}
	}
	return grid
}

// RenderBoard renders the playfield without a border.
func RenderBoard(snap *protocol.SnapshotPayload, width, height int) string {
	var sb strings.Builder
	for y, row := range Grid(snap, width, height) {
		for _, color := range row {
			if color == 0 {
				sb.WriteString(common.DimStyle.Render(common.EmptyCell))
				continue
			}
			sb.WriteString(common.CellStyle(color).Render(common.FilledCell))
		}
		if y < height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// RenderPlayer renders one player's board with a side panel.
func RenderPlayer(snap *protocol.SnapshotPayload, title string, width, height int, me bool) string {
	status := common.AliveIcon
	if !snap.Alive {
		status = common.DeadIcon
	}

	hold := "-"
	if snap.Hold != nil {
		hold = *snap.Hold
	}
	next := "-"
	if len(snap.Next) > 0 {
		next = strings.Join(snap.Next, " ")
	}

	panel := fmt.Sprintf("%s %s\n\n分数: %d\n消行: %d\n暂存: %s\n预览: %s",
		status, common.TitleStyle(title), snap.Score, snap.Lines, hold, next)

	box := common.BoxStyle
	if me {
		box = common.MeBoxStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		box.Render(RenderBoard(snap, width, height)),
		"  ",
		panel,
	)
}

// RenderMatch renders both players side by side, P1 first.
func RenderMatch(welcome *protocol.WelcomePayload, snaps [2]*protocol.SnapshotPayload, myUserID int) string {
	var parts []string
	remaining := 0
	for i, snap := range snaps {
		if snap == nil {
			continue
		}
		remaining = snap.RemainingMs
		title := fmt.Sprintf("P%d #%d", i+1, snap.UserID)
		parts = append(parts, RenderPlayer(snap, title, welcome.BoardWidth, welcome.BoardHeight, snap.UserID == myUserID))
	}
	if len(parts) == 0 {
		return common.DimStyle.Render("等待对局开始...")
	}

	header := common.TitleStyle(fmt.Sprintf("⏳ %s   角色 %s   种子 %d", FormatRemaining(remaining), welcome.Role, welcome.Seed))
	return lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.JoinHorizontal(lipgloss.Top, intersperse(parts, "    ")...))
}

// RenderGameOver renders the final results.
func RenderGameOver(over *protocol.GameOverPayload, myUserID int) string {
	reason := "时间到"
	if over.Reason == match.ReasonBothDead {
		reason = "双方出局"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎮 对局结束 (%s)\n\n", reason)

	winner := false
	for _, r := range over.Results {
		icon := "  "
		if r.Win {
			icon = common.WinIcon
			winner = true
		}
		me := ""
		if r.UserID == myUserID {
			me = " (你)"
		}
		fmt.Fprintf(&sb, "%s #%d%s  分数 %d  消行 %d\n", icon, r.UserID, me, r.Score, r.Lines)
	}
	if !winner {
		sb.WriteString("\n平局")
	}
	return common.BoxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// FormatRemaining formats milliseconds as mm:ss, rounding up.
func FormatRemaining(ms int) string {
	secs := max((ms+999)/1000, 0)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func intersperse(parts []string, sep string) []string {
	out := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep)
		}
		out = append(out, p)
	}
	return out
}
