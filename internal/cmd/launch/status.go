package launch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/launcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every worker",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusOutput string

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format: table or yaml")
}

// RegisterStatusCmd registers the status command with the given parent command.
func RegisterStatusCmd(parent *cobra.Command) {
	parent.AddCommand(statusCmd)
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	l := launcher.New(cfg)
	statuses, err := l.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch statusOutput {
	case "yaml":
		data, err := yaml.Marshal(statuses)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "table", "":
		fmt.Fprint(out, renderStatusTable(statuses, time.Now()))
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table or yaml)", statusOutput)
}

// renderStatusTable lays statuses out in aligned columns.
func renderStatusTable(statuses []launcher.WorkerStatus, now time.Time) string {
	header := []string{"WORKER", "SESSION", "STATE", "MODE", "PID", "UPTIME", "LOG"}
	rows := [][]string{header}
	for _, s := range statuses {
		state, pid, uptime := "stopped", "-", "-"
		if s.Running {
			state = "running"
			if s.PID > 0 {
				pid = strconv.Itoa(s.PID)
			}
			if !s.StartedAt.IsZero() {
				uptime = now.Sub(s.StartedAt).Truncate(time.Second).String()
			}
		}
		mode := string(s.Mode)
		if mode == "" {
			mode = "-"
		}
		logFile := s.LogFile
		if logFile == "" {
			logFile = "-"
		}
		rows = append(rows, []string{s.Name, s.Session, state, mode, pid, uptime, logFile})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var lines []string
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := cellStyle.Width(widths[i] + 2)
			switch {
			case r == 0:
				style = style.Inherit(headerStyle)
			case i == 2 && cell == "running":
				style = style.Inherit(runningStyle)
			case i == 2:
				style = style.Inherit(stoppedStyle)
			}
			cells[i] = style.Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}
