package cmd

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View worker and launcher logs",
	Long: `View and filter the JSON logs written by the launcher and the workers.

Entries from every component log are merged in time order.

Examples:
  # Show the last 50 entries
  soundmachine logs

  # Only the audio player, everything
  soundmachine logs --component player -n 0

  # Follow logs in real-time
  soundmachine logs -f

  # Warnings and errors from the last hour
  soundmachine logs --level warn --since 1h

  # Search for specific patterns
  soundmachine logs --grep "tag|failed"`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsComponent string
	logsWorker    string
	logsNoColor   bool
)

// followInterval is how often follow mode rereads the logs.
const followInterval = 500 * time.Millisecond

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only this component (launcher, player, rfid, visualizer, sync)")
	logsCmd.Flags().StringVarP(&logsWorker, "worker", "w", "", "Only entries about this worker")
	logsCmd.Flags().BoolVar(&logsNoColor, "no-color", false, "Disable colored output")
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// logQuery is the parsed form of the logs flags.
type logQuery struct {
	filter logging.LogFilter
	grep   *regexp.Regexp
	tail   int
	color  bool
}

func newLogQuery(now time.Time) (*logQuery, error) {
	q := &logQuery{
		filter: logging.LogFilter{
			Component: logsComponent,
			Worker:    logsWorker,
		},
		tail:  logsTail,
		color: !logsNoColor,
	}
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return nil, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.Since = now.Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return nil, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

// match applies the filter and the grep pattern, which searches the message
// and every attribute value.
func (q *logQuery) match(entries []logging.LogEntry) []logging.LogEntry {
	entries = logging.FilterLogs(entries, q.filter)
	if q.grep == nil {
		return entries
	}
	var matched []logging.LogEntry
	for _, e := range entries {
		text := e.Message
		for _, v := range e.Attrs {
			text += " " + fmt.Sprint(v)
		}
		if q.grep.MatchString(text) {
			matched = append(matched, e)
		}
	}
	return matched
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry logging.LogEntry, color bool) string {
	if !color {
		return logging.FormatText(entry)
	}

	var sb strings.Builder
	sb.WriteString(colorGray)
	sb.WriteString("[")
	sb.WriteString(entry.Timestamp.Format("15:04:05.000"))
	sb.WriteString("]")
	sb.WriteString(colorReset)

	sb.WriteString(" ")
	sb.WriteString(levelColor(entry.Level))
	sb.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(entry.Level)))
	sb.WriteString(colorReset)

	if entry.Component != "" {
		sb.WriteString(" [")
		sb.WriteString(entry.Component)
		sb.WriteString("]")
	}
	sb.WriteString(" ")
	sb.WriteString(entry.Message)

	if entry.Worker != "" {
		sb.WriteString(" " + colorCyan + "worker=" + colorReset + entry.Worker)
	}
	if entry.Session != "" {
		sb.WriteString(" " + colorCyan + "session=" + colorReset + entry.Session)
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(colorCyan)
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(colorReset)
		sb.WriteString(fmt.Sprint(entry.Attrs[k]))
	}
	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	q, err := newLogQuery(time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logDir := cfg.LogDir()

	if logsFollow {
		ctx, stop := cmdutil.SignalContext(cmd.Context())
		defer stop()
		return followLogs(ctx, out, logDir, q)
	}
	return displayLogs(out, logDir, q)
}

// displayLogs prints the last q.tail matching entries.
func displayLogs(out io.Writer, logDir string, q *logQuery) error {
	entries, err := logging.AggregateLogs(logDir)
	if err != nil {
		return err
	}
	entries = q.match(entries)

	if q.tail > 0 && len(entries) > q.tail {
		entries = entries[len(entries)-q.tail:]
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatLogEntry(e, q.color))
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs prints matching entries newer than the last one printed until
// ctx is done. Rereading every file keeps rotated logs and new components
// in view.
func followLogs(ctx context.Context, out io.Writer, logDir string, q *logQuery) error {
	fmt.Fprintf(out, "Following logs in %s... (Ctrl+C to stop)\n\n", logDir)

	var last time.Time
	if entries, err := logging.AggregateLogs(logDir); err == nil && len(entries) > 0 {
		last = entries[len(entries)-1].Timestamp
	}

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		entries, err := logging.AggregateLogs(logDir)
		if err != nil {
			continue
		}
		for _, e := range q.match(entries) {
			if !e.Timestamp.After(last) {
				continue
			}
			fmt.Fprintln(out, formatLogEntry(e, q.color))
		}
		if len(entries) > 0 {
			last = entries[len(entries)-1].Timestamp
		}
	}
}
