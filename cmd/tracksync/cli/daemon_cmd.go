package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tracksync.io/cli/cmd/tracksync/cli/llm"
	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/matcher"
	"tracksync.io/cli/cmd/tracksync/cli/paths"
	"tracksync.io/cli/cmd/tracksync/cli/processor"
	"tracksync.io/cli/cmd/tracksync/cli/queue"
	"tracksync.io/cli/cmd/tracksync/cli/ratelimit"
	"tracksync.io/cli/cmd/tracksync/cli/settings"
	"tracksync.io/cli/cmd/tracksync/cli/telemetry"
	"tracksync.io/cli/cmd/tracksync/cli/tracker/linear"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the sync daemon",
	}
	cmd.AddCommand(newDaemonRunCmd())
	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	return cmd
}

func newDaemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if pid, running := daemonPID(); running {
				return fmt.Errorf("daemon already running (pid %d)", pid)
			}
			if err := writePIDFile(); err != nil {
				return err
			}
			defer removePIDFile()

			if err := logging.Init(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to open daemon log: %v\n", err)
			}
			defer logging.Close()

			s, err := settings.Load()
			if err != nil {
				return err
			}
			apiKey := s.APIKey()
			if apiKey == "" {
				return fmt.Errorf("tracker API key not set: export %s or run 'tracksync setup'", s.APIKeyEnv)
			}

			proc, err := buildProcessor(s, apiKey)
			if err != nil {
				return err
			}
			proc.CleanupOld(ctx)
			return proc.Run(ctx)
		},
	}
}

// buildProcessor wires the tracker client, LLM transport, limiter, matcher,
// and queue into a processor.
func buildProcessor(s *settings.Settings, apiKey string) (*processor.Processor, error) {
	queuePath, err := paths.QueuePath()
	if err != nil {
		return nil, err
	}
	if _, err := paths.EnsureDataHome(); err != nil {
		return nil, err
	}

	client := linear.New(s.APIURL, apiKey)
	transport := llm.NewSubprocess(s.LLMCommand, time.Duration(s.LLMTimeoutSeconds)*time.Second)
	limiter := ratelimit.NewPerMinute(s.MaxAPICallsPerMinute)

	m, err := matcher.New(client, transport, limiter, matcher.Config{
		BranchPattern:       s.BranchPattern,
		KeywordWeight:       s.Matcher.KeywordWeight,
		SemanticWeight:      s.Matcher.SemanticWeight,
		ConfidenceThreshold: s.Matcher.ConfidenceThreshold,
		MaxCandidates:       s.Matcher.MaxCandidates,
		EnableSemantic:      s.SemanticEnabled(),
	})
	if err != nil {
		return nil, err
	}

	telemetryClient := telemetry.NewClient(Version, s.Telemetry)
	return processor.New(queue.New(queuePath), client, transport, m, s, telemetryClient), nil
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(_ *cobra.Command, _ []string) error {
			if pid, running := daemonPID(); running {
				fmt.Printf("Daemon already running (pid %d)\n", pid)
				return nil
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate executable: %w", err)
			}

			child := exec.Command(exe, "daemon", "run")
			child.Stdout = nil
			child.Stderr = nil
			child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := child.Start(); err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}
			// Detach: the child writes its own PID file.
			if err := child.Process.Release(); err != nil {
				return fmt.Errorf("failed to detach daemon: %w", err)
			}

			fmt.Printf("Daemon started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			pid, running := daemonPID()
			if !running {
				fmt.Println("Daemon is not running")
				removePIDFile()
				return nil
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to signal daemon (pid %d): %w", pid, err)
			}
			fmt.Printf("Sent stop signal to daemon (pid %d)\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(_ *cobra.Command, _ []string) error {
			if pid, running := daemonPID(); running {
				fmt.Printf("Daemon: running (pid %d)\n", pid)
			} else {
				fmt.Println("Daemon: not running")
			}

			queuePath, err := paths.QueuePath()
			if err != nil {
				return err
			}
			records, err := queue.New(queuePath).ReadAll()
			if err != nil {
				return err
			}

			counts := map[queue.Status]int{}
			for _, rec := range records {
				counts[rec.Status]++
			}
			fmt.Printf("Queue: %d records (%d pending, %d processing, %d processed, %d failed)\n",
				len(records),
				counts[queue.StatusPending],
				counts[queue.StatusProcessing],
				counts[queue.StatusProcessed],
				counts[queue.StatusFailed])
			return nil
		},
	}
}

// daemonPID reads the PID file and reports whether that process is alive.
func daemonPID() (int, bool) {
	pidPath, err := paths.PIDPath()
	if err != nil {
		return 0, false
	}
	data, err := os.ReadFile(pidPath) //nolint:gosec // path comes from paths package
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	// Signal 0 probes liveness without affecting the process.
	if err := syscall.Kill(pid, 0); err != nil {
		if errors.Is(err, syscall.EPERM) {
			return pid, true
		}
		return pid, false
	}
	return pid, true
}

func writePIDFile() error {
	if _, err := paths.EnsureDataHome(); err != nil {
		return err
	}
	pidPath, err := paths.PIDPath()
	if err != nil {
		return err
	}
	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
}

func removePIDFile() {
	pidPath, err := paths.PIDPath()
	if err != nil {
		return
	}
	_ = os.Remove(pidPath)
}
