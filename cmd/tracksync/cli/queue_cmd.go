package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tracksync.io/cli/cmd/tracksync/cli/paths"
	"tracksync.io/cli/cmd/tracksync/cli/queue"
	"tracksync.io/cli/cmd/tracksync/cli/settings"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the sync queue",
	}
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueRetryCmd())
	cmd.AddCommand(newQueueCleanupCmd())
	return cmd
}

func openQueue() (*queue.Queue, error) {
	queuePath, err := paths.QueuePath()
	if err != nil {
		return nil, err
	}
	return queue.New(queuePath), nil
}

func newQueueListCmd() *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue records",
		RunE: func(_ *cobra.Command, _ []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}
			records, err := q.ReadAll()
			if err != nil {
				return err
			}

			shown := 0
			for _, rec := range records {
				if statusFilter != "" && string(rec.Status) != statusFilter {
					continue
				}
				shown++
				line := fmt.Sprintf("%s  %-12s  %-10s  %s",
					rec.Timestamp.Format(time.RFC3339), rec.Kind, rec.Status, rec.ID)
				if rec.SessionID != "" {
					line += "  session=" + rec.SessionID
				}
				if rec.RetryCount > 0 {
					line += fmt.Sprintf("  retries=%d", rec.RetryCount)
				}
				if rec.Error != "" {
					line += "  error=" + rec.Error
				}
				fmt.Println(line)
			}
			if shown == 0 {
				fmt.Println("Queue is empty")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "only show records with this status (pending, processing, processed, failed)")
	return cmd
}

func newQueueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [record-id]",
		Short: "Reset failed records to pending",
		Long:  "Reset a failed record (or, with no argument, all failed records) back to pending so the daemon picks it up again.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if err := q.Reset(args[0]); err != nil {
					return err
				}
				fmt.Printf("Record %s reset to pending\n", args[0])
				return nil
			}

			records, err := q.ReadAll()
			if err != nil {
				return err
			}
			reset := 0
			for _, rec := range records {
				if rec.Status != queue.StatusFailed {
					continue
				}
				if err := q.Reset(rec.ID); err != nil {
					return err
				}
				reset++
			}
			fmt.Printf("%d failed record(s) reset to pending\n", reset)
			return nil
		},
	}
}

func newQueueCleanupCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop old processed records",
		RunE: func(_ *cobra.Command, _ []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}
			if hours <= 0 {
				s, err := settings.Load()
				if err != nil {
					return err
				}
				hours = s.CleanupHours
			}

			removed, err := q.CleanupOld(time.Duration(hours) * time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d processed record(s) older than %dh\n", removed, hours)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "age threshold in hours (default: cleanup_hours from settings)")
	return cmd
}
