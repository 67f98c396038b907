// Package processor is the daemon core: it watches the queue file, drains
// pending and retry-eligible records, and dispatches them to the session and
// pull-request handlers. Tracker metadata is prefetched once at startup so
// every record in a daemon lifetime sees the same labels and states.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"tracksync.io/cli/cmd/tracksync/cli/llm"
	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/matcher"
	"tracksync.io/cli/cmd/tracksync/cli/queue"
	"tracksync.io/cli/cmd/tracksync/cli/settings"
	"tracksync.io/cli/cmd/tracksync/cli/telemetry"
	"tracksync.io/cli/cmd/tracksync/cli/tracker"
)

// pollInterval is the fallback drain cadence for filesystems where watch
// events are unreliable.
const pollInterval = 30 * time.Second

// Processor drains the queue and applies records to the tracker.
type Processor struct {
	queue     *queue.Queue
	client    tracker.Client
	transport llm.Transport
	matcher   *matcher.Matcher
	settings  *settings.Settings
	telemetry telemetry.Client

	// Prefetched at startup, immutable afterwards.
	viewer   *tracker.User
	assignee *tracker.User
	team     *tracker.Team
	labels   []tracker.Label
	states   []tracker.WorkflowState

	draining atomic.Bool
}

// New wires a processor. telemetryClient may be a NoOpClient but not nil.
func New(q *queue.Queue, client tracker.Client, transport llm.Transport, m *matcher.Matcher, s *settings.Settings, telemetryClient telemetry.Client) *Processor {
	return &Processor{
		queue:     q,
		client:    client,
		transport: transport,
		matcher:   m,
		settings:  s,
		telemetry: telemetryClient,
	}
}

// Run prefetches tracker metadata, drains once, then serves queue-file
// change notifications until ctx is cancelled. The in-flight record finishes
// before Run returns.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.prefetch(ctx); err != nil {
		return fmt.Errorf("failed to prefetch tracker metadata: %w", err)
	}

	p.drain(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create queue watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: appends recreate or rewrite the file, and some
	// editors replace it wholesale.
	queueDir := filepath.Dir(p.queue.Path())
	if err := watcher.Add(queueDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", queueDir, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	logging.Info(ctx, "processor started", "queue", p.queue.Path())
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "processor stopping")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != p.queue.Path() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.drain(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(ctx, "queue watcher error", "error", err)
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// prefetch loads viewer, default assignee, team, labels, and states, in that
// order. A missing team is tolerated here; handlers that need it fail their
// records with a descriptive error.
func (p *Processor) prefetch(ctx context.Context) error {
	viewer, err := p.client.Viewer(ctx)
	if err != nil {
		return fmt.Errorf("tracker authentication failed: %w", err)
	}
	p.viewer = viewer
	p.assignee = viewer

	if email := p.settings.DefaultAssignee; email != "" {
		user, err := p.client.FindUser(ctx, email)
		if err != nil {
			logging.Warn(ctx, "default assignee lookup failed, using viewer", "email", email, "error", err)
		} else if user != nil {
			p.assignee = user
		} else {
			logging.Warn(ctx, "default assignee not found, using viewer", "email", email)
		}
	}

	teams, err := p.client.Teams(ctx)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}
	for i := range teams {
		if p.settings.TeamKey == "" || strings.EqualFold(teams[i].Key, p.settings.TeamKey) {
			p.team = &teams[i]
			break
		}
	}
	if p.team == nil {
		logging.Warn(ctx, "no team available; issue creation disabled", "team_key", p.settings.TeamKey)
		return nil
	}

	if p.labels, err = p.client.TeamLabels(ctx, p.team.ID); err != nil {
		return fmt.Errorf("failed to list labels for team %s: %w", p.team.Key, err)
	}
	if p.states, err = p.client.TeamStates(ctx, p.team.ID); err != nil {
		return fmt.Errorf("failed to list states for team %s: %w", p.team.Key, err)
	}

	logging.Info(ctx, "tracker metadata loaded",
		"team", p.team.Key,
		"labels", len(p.labels),
		"states", len(p.states),
		"assignee", p.assignee.Name)
	return nil
}

// drain runs one pass over pending then retryable records. Non-reentrant: a
// pass already in flight absorbs the wakeup.
func (p *Processor) drain(ctx context.Context) {
	if !p.draining.CompareAndSwap(false, true) {
		return
	}
	defer p.draining.Store(false)

	pending, err := p.queue.ReadPending()
	if err != nil {
		logging.Error(ctx, "failed to read pending records", "error", err)
		return
	}
	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		p.processRecord(ctx, rec)
	}

	retryable, err := p.queue.ReadRetryable(p.settings.MaxRetries)
	if err != nil {
		logging.Error(ctx, "failed to read retryable records", "error", err)
		return
	}
	for _, rec := range retryable {
		if ctx.Err() != nil {
			return
		}
		p.processRecord(ctx, rec)
	}
}

// processRecord walks one record through processing and into processed or
// failed. Handler errors never escape: they become the record's error text.
func (p *Processor) processRecord(ctx context.Context, rec queue.Record) {
	ctx = logging.WithRecord(logging.WithSession(ctx, rec.SessionID), rec.ID)

	if err := p.queue.UpdateStatus(rec.ID, queue.StatusProcessing, ""); err != nil {
		logging.Error(ctx, "failed to mark record processing", "error", err)
		return
	}

	start := time.Now()
	var handleErr error
	matchType := ""
	switch rec.Kind {
	case queue.KindSessionStop:
		matchType, handleErr = p.handleSessionStop(ctx, rec)
	case queue.KindPRCreated:
		handleErr = p.handlePRCreated(ctx, rec)
	default:
		handleErr = fmt.Errorf("unknown record kind %q", rec.Kind)
	}

	if handleErr != nil {
		logging.Error(ctx, "record failed", "kind", string(rec.Kind), "error", handleErr)
		if err := p.queue.UpdateStatus(rec.ID, queue.StatusFailed, handleErr.Error()); err != nil {
			logging.Error(ctx, "failed to mark record failed", "error", err)
		}
		p.telemetry.TrackRecordProcessed(string(rec.Kind), "failed", matchType)
		return
	}

	if err := p.queue.UpdateStatus(rec.ID, queue.StatusProcessed, ""); err != nil {
		logging.Error(ctx, "failed to mark record processed", "error", err)
		return
	}
	logging.LogDuration(ctx, slog.LevelInfo, "record processed", start, "kind", string(rec.Kind))
	p.telemetry.TrackRecordProcessed(string(rec.Kind), "processed", matchType)
}

// CleanupOld drops processed records older than the configured retention.
func (p *Processor) CleanupOld(ctx context.Context) {
	hours := p.settings.CleanupHours
	if hours <= 0 {
		hours = settings.DefaultCleanupHours
	}
	removed, err := p.queue.CleanupOld(time.Duration(hours) * time.Hour)
	if err != nil {
		logging.Warn(ctx, "queue cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		logging.Info(ctx, "queue cleaned up", "removed", removed)
	}
}
