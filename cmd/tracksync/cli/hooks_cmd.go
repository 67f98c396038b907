package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/paths"
	"tracksync.io/cli/cmd/tracksync/cli/queue"
)

// prURLPattern matches GitHub pull-request URLs in tool output.
var prURLPattern = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/\d+`)

// hookDecision is the acknowledgment protocol with the coding-assistant
// host. The hooks only ever emit "continue".
type hookDecision struct {
	Decision string `json:"decision"`
}

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hooks",
		Short:  "Hook handlers",
		Long:   "Commands called by coding-assistant hooks. These are internal and not for direct user use.",
		Hidden: true, // Internal command, not for direct user use
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Hooks must never block on log-file creation.
			logging.InitStderr()
		},
	}

	cmd.AddCommand(newSessionStopHookCmd())
	cmd.AddCommand(newPostToolUseHookCmd())
	return cmd
}

// emitContinue writes the acknowledgment. It must happen on every code
// path: hooks never block the caller.
func emitContinue(w io.Writer) {
	_ = json.NewEncoder(w).Encode(hookDecision{Decision: "continue"})
}

// hookWarn reports a hook-internal problem without failing the hook.
func hookWarn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

func newSessionStopHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-stop",
		Short: "Enqueue a session for syncing (called on session stop)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer emitContinue(cmd.OutOrStdout())

			var input struct {
				SessionID      string `json:"session_id"`
				TranscriptPath string `json:"transcript_path"`
				CWD            string `json:"cwd"`
				HookEventName  string `json:"hook_event_name"`
			}
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&input); err != nil {
				hookWarn("failed to parse hook input: %v", err)
				return nil
			}
			if err := paths.ValidateSessionID(input.SessionID); err != nil {
				hookWarn("invalid hook input: %v", err)
				return nil
			}
			if input.TranscriptPath == "" {
				hookWarn("hook input missing transcript_path")
				return nil
			}

			rec := queue.Record{
				Kind:           queue.KindSessionStop,
				SessionID:      input.SessionID,
				TranscriptPath: input.TranscriptPath,
				CWD:            input.CWD,
			}
			if err := appendQueueRecord(&rec); err != nil {
				hookWarn("failed to enqueue session: %v", err)
			}
			return nil
		},
	}
}

func newPostToolUseHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post-tool-use",
		Short: "Detect PR creation (called after each tool invocation)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer emitContinue(cmd.OutOrStdout())

			var input struct {
				SessionID    string          `json:"session_id"`
				CWD          string          `json:"cwd"`
				ToolName     string          `json:"tool_name"`
				ToolInput    json.RawMessage `json:"tool_input"`
				ToolResponse json.RawMessage `json:"tool_response"`
			}
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&input); err != nil {
				hookWarn("failed to parse hook input: %v", err)
				return nil
			}

			prURL := extractPRURL(input.ToolName, input.ToolInput, input.ToolResponse)
			if prURL == "" {
				return nil
			}
			if err := paths.ValidateSessionID(input.SessionID); err != nil {
				hookWarn("invalid hook input: %v", err)
				return nil
			}

			rec := queue.Record{
				Kind:      queue.KindPRCreated,
				SessionID: input.SessionID,
				PRURL:     prURL,
				CWD:       input.CWD,
			}
			if err := appendQueueRecord(&rec); err != nil {
				hookWarn("failed to enqueue PR record: %v", err)
			}
			return nil
		},
	}
}

// extractPRURL returns the first pull-request URL when the tool call was a
// shell invocation of "gh pr create", and "" otherwise.
func extractPRURL(toolName string, toolInput, toolResponse json.RawMessage) string {
	if toolName != "Bash" {
		return ""
	}
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(toolInput, &in); err != nil {
		return ""
	}
	if !strings.Contains(in.Command, "gh pr create") {
		return ""
	}
	return prURLPattern.FindString(string(toolResponse))
}

// appendQueueRecord appends one record to the durable queue.
func appendQueueRecord(rec *queue.Record) error {
	queuePath, err := paths.QueuePath()
	if err != nil {
		return err
	}
	return queue.New(queuePath).Append(rec)
}
