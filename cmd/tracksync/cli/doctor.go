package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"tracksync.io/cli/cmd/tracksync/cli/paths"
	"tracksync.io/cli/cmd/tracksync/cli/settings"
	"tracksync.io/cli/cmd/tracksync/cli/tracker/linear"
)

// doctorCheckTimeout bounds the tracker connectivity probe.
const doctorCheckTimeout = 10 * time.Second

func newDoctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the tracksync environment",
		Long: `Check that everything the daemon needs is in place: settings, the
tracker credential, the queue directory, the LLM command, and the
coding-assistant hooks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the tracker connectivity check")
	return cmd
}

func runDoctor(ctx context.Context, out io.Writer, offline bool) error {
	failures := 0
	check := func(ok bool, name, detail string) {
		mark := "✓"
		if !ok {
			mark = "✗"
			failures++
		}
		if detail != "" {
			fmt.Fprintf(out, "%s %s: %s\n", mark, name, detail)
		} else {
			fmt.Fprintf(out, "%s %s\n", mark, name)
		}
	}

	s, err := settings.Load()
	if err != nil {
		check(false, "settings", err.Error())
		return NewSilentError(fmt.Errorf("doctor found problems"))
	}
	check(true, "settings", "loaded")

	apiKey := s.APIKey()
	if apiKey == "" {
		check(false, "tracker credential", fmt.Sprintf("%s is not set", s.APIKeyEnv))
	} else {
		check(true, "tracker credential", s.APIKeyEnv+" is set")
	}

	if !offline && apiKey != "" {
		ctx, cancel := context.WithTimeout(ctx, doctorCheckTimeout)
		viewer, err := linear.New(s.APIURL, apiKey).Viewer(ctx)
		cancel()
		if err != nil {
			check(false, "tracker connectivity", err.Error())
		} else {
			check(true, "tracker connectivity", "authenticated as "+viewer.Name)
		}
	}

	if home, err := paths.EnsureDataHome(); err != nil {
		check(false, "data home", err.Error())
	} else {
		check(true, "data home", home)
	}

	llmBinary := strings.Fields(s.LLMCommand)
	if len(llmBinary) == 0 {
		check(false, "llm command", "empty")
	} else if path, err := exec.LookPath(llmBinary[0]); err != nil {
		check(false, "llm command", fmt.Sprintf("%q not found on PATH", llmBinary[0]))
	} else {
		check(true, "llm command", path)
	}

	if _, err := regexp.Compile(s.BranchPattern); err != nil {
		check(false, "branch pattern", err.Error())
	} else {
		check(true, "branch pattern", s.BranchPattern)
	}

	if hooksPath, err := claudeSettingsPath(); err != nil {
		check(false, "hooks", err.Error())
	} else if claudeHooksInstalled(hooksPath) {
		check(true, "hooks", "installed in "+hooksPath)
	} else {
		check(false, "hooks", "not installed (run 'tracksync setup')")
	}

	if pid, running := daemonPID(); running {
		check(true, "daemon", fmt.Sprintf("running (pid %d)", pid))
	} else {
		check(false, "daemon", "not running (run 'tracksync daemon start')")
	}

	reportBranch(out, s)

	if failures > 0 {
		fmt.Fprintf(out, "\n%d problem(s) found.\n", failures)
		return NewSilentError(fmt.Errorf("doctor found %d problems", failures))
	}
	fmt.Fprintln(out, "\nEverything looks good.")
	return nil
}

// reportBranch is informational only: it shows whether the current branch
// would resolve an issue identifier.
func reportBranch(out io.Writer, s *settings.Settings) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return
	}
	head, err := repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return
	}
	branch := head.Name().Short()

	re, err := regexp.Compile(s.BranchPattern)
	if err != nil {
		return
	}
	if groups := re.FindStringSubmatch(branch); len(groups) > 1 {
		fmt.Fprintf(out, "  current branch %q resolves to issue %s\n", branch, groups[1])
	} else {
		fmt.Fprintf(out, "  current branch %q carries no issue identifier\n", branch)
	}
}
