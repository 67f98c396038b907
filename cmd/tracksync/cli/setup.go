package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"tracksync.io/cli/cmd/tracksync/cli/settings"
)

func newSetupCmd() *cobra.Command {
	var skipHooks bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Configure tracksync and install coding-assistant hooks",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := settings.Load()
			if err != nil {
				return err
			}

			enableSemantic := s.SemanticEnabled()
			telemetryOptIn := s.Telemetry != nil && *s.Telemetry

			form := NewAccessibleForm(
				huh.NewGroup(
					huh.NewInput().
						Title("API key environment variable").
						Description("Name of the environment variable holding your tracker API key. The key itself is never stored.").
						Value(&s.APIKeyEnv).
						Validate(func(v string) error {
							if strings.TrimSpace(v) == "" {
								return fmt.Errorf("variable name cannot be empty")
							}
							return nil
						}),
					huh.NewInput().
						Title("Team key (optional)").
						Description("Tracker team key, e.g. ENG. Leave empty to use the first team.").
						Value(&s.TeamKey),
					huh.NewInput().
						Title("Default assignee email (optional)").
						Description("Issues are assigned to this user. Leave empty to use the API key's owner.").
						Value(&s.DefaultAssignee),
				),
				huh.NewGroup(
					huh.NewConfirm().
						Title("Enable LLM semantic matching?").
						Description("Uses the local LLM command to rank candidate issues. Disable for keyword-only matching.").
						Value(&enableSemantic),
					huh.NewConfirm().
						Title("Share anonymous usage data?").
						Description("Command names and record outcomes only, never session content.").
						Value(&telemetryOptIn),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			s.Matcher.EnableSemantic = &enableSemantic
			s.Telemetry = &telemetryOptIn
			if err := settings.Save(s); err != nil {
				return err
			}
			fmt.Println("Settings saved.")

			if s.APIKey() == "" {
				fmt.Printf("Note: %s is not set in this shell. Export it before starting the daemon.\n", s.APIKeyEnv)
			}

			if skipHooks {
				return nil
			}
			settingsPath, err := claudeSettingsPath()
			if err != nil {
				return err
			}
			installed, err := installClaudeHooks(settingsPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to install hooks: %v\n", err)
				return nil
			}
			switch installed {
			case 0:
				fmt.Println("Hooks already installed.")
			default:
				fmt.Printf("Installed %d hook(s) in %s.\n", installed, settingsPath)
			}
			fmt.Println("Run 'tracksync daemon start' to begin syncing sessions.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipHooks, "skip-hooks", false, "configure settings without touching Claude Code hooks")
	return cmd
}
