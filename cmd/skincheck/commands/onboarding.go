package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/pkg/logger"
)

func onboardingCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboarding",
		Short: "Inspect or change the persisted onboarding flag",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print completed or pending",
		Args:  cobra.NoArgs,
	}
	status.RunE = e.runE(func(cmd *cobra.Command, _ []string) error {
		done, err := e.flags.Load(cmd.Context(), flow.OnboardingFlag)
		if err != nil {
			return err
		}
		state := "pending"
		if done {
			state = "completed"
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), state)
		return err
	})

	cmd.AddCommand(status,
		setOnboardingCmd(e, "complete", "Mark onboarding as completed", true),
		setOnboardingCmd(e, "reset", "Show onboarding again on next start", false),
	)
	return cmd
}

func setOnboardingCmd(e *env, use, short string, value bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}
	cmd.RunE = e.runE(func(cmd *cobra.Command, _ []string) error {
		if err := e.flags.Store(cmd.Context(), flow.OnboardingFlag, value); err != nil {
			return err
		}
		e.log.Info(cmd.Context(), "onboarding flag updated", logger.Bool("completed", value))
		return nil
	})
	return cmd
}
