package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/skincheck/internal/adapters/imagesource"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/internal/i18n"
)

// Output formats of analyze.
const (
	outputYAML = "yaml"
	outputJSON = "json"
)

var (
	errOnboardingPending = errors.New("onboarding has not been completed; pass --complete-onboarding")
	errUnknownOutput     = errors.New("unknown output format")
)

func analyzeCmd(e *env) *cobra.Command {
	var (
		output             string
		lang               string
		completeOnboarding bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Run one image through the flow and print the outcome",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputYAML, "output format: yaml or json")
	cmd.Flags().StringVar(&lang, "lang", "", "language of failure messages (default from config)")
	cmd.Flags().BoolVar(&completeOnboarding, "complete-onboarding", false, "complete onboarding first if it is pending")

	cmd.RunE = e.runE(func(cmd *cobra.Command, args []string) error {
		if output != outputYAML && output != outputJSON {
			return fmt.Errorf("%w: %q", errUnknownOutput, output)
		}
		ctx := cmd.Context()

		coord, err := e.newCoordinator(ctx)
		if err != nil {
			return err
		}
		if coord.Current() == flow.Onboarding {
			if !completeOnboarding {
				return errOnboardingPending
			}
			if err := coord.OnboardingComplete(ctx); err != nil {
				return err
			}
		}

		if err := coord.RequestImageAcquisition(ctx); err != nil {
			return err
		}
		library := imagesource.NewLibrary(coord, e.cfg.MaxUploadBytes, e.cfg.MaxImagePixels)
		if err := library.PickFile(ctx, args[0]); err != nil {
			_ = library.Cancel(ctx)
			return err
		}

		if err := coord.StartAnalysisRequested(ctx); err != nil {
			if !flow.IsAnalysisFailed(err) {
				return err
			}
			catalog, cerr := i18n.New(e.cfg.DefaultLanguage)
			if cerr != nil {
				return err
			}
			return fmt.Errorf("%s: %w", catalog.FailureMessage(flow.KindOf(err), lang), err)
		}

		view := types.NewStateView(coord.Snapshot(), time.Now(), nil)
		if err := encode(cmd.OutOrStdout(), output, view.Outcome); err != nil {
			return err
		}
		return coord.ResultsAcknowledged(ctx)
	})
	return cmd
}

// encode writes v to w as YAML or JSON.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", errUnknownOutput, format)
	}
}
