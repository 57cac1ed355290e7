package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/skincheck/internal/smoke"
	"github.com/okian/skincheck/pkg/logger"
)

func smokeCmd(e *env) *cobra.Command {
	var (
		cfg    smoke.Config
		output string
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Drive a running server through one full analysis over HTTP",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "", "base URL of the server (default from addr)")
	cmd.Flags().StringVar(&cfg.Image, "image", "", "image to upload (default a synthetic lesion)")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "per request timeout")
	cmd.Flags().DurationVar(&cfg.Wait, "wait", 2*time.Minute, "how long the analysis may take")
	cmd.Flags().StringVarP(&output, "output", "o", outputYAML, "output format: yaml or json")

	cmd.RunE = e.runE(func(cmd *cobra.Command, _ []string) error {
		if output != outputYAML && output != outputJSON {
			return fmt.Errorf("%w: %q", errUnknownOutput, output)
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = baseURL(e.cfg.Addr)
		}

		rep, err := smoke.Run(cmd.Context(), cfg)
		if rep != nil {
			if werr := encode(cmd.OutOrStdout(), output, rep); werr != nil {
				return errors.Join(err, werr)
			}
		}
		if err != nil {
			e.log.Error(cmd.Context(), "smoke run failed", logger.String("url", cfg.BaseURL), logger.Error(err))
		}
		return err
	})
	return cmd
}

// baseURL turns a listen address such as ":8080" into a URL on localhost.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
