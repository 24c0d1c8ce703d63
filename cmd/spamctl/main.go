package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spam-moderator/internal/app"
	"spam-moderator/internal/config"
	"spam-moderator/internal/middleware"
	"spam-moderator/internal/models"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spamctl",
		Short:         "Manage the spam classifier dataset and model",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show info logs")

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(accuracyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if !verbose {
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

// openApp loads the dataset and model the same way the server does.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}

func trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the model on the whole dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Moderator.Retrain(); err != nil {
				return err
			}

			report := a.Moderator.Stats().LastTraining
			fmt.Fprintf(cmd.OutOrStdout(), "Trained on %d examples (%d held out), %d features, accuracy %.2f %%\n",
				report.TrainSize, report.EvalSize, report.Features, report.Accuracy)
			return nil
		},
	}
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict [text]",
		Short: "Classify a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			verdict := a.Moderator.Classify(strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s (spam probability %.3f)\n", verdict.Label, verdict.SpamProbability)
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add a labeled message to the dataset and retrain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := models.ParseLabel(label)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			if models.IsBlank(models.SanitizeText(text)) {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped blank text, dataset still has %d examples\n", a.Classifier.Size())
				return nil
			}

			if err := a.Moderator.RecordFeedback(text, l, models.SourceCLI); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added as %s, dataset now has %d examples\n", l, a.Classifier.Size())
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "spam or ham")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func accuracyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accuracy",
		Short: "Evaluate the model on a fresh random split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%.2f %%\n", a.Moderator.CurrentAccuracy())
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print dataset, training and feedback statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			feedback, err := a.Moderator.FeedbackStats()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"dataset":  a.Moderator.Stats(),
				"feedback": feedback,
				"mode":     a.Moderator.Mode(),
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a moderator API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, expires, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	return cmd
}
