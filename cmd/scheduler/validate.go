package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/autoscaler-scheduler/internal/application"
	httptransport "github.com/example/autoscaler-scheduler/internal/http"
	"github.com/example/autoscaler-scheduler/internal/messages"
)

func (a *app) validateCommand() *cobra.Command {
	var (
		file  string
		appID string
		lang  string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a policy document without applying it",
		Long: "Validate reads a policy document, runs the same checks as PUT /v2/schedules/{appId} " +
			"and prints every problem found. It exits with status 1 when the policy is rejected.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.fs.Open(file)
			if err != nil {
				return fmt.Errorf("open policy: %w", err)
			}
			defer f.Close()

			catalog, err := messages.New(lang, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			l := catalog.For(lang)

			policy, err := httptransport.DecodePolicy(f, appID)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), l.Lookup(messages.KeyInvalidJSON))
				return exitError{code: 1}
			}

			violations := application.ValidatePolicy(policy, a.now())
			if len(violations) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: policy is valid (fingerprint %s)\n", appID, application.Fingerprint(policy))
				return nil
			}
			for _, line := range messages.Render(l, violations) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return exitError{code: 1}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "policy document (JSON)")
	cmd.Flags().StringVar(&appID, "app-id", "", "application the policy belongs to")
	cmd.Flags().StringVar(&lang, "lang", "en", "language of the printed messages (en, ja)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}
