package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNoDeadLetterQueue = errors.New("dead-letter commands need QUEUE_BACKEND=redis")

func newDLQCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and re-drive quarantined intents",
	}

	cmd.AddCommand(newDLQListCommand(opts))
	cmd.AddCommand(newDLQRedriveCommand(opts))

	return cmd
}

func newDLQListCommand(opts *RootOptions) *cobra.Command {
	var count int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the oldest dead-lettered intents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.DeadLetters == nil {
				return errNoDeadLetterQueue
			}

			letters, err := b.DeadLetters.DeadLetters(cmd.Context(), count)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), letters)
		},
	}

	cmd.Flags().Int64VarP(&count, "count", "n", 20, "maximum entries to show")

	return cmd
}

func newDLQRedriveCommand(opts *RootOptions) *cobra.Command {
	var count int64

	cmd := &cobra.Command{
		Use:   "redrive",
		Short: "Move dead-lettered intents back onto the intent stream",
		Long:  "Republishes the oldest dead-lettered intents and removes them from the dead-letter stream. Fix the cause first: intents that still fail validation return to the dead-letter stream.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.DeadLetters == nil {
				return errNoDeadLetterQueue
			}

			moved, err := b.DeadLetters.Redrive(cmd.Context(), count)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]int{"redriven": moved})
		},
	}

	cmd.Flags().Int64VarP(&count, "count", "n", 100, "maximum entries to re-drive")

	return cmd
}
