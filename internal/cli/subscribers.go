package cli

import (
	"github.com/spf13/cobra"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

func newStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show subscriber counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := b.Admin.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), stats)
		},
	}
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			subscriber, err := b.Admin.GetSubscriber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), subscriber)
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var (
		limit     int
		status    string
		nextToken string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscribers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			page, err := b.Admin.ListSubscribers(cmd.Context(), model.ListParams{
				Limit:     limit,
				NextToken: nextToken,
				Status:    model.Status(status),
			})
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "page size (1-100)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|inactive)")
	cmd.Flags().StringVar(&nextToken, "next-token", "", "resume after a previous page")

	return cmd
}

func newUpdateEmailCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update-email <id> <email>",
		Short: "Change a subscriber's email",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			subscriber, err := b.Admin.UpdateSubscriberEmail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), subscriber)
		},
	}
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Hard-delete a subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Admin.DeleteSubscriber(cmd.Context(), args[0]); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
		},
	}
}
