// Package cli implements the newsletterctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/service"
)

// DeadLetterQueue lists and re-drives quarantined intents.
type DeadLetterQueue interface {
	DeadLetters(ctx context.Context, count int64) ([]queue.DeadLetter, error)
	Redrive(ctx context.Context, count int64) (int, error)
}

// Backend is what the commands operate on.
type Backend struct {
	Admin       service.AdminService
	DeadLetters DeadLetterQueue
	Close       func()
}

// Opener connects to the backend on first use so that --help needs no infrastructure.
type Opener func(ctx context.Context) (*Backend, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Pretty bool
	open   Opener
}

func (o *RootOptions) backend(cmd *cobra.Command) (*Backend, error) {
	b, err := o.open(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to open backend: %w", err)
	}
	if b.Close == nil {
		b.Close = func() {}
	}
	return b, nil
}

func (o *RootOptions) print(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if o.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// NewRootCommand creates the root command for newsletterctl.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "newsletterctl",
		Short:         "Operate the newsletter subscriber registry",
		Long:          "Inspect and manage subscribers and quarantined intents using the service configuration from the environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "indent JSON output")

	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newUpdateEmailCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newDLQCommand(opts))

	return cmd
}
