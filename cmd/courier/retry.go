package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/app"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/telegram"
)

func newRetryCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "retry <dialog-id> <local-id>",
		Short: "Resend a failed message; failed album members are resent together",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return withAccount(cmd.Context(), rt, func(ctx context.Context, acc *app.AccountContext, _ *telegram.Client, _ *tg.Client) error {
				w := newWaiter(rt.Bus)
				defer w.close()

				if err := acc.Engine.Retry(ctx, ref); err != nil {
					return fmt.Errorf("retry %s: %w", ref, err)
				}
				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				results, err := w.wait(waitCtx, ref.Dialog, []int64{ref.ID})
				printResults(cmd.OutOrStdout(), ref.Dialog, results)
				flushWrites(rt)
				if err != nil {
					return err
				}
				return failures(results)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for delivery")

	return cmd
}

func parseRef(dialog, id string) (domain.MessageRef, error) {
	d, err := strconv.ParseInt(dialog, 10, 64)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("parse dialog id: %w", err)
	}
	m, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("parse message id: %w", err)
	}
	return domain.MessageRef{Dialog: d, ID: m}, nil
}
