package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/app"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/telegram"
)

func newCancelCmd() *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "cancel <dialog-id> <local-id>...",
		Short: "Discard failed drafts; sent messages are left alone",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args[0], args[1:])
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

				if err := acc.Engine.Cancel(ctx, refs...); err != nil {
					return fmt.Errorf("cancel: %w", err)
				}
				waitCtx, cancel := context.WithTimeout(ctx, settle)
				defer cancel()
				results, err := w.wait(waitCtx, refs[0].Dialog, localIDs(refs))
				flushWrites(rt)
				if err != nil && !errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				printCancelled(cmd.OutOrStdout(), refs, results)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "how long to wait for the cancellations to be confirmed")

	return cmd
}

func parseRefs(dialog string, ids []string) ([]domain.MessageRef, error) {
	refs := make([]domain.MessageRef, 0, len(ids))
	for _, id := range ids {
		ref, err := parseRef(dialog, id)
		if err != nil {
			return nil, err
		}
		if ref.ID >= 0 {
			return nil, fmt.Errorf("%d is not a local id: only unsent drafts can be cancelled", ref.ID)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func localIDs(refs []domain.MessageRef) []int64 {
	out := make([]int64, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.ID)
	}
	return out
}

func printCancelled(w io.Writer, refs []domain.MessageRef, results []result) {
	done := make(map[int64]bool, len(results))
	for _, r := range results {
		done[r.LocalID] = true
	}
	for _, ref := range refs {
		if done[ref.ID] {
			fmt.Fprintf(w, "%s cancelled\n", ref)
			continue
		}
		fmt.Fprintf(w, "%s not found or no longer cancellable\n", ref)
	}
}
