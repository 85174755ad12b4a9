package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/app"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/telegram"
)

type editOptions struct {
	Photo    string
	Video    string
	Document string
	Caption  string
}

func newEditCmd() *cobra.Command {
	var (
		opts    editOptions
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "edit <dialog-id> <message-id>",
		Short: "Replace the media of a sent message; the old one is restored on failure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			intent, err := buildEdit(opts)
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

				if err := acc.Engine.EditMedia(ctx, ref, intent); err != nil {
					return fmt.Errorf("edit %s: %w", ref, err)
				}
				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				err := w.waitEdit(waitCtx, ref)
				flushWrites(rt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "message %s edited\n", ref)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Photo, "photo", "", "new photo path or URL")
	f.StringVar(&opts.Video, "video", "", "new video path or URL")
	f.StringVar(&opts.Document, "document", "", "new document path or URL")
	f.StringVar(&opts.Caption, "caption", "", "new caption")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for the edit")

	return cmd
}

func buildEdit(o editOptions) (domain.EditIntent, error) {
	var drafts []domain.MediaDraft
	if o.Photo != "" {
		drafts = append(drafts, domain.PhotoDraft{FileSource: source(o.Photo)})
	}
	if o.Video != "" {
		drafts = append(drafts, domain.VideoDraft{FileSource: source(o.Video), SupportsStreaming: true})
	}
	if o.Document != "" {
		drafts = append(drafts, domain.DocumentDraft{FileSource: source(o.Document)})
	}
	if len(drafts) != 1 {
		return domain.EditIntent{}, errors.New("pass exactly one of --photo, --video or --document")
	}
	return domain.EditIntent{Media: drafts[0], Caption: o.Caption}, nil
}
