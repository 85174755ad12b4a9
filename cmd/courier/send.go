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

func newSendCmd() *cobra.Command {
	var (
		opts    sendOptions
		to      string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send text, files or other media and wait for the server to confirm",
		Example: `  courier send --to @friend --text "hello"
  courier send --to me --photo a.jpg --photo b.jpg --album --text "trip"
  courier send --to @channel --video https://example.org/clip.mp4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if to == "" {
				return errors.New("--to is required")
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return withAccount(cmd.Context(), rt, func(ctx context.Context, acc *app.AccountContext, client *telegram.Client, api *tg.Client) error {
				peer, err := client.ResolvePeer(ctx, api, to)
				if err != nil {
					return err
				}
				opts.AlbumSize = rt.CurrentConfig().Sending.GroupBatchSize
				intents, err := buildIntents(peer, opts, time.Now())
				if err != nil {
					return err
				}
				if opts.Thumb != "" {
					for _, in := range intents {
						src, ok := domain.SourceOf(in.Media)
						if ok && src.Path != "" && domain.KindOf(in.Media) == domain.MediaVideo {
							if err := acc.PrepareThumbnail(ctx, src.Path, opts.Thumb); err != nil {
								return fmt.Errorf("prepare thumbnail: %w", err)
							}
						}
					}
				}

				w := newWaiter(rt.Bus)
				defer w.close()

				var ids []int64
				var rejected error
				for i, out := range acc.Engine.SendAll(ctx, intents) {
					if out.Err != nil {
						rejected = errors.Join(rejected, fmt.Errorf("intent %d: %w", i+1, out.Err))
						continue
					}
					ids = append(ids, out.LocalIDs...)
				}
				if len(ids) == 0 {
					return rejected
				}

				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				results, err := w.wait(waitCtx, peer.DialogID(), ids)
				printResults(cmd.OutOrStdout(), peer.DialogID(), results)
				flushWrites(rt)
				return errors.Join(rejected, err, failures(results))
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&to, "to", "", "recipient: me, @username or a t.me link")
	f.StringVar(&opts.Text, "text", "", "message text, or the caption of the first file")
	f.StringArrayVar(&opts.Photos, "photo", nil, "photo path or URL (repeatable)")
	f.StringArrayVar(&opts.Videos, "video", nil, "video path or URL (repeatable)")
	f.StringArrayVar(&opts.Documents, "document", nil, "document path or URL (repeatable)")
	f.StringVar(&opts.Thumb, "thumb", "", "cover image for videos and documents")
	f.StringVar(&opts.Dice, "dice", "", "send an animated dice with this emoji")
	f.StringVar(&opts.Location, "location", "", "send a location as lat,long")
	f.BoolVar(&opts.Album, "album", false, "group files into one album")
	f.BoolVar(&opts.Silent, "silent", false, "send without notification")
	f.BoolVar(&opts.NoWebpage, "no-webpage", false, "disable link previews")
	f.Int64Var(&opts.ReplyTo, "reply-to", 0, "message id to reply to")
	f.DurationVar(&opts.After, "schedule-in", 0, "schedule the message this far in the future")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for delivery")

	return cmd
}

func printResults(w io.Writer, dialog int64, results []result) {
	for _, r := range results {
		if r.Err != "" {
			fmt.Fprintf(w, "dialog %d: message %d failed: %s\n", dialog, r.LocalID, r.Err)
			continue
		}
		fmt.Fprintf(w, "dialog %d: message %d sent as %d\n", dialog, r.LocalID, r.ServerID)
	}
}

func failures(results []result) error {
	n := 0
	for _, r := range results {
		if r.Err != "" {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d message(s) failed", n)
}
