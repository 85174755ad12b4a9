package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/domain"
)

func newFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "failed <dialog-id>",
		Short: "List messages of a dialog that failed to send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse dialog id: %w", err)
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			msgs, err := rt.MessageRepo.ListErrored(cmd.Context(), dialog)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "no failed messages")
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "%d\t%s\t%s\n", m.LocalID, describeMessage(m), m.ErrorText)
			}
			return nil
		},
	}
}

func describeMessage(m domain.OutboundMessage) string {
	kind := string(domain.KindOf(m.Media))
	switch {
	case m.AttachPath != "":
		return kind + " " + m.AttachPath
	case m.Text != "":
		text := []rune(m.Text)
		if len(text) > 40 {
			text = append(text[:39], '…')
		}
		return kind + " " + strconv.Quote(string(text))
	default:
		return kind
	}
}
