package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/app"
	"github.com/skobkin/courier/internal/telegram"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           app.Name,
		Short:         "courier sends messages and media through a Telegram account",
		Version:       app.BuildVersionWithDate(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSendCmd(),
		newRetryCmd(),
		newCancelCmd(),
		newEditCmd(),
		newFailedCmd(),
		newResetCmd(),
		newConfigureCmd(),
		newVersionCmd(),
	)

	return root
}

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	rt, err := app.Initialize(ctx, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialize runtime: %w", err)
	}

	return rt, nil
}

// withAccount connects to Telegram and runs fn with an open account.
func withAccount(ctx context.Context, rt *app.Runtime, fn func(ctx context.Context, acc *app.AccountContext, client *telegram.Client, api *tg.Client) error) error {
	cfg := rt.CurrentConfig()
	if err := cfg.Credentials(); err != nil {
		return err
	}
	client, err := telegram.NewClient(telegram.ClientConfig{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		BotToken:    cfg.Telegram.BotToken,
		Phone:       cfg.Telegram.Phone,
		SessionPath: rt.Paths.SessionFile,
		CodePrompt:  promptCode,
	}, rt.LogManager.Logger("telegram"))
	if err != nil {
		return err
	}

	return client.Run(ctx, func(ctx context.Context, api *tg.Client) error {
		acc, err := rt.OpenAccount(ctx, app.TelegramAccountDeps(ctx, rt, api))
		if err != nil {
			return err
		}
		defer acc.Close()

		return fn(ctx, acc, client, api)
	})
}

func promptCode(ctx context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "Enter the login code: ")
	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.code == "" {
			return "", fmt.Errorf("read login code: %w", r.err)
		}
		return r.code, nil
	}
}

func flushWrites(rt *app.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = rt.WriterQueue.Flush(ctx)
}
