package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/domain"
)

var ErrNoCredentials = errors.New("telegram api id and hash are required")

// CodePrompt asks the user for the login code sent by Telegram.
type CodePrompt func(ctx context.Context) (string, error)

type ClientConfig struct {
	APIID       int
	APIHash     string
	BotToken    string
	Phone       string
	SessionPath string
	CodePrompt  CodePrompt
}

// Client owns a gotd connection and its authorization.
type Client struct {
	cfg    ClientConfig
	client *telegram.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, ErrNoCredentials
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := telegram.Options{}
	if cfg.SessionPath != "" {
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionPath}
	}
	return &Client{
		cfg:    cfg,
		client: telegram.NewClient(cfg.APIID, cfg.APIHash, opts),
		logger: logger,
	}, nil
}

// Run connects, authorizes and calls fn with the raw API. The connection
// stays open until fn returns.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context, api *tg.Client) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		if err := c.authorize(ctx); err != nil {
			return err
		}
		c.logger.Info("connected to telegram")
		return fn(ctx, c.client.API())
	})
}

func (c *Client) authorize(ctx context.Context) error {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		c.logger.Debug("session restored")
		return nil
	}

	switch {
	case c.cfg.BotToken != "":
		if _, err := c.client.Auth().Bot(ctx, c.cfg.BotToken); err != nil {
			return fmt.Errorf("bot login: %w", err)
		}
	case c.cfg.Phone != "" && c.cfg.CodePrompt != nil:
		code := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
			return c.cfg.CodePrompt(ctx)
		})
		flow := auth.NewFlow(auth.CodeOnly(c.cfg.Phone, code), auth.SendCodeOptions{})
		if err := flow.Run(ctx, c.client.Auth()); err != nil {
			return fmt.Errorf("user login: %w", err)
		}
	default:
		return errors.New("not authorized: configure a bot token or a phone number")
	}
	c.logger.Info("authorized")
	return nil
}

// ResolvePeer turns "me", a @username or a t.me link into a peer.
func (c *Client) ResolvePeer(ctx context.Context, api *tg.Client, target string) (domain.Peer, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return domain.Peer{}, errors.New("empty peer")
	}
	if target == "me" || target == "self" {
		self, err := c.client.Self(ctx)
		if err != nil {
			return domain.Peer{}, fmt.Errorf("get self: %w", err)
		}
		return domain.Peer{Kind: domain.PeerUser, ID: self.ID, AccessHash: self.AccessHash}, nil
	}
	p, err := message.NewSender(api).Resolve(target).AsInputPeer(ctx)
	if err != nil {
		return domain.Peer{}, fmt.Errorf("resolve %q: %w", target, err)
	}
	return peerOf(p)
}
