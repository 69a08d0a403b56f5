// Package telegram mirrors error audit events to an operator chat through a
// Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"

	"xrepost/pkg/pipeline"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"golang.org/x/net/proxy"
)

const maxMessageRunes = 4000

// Options configures the notifier.
type Options struct {
	AppID    int
	AppHash  string
	BotToken string
	// Chat is the public username of the target chat or channel.
	Chat  string
	Queue int
}

// Notifier queues messages and sends them from a single bot connection.
type Notifier struct {
	opts     Options
	sessions session.Storage
	dialer   proxy.ContextDialer
	queue    chan string
	dropped  atomic.Int64
	logger   *slog.Logger
}

var _ pipeline.Notifier = (*Notifier)(nil)

func NewNotifier(opts Options, sessions session.Storage, dialer proxy.ContextDialer, logger *slog.Logger) *Notifier {
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if dialer == nil {
		dialer = proxy.Direct
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		opts:     opts,
		sessions: sessions,
		dialer:   dialer,
		queue:    make(chan string, opts.Queue),
		logger:   logger.With("component", "telegram"),
	}
}

// Notify enqueues a message. When the queue is full the message is dropped.
func (n *Notifier) Notify(message string) {
	select {
	case n.queue <- truncate(message):
	default:
		n.dropped.Add(1)
	}
}

// Dropped reports how many messages did not fit in the queue.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run connects the bot and sends queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	client := telegram.NewClient(n.opts.AppID, n.opts.AppHash, telegram.Options{
		SessionStorage: n.sessions,
		Resolver:       dcs.Plain(dcs.PlainOptions{Dial: n.dialer.DialContext}),
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := client.Auth().Bot(ctx, n.opts.BotToken); err != nil {
				return fmt.Errorf("bot login: %w", err)
			}
		}

		api := tg.NewClient(client)
		resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: strings.TrimPrefix(n.opts.Chat, "@"),
		})
		if err != nil {
			return fmt.Errorf("resolve %s: %w", n.opts.Chat, err)
		}
		peer, err := peerFromResolved(resolved)
		if err != nil {
			return err
		}
		n.logger.Info("alert notifier connected", "chat", n.opts.Chat)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg := <-n.queue:
				if _, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
					Peer:     peer,
					Message:  msg,
					RandomID: rand.Int63(),
				}); err != nil {
					n.logger.Warn("sending alert failed", "error", err)
				}
			}
		}
	})
}

// peerFromResolved picks the chat, channel or user behind a username.
func peerFromResolved(r *tg.ContactsResolvedPeer) (tg.InputPeerClass, error) {
	for _, c := range r.Chats {
		switch ch := c.(type) {
		case *tg.Channel:
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		case *tg.Chat:
			return &tg.InputPeerChat{ChatID: ch.ID}, nil
		}
	}
	for _, u := range r.Users {
		if user, ok := u.(*tg.User); ok {
			return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
		}
	}
	return nil, fmt.Errorf("username resolved to no usable peer")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	return string(r[:maxMessageRunes]) + "…"
}
