// Package bot answers chat commands relayed by the protocol gateway.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/protocol"
	"github.com/mrarosh/Pear-code/internal/sessionstore"
)

// CommandSession asks for the cloud session id.
const CommandSession = ".session"

// SessionSource yields the cloud session id.
type SessionSource interface {
	GetSession(ctx context.Context) (string, error)
}

// Sender sends a chat reply.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Bot replies to CommandSession with the cloud session id.
type Bot struct {
	source  SessionSource
	timeout time.Duration
}

// New returns a Bot backed by source.
func New(source SessionSource) *Bot {
	return &Bot{source: source, timeout: 3 * time.Minute}
}

// Handle replies to msg if it is a command. It reports whether a reply was sent.
func (b *Bot) Handle(ctx context.Context, sender Sender, msg protocol.Message) (bool, error) {
	if strings.ToLower(strings.TrimSpace(msg.Text)) != CommandSession {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var reply string
	id, err := b.source.GetSession(ctx)
	if err != nil {
		logger.Warnf("[bot] cloud session for %s: %v", msg.From, err)
		reply = fmt.Sprintf("Failed to get cloud session: %v", err)
	} else {
		reply = fmt.Sprintf("Your cloud session ID:\n\n%s", id)
	}
	if err := sender.SendText(ctx, msg.From, reply); err != nil {
		return false, fmt.Errorf("send reply: %w", err)
	}
	return true, nil
}

// Run connects a gateway session and serves messages until ctx is done.
func (b *Bot) Run(ctx context.Context, sessionID string, factory protocol.Factory) error {
	store := sessionstore.New()
	if _, err := store.Put(sessionID, time.Now()); err != nil {
		return err
	}

	inbox := make(chan protocol.Message, 32)
	closed := make(chan string, 1)
	sess, err := protocol.NewSession(sessionID, store, factory, time.Now,
		func(u protocol.ConnectionUpdate) {
			logger.Infof("[bot] connection %s %s", u.State, u.Reason)
			if u.State == protocol.StateClosed {
				select {
				case closed <- u.Reason:
				default:
				}
			}
		},
		protocol.WithMessageHandler(func(m protocol.Message) {
			select {
			case inbox <- m:
			default:
				logger.Warnf("[bot] inbox full, dropping message from %s", m.From)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer sess.Terminate()

	// Each reply runs on its own goroutine. Terminate runs after they finish.
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-closed:
			return fmt.Errorf("gateway connection closed: %s", reason)
		case m := <-inbox:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := b.Handle(ctx, sess, m); err != nil {
					logger.Warnf("[bot] %v", err)
				}
			}()
		}
	}
}
