// Package auth decides who may use the bot: configured owners, sudo users
// and authorized chats. Store errors deny access.
package auth

import (
	"context"
	"sort"
	"sync"

	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

type Store interface {
	IsSudo(ctx context.Context, userID int64) (bool, error)
	IsChatAuthorized(ctx context.Context, chatID int64) (bool, error)
}

type Checker struct {
	mu     sync.RWMutex
	owners map[int64]struct{}

	store Store
	log   logx.Logger
}

func New(owners []int64, store Store, log logx.Logger) *Checker {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Checker{store: store, log: log}
	c.SetOwners(owners)
	return c
}

// SetOwners replaces the owner set (config hot reload).
func (c *Checker) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id != 0 {
			m[id] = struct{}{}
		}
	}
	c.mu.Lock()
	c.owners = m
	c.mu.Unlock()
}

// Owners returns the owner IDs in ascending order.
func (c *Checker) Owners() []int64 {
	c.mu.RLock()
	out := make([]int64, 0, len(c.owners))
	for id := range c.owners {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Checker) IsOwner(userID int64) bool {
	if userID == 0 {
		return false
	}
	c.mu.RLock()
	_, ok := c.owners[userID]
	c.mu.RUnlock()
	return ok
}

func (c *Checker) IsSudo(ctx context.Context, userID int64) bool {
	if userID == 0 || c.store == nil {
		return false
	}
	ok, err := c.store.IsSudo(ctx, userID)
	if err != nil {
		c.log.Warn("sudo lookup failed", logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	return ok
}

func (c *Checker) IsAuthorizedChat(ctx context.Context, chatID int64) bool {
	if chatID == 0 || c.store == nil {
		return false
	}
	ok, err := c.store.IsChatAuthorized(ctx, chatID)
	if err != nil {
		c.log.Warn("chat lookup failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return false
	}
	return ok
}

// Allowed admits owners and sudo users anywhere, and anyone in an
// authorized chat. Channel posts have no sender and need an authorized
// chat.
func (c *Checker) Allowed(ctx context.Context, msg *kit.Message) bool {
	if msg == nil {
		return false
	}
	if msg.IsChannel {
		return c.IsAuthorizedChat(ctx, msg.ChatID)
	}
	if c.IsOwner(msg.FromID) || c.IsSudo(ctx, msg.FromID) {
		return true
	}
	return c.IsAuthorizedChat(ctx, msg.ChatID)
}
