package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

type memStore struct {
	sudo  map[int64]bool
	chats map[int64]bool
	err   error
}

func (m memStore) IsSudo(ctx context.Context, id int64) (bool, error) {
	return m.sudo[id], m.err
}

func (m memStore) IsChatAuthorized(ctx context.Context, id int64) (bool, error) {
	return m.chats[id], m.err
}

func TestAllowed(t *testing.T) {
	st := memStore{sudo: map[int64]bool{20: true}, chats: map[int64]bool{-100: true}}
	c := New([]int64{10}, st, logx.Nop())

	tests := []struct {
		name string
		msg  *kit.Message
		want bool
	}{
		{"owner in private chat", &kit.Message{FromID: 10, ChatID: 10}, true},
		{"sudo in private chat", &kit.Message{FromID: 20, ChatID: 20}, true},
		{"stranger", &kit.Message{FromID: 30, ChatID: 30}, false},
		{"stranger in authorized group", &kit.Message{FromID: 30, ChatID: -100, IsGroup: true}, true},
		{"stranger in other group", &kit.Message{FromID: 30, ChatID: -200, IsGroup: true}, false},
		{"authorized channel", &kit.Message{ChatID: -100, IsChannel: true}, true},
		{"unauthorized channel", &kit.Message{ChatID: -300, IsChannel: true}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Allowed(context.Background(), tt.msg))
		})
	}
}

func TestStoreErrorDenies(t *testing.T) {
	c := New(nil, memStore{sudo: map[int64]bool{20: true}, err: errors.New("db down")}, logx.Nop())
	assert.False(t, c.IsSudo(context.Background(), 20))
	assert.False(t, c.Allowed(context.Background(), &kit.Message{FromID: 20, ChatID: 20}))
}

func TestSetOwners(t *testing.T) {
	c := New([]int64{3, 1, 0}, nil, logx.Nop())
	assert.Equal(t, []int64{1, 3}, c.Owners())
	assert.False(t, c.IsOwner(0))

	c.SetOwners([]int64{5})
	assert.False(t, c.IsOwner(1))
	assert.True(t, c.IsOwner(5))
}
