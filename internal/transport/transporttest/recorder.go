// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	kit "pagewatch/internal/transport"
)

type Sent struct {
	To      kit.ChatTarget
	Text    string
	Media   *kit.Media
	Options *kit.SendOptions
}

type Edit struct {
	Ref  kit.MessageRef
	Text string
}

// Recorder records every outbound call. FailText / FailMedia make the
// matching sends fail.
type Recorder struct {
	mu     sync.Mutex
	nextID int

	sent     []Sent
	edits    []Edit
	answered []string

	FailText  func(text string) error
	FailMedia func(m kit.Media) error
}

var ErrInjected = errors.New("injected send failure")

func (r *Recorder) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (r *Recorder) Stop(ctx context.Context) error                        { return nil }

func (r *Recorder) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if r.FailText != nil {
		if err := r.FailText(text); err != nil {
			return kit.MessageRef{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.sent = append(r.sent, Sent{To: to, Text: text, Options: opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: r.nextID}, nil
}

func (r *Recorder) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	if r.FailMedia != nil {
		if err := r.FailMedia(m); err != nil {
			return kit.MessageRef{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	mm := m
	r.sent = append(r.sent, Sent{To: to, Media: &mm, Options: opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: r.nextID}, nil
}

func (r *Recorder) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, Edit{Ref: ref, Text: text})
	return nil
}

func (r *Recorder) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered = append(r.answered, text)
	return nil
}

// Sent returns a copy of all successful sends in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Texts returns the text of every successful text send.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.Media == nil {
			out = append(out, s.Text)
		}
	}
	return out
}

// Media returns every successful media send.
func (r *Recorder) Media() []kit.Media {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []kit.Media
	for _, s := range r.sent {
		if s.Media != nil {
			out = append(out, *s.Media)
		}
	}
	return out
}

func (r *Recorder) Edits() []Edit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Edit(nil), r.edits...)
}

func (r *Recorder) Answers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.answered...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent, r.edits, r.answered = nil, nil, nil
}

var _ kit.Adapter = (*Recorder)(nil)
