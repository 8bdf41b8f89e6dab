// Package router turns inbound transport updates into command and callback
// handler calls. Handlers run on a small worker pool under a supervisor and
// pass through the auth gate plus the middleware chain.
package router

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "pagewatch/internal/runtime/supervisor"
	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
	"pagewatch/pkg/tgui"
)

// Access decides who may run a command or press a button.
type Access int

const (
	// AccessAuthorized admits owners, sudo users and authorized chats.
	AccessAuthorized Access = iota
	// AccessPublic skips the gate entirely.
	AccessPublic
	AccessOwnerOnly
)

const (
	ReplyUnknown      = "❓ Unknown command. Try /help"
	ReplyUnauthorized = "❌ Authorization failed!"
	ReplyOwnerOnly    = "❌ Owner only"
	ReplyBusy         = "⏳ Busy, try again"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

// Authorizer is satisfied by auth.Checker.
type Authorizer interface {
	IsOwner(userID int64) bool
	Allowed(ctx context.Context, msg *kit.Message) bool
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends plain text back to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (r *Request) ReplyHTML(ctx context.Context, text string, markup any) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup})
	return err
}

type Config struct {
	Workers  int
	QueueCap int
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	auth    Authorizer
	cfg     Config

	mu    sync.RWMutex
	cmds  map[string]*Command
	order []Command

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(cfg Config, adapter kit.Adapter, auth Authorizer, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(2, runtime.NumCPU())
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 256
	}
	return &Router{
		log:       log,
		adapter:   adapter,
		auth:      auth,
		cfg:       cfg,
		cmds:      map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		jobs:      make(chan func(), cfg.QueueCap),
	}
}

// Supervisor returns the dispatcher's supervisor, nil when not running.
func (m *Router) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

// SetRegistry replaces the command and callback tables and refreshes the
// client-side command menu in the background.
func (m *Router) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	table := map[string]*Command{}
	order := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		table[name] = &cc
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.ContainsAny(a, " \t") {
				continue
			}
			if _, taken := table[a]; !taken {
				table[a] = &cc
			}
		}
		order = append(order, cc)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].Name < order[j].Name })

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		if r.Scope == "" || r.Action == "" || r.Handle == nil {
			continue
		}
		if cb[r.Scope] == nil {
			cb[r.Scope] = map[string]CallbackRoute{}
		}
		cb[r.Scope][r.Action] = r
	}

	m.mu.Lock()
	m.cmds, m.order = table, order
	m.mu.Unlock()
	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := buildMenu(order)
	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, menu); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
	}()
}

// Commands returns the registered commands sorted by name.
func (m *Router) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Command(nil), m.order...)
}

// DispatchLoop consumes updates until ctx is done or the channel closes.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup, m.running = sup, true
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", m.cfg.Workers), logx.Int("queue_cap", cap(m.jobs)))

	for i := 0; i < m.cfg.Workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), m.worker,
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		m.runMu.Lock()
		m.running = false
		m.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(sup.Context(), up)
		}
	}
}

func (m *Router) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			job()
		}
	}
}

func (m *Router) enqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

// ParseCommand splits "/cmd@bot a b" into ("cmd", [a b]). ok is false for
// anything that is not a command.
func ParseCommand(text string) (name string, args []string, ok bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil, false
	}
	name = strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}

func (m *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd := m.cmds[name]
	m.mu.RUnlock()
	if cmd == nil {
		m.reply(ctx, chat, ReplyUnknown)
		return
	}

	switch cmd.Access {
	case AccessOwnerOnly:
		if msg.IsChannel || !m.isOwner(msg.FromID) {
			m.reply(ctx, chat, ReplyOwnerOnly)
			return
		}
	case AccessAuthorized:
		if m.auth != nil && !m.auth.Allowed(ctx, msg) {
			m.reply(ctx, chat, ReplyUnauthorized)
			return
		}
	}

	req := m.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Args = args
	final := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.enqueue(func() { _ = final(ctx, req) }) {
		m.reply(ctx, chat, ReplyBusy)
	}
}

func (m *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}
	m.cbMu.RLock()
	route, found := m.callbacks[scope][action]
	m.cbMu.RUnlock()
	if !found {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	switch route.Access {
	case AccessOwnerOnly:
		if !m.isOwner(cb.FromID) {
			_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
			return
		}
	case AccessAuthorized:
		probe := &kit.Message{ChatID: cb.ChatID, ThreadID: cb.ThreadID, FromID: cb.FromID}
		if m.auth != nil && !m.auth.Allowed(ctx, probe) {
			_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
			return
		}
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := m.newRequest(up, chat, cb.FromID, "cb:"+scope+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
	)
	if !m.enqueue(func() {
		_ = final(ctx, req)
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *Router) newRequest(up kit.Update, chat kit.ChatTarget, fromID int64, command string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  fromID,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", command),
		),
	}
}

func (m *Router) isOwner(id int64) bool {
	return m.auth != nil && id != 0 && m.auth.IsOwner(id)
}

func (m *Router) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := m.adapter.SendText(ctx, to, text, nil); err != nil {
		m.log.Debug("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
