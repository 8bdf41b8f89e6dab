// Package ops serves the operational HTTP endpoint: liveness, scheduled jobs,
// recent check events, goroutine supervisors and net/http/pprof.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pagewatch/internal/eventbus"
	rtsup "pagewatch/internal/runtime/supervisor"
	"pagewatch/internal/task/scheduler"
	logx "pagewatch/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Addr        string
	Token       string
	EventBuffer int

	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 100
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

// JobSource is satisfied by scheduler.Service.
type JobSource interface {
	Snapshot() scheduler.Snapshot
}

type Deps struct {
	Jobs JobSource
	Bus  eventbus.Bus
	// Supervisors returns the live supervisors by name; nil entries are skipped.
	Supervisors func() map[string]*rtsup.Supervisor
}

type Service struct {
	cfg    Config
	deps   Deps
	log    logx.Logger
	events *ring

	mu  sync.Mutex
	sup *rtsup.Supervisor
	srv *http.Server
	ln  net.Listener
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{cfg: cfg, deps: deps, log: log, events: newRing(cfg.EventBuffer)}
}

// ErrInsecureBind is returned for a non-loopback address without a token.
var ErrInsecureBind = errors.New("ops: non-loopback addr requires a token")

// Start binds the listener and serves until Stop. The event collector runs
// alongside under the same supervisor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	if s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		return ErrInsecureBind
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "ops"))), rtsup.WithCancelOnError(false))
	s.sup, s.srv, s.ln = sup, srv, ln

	if s.deps.Bus != nil {
		events, unsubscribe := s.deps.Bus.Subscribe(64)
		sup.Go0("ops.events", func(ctx context.Context) {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					s.events.add(e)
				}
			}
		})
	}
	sup.Go("ops.http", func(ctx context.Context) error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
			return nil
		}
		return err
	})
	s.log.Info("ops server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.ln = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	if werr := sup.Stop(ctx); werr != nil && err == nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}
	s.log.Info("ops server stopped")
	return err
}

// Record adds an event to the recent-events buffer directly.
func (s *Service) Record(e eventbus.Event) { s.events.add(e) }

// Handler builds the router. /healthz is open; everything else requires the
// token when one is configured.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.Token))
		r.Get("/jobs", s.handleJobs)
		r.Get("/events", s.handleEvents)
		r.Get("/runtime", s.handleRuntime)
		r.Mount("/debug", middleware.Profiler())
	})
	return r
}

func (s *Service) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Jobs == nil {
		writeJSON(w, http.StatusOK, scheduler.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Jobs.Snapshot())
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	list := s.events.list()
	if typ := r.URL.Query().Get("type"); typ != "" {
		kept := list[:0]
		for _, e := range list {
			if e.Type == typ {
				kept = append(kept, e)
			}
		}
		list = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

func (s *Service) handleRuntime(w http.ResponseWriter, _ *http.Request) {
	out := map[string]rtsup.Snapshot{}
	if s.deps.Supervisors != nil {
		for name, sup := range s.deps.Supervisors() {
			if sup != nil {
				out[name] = sup.Snapshot()
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// bearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
				}
			}
			if got != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
