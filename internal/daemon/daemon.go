package daemon

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/internal/config"
	"github.com/lbatista/gambit/internal/logger"
	"github.com/lbatista/gambit/pkg/agent"
	"github.com/lbatista/gambit/pkg/approval"
	"github.com/lbatista/gambit/pkg/audit"
	"github.com/lbatista/gambit/pkg/executor"
	"github.com/lbatista/gambit/pkg/gateway"
	"github.com/lbatista/gambit/pkg/resilience"
	"github.com/lbatista/gambit/pkg/schema"
	"github.com/lbatista/gambit/pkg/security"
	"github.com/lbatista/gambit/pkg/session"
)

// Daemon wires the engine together: gateway transport, session table,
// schema registry, approval workflow, resilience layer, and the per
// session pipelines that turn model output into executed tool calls.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	registry  *schema.Registry
	trail     *audit.Store
	breakers  *resilience.BreakerRegistry
	retry     resilience.RetryConfig
	execRetry resilience.RetryConfig
	commands  *security.CommandFilter
	sessions  *session.Manager
	approvals *approval.Manager
	remote    *executor.Remote
	gateway   *gateway.Server
	router    *gateway.Router
	ai        *agent.Client

	mu        sync.Mutex
	pipelines map[string]*pipeline

	running   bool
	startTime time.Time
}

// New creates a daemon instance from configuration.
func New(cfg *config.Config, lg *logger.Logger) (*Daemon, error) {
	trail, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	d := &Daemon{
		config:   cfg,
		logger:   lg,
		registry: schema.Default(),
		trail:    trail,
		breakers: resilience.NewBreakerRegistry(resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			Cooldown:         time.Duration(cfg.Resilience.CooldownSeconds) * time.Second,
			CooldownGrowth:   cfg.Resilience.CooldownGrowth,
		}),
		retry: resilience.RetryConfig{
			MaxAttempts: cfg.Resilience.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Resilience.BaseDelayMillis) * time.Millisecond,
			Jitter:      cfg.Resilience.Jitter,
		},
		// Tool calls are not idempotent, so execution defaults to a single
		// attempt; the bound is configurable for tools known to be safe.
		execRetry: resilience.RetryConfig{
			MaxAttempts: cfg.Resilience.ExecMaxAttempts,
			BaseDelay:   time.Duration(cfg.Resilience.BaseDelayMillis) * time.Millisecond,
			Jitter:      cfg.Resilience.Jitter,
		},
		commands: security.NewCommandFilter(security.CommandFilterConfig{
			Allow: cfg.Security.AllowedCommands,
			Deny:  cfg.Security.DeniedCommands,
		}),
		pipelines: make(map[string]*pipeline),
	}

	d.sessions = session.NewManager(session.ManagerConfig{
		MaxSessions: cfg.Sessions.Max,
		IdleAfter:   time.Duration(cfg.Sessions.IdleAfterMinutes) * time.Minute,
		CloseAfter:  time.Duration(cfg.Sessions.CloseAfterMinutes) * time.Minute,
		Trail:       trail,
	})

	d.approvals = approval.NewManager(approval.ManagerConfig{
		Registry: d.registry,
		Policy: approval.Policy{
			AutoApproveReads: cfg.Approval.AutoApproveReads,
			AutoApprove:      cfg.Approval.AutoApprove,
			AlwaysAsk:        cfg.Approval.AlwaysAsk,
			Block:            cfg.Approval.Block,
		},
		Timeout:    time.Duration(cfg.Approval.TimeoutMinutes) * time.Minute,
		Revalidate: d.revalidate,
		Notify:     d.notifyApproval,
		Trail:      trail,
	})

	d.sessions.AddCloseHook(func(sessionID, reason string) {
		d.approvals.CancelSession(sessionID, reason)
		d.dropPipeline(sessionID)
	})

	d.router = gateway.NewRouter()
	d.gateway, err = gateway.NewServer(gateway.Config{
		Port:         cfg.Gateway.Port,
		Router:       d.router,
		OpenSession:  d.openSession,
		CloseSession: d.sessions.Close,
	})
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	d.remote = executor.NewRemote(d.gateway, time.Duration(cfg.Gateway.ExecTimeoutSeconds)*time.Second)

	if cfg.AI.APIKey != "" {
		provider, err := agent.NewProvider(cfg.AI.Provider, cfg.AI.APIKey)
		if err != nil {
			trail.Close()
			return nil, err
		}
		d.ai = agent.NewClient(provider, d.breakers, d.retry)
	}

	if err := d.registerHandlers(); err != nil {
		trail.Close()
		return nil, err
	}

	return d, nil
}

// Start brings the daemon up: gateway listening, idle sweep running.
func (d *Daemon) Start() error {
	if err := d.gateway.Start(); err != nil {
		return err
	}
	if err := d.sessions.StartSweeper(); err != nil {
		return err
	}
	d.running = true
	d.startTime = time.Now()
	log.Info().Int("port", d.config.Gateway.Port).Msg("Daemon started")
	return nil
}

// Stop shuts the daemon down: sessions closed, gateway stopped, audit
// store flushed.
func (d *Daemon) Stop() error {
	log.Info().Msg("Stopping daemon")
	d.sessions.StopSweeper()
	for _, s := range d.sessions.List() {
		if err := d.sessions.Close(s.ID, "daemon shutdown"); err != nil {
			log.Warn().Str("session", s.ID).Err(err).Msg("Failed to close session on shutdown")
		}
	}
	if err := d.gateway.Stop(); err != nil {
		return err
	}
	if err := d.trail.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close audit store")
	}
	d.running = false
	return nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	return d.Stop()
}

// openSession creates a session plus its pipeline.
func (d *Daemon) openSession(workspaceRoot string) (string, error) {
	if workspaceRoot == "" {
		workspaceRoot = d.config.WorkspacePath
	}

	sess, err := d.sessions.Create(workspaceRoot)
	if err != nil {
		return "", err
	}

	p, err := d.newPipeline(sess)
	if err != nil {
		d.sessions.Close(sess.ID, "pipeline setup failed")
		return "", err
	}

	d.mu.Lock()
	d.pipelines[sess.ID] = p
	d.mu.Unlock()
	return sess.ID, nil
}

func (d *Daemon) pipeline(sessionID string) (*pipeline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[sessionID]
	return p, ok
}

func (d *Daemon) dropPipeline(sessionID string) {
	d.mu.Lock()
	p, ok := d.pipelines[sessionID]
	if ok {
		delete(d.pipelines, sessionID)
	}
	d.mu.Unlock()
	if ok {
		p.stop()
	}
	d.router.DropSession(sessionID)
}
