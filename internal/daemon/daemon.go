package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lydakis/zowex/internal/commands"
	"github.com/lydakis/zowex/internal/config"
	"github.com/lydakis/zowex/internal/ipc"
	"github.com/lydakis/zowex/internal/logging"
	"github.com/lydakis/zowex/internal/paths"
	"github.com/lydakis/zowex/internal/project"
)

var (
	loadConfigFn = config.Load
	nowFn        = time.Now
)

// Daemon holds everything one daemon process shares across sessions.
type Daemon struct {
	cfg        *config.Config
	logger     *zap.Logger
	version    string
	socketPath string
	startedAt  time.Time

	locator    *project.Locator
	dispatcher *commands.Dispatcher
	idle       *IdleTracker
	srv        *ipc.Server

	closeOnce sync.Once
}

// New builds a daemon from a validated config. Call Start to listen.
func New(cfg *config.Config, logger *zap.Logger, version string) *Daemon {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		version:    version,
		socketPath: cfg.SocketPath(),
		startedAt:  nowFn(),
		locator:    project.NewLocator(zoweHome(), cfg.Daemon.ProjectCacheTTLDuration()),
		idle:       NewIdleTracker(cfg.Daemon.IdleTimeoutDuration()),
	}
	d.dispatcher = commands.NewDispatcher(d, version, logger.Named("commands"))
	d.srv = ipc.NewServer(d.socketPath, d.dispatcher,
		ipc.WithLogger(logger),
		ipc.WithShutdownOnControl(cfg.Daemon.ShutdownArmed()),
		ipc.WithSessionHooks(d.idle.Begin, d.idle.End),
	)
	return d
}

// Dispatcher returns the command entry point so callers can register
// additional commands before Start.
func (d *Daemon) Dispatcher() *commands.Dispatcher {
	return d.dispatcher
}

// Start listens on the daemon socket and arms the idle timer.
func (d *Daemon) Start() error {
	if err := d.srv.Start(); err != nil {
		return err
	}
	d.idle.Start()
	return nil
}

// Wait blocks until ctx ends, a client requests shutdown, or the daemon has
// been idle for too long. It returns the reason.
func (d *Daemon) Wait(ctx context.Context) string {
	select {
	case <-ctx.Done():
		return "signal"
	case <-d.srv.Done():
		return "client requested shutdown"
	case <-d.idle.Done():
		return "idle timeout"
	}
}

// Close stops accepting clients and tears down live sessions.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		d.idle.Stop()
		d.srv.Stop()
		d.locator.Close()
	})
}

// Status implements commands.Runtime.
func (d *Daemon) Status() commands.Status {
	return commands.Status{
		PID:             os.Getpid(),
		Version:         d.version,
		Socket:          d.socketPath,
		StartedAt:       d.startedAt,
		Uptime:          nowFn().Sub(d.startedAt).Round(time.Second).String(),
		Sessions:        d.srv.Sessions(),
		ShutdownOnCtrlC: d.cfg.Daemon.ShutdownArmed(),
	}
}

// FindProject implements commands.Runtime.
func (d *Daemon) FindProject(cwd string) (*project.Result, error) {
	return d.locator.Find(cwd)
}

// Run starts the daemon process. Called when argv[1] == "__daemon".
func Run(version string) error {
	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		return fmt.Errorf("creating runtime dir: %w", err)
	}

	cfg, err := loadConfigFn()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verr := config.Validate(cfg); verr != nil {
		return fmt.Errorf("invalid config: %w", verr)
	}

	logger, closeLog, err := logging.Open(cfg.Daemon.LogPath(), cfg.Daemon.Level())
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer closeLog()

	d := New(cfg, logger, version)
	if err := paths.EnsureDir(filepath.Dir(d.socketPath)); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}
	if err := d.Start(); err != nil {
		logger.Error("daemon failed to start", zap.Error(err))
		return err
	}
	defer d.Close()

	if err := writePID(paths.PidPath()); err != nil {
		logger.Warn("writing pid file", zap.Error(err))
	}
	defer os.Remove(paths.PidPath())

	logger.Info("daemon started",
		zap.String("version", version),
		zap.Int("pid", os.Getpid()),
		zap.String("socket", d.socketPath),
		zap.Duration("idle_timeout", cfg.Daemon.IdleTimeoutDuration()),
		zap.Bool("shutdown_on_ctrl_c", cfg.Daemon.ShutdownArmed()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reason := d.Wait(ctx)
	logger.Info("daemon shutting down", zap.String("reason", reason))
	return nil
}

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600)
}

// zoweHome returns the global team configuration directory.
func zoweHome() string {
	if dir := os.Getenv("ZOWE_CLI_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".zowe")
}
