package session

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vellum-wm/vellum/internal/engine"
	"golang.org/x/sys/unix"
)

var logger *log.Logger

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "session",
	})
}

// SetLogLevel adjusts the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// ErrAlreadyRunning reports a live daemon on the target socket.
var ErrAlreadyRunning = errors.New("session: daemon already running")

// ErrNotRunning reports that no daemon answered on the socket.
var ErrNotRunning = errors.New("session: daemon not running")

// callTimeout bounds one engine round-trip. The engine loop never blocks
// longer than an AX batch, so a miss here means the loop is gone.
const callTimeout = 30 * time.Second

// DaemonConfig configures a Daemon.
type DaemonConfig struct {
	Version    string
	SocketPath string
	PIDPath    string
	// OnStop runs after a stop request is acknowledged; the run command
	// cancels its context here.
	OnStop func()
}

// Daemon serves the control socket in front of an engine. All engine access
// goes through Post, so the daemon's connection goroutines never touch
// engine state directly.
type Daemon struct {
	eng *engine.Engine
	cfg DaemonConfig

	listener net.Listener
	pidFile  *os.File
	handlers map[string]func(*Message) *Message

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDaemon builds a daemon over eng. Call Start to begin serving.
func NewDaemon(eng *engine.Engine, cfg DaemonConfig) *Daemon {
	d := &Daemon{eng: eng, cfg: cfg}
	d.handlers = map[string]func(*Message) *Message{
		MsgState:      d.handleState,
		MsgLogs:       d.handleLogs,
		MsgSwitch:     d.handleSwitch,
		MsgMoveTo:     d.handleMoveTo,
		MsgFocus:      d.handleFocus,
		MsgSwap:       d.handleSwap,
		MsgSlurp:      func(*Message) *Message { return d.post(func() { eng.Slurp() }) },
		MsgBarf:       func(*Message) *Message { return d.post(func() { eng.Barf() }) },
		MsgRefresh:    func(*Message) *Message { return d.post(func() { eng.RefreshWindows() }) },
		MsgRetile:     func(*Message) *Message { return d.post(func() { eng.Retile() }) },
		MsgJump:       d.handleJump,
		MsgToggleJump: func(*Message) *Message { return d.post(func() { eng.ToggleJump() }) },
		MsgStop:       d.handleStop,
	}
	return d
}

// Start claims the pid file, binds the socket, and begins accepting. It
// returns ErrAlreadyRunning when another daemon holds either.
func (d *Daemon) Start() error {
	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	if err := d.claimPIDFile(); err != nil {
		return err
	}

	if _, err := os.Stat(d.cfg.SocketPath); err == nil {
		if Ping(d.cfg.SocketPath) {
			d.releasePIDFile()
			return ErrAlreadyRunning
		}
		// Stale socket from an unclean shutdown.
		if err := os.Remove(d.cfg.SocketPath); err != nil {
			d.releasePIDFile()
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		d.releasePIDFile()
		return fmt.Errorf("listen on %s: %w", d.cfg.SocketPath, err)
	}
	if err := os.Chmod(d.cfg.SocketPath, 0o700); err != nil {
		_ = listener.Close()
		d.releasePIDFile()
		return fmt.Errorf("chmod socket: %w", err)
	}
	d.listener = listener

	d.wg.Add(1)
	go d.acceptLoop()
	logger.Info("listening", "socket", d.cfg.SocketPath)
	return nil
}

// Stop closes the listener and waits for connection goroutines to drain.
// Safe to call more than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	if d.listener != nil {
		_ = d.listener.Close()
	}
	d.wg.Wait()
	_ = os.Remove(d.cfg.SocketPath)
	d.releasePIDFile()
	logger.Info("stopped")
}

// claimPIDFile writes our pid under an exclusive flock. A held lock means a
// live daemon; a stale file from a crash is overwritten because the lock
// died with its holder.
func (d *Daemon) claimPIDFile() error {
	if d.cfg.PIDPath == "" {
		return nil
	}
	f, err := os.OpenFile(d.cfg.PIDPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open pid file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("lock pid file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = f.Close()
		return fmt.Errorf("write pid file: %w", err)
	}
	d.pidFile = f
	return nil
}

func (d *Daemon) releasePIDFile() {
	if d.pidFile == nil {
		return
	}
	_ = unix.Flock(int(d.pidFile.Fd()), unix.LOCK_UN)
	_ = d.pidFile.Close()
	_ = os.Remove(d.cfg.PIDPath)
	d.pidFile = nil
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			d.mu.Lock()
			stopped := d.stopped
			d.mu.Unlock()
			if !stopped {
				logger.Warn("accept failed", "err", err)
			}
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleConnection(conn)
		}()
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			// EOF and closed-connection errors are the normal end of a
			// client; anything else gets one error reply best-effort.
			return
		}
		reply := d.dispatch(msg)
		if err := WriteMessage(conn, reply); err != nil {
			logger.Warn("write reply failed", "err", err)
			return
		}
		if msg.Type == MsgStop {
			return
		}
	}
}

func (d *Daemon) dispatch(msg *Message) *Message {
	if msg.Type == MsgHello {
		return d.handleHello(msg)
	}
	h, ok := d.handlers[msg.Type]
	if !ok {
		return errorMessage("unknown request %q", msg.Type)
	}
	return h(msg)
}

// post runs fn on the engine goroutine and waits for it.
func (d *Daemon) post(fn func()) *Message {
	done := make(chan struct{})
	d.eng.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return okMessage
	case <-time.After(callTimeout):
		return errorMessage("engine did not respond")
	}
}

func (d *Daemon) handleHello(msg *Message) *Message {
	var hello HelloPayload
	if err := msg.Unmarshal(&hello); err != nil {
		return errorMessage("%v", err)
	}
	logger.Debug("client connected", "id", hello.ClientID)
	reply, err := NewMessage(MsgHello, HelloReply{
		Version: d.cfg.Version,
		PID:     os.Getpid(),
	})
	if err != nil {
		return errorMessage("%v", err)
	}
	return reply
}

func (d *Daemon) handleState(*Message) *Message {
	var report engine.StateReport
	if r := d.post(func() { report = d.eng.Report() }); r.Type == MsgError {
		return r
	}
	reply, err := NewMessage(MsgState, report)
	if err != nil {
		return errorMessage("%v", err)
	}
	return reply
}

func (d *Daemon) handleLogs(*Message) *Message {
	var entries []engine.LogEntry
	if r := d.post(func() { entries = d.eng.Logs() }); r.Type == MsgError {
		return r
	}
	reply, err := NewMessage(MsgLogs, LogsReply{Entries: entries})
	if err != nil {
		return errorMessage("%v", err)
	}
	return reply
}

func (d *Daemon) handleSwitch(msg *Message) *Message {
	var p WorkspacePayload
	if err := msg.Unmarshal(&p); err != nil {
		return errorMessage("%v", err)
	}
	return d.post(func() { d.eng.SwitchTo(p.Workspace) })
}

func (d *Daemon) handleMoveTo(msg *Message) *Message {
	var p WorkspacePayload
	if err := msg.Unmarshal(&p); err != nil {
		return errorMessage("%v", err)
	}
	return d.post(func() { d.eng.MoveWindowTo(p.Workspace) })
}

func (d *Daemon) handleFocus(msg *Message) *Message {
	dir, errMsg := parseDirectionPayload(msg)
	if errMsg != nil {
		return errMsg
	}
	return d.post(func() { d.eng.FocusDirection(dir) })
}

func (d *Daemon) handleSwap(msg *Message) *Message {
	dir, errMsg := parseDirectionPayload(msg)
	if errMsg != nil {
		return errMsg
	}
	return d.post(func() { d.eng.SwapWindows(dir) })
}

func parseDirectionPayload(msg *Message) (engine.Direction, *Message) {
	var p DirectionPayload
	if err := msg.Unmarshal(&p); err != nil {
		return 0, errorMessage("%v", err)
	}
	dir, err := engine.ParseDirection(p.Direction)
	if err != nil {
		return 0, errorMessage("%v", err)
	}
	return dir, nil
}

func (d *Daemon) handleJump(msg *Message) *Message {
	var p JumpPayload
	if err := msg.Unmarshal(&p); err != nil {
		return errorMessage("%v", err)
	}
	return d.post(func() { d.eng.JumpToApp(p.Category) })
}

func (d *Daemon) handleStop(*Message) *Message {
	logger.Info("stop requested")
	if d.cfg.OnStop != nil {
		// Deferred so the reply reaches the client before teardown.
		go d.cfg.OnStop()
	}
	return okMessage
}

// Ping reports whether a daemon answers on socketPath.
func Ping(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		return false
	}
	defer conn.Close()
	hello, err := NewMessage(MsgHello, HelloPayload{ClientID: "ping"})
	if err != nil {
		return false
	}
	if err := WriteMessage(conn, hello); err != nil {
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	reply, err := ReadMessage(conn)
	return err == nil && reply.Type == MsgHello
}
