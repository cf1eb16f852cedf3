package session

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/vellum-wm/vellum/internal/engine"
)

// Client is one connection to the control daemon. Not safe for concurrent
// use; callers that need parallelism open more clients.
type Client struct {
	conn     net.Conn
	clientID string

	// DaemonVersion and DaemonPID are filled by the hello exchange.
	DaemonVersion string
	DaemonPID     int
}

// Dial connects to the daemon at socketPath and performs the hello
// exchange. Returns ErrNotRunning when nothing listens there.
func Dial(socketPath, version string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, ErrNotRunning
	}
	c := &Client{conn: conn, clientID: uuid.NewString()}

	reply, err := c.roundTrip(MsgHello, HelloPayload{ClientID: c.clientID, Version: version})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	var hello HelloReply
	if err := reply.Unmarshal(&hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.DaemonVersion = hello.Version
	c.DaemonPID = hello.PID
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) roundTrip(msgType string, payload any) (*Message, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	if err := WriteMessage(c.conn, msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}
	reply, err := ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", msgType, err)
	}
	if reply.Type == MsgError {
		var ep ErrorPayload
		if uerr := reply.Unmarshal(&ep); uerr == nil {
			return nil, fmt.Errorf("daemon: %s", ep.Message)
		}
		return nil, fmt.Errorf("daemon: request %s failed", msgType)
	}
	return reply, nil
}

func (c *Client) command(msgType string, payload any) error {
	reply, err := c.roundTrip(msgType, payload)
	if err != nil {
		return err
	}
	if reply.Type != MsgOK {
		return fmt.Errorf("unexpected reply %q to %s", reply.Type, msgType)
	}
	return nil
}

// State fetches the engine state report.
func (c *Client) State() (engine.StateReport, error) {
	var report engine.StateReport
	reply, err := c.roundTrip(MsgState, nil)
	if err != nil {
		return report, err
	}
	if err := reply.Unmarshal(&report); err != nil {
		return report, err
	}
	return report, nil
}

// Logs fetches the engine's recent log entries.
func (c *Client) Logs() ([]engine.LogEntry, error) {
	reply, err := c.roundTrip(MsgLogs, nil)
	if err != nil {
		return nil, err
	}
	var logs LogsReply
	if err := reply.Unmarshal(&logs); err != nil {
		return nil, err
	}
	return logs.Entries, nil
}

// Switch switches to the named workspace.
func (c *Client) Switch(workspace string) error {
	return c.command(MsgSwitch, WorkspacePayload{Workspace: workspace})
}

// MoveTo moves the focused window to the named workspace.
func (c *Client) MoveTo(workspace string) error {
	return c.command(MsgMoveTo, WorkspacePayload{Workspace: workspace})
}

// Focus moves focus in a direction.
func (c *Client) Focus(direction string) error {
	return c.command(MsgFocus, DirectionPayload{Direction: direction})
}

// Swap swaps the focused window in a direction.
func (c *Client) Swap(direction string) error {
	return c.command(MsgSwap, DirectionPayload{Direction: direction})
}

// Slurp pulls the focused window into the previous column.
func (c *Client) Slurp() error { return c.command(MsgSlurp, nil) }

// Barf pushes the focused window out into a new column.
func (c *Client) Barf() error { return c.command(MsgBarf, nil) }

// Refresh rescans the live window set.
func (c *Client) Refresh() error { return c.command(MsgRefresh, nil) }

// Retile recomputes the active space's layout.
func (c *Client) Retile() error { return c.command(MsgRetile, nil) }

// Jump focuses the configured jump target for category.
func (c *Client) Jump(category string) error {
	return c.command(MsgJump, JumpPayload{Category: category})
}

// ToggleJump bounces back to the previous jump point.
func (c *Client) ToggleJump() error { return c.command(MsgToggleJump, nil) }

// Stop asks the daemon to shut down.
func (c *Client) Stop() error { return c.command(MsgStop, nil) }
