// Package ipc implements the file-backed rendezvous between the
// processor and its control front (C8): status.json published on a
// cadence, command.json polled and consumed at most once, both written
// via temp-file-plus-rename for atomicity.
package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Command names the processor accepts over command.json (§4.8).
type Command string

const (
	CommandStart           Command = "Start"
	CommandStop            Command = "Stop"
	CommandRestart         Command = "Restart"
	CommandGetStatus       Command = "GetStatus"
	CommandEnableTestMode  Command = "EnableTestMode"
	CommandDisableTestMode Command = "DisableTestMode"
)

// ProcessCommand is the payload control front writes to command.json.
type ProcessCommand struct {
	Command   Command   `json:"command"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// ProcessStatus is published by the processor and read by the control
// front (§3, §4.8).
type ProcessStatus struct {
	IsRunning        bool              `json:"isRunning"`
	IsProcessing     bool              `json:"isProcessing"`
	MessagesProcessed int64            `json:"messagesProcessed"`
	MessagesFailed   int64             `json:"messagesFailed"`
	MessagesPending  int64             `json:"messagesPending"`
	LastProcessedAt  time.Time         `json:"lastProcessedAt"`
	StatusUpdatedAt  time.Time         `json:"statusUpdatedAt"`
	Status           string            `json:"status"` // "Running" | "Stopped" | "Processing" | "Restarting"
	TestModeEnabled  bool              `json:"testModeEnabled"`
	Metadata         map[string]string `json:"metadata"`
}

const (
	statusFileName  = "status.json"
	commandFileName = "command.json"
)

// Channel is the file-rendezvous over a single communication directory.
// Multiple processor instances sharing one directory are not
// supported — the single-writer invariant is the caller's
// responsibility (§4.8).
type Channel struct {
	dir             string
	lastStatusAt    time.Time
}

// New builds a Channel rooted at dir, creating it if absent.
func New(dir string) (*Channel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ipc: failed to create communication directory: %w", err)
	}
	return &Channel{dir: dir}, nil
}

func (c *Channel) statusPath() string  { return filepath.Join(c.dir, statusFileName) }
func (c *Channel) commandPath() string { return filepath.Join(c.dir, commandFileName) }

// PublishStatus writes status atomically (temp file + rename) and
// enforces the monotone statusUpdatedAt invariant (§3 invariant v):
// a clock that runs backward is clamped forward rather than regressing
// the published value.
func (c *Channel) PublishStatus(status ProcessStatus) error {
	if !c.lastStatusAt.IsZero() && status.StatusUpdatedAt.Before(c.lastStatusAt) {
		status.StatusUpdatedAt = c.lastStatusAt
	}
	c.lastStatusAt = status.StatusUpdatedAt

	return atomicWriteJSON(c.statusPath(), status)
}

// ReadStatus reads the most recently published status, or an error if
// status.json does not yet exist.
func ReadStatus(dir string) (*ProcessStatus, error) {
	data, err := os.ReadFile(filepath.Join(dir, statusFileName))
	if err != nil {
		return nil, err
	}
	var status ProcessStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("ipc: failed to parse status.json: %w", err)
	}
	return &status, nil
}

// ReadStatus reads the channel's own communication directory, for
// callers (the control front) that only ever read one channel's
// status.
func (c *Channel) ReadStatus() (*ProcessStatus, error) {
	return ReadStatus(c.dir)
}

// IsLive reports whether a processor publishing at the given
// statusUpdateInterval is still alive (§4.8): status.json exists and
// now - statusUpdatedAt <= 3 * interval.
func IsLive(status *ProcessStatus, interval time.Duration, now time.Time) bool {
	if status == nil {
		return false
	}
	return now.Sub(status.StatusUpdatedAt) <= 3*interval
}

// PollCommand reads and consumes at most one pending command. A
// command is consumed by renaming command.json to a .processed
// sibling, guaranteeing at-most-once application even if the processor
// crashes mid-handling (§4.8). Returns (nil, nil) when no command is
// pending.
func (c *Channel) PollCommand() (*ProcessCommand, error) {
	path := c.commandPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ipc: failed to read command.json: %w", err)
	}

	processedPath := path + ".processed"
	if err := os.Rename(path, processedPath); err != nil {
		if os.IsNotExist(err) {
			// Another reader (should not happen under the single-writer
			// invariant, but defends against a racing manual rename) won
			// the rename; treat as no command pending.
			return nil, nil
		}
		return nil, fmt.Errorf("ipc: failed to consume command.json: %w", err)
	}

	var cmd ProcessCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("ipc: failed to parse command.json: %w", err)
	}
	return &cmd, nil
}

// WriteCommand is used by the control front to issue a command. It is
// exported here so both sides of the rendezvous share one atomic-write
// implementation.
func (c *Channel) WriteCommand(cmd ProcessCommand) error {
	return atomicWriteJSON(c.commandPath(), cmd)
}

// atomicWriteJSON serialises v and writes it via temp-file-plus-rename
// so readers never observe a partial write (§4.8).
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("ipc: failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ipc: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: failed to rename into place: %w", err)
	}
	return nil
}
