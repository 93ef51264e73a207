package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Command is a mutating request that could not reach the server. It is
// replayed later with the same idempotency key.
type Command struct {
	Owner          string         `json:"owner"`
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".yieldgotchi")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	if commands == nil {
		commands = []Command{}
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Drain replays every queued command in order through send. Commands for
// which send reports done are removed; the first failure stops the drain and
// keeps that command and everything after it queued.
func Drain(send func(Command) (done bool, err error)) (int, error) {
	commands, err := Load()
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, cmd := range commands {
		done, err := send(cmd)
		if err != nil || !done {
			if saveErr := Save(commands[sent:]); saveErr != nil {
				return sent, saveErr
			}
			return sent, err
		}
		sent++
	}
	return sent, Save(nil)
}
