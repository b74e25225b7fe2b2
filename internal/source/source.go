// Package source reads the tracker endpoint list.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bt-tracker-checker/config"
)

// MinEndpoints is the smallest list the checker accepts.
const MinEndpoints = 2

// ErrTooFewEndpoints is returned when the list holds fewer than MinEndpoints entries.
var ErrTooFewEndpoints = errors.New("tracker list needs at least 2 endpoints")

// Load reads the endpoint list using the configured input method.
func Load(cfg config.InputConfig, stdin io.Reader) ([]string, error) {
	switch cfg.Method {
	case "file":
		return LoadFile(cfg.File, cfg.Dedupe)
	case "pipe", "":
		if stdin == nil {
			return nil, errors.New("pipe input selected but no stdin available")
		}
		return ParseList(stdin, cfg.Dedupe)
	default:
		return nil, fmt.Errorf("unknown input method %q", cfg.Method)
	}
}

// LoadFile reads the endpoint list from path.
func LoadFile(path string, dedupe bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker list: %w", err)
	}
	defer f.Close()
	return ParseList(f, dedupe)
}

// ParseList returns one endpoint per non-blank, non-comment line, in order.
func ParseList(r io.Reader, dedupe bool) ([]string, error) {
	var list []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if dedupe {
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracker list: %w", err)
	}

	if len(list) < MinEndpoints {
		return nil, fmt.Errorf("%w, got %d", ErrTooFewEndpoints, len(list))
	}
	return list, nil
}
