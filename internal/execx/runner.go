// Package execx runs the external WireGuard tools with bounded timeouts and
// maps their failures onto apperr kinds.
package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"wgprov/internal/apperr"
)

// Runner executes one command and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, stdin string, name string, args ...string) (string, error)
}

// Exec — Runner поверх os/exec.
type Exec struct {
	Timeout time.Duration
	// Kind used for non-zero exits and missing binaries.
	FailKind apperr.Kind
}

func (e Exec) Run(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	failKind := e.FailKind
	if failKind == "" {
		failKind = apperr.KindInterfaceToolFailed
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	line := commandLine(name, args)
	switch {
	case err == nil:
		return strings.TrimSpace(stdout.String()), nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if failKind == apperr.KindInterfaceToolFailed {
			return "", apperr.Wrap(apperr.KindInterfaceToolTimeout, ctx.Err(), "%s", line)
		}
		return "", apperr.Wrap(failKind, ctx.Err(), "%s timed out", line)
	case errors.Is(err, exec.ErrNotFound):
		return "", apperr.Wrap(failKind, err, "%s", line)
	default:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", apperr.Wrap(failKind, errors.New(msg), "%s: %v", line, err)
		}
		return "", apperr.Wrap(failKind, err, "%s", line)
	}
}

// commandLine — для сообщений об ошибках. Приватные ключи идут только через stdin.
func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
