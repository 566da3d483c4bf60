// Package audit records who did what to which peer. Writes are
// fire-and-forget: a failing audit store is logged and never fails the
// operation being audited.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wgprov/internal/logs"
	"wgprov/internal/models"
)

type Sink interface {
	Record(actor, action, target string, details map[string]any)
}

type Writer interface {
	Create(ctx context.Context, e *models.AuditLog) error
}

// Recorder пишет записи в фоне.
type Recorder struct {
	w       Writer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRecorder(w Writer, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{w: w, timeout: timeout}
}

func (r *Recorder) Record(actor, action, target string, details map[string]any) {
	e := &models.AuditLog{Actor: actor, Action: action, Target: target, Details: details}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.w.Create(ctx, e); err != nil {
			logs.Logger.WithError(err).WithFields(logrus.Fields{
				"actor":  actor,
				"action": action,
				"target": target,
			}).Warn("audit write failed")
		}
	}()
}

// Flush waits for in-flight writes.
func (r *Recorder) Flush() { r.wg.Wait() }

// Discard drops every record.
type Discard struct{}

func (Discard) Record(string, string, string, map[string]any) {}
