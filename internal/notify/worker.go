package notify

import (
	"context"
	"errors"
	"time"

	"refill-api-server/internal/logger"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// Source is the consuming side of a Queue.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*Envelope, error)
	Requeue(ctx context.Context, env Envelope) error
	DeadLetter(ctx context.Context, env Envelope) error
	WasSent(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string) (bool, error)
}

type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
	PollTimeout time.Duration
}

// Worker drains a Source and delivers each envelope with a Sender. Failed
// sends go back on the queue until MaxAttempts is reached.
type Worker struct {
	source Source
	sender Sender
	cfg    WorkerConfig
	log    *logger.Logger
}

func NewWorker(source Source, sender Sender, cfg WorkerConfig, log *logger.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{source: source, sender: sender, cfg: cfg, log: log.WithComponent("notify.worker")}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < w.cfg.Concurrency; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			w.loop(ctx, id)
		}(i)
	}
	for i := 0; i < w.cfg.Concurrency; i++ {
		<-done
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	w.log.Infow("worker started", "worker", id)
	for {
		if ctx.Err() != nil {
			w.log.Infow("worker stopped", "worker", id)
			return
		}
		env, err := w.source.Pop(ctx, w.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.log.Errorw("pop notification", "worker", id, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if env == nil {
			continue
		}
		w.Process(ctx, *env)
	}
}

// Process delivers one envelope and settles it.
func (w *Worker) Process(ctx context.Context, env Envelope) {
	log := w.log.With("id", env.ID, "to", env.To, "attempt", env.Attempts+1)

	if sent, err := w.source.WasSent(ctx, env.ID); err == nil && sent {
		log.Debugw("duplicate notification dropped")
		return
	}

	if err := w.sender.Send(ctx, env.To, env.Subject, env.HTML, env.Text); err != nil {
		env.Attempts++
		if env.Attempts >= w.cfg.MaxAttempts {
			log.Errorw("notification dead-lettered", "error", err)
			if dlErr := w.source.DeadLetter(ctx, env); dlErr != nil {
				log.Errorw("dead-letter notification", "error", dlErr)
			}
			return
		}
		log.Warnw("notification failed, requeueing", "error", err)
		if rqErr := w.source.Requeue(ctx, env); rqErr != nil {
			log.Errorw("requeue notification", "error", rqErr)
		}
		return
	}

	if _, err := w.source.MarkSent(ctx, env.ID); err != nil {
		log.Warnw("mark notification sent", "error", err)
	}
	log.Infow("notification sent", "subject", env.Subject)
}
