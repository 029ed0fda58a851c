package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchyard/internal/mirror"
)

// cronParser accepts standard 5-field cron expressions (minute, hour,
// dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a sync schedule expression at config time.
func ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("engine: schedule %q: %w", expr, err)
	}
	return nil
}

// Run starts the engine's background work: scheduled full passes and the
// debounced mirror watcher. It blocks until the context is cancelled,
// then waits for in-flight passes to finish their current issue work.
func (e *Engine) Run(ctx context.Context) error {
	var sched *cron.Cron
	if expr := e.cfg.Sync.Schedule; expr != "" {
		sched = cron.New(cron.WithParser(cronParser))
		_, err := sched.AddFunc(expr, func() {
			if _, err := e.SyncAll(ctx, false); err != nil {
				log.Printf("engine: scheduled pass: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("engine: schedule %q: %w", expr, err)
		}
		sched.Start()
		log.Printf("engine: scheduled full passes: %s", expr)
	}

	debouncer := mirror.NewDebouncer(e.cfg.Sync.Debounce(), func() {
		if _, err := e.SyncAll(ctx, false); err != nil {
			log.Printf("engine: mirror-triggered pass: %v", err)
		}
	})

	if e.watcher != nil {
		changes := e.watcher.Run(ctx)
		for range changes {
			debouncer.Trigger()
		}
	} else {
		<-ctx.Done()
	}

	if sched != nil {
		stopped := sched.Stop()
		<-stopped.Done()
	}
	debouncer.Cancel()
	e.wg.Wait()
	return ctx.Err()
}
