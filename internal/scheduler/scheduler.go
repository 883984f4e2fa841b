package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic background task (reconciliation, reaping,
// reminders). Run must be safe to call repeatedly and respect ctx.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs the background jobs on a shared cron. Cancellation is
// cooperative: a running pass finishes its bounded context, nothing is
// hard-killed mid-call.
type Scheduler struct {
	cron       *cron.Cron
	baseCtx    context.Context
	jobTimeout time.Duration
	mu         sync.Mutex
	running    bool
}

func New(ctx context.Context, jobTimeout time.Duration) *Scheduler {
	if jobTimeout <= 0 {
		jobTimeout = 4 * time.Minute
	}
	return &Scheduler{
		cron:       cron.New(),
		baseCtx:    ctx,
		jobTimeout: jobTimeout,
	}
}

// AddEvery schedules a job at a fixed interval.
func (s *Scheduler) AddEvery(interval time.Duration, job Job) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.wrap(job))
	return err
}

// AddDaily schedules a job once a day at the given hour.
func (s *Scheduler) AddDaily(hour int, job Job) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("0 %d * * *", hour), s.wrap(job))
	return err
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		if s.baseCtx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.baseCtx, s.jobTimeout)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			log.Printf("Scheduler: %s run failed: %v", job.Name(), err)
		}
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	log.Printf("Scheduler started with %d jobs", len(s.cron.Entries()))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	log.Println("Stopping scheduler...")
	<-s.cron.Stop().Done()
	log.Println("Scheduler stopped")
}
