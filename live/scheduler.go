package live

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// =============================================================================
// CLOCK & SCHEDULER
// =============================================================================

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Scheduler runs functions periodically. Stop cancels every registered task;
// a stopped scheduler may be reused after registering tasks again.
type Scheduler interface {
	Every(d time.Duration, fn func()) error
	Start()
	Stop()
}

// CronScheduler runs tasks on a robfig/cron instance. Each run happens on its
// own goroutine, and a task still running when its next slot comes is skipped.
type CronScheduler struct {
	mu   sync.Mutex
	cron *cron.Cron
}

var _ Scheduler = (*CronScheduler)(nil)

// NewCronScheduler creates a scheduler logging through logger (nil = stdout).
func NewCronScheduler(logger cron.Logger) *CronScheduler {
	if logger == nil {
		logger = cron.PrintfLogger(log.New(os.Stdout, "[Live] ", log.LstdFlags))
	}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)
	return &CronScheduler{cron: c}
}

// Every registers fn to run every d. cron resolves intervals to whole
// seconds, so d must be at least one second.
func (s *CronScheduler) Every(d time.Duration, fn func()) error {
	if d < time.Second {
		return fmt.Errorf("interval %v below one second", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Schedule(cron.Every(d), cron.FuncJob(fn))
	return nil
}

func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop removes every task and waits for running ones to finish. It must not
// be called from inside a task.
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.cron.Entries() {
		s.cron.Remove(e.ID)
	}
}

// =============================================================================
// MANUAL CLOCK & SCHEDULER (deterministic tests, simulations)
// =============================================================================

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type manualTask struct {
	every time.Duration
	next  time.Time
	fn    func()
}

// ManualScheduler fires tasks synchronously as its clock is advanced.
type ManualScheduler struct {
	mu      sync.Mutex
	clock   *ManualClock
	tasks   []*manualTask
	running bool
}

var _ Scheduler = (*ManualScheduler)(nil)

func NewManualScheduler(clock *ManualClock) *ManualScheduler {
	return &ManualScheduler{clock: clock}
}

func (s *ManualScheduler) Every(d time.Duration, fn func()) error {
	if d <= 0 {
		return fmt.Errorf("interval %v must be positive", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{every: d, fn: fn}
	if s.running {
		t.next = s.clock.Now().Add(d)
	}
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *ManualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	now := s.clock.Now()
	for _, t := range s.tasks {
		t.next = now.Add(t.every)
	}
}

func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.tasks = nil
}

// Tasks returns the number of registered tasks.
func (s *ManualScheduler) Tasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance moves the clock forward by d, firing every task that comes due in
// time order. Tasks due at the same instant fire in registration order.
func (s *ManualScheduler) Advance(d time.Duration) {
	target := s.clock.Now().Add(d)
	for {
		s.mu.Lock()
		due := s.nextDueLocked(target)
		if due == nil {
			s.mu.Unlock()
			break
		}
		s.clock.Set(due.next)
		due.next = due.next.Add(due.every)
		fn := due.fn
		s.mu.Unlock()

		fn()
	}
	s.clock.Set(target)
}

func (s *ManualScheduler) nextDueLocked(target time.Time) *manualTask {
	if !s.running {
		return nil
	}
	var due *manualTask
	for _, t := range s.tasks {
		if t.next.After(target) {
			continue
		}
		if due == nil || t.next.Before(due.next) {
			due = t
		}
	}
	return due
}
