// Package scheduler arms the daily reminder check.
//
// The wall-clock time comes from the settings document (dailyPushTime);
// it is only a scheduling hint for this trigger, the reminder logic never
// looks at it. Saving new settings re-arms the trigger via Apply.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "renewd/pkg/logx"
)

type Config struct {
	Enabled   bool
	Timezone  string // IANA name; empty means UTC
	CheckTime string // "HH:MM"; empty means 09:00
}

// Job is the daily pass. It receives the tick's date in the scheduler's
// location.
type Job func(ctx context.Context, today time.Time)

type Service struct {
	log logx.Logger
	job Job

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	loc    *time.Location
	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, job: job, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.startLocked()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
}

// Apply re-arms the trigger with new settings. Safe to call whether or
// not the service is running; a stopped service just records the config.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := cfg != s.cfg
	s.cfg = cfg
	if !changed || s.runCtx == nil {
		return
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	if !s.cfg.Enabled {
		s.log.Info("daily check disabled")
		return
	}

	loc := time.UTC
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone; using UTC", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	s.loc = loc

	spec, err := CronSpec(s.cfg.CheckTime)
	if err != nil {
		s.log.Warn("invalid check time; using 09:00", logx.String("check_time", s.cfg.CheckTime), logx.Err(err))
		spec, _ = CronSpec("09:00")
	}

	runCtx := s.runCtx
	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in daily check", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.job(runCtx, time.Now().In(loc))
	})
	if err != nil {
		s.log.Error("failed to register daily check", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("daily check armed", logx.String("spec", spec), logx.String("tz", loc.String()))
}

// CronSpec compiles a "HH:MM" wall-clock time into a 5-field cron spec
// firing once per day. An empty time means 09:00.
func CronSpec(checkTime string) (string, error) {
	raw := strings.TrimSpace(checkTime)
	if raw == "" {
		raw = "09:00"
	}
	h, m, err := parseHHMM(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
