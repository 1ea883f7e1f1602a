package keepalive

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Interval      time.Duration
	MonthlyBudget int
	PauseFraction float64
	PingTimeout   time.Duration
	Location      *time.Location
}

func DefaultConfig() Config {
	return Config{
		Interval:      14 * time.Minute,
		MonthlyBudget: 3100,
		PauseFraction: 0.9,
		PingTimeout:   10 * time.Second,
		Location:      time.UTC,
	}
}

var ErrNotRunning = errors.New("keep-alive scheduler is not running")

type commandKind int

const (
	cmdStatus commandKind = iota
	cmdPause
	cmdResume
	cmdReset
)

type command struct {
	kind  commandKind
	reply chan State
}

// Scheduler pings the database on a fixed interval against a monthly budget.
// Its state is only touched by the Run loop; Status, Pause and Resume are
// requests sent to that loop.
type Scheduler struct {
	cfg    Config
	pinger Pinger
	cmds   chan command
	done   chan struct{}
	now    func() time.Time
}

func New(cfg Config, pinger Pinger) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MonthlyBudget <= 0 {
		cfg.MonthlyBudget = def.MonthlyBudget
	}
	if cfg.PauseFraction <= 0 || cfg.PauseFraction > 1 {
		cfg.PauseFraction = def.PauseFraction
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Scheduler{
		cfg:    cfg,
		pinger: pinger,
		cmds:   make(chan command),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

func (s *Scheduler) clock() time.Time {
	return s.now().In(s.cfg.Location)
}

// Run blocks until ctx is cancelled. The monthly reset is fired by a cron
// job at midnight on the first of each month in the configured location; the
// tick path also rolls the period, so whichever runs first wins and the other
// is a no-op.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	state := newState(s.cfg, s.clock())
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	resets := cron.NewWithLocation(s.cfg.Location)
	if err := resets.AddFunc(monthlySpec, func() { s.triggerReset(ctx) }); err != nil {
		return err
	}
	resets.Start()
	defer resets.Stop()

	log.Info().
		Dur("interval", s.cfg.Interval).
		Int("budget", state.Budget).
		Int("limit", state.Limit).
		Time("next_reset", state.NextResetAt).
		Msg("Keep-alive scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pings", state.Pings).Msg("Keep-alive scheduler stopped")
			return ctx.Err()

		case <-ticker.C:
			var due bool
			state, due = state.tick(s.clock())
			if !due {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
			err := s.pinger.Ping(pctx)
			cancel()
			state = state.recordPing(s.clock(), err)
			if err != nil {
				log.Warn().Err(err).Int("pings", state.Pings).Msg("Keep-alive ping failed")
			} else {
				log.Debug().Int("pings", state.Pings).Int("remaining", state.Remaining()).Msg("Keep-alive ping")
			}
			if state.PausedReason == ReasonBudget && !state.Enabled {
				log.Warn().Int("pings", state.Pings).Int("limit", state.Limit).Msg("Keep-alive paused: monthly budget reached")
			}

		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdPause:
				state = state.pause()
				log.Info().Msg("Keep-alive paused by operator")
			case cmdResume:
				state = state.resume()
				log.Info().Msg("Keep-alive resumed by operator")
			case cmdReset:
				before := state.Period
				state = state.rollover(s.clock())
				if state.Period != before {
					log.Info().Str("period", state.Period).Msg("Keep-alive monthly counter reset")
				}
			}
			cmd.reply <- state
		}
	}
}

func (s *Scheduler) triggerReset(ctx context.Context) {
	if _, err := s.send(ctx, cmdReset); err != nil && !errors.Is(err, ErrNotRunning) {
		log.Warn().Err(err).Msg("Keep-alive monthly reset not delivered")
	}
}

func (s *Scheduler) Status(ctx context.Context) (State, error) {
	return s.send(ctx, cmdStatus)
}

func (s *Scheduler) Pause(ctx context.Context) (State, error) {
	return s.send(ctx, cmdPause)
}

func (s *Scheduler) Resume(ctx context.Context) (State, error) {
	return s.send(ctx, cmdResume)
}

func (s *Scheduler) send(ctx context.Context, kind commandKind) (State, error) {
	cmd := command{kind: kind, reply: make(chan State, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return State{}, ErrNotRunning
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-cmd.reply:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}
