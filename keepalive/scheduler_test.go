package keepalive

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

type countingPinger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

var _ = Describe("State", func() {
	var (
		cfg   Config
		start time.Time
		state State
	)

	BeforeEach(func() {
		cfg = Config{MonthlyBudget: 100, PauseFraction: 0.9, Location: time.UTC}
		start = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		state = newState(cfg, start)
	})

	It("derives the limit from the budget fraction", func() {
		Expect(state.Limit).To(Equal(90))
		Expect(state.Enabled).To(BeTrue())
		Expect(state.Period).To(Equal("2026-10"))
		Expect(state.NextResetAt).To(BeTemporally("==", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)))
	})

	DescribeTable("limit from budget and fraction",
		func(budget int, fraction float64, want int) {
			s := newState(Config{MonthlyBudget: budget, PauseFraction: fraction, Location: time.UTC}, start)
			Expect(s.Limit).To(Equal(want))
		},
		Entry("default budget", 3100, 0.9, 2790),
		Entry("fraction that is not exact in binary", 100, 0.29, 29),
		Entry("budget of one", 1, 0.9, 1),
		Entry("full budget", 10, 1.0, 10),
	)

	It("pauses after the first ping when the budget is tiny", func() {
		state = newState(Config{MonthlyBudget: 1, PauseFraction: 0.9, Location: time.UTC}, start)
		state = state.recordPing(start, nil)
		Expect(state.Enabled).To(BeFalse())
		Expect(state.PausedReason).To(Equal(ReasonBudget))

		_, due := state.tick(start.Add(time.Minute))
		Expect(due).To(BeFalse())
	})

	It("pauses itself when a ping crosses the limit", func() {
		state.Pings = 89
		state = state.recordPing(start, nil)
		Expect(state.Pings).To(Equal(90))
		Expect(state.Enabled).To(BeFalse())
		Expect(state.PausedReason).To(Equal(ReasonBudget))
		Expect(state.Remaining()).To(Equal(0))

		_, due := state.tick(start.Add(time.Minute))
		Expect(due).To(BeFalse())
	})

	It("keeps pinging after a manual resume past the limit", func() {
		state.Pings = 89
		state = state.recordPing(start, nil).resume()
		state = state.recordPing(start, nil)
		Expect(state.Enabled).To(BeTrue())
		Expect(state.Pings).To(Equal(91))
	})

	It("records failures without stopping", func() {
		state = state.recordPing(start, errors.New("connection reset"))
		Expect(state.Failures).To(Equal(1))
		Expect(state.LastError).To(Equal("connection reset"))
		Expect(state.Enabled).To(BeTrue())
	})

	It("lifts a budget pause on rollover", func() {
		state.Pings = 89
		state = state.recordPing(start, nil)
		state = state.rollover(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
		Expect(state.Pings).To(Equal(0))
		Expect(state.Enabled).To(BeTrue())
		Expect(state.Period).To(Equal("2026-11"))
	})

	It("keeps a manual pause on rollover", func() {
		state = state.pause()
		state = state.rollover(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
		Expect(state.Enabled).To(BeFalse())
		Expect(state.PausedReason).To(Equal(ReasonManual))
	})

	It("resets on the first tick of a new month even if the reset timer was missed", func() {
		state.Pings = 40
		next, due := state.tick(time.Date(2026, 11, 3, 8, 0, 0, 0, time.UTC))
		Expect(due).To(BeTrue())
		Expect(next.Pings).To(Equal(0))
		Expect(next.Period).To(Equal("2026-11"))
	})

	It("does not reset twice in the same period", func() {
		nov := time.Date(2026, 11, 1, 0, 0, 5, 0, time.UTC)
		state = state.rollover(nov)
		state = state.recordPing(nov, nil)
		state = state.rollover(nov.Add(time.Second))
		Expect(state.Pings).To(Equal(1))
		Expect(state.Period).To(Equal("2026-11"))
	})

	It("computes the next reset across a year boundary", func() {
		Expect(nextMonthStart(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC))).
			To(BeTemporally("==", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	It("computes the next reset in the configured location", func() {
		loc, err := time.LoadLocation("America/Asuncion")
		Expect(err).NotTo(HaveOccurred())
		next := nextMonthStart(time.Date(2026, 10, 19, 12, 0, 0, 0, loc))
		Expect(next).To(BeTemporally("==", time.Date(2026, 11, 1, 0, 0, 0, 0, loc)))
	})
})

var _ = Describe("Scheduler", func() {
	var (
		pinger *countingPinger
		sched  *Scheduler
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		pinger = &countingPinger{}
		sched = New(Config{Interval: 5 * time.Millisecond, MonthlyBudget: 10, PauseFraction: 0.5}, pinger)
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- sched.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("stops at the budget limit and resumes on request", func() {
		Eventually(func() int32 { return pinger.calls.Load() }).Should(Equal(int32(5)))

		st, err := sched.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Enabled).To(BeFalse())
		Expect(st.PausedReason).To(Equal(ReasonBudget))
		Consistently(func() int32 { return pinger.calls.Load() }, 50*time.Millisecond).Should(Equal(int32(5)))

		st, err = sched.Resume(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Enabled).To(BeTrue())
		Eventually(func() int32 { return pinger.calls.Load() }).Should(BeNumerically(">", 5))
	})

	It("pauses on request", func() {
		st, err := sched.Pause(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Enabled).To(BeFalse())
		Expect(st.PausedReason).To(Equal(ReasonManual))

		calls := pinger.calls.Load()
		Consistently(func() int32 { return pinger.calls.Load() }, 50*time.Millisecond).Should(Equal(calls))
	})
})

var _ = Describe("Scheduler monthly reset", func() {
	var (
		pinger *countingPinger
		sched  *Scheduler
		clock  atomic.Int64
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	setClock := func(t time.Time) { clock.Store(t.UnixNano()) }

	BeforeEach(func() {
		pinger = &countingPinger{}
		sched = New(Config{Interval: 5 * time.Millisecond, MonthlyBudget: 10, PauseFraction: 0.5}, pinger)
		setClock(time.Date(2026, 10, 31, 23, 59, 0, 0, time.UTC))
		sched.now = func() time.Time { return time.Unix(0, clock.Load()) }
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- sched.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("lifts the budget pause when the reset fires and ignores a second reset in the same month", func() {
		Eventually(func() int32 { return pinger.calls.Load() }).Should(Equal(int32(5)))
		st, err := sched.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.PausedReason).To(Equal(ReasonBudget))

		setClock(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
		sched.triggerReset(ctx)

		st, err = sched.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Period).To(Equal("2026-11"))
		Expect(st.Enabled).To(BeTrue())
		Expect(st.NextResetAt).To(BeTemporally("==", time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))

		Eventually(func() int {
			st, _ := sched.Status(ctx)
			return st.Pings
		}).Should(BeNumerically(">=", 2))
		st, err = sched.Status(ctx)
		Expect(err).NotTo(HaveOccurred())

		sched.triggerReset(ctx)
		after, err := sched.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Pings).To(BeNumerically(">=", st.Pings))
		Expect(after.Period).To(Equal("2026-11"))
	})
})

var _ = Describe("Scheduler that is not running", func() {
	It("reports ErrNotRunning after Run returns", func() {
		sched := New(Config{Interval: time.Hour}, &countingPinger{})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- sched.Run(ctx) }()
		cancel()
		Eventually(done).Should(Receive())

		_, err := sched.Status(context.Background())
		Expect(err).To(MatchError(ErrNotRunning))
	})
})
