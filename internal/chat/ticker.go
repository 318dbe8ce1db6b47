package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/wayfare/internal/models"
)

// DefaultCountdownSpec recomputes the countdown once a minute.
const DefaultCountdownSpec = "@every 1m"

// specParser accepts 5-field expressions and descriptors such as "@every 1m".
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates a countdown schedule.
func ParseSpec(spec string) (cron.Schedule, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("chat: parse countdown schedule %q: %w", spec, err)
	}
	return sched, nil
}

// TickerOpts configures a countdown Ticker.
type TickerOpts struct {
	Spec string           // defaults to DefaultCountdownSpec
	TTL  time.Duration    // defaults to DefaultTTL
	Now  func() time.Time // defaults to time.Now
}

// Ticker periodically recomputes a booking's countdown while a chat view is
// open.
type Ticker struct {
	c    *cron.Cron
	once sync.Once
}

// StartTicker delivers the countdown for b to fn immediately and then on every
// tick of opts.Spec until Stop is called. Ticks that overlap a running
// callback are skipped.
func StartTicker(b *models.Booking, opts TickerOpts, fn func(Countdown)) (*Ticker, error) {
	if b == nil {
		return nil, fmt.Errorf("chat: ticker requires a booking")
	}
	spec := opts.Spec
	if spec == "" {
		spec = DefaultCountdownSpec
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	snapshot := *b
	tick := func() { fn(Remaining(&snapshot, now(), opts.TTL)) }

	c := cron.New(
		cron.WithParser(specParser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(sched, cron.FuncJob(tick))

	tick()
	c.Start()
	return &Ticker{c: c}, nil
}

// Stop cancels future ticks and waits for a running callback to return.
// Safe to call more than once.
func (t *Ticker) Stop() {
	t.once.Do(func() {
		<-t.c.Stop().Done()
	})
}
