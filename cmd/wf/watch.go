package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/models"
	"github.com/zulandar/wayfare/internal/realtime"
	"github.com/zulandar/wayfare/internal/session"
	"golang.org/x/term"
)

func newChatWatchCmd() *cobra.Command {
	var (
		flags configFlags
		as    string
		poll  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <booking-id>",
		Short: "Follow a chat live and send lines typed on stdin",
		Long: `Opens the chat as --as, prints the visible history and every new message,
and keeps the countdown to expiry current. Each line read from stdin is sent;
"/clear" clears your history and "/hide <id>" or "/unsend <id>" delete one
message.

Changes made by other processes arrive through realtime.amqp_url when set and
are otherwise picked up by re-fetching every --poll interval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatWatch(cmd, &flags, args[0], as, poll)
		},
	}

	flags.register(cmd)
	partyFlag(cmd, &as)
	cmd.Flags().DurationVar(&poll, "poll", 5*time.Second, "re-fetch interval (0 disables)")
	return cmd
}

func runChatWatch(cmd *cobra.Command, flags *configFlags, bookingID, as string, poll time.Duration) error {
	cfg, gormDB, err := connectFromConfig(flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	hub := realtime.NewHub(cfg.Realtime.Buffer)
	defer hub.Close()
	if cfg.Realtime.AMQPURL != "" {
		relay, err := realtime.NewRelay(cfg.Realtime.AMQPURL, cfg.Realtime.Exchange, hub)
		if err != nil {
			return err
		}
		defer relay.Close()
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Printf("chat: relay stopped: %v", err)
			}
		}()
	}

	p := newPrinter(cmd.OutOrStdout())
	s, err := session.Open(ctx, session.Opts{
		BookingID:   bookingID,
		Identity:    identity.Static(as),
		Bookings:    newManager(cfg, gormDB),
		Messages:    newMessages(cfg, gormDB, hub),
		Hub:         hub,
		Countdown:   chat.TickerOpts{Spec: cfg.Chat.Countdown, TTL: cfg.Chat.TTL},
		OnInsert:    p.message,
		OnCountdown: p.countdown,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	b := s.Booking()
	p.header(b, as)
	for _, m := range s.Messages() {
		p.message(m)
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	var tick <-chan time.Time
	if poll > 0 {
		t := time.NewTicker(poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("chat: refresh: %v", err)
				continue
			}
			for _, m := range s.Messages() {
				p.message(m)
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := runWatchLine(ctx, s, line); err != nil {
				p.notice("error: %v", err)
			}
		}
	}
}

// runWatchLine sends line or runs one of the slash commands.
func runWatchLine(ctx context.Context, s *session.Session, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/clear":
		return s.Clear(ctx)
	case "/hide", "/unsend":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <message-id>", fields[0])
		}
		id, err := parseMessageID(fields[1])
		if err != nil {
			return err
		}
		if fields[0] == "/hide" {
			return s.DeleteForMe(ctx, id)
		}
		return s.DeleteForEveryone(ctx, id)
	}
	s.SetDraft(line)
	_, err := s.Send(ctx, s.Draft())
	return err
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// printer writes chat output. On a terminal the countdown is redrawn in
// place on its own line; otherwise each update is printed.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	tty  bool
	last uint // highest message id printed
	cd   string
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *printer) header(b *models.Booking, party string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Chat with %s (%s, %s)\n", b.Counterpart(party), b.Tier, b.Status)
}

func (p *printer) message(m models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.ID <= p.last {
		return
	}
	p.last = m.ID
	p.clearLine()
	printMessage(p.w, m)
	p.redraw()
}

func (p *printer) countdown(c chat.Countdown) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text := "Time left: " + c.String()
	if text == p.cd {
		return
	}
	p.cd = text
	if p.tty {
		p.clearLine()
		p.redraw()
		return
	}
	fmt.Fprintln(p.w, text)
}

func (p *printer) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLine()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.redraw()
}

func (p *printer) clearLine() {
	if p.tty && p.cd != "" {
		fmt.Fprint(p.w, "\r\033[2K")
	}
}

func (p *printer) redraw() {
	if p.tty && p.cd != "" {
		fmt.Fprint(p.w, p.cd)
	}
}
