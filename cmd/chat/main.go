package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-chat/internal/bootstrap"
	"portfolio-chat/internal/config"
	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/internal/terminal"
	"portfolio-chat/pkg/chat"
	"portfolio-chat/pkg/events"
	"portfolio-chat/pkg/feedback"
	"portfolio-chat/pkg/health"
	pktNats "portfolio-chat/pkg/nats"
	"portfolio-chat/pkg/session"
	"portfolio-chat/pkg/typing"

	"github.com/fatih/color"
)

func main() {
	cfg := config.Load()
	sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer sysLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Durable storage for the session id
	kv, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Chat.StorageDriver, err)
	}
	defer kv.Close()

	// 2. Backend client, session and health
	client := chat.NewClient(chat.ClientOptions{
		BaseURL: cfg.Chat.APIBaseURL,
		Logger:  sysLogger,
	})
	sessions := session.NewManager(kv, client, sysLogger)
	if _, err := sessions.Init(ctx); err != nil {
		log.Fatalf("Failed to initialise session: %v", err)
	}

	out := color.Output
	renderer := terminal.NewRenderer(out)

	poller := health.NewPoller(client, health.PollerOptions{
		Logger: sysLogger,
		OnChange: func(s health.Status) {
			if s.Status != health.StatusAvailable || !s.IsHot {
				renderer.LLMStatus(s)
			}
		},
	})
	go poller.Run(ctx)

	// 3. Lifecycle events, relayed to NATS when it is reachable
	bus := events.NewBus(sysLogger)
	defer bus.Close()
	if cfg.App.NatsURL != "" {
		if natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger); err != nil {
			sysLogger.Warn("EVENTS", "NATS unavailable, events stay local", map[string]interface{}{"error": err.Error()})
		} else {
			defer natsPub.Close()
			if err := events.Forward(ctx, bus, natsPub, sysLogger); err != nil {
				sysLogger.Warn("EVENTS", "Failed to start event relay", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	// 4. Conversation
	var st *chat.Store
	st = chat.NewStore(client, sessions, chat.StoreOptions{
		Typing: typing.Options{
			Interval:     cfg.Chat.TypingInterval,
			CharsPerTick: cfg.Chat.CharsPerTick,
		},
		Feedback: feedback.NewSubmitter(client, sysLogger),
		Events:   bus,
		Logger:   sysLogger,
		OnChange: func() { renderer.Update(st.Messages()) },
	})

	repl := &repl{
		store:    st,
		sessions: sessions,
		poller:   poller,
		renderer: renderer,
	}
	repl.run(ctx)
}

type repl struct {
	store    *chat.Store
	sessions *session.Manager
	poller   *health.Poller
	renderer *terminal.Renderer
}

func (r *repl) run(ctx context.Context) {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	id, _ := r.sessions.GetSessionID(ctx)
	r.renderer.Info("Portfolio chat (session %s). Type /help for commands.", id)

	for {
		fmt.Fprint(color.Output, "\nyou> ")
		select {
		case <-interrupts:
			fmt.Fprintln(color.Output)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := r.handle(ctx, terminal.Parse(line), interrupts); quit {
				return
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, cmd terminal.Command, interrupts <-chan os.Signal) bool {
	switch cmd.Kind {
	case terminal.CmdEmpty:
	case terminal.CmdQuit:
		return true
	case terminal.CmdHelp:
		fmt.Fprintln(color.Output, terminal.HelpText)
	case terminal.CmdAsk:
		r.stream(ctx, interrupts, func(ctx context.Context) error { return r.store.Send(ctx, cmd.Arg) })
	case terminal.CmdRetry:
		r.stream(ctx, interrupts, r.store.Retry)
	case terminal.CmdClear:
		r.store.Clear()
		r.renderer.Reset()
		r.renderer.Info("Conversation cleared.")
	case terminal.CmdReset:
		id, err := r.store.ResetSession(ctx)
		if err != nil {
			r.renderer.Error(err)
			return false
		}
		r.renderer.Reset()
		r.renderer.Info("New session %s.", id)
	case terminal.CmdHealth:
		r.health(ctx)
	case terminal.CmdUp, terminal.CmdDown:
		r.rate(ctx, cmd.Kind == terminal.CmdUp, cmd.Arg)
	default:
		r.renderer.Warn("Unknown command %s. Type /help.", cmd.Arg)
	}
	return false
}

// stream runs one send and turns Ctrl-C into Stop until it returns.
func (r *repl) stream(ctx context.Context, interrupts <-chan os.Signal, send func(context.Context) error) {
	done := make(chan error, 1)
	go func() { done <- send(ctx) }()

	for {
		select {
		case <-interrupts:
			r.store.Stop()
		case err := <-done:
			r.finish(err)
			return
		}
	}
}

func (r *repl) finish(err error) {
	if err != nil {
		r.renderer.Error(err)
		if kind := chat.KindOf(err); kind != "" && kind != chat.KindValidation && kind != chat.KindAborted {
			r.renderer.Warn("Type /retry to try again.")
		}
		return
	}
	if last, ok := lastAssistant(r.store.Messages()); ok {
		r.renderer.Finish(last, r.store.State())
	}
}

func (r *repl) health(ctx context.Context) {
	if res := r.sessions.CheckHealth(ctx); res.Healthy {
		r.renderer.Info("Backend reachable.")
	} else {
		r.renderer.Warn("Backend unreachable: %s", res.Error)
	}

	checkCtx, cancel := context.WithTimeout(ctx, session.DefaultHealthTimeout)
	defer cancel()
	status, err := r.poller.Check(checkCtx)
	if err != nil {
		r.renderer.Error(err)
		return
	}
	r.renderer.LLMStatus(*status)
}

func (r *repl) rate(ctx context.Context, thumbsUp bool, comment string) {
	last, ok := lastAssistant(r.store.Messages())
	if !ok {
		r.renderer.Warn("Nothing to rate yet.")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	receipt, err := r.store.SubmitFeedback(sendCtx, last.ID, thumbsUp, comment)
	switch {
	case err != nil:
		r.renderer.Error(err)
	case receipt.Delivered:
		r.renderer.Info("Thanks for the feedback.")
	default:
		r.renderer.Warn("Feedback saved locally but could not be delivered.")
	}
}

func lastAssistant(messages []chat.Message) (chat.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleAssistant {
			return messages[i], true
		}
	}
	return chat.Message{}, false
}
