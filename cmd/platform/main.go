// Package main runs the persona engine as a long-lived process: it serves
// metrics, watches the corpus, checkpoints learned state and answers chat
// turns read from stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/easeaico/persona-engine/internal/config"
	"github.com/easeaico/persona-engine/internal/engine"
	"github.com/easeaico/persona-engine/internal/metrics"
	"github.com/easeaico/persona-engine/internal/types"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	slog.Info("configuration loaded",
		"personas", cfg.PersonasFile,
		"corpus", cfg.CorpusFiles,
		"selection", cfg.SelectionMethod,
		"watch", cfg.WatchCorpus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := engine.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}
	defer closeStores()

	m := metrics.New()
	opts := engine.OptionsFromConfig(cfg)
	opts.Metrics = m
	opts.Stores = stores

	eng, err := engine.New(opts)
	if err != nil {
		log.Fatalf("failed to initialize engine: %v", err)
	}
	if err := eng.Restore(ctx); err != nil {
		slog.Warn("restore incomplete", "error", err)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	done := make(chan struct{})
	background := 0
	if cfg.WatchCorpus {
		w, err := engine.NewWatcher(opts.Sources, eng, engine.DefaultDebounce)
		if err != nil {
			slog.Warn("corpus watcher disabled", "error", err)
		} else {
			background++
			go func() {
				_ = w.Run(ctx)
				done <- struct{}{}
			}()
		}
	}
	if opts.Stores.Bandit != nil || opts.Stores.Dialogue != nil || opts.Stores.Styles != nil {
		background++
		go func() {
			_ = eng.RunCheckpoints(ctx, cfg.CheckpointEvery)
			done <- struct{}{}
		}()
	}

	chat(ctx, eng, os.Stdin)
	stop()
	for i := 0; i < background; i++ {
		<-done
	}
	fmt.Println("engine shutdown complete")
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// session is the per-terminal conversation.
type session struct {
	persona string
	user    string
	history []types.Message
}

const maxHistory = 20

// chat reads one turn per line until EOF, ctx cancellation or /quit.
// Lines starting with "/" are commands.
func chat(ctx context.Context, eng *engine.Engine, in *os.File) {
	s := &session{persona: "Elio", user: "local"}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Printf("chatting with %s (/help for commands)\n", s.persona)
	for {
		fmt.Print("> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, eng, line); quit {
				return
			}
			continue
		}

		resp, err := eng.Reply(ctx, types.Request{Persona: s.persona, Message: line, History: s.history, UserID: s.user})
		if err != nil {
			slog.Error("reply failed", "error", err)
			continue
		}
		fmt.Printf("%s: %s\n", resp.Persona, resp.Text)
		slog.Debug("reply", "strategy", resp.Strategy, "mood", resp.Mood, "topic", resp.Topic, "confidence", resp.Confidence)

		s.history = append(s.history,
			types.Message{Role: types.RoleUser, Content: line},
			types.Message{Role: types.RoleAssistant, Content: resp.Text})
		if len(s.history) > maxHistory {
			s.history = s.history[len(s.history)-maxHistory:]
		}
	}
}

func (s *session) command(ctx context.Context, eng *engine.Engine, line string) bool {
	fields := strings.Fields(line)
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/persona":
		if arg == "" {
			fmt.Println("usage: /persona <name>")
			break
		}
		s.persona, s.history = arg, nil
		fmt.Printf("now chatting with %s\n", s.persona)
	case "/user":
		s.user = arg
	case "/rate":
		reward, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fmt.Println("usage: /rate <0..1>")
			break
		}
		if err := eng.RecordFeedback(ctx, reward, "", s.user); err != nil {
			fmt.Printf("feedback rejected: %v\n", err)
		}
	case "/reset":
		eng.ResetDialogue(s.persona)
		s.history = nil
	case "/reload":
		report, err := eng.Reload(ctx)
		if err != nil {
			fmt.Printf("reload failed: %v\n", err)
			break
		}
		fmt.Printf("reloaded %d samples for %d personas\n", report.Samples, report.Personas)
	case "/stats":
		out, _ := json.MarshalIndent(eng.Stats(), "", "  ")
		fmt.Println(string(out))
	case "/checkpoint":
		if err := eng.Checkpoint(ctx); err != nil {
			fmt.Printf("checkpoint failed: %v\n", err)
		}
	default:
		fmt.Println("commands: /persona <name>, /user <id>, /rate <0..1>, /reset, /reload, /stats, /checkpoint, /quit")
	}
	return false
}
