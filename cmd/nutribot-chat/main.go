// Package main provides a terminal client for the NutriBot assistant.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/nutribot/internal/backend"
	"github.com/ashureev/nutribot/internal/chat"
	"github.com/ashureev/nutribot/internal/config"
	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/nutrition"
	"github.com/ashureev/nutribot/internal/session"
	"github.com/ashureev/nutribot/internal/state"
	"github.com/ashureev/nutribot/internal/store"
	"github.com/ashureev/nutribot/internal/telemetry"
)

const helpText = `Type a message and press Enter to chat.
Commands:
  /sensors O H T   submit oxygen, heart rate and temperature
  /simulate        submit one generated reading
  /auto [interval] start auto-sampling (default from SENSOR_INTERVAL)
  /stop            stop auto-sampling
  /status          show the live reading and its classification
  /prep N          set the prep-time preference in minutes
  /recommend       recommendations from the latest reading
  /food ID         food detail by FoodData Central id
  /reset           clear the conversation
  /transcript      print the conversation as NDJSON
  /quit            exit`

type repl struct {
	out     io.Writer
	store   *state.Container
	chat    *chat.Orchestrator
	sensors *telemetry.Manager
	foods   *nutrition.Lookup
	catalog backend.FoodCatalog

	defaultInterval time.Duration
}

func main() {
	backendURL := flag.String("backend", "", "assistant backend URL (overrides BACKEND_URL)")
	dbPath := flag.String("db", "", "state database path (overrides DB_PATH)")
	verbose := flag.Bool("v", false, "log debug output to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	seed := session.Restore(context.Background(), repo, session.Defaults{PrepTime: cfg.Session.DefaultPrepTime}, logger)
	container := state.New(seed)
	persister := session.NewPersister(repo, logger)
	persister.Attach(container)
	defer func() { _ = persister.Close() }()

	client, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.URL,
		Timeout:       cfg.Backend.Timeout,
		RateLimit:     cfg.Backend.RateLimit,
		Burst:         cfg.Backend.RateBurst,
		FoodCacheSize: cfg.Backend.FoodCacheSize,
		FoodCacheTTL:  cfg.Backend.FoodCacheTTL,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize backend client", "error", err)
		os.Exit(1)
	}

	sensors := telemetry.NewManager(client, container, telemetry.WithLogger(logger), telemetry.WithSubmitTimeout(cfg.Backend.Timeout))
	defer sensors.Close()

	r := &repl{
		out:             os.Stdout,
		store:           container,
		chat:            chat.New(client, container, chat.WithLogger(logger)),
		sensors:         sensors,
		foods:           nutrition.NewLookup(client, logger),
		catalog:         client,
		defaultInterval: cfg.Session.SensorInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("NutriBot (%s) session %s, prep time %d min\n\n", client.BaseURL(), seed.UserID, seed.PrepTime)
	fmt.Println(helpText)
	fmt.Println()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !r.handle(ctx, line) {
				fmt.Println("Bye!")
				return
			}
		}
	}
}

// handle runs one input line and reports whether the loop should go on.
func (r *repl) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if !strings.HasPrefix(input, "/") {
		r.send(ctx, input)
		return true
	}

	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/sensors":
		r.manual(ctx, args)
	case "/simulate":
		reading, ok := r.sensors.SimulateOnce(ctx)
		if !ok {
			fmt.Fprintln(r.out, "sensor backend rejected the reading")
			return true
		}
		r.printReading(&reading)
	case "/auto":
		interval := r.defaultInterval
		if len(args) > 0 {
			d, err := time.ParseDuration(args[0])
			if err != nil || d <= 0 {
				fmt.Fprintf(r.out, "invalid interval %q\n", args[0])
				return true
			}
			interval = d
		}
		r.sensors.StartAutoSampling(interval)
		fmt.Fprintf(r.out, "auto-sampling every %s\n", interval)
	case "/stop":
		r.sensors.StopAutoSampling()
		fmt.Fprintln(r.out, "auto-sampling stopped")
	case "/status":
		r.printReading(r.store.SensorData())
	case "/prep":
		r.prep(args)
	case "/recommend":
		r.recommend(ctx)
	case "/food":
		r.food(ctx, args)
	case "/reset":
		r.chat.Reset()
		fmt.Fprintln(r.out, "conversation cleared")
	case "/transcript":
		if err := r.chat.WriteTranscript(r.out); err != nil {
			fmt.Fprintf(r.out, "transcript: %v\n", err)
		}
	default:
		fmt.Fprintf(r.out, "unknown command %s, try /help\n", cmd)
	}
	return true
}

func (r *repl) send(ctx context.Context, text string) {
	turn, err := r.chat.Send(ctx, text)
	if err != nil {
		fmt.Fprintf(r.out, "not sent: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "NutriBot: %s\n", turn.Agent.Content)
	r.printRecommendations(turn.Agent.Recommendations)
}

func (r *repl) manual(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Fprintln(r.out, "usage: /sensors OXYGEN HEART_RATE TEMPERATURE")
		return
	}
	values := make([]float64, 3)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			fmt.Fprintf(r.out, "invalid number %q\n", a)
			return
		}
		values[i] = v
	}
	if !r.sensors.UpdateManual(ctx, values[0], values[1], values[2]) {
		fmt.Fprintln(r.out, "sensor backend rejected the reading")
		return
	}
	r.printReading(r.store.SensorData())
}

func (r *repl) prep(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(r.out, "usage: /prep MINUTES (offered: %v)\n", domain.PrepTimeOptions)
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Fprintf(r.out, "invalid prep time %q\n", args[0])
		return
	}
	r.store.SetPrepTime(n)
	fmt.Fprintf(r.out, "prep time set to %d min\n", n)
}

func (r *repl) recommend(ctx context.Context) {
	res, err := r.catalog.RecommendFood(ctx, r.store.UserID())
	if err != nil {
		fmt.Fprintf(r.out, "recommendation failed: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "state %s, weather %s\n", res.State, res.Weather)
	if len(res.Recommendations) > 0 {
		r.store.SetRecommendations(res.Recommendations)
	}
	r.printRecommendations(res.Recommendations)
}

func (r *repl) food(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: /food FDC_ID")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		fmt.Fprintf(r.out, "invalid id %q\n", args[0])
		return
	}

	res := r.foods.Details(ctx, id, nutrition.FindByFdcID(r.store.Recommendations(), id))
	if res.Error != "" {
		fmt.Fprintln(r.out, res.Error)
	}
	if res.Details == nil {
		return
	}
	fmt.Fprintf(r.out, "%s (fdc %d)\n", res.Details.Description, res.Details.FdcID)
	if res.Groups == nil {
		return
	}
	for _, section := range []struct {
		title   string
		entries []nutrition.Entry
	}{
		{"Macronutrientes", res.Groups.Macros},
		{"Vitaminas", res.Groups.Vitamins},
		{"Minerales", res.Groups.Minerals},
		{"Otros", res.Groups.Other},
	} {
		if len(section.entries) == 0 {
			continue
		}
		fmt.Fprintf(r.out, "  %s\n", section.title)
		for _, e := range section.entries {
			fmt.Fprintf(r.out, "    %-20s %s\n", e.Label, e.Value.Value)
		}
	}
}

func (r *repl) printReading(reading *domain.SensorReading) {
	if reading == nil {
		fmt.Fprintln(r.out, "no reading yet")
		return
	}
	status := telemetry.DeriveStatus(reading)
	fmt.Fprintf(r.out, "SpO2 %.0f%%  HR %.0f bpm  %.1f °C  [%s, %s]\n",
		reading.OxygenLevel, reading.HeartRate, reading.Temperature, status.State, status.Weather)
}

func (r *repl) printRecommendations(recs []domain.FoodRecommendation) {
	for i, rec := range recs {
		line := fmt.Sprintf("  %d. %s", i+1, rec.DisplayName)
		if rec.Info != nil && rec.Info.FdcID != 0 {
			line += fmt.Sprintf(" (/food %d)", rec.Info.FdcID)
		}
		fmt.Fprintln(r.out, line)
	}
}
