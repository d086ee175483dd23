package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/bagwatch/internal/app"
	"github.com/ayusman/bagwatch/internal/classify"
	"github.com/ayusman/bagwatch/internal/config"
	"github.com/ayusman/bagwatch/internal/engine"
	"github.com/ayusman/bagwatch/internal/logging"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/server"
	"github.com/ayusman/bagwatch/internal/store"
	"github.com/ayusman/bagwatch/internal/tray"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.With("main")
	log.Info().Msg("Bagwatch starting")

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		log.Fatal().Err(err).Msg("resolving database path")
	}
	st, err := store.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer st.Close()
	log.Info().Str("path", dbPath).Msg("database ready")

	classifier := buildClassifier(cfg)
	defer classifier.Close()

	notifier := buildNotifier(cfg)

	eng := engine.New(engine.Config{
		EscalationThreshold: cfg.Engine.EscalationThreshold,
		ConfidenceCutoff:    cfg.Engine.ConfidenceCutoff,
		ClassifierTimeout:   cfg.Engine.ClassifierTimeout,
		ImageEvery:          cfg.Engine.ImageEvery,
	}, st, classifier, notifier)

	a := app.New(cfg.Camera, eng)

	srv := server.New(server.Config{
		StaticDir: findWebDir(),
		Store:     st,
		App:       a,
	})

	// Listeners must be registered before the engine starts.
	t := tray.New()
	eng.AddListener(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventIncidentStarted:
			t.SetLastIncident(ev.Time.Format("15:04:05"))
		case engine.EventIncidentEnded:
			if ev.Threat {
				t.SetLastIncident(ev.Time.Format("15:04:05") + " (threat)")
			}
		case engine.EventSessionStarted:
			t.SetMonitoring(true)
		case engine.EventSessionEnded:
			t.SetMonitoring(false)
		}
	})
	eng.Start()
	defer eng.Stop()
	defer a.Close()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	t.OnToggle(func(monitoring bool) {
		if monitoring {
			if _, err := a.StartMonitoring(); err != nil {
				log.Error().Err(err).Msg("starting monitoring")
				t.SetMonitoring(false)
			}
		} else {
			if err := a.StopMonitoring(); err != nil {
				log.Error().Err(err).Msg("stopping monitoring")
			}
		}
	})
	t.OnDashboard(func() {
		openBrowser("http://localhost" + normalizeAddr(cfg.Server.Addr))
	})
	t.OnQuit(func() {
		log.Info().Msg("quit requested")
	})

	// Ctrl-C behaves like tray quit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		t.Quit()
	}()

	// Blocks until quit; deferred cleanup stops the pipeline and engine.
	t.Run()
	log.Info().Msg("Bagwatch stopped")
}

// buildClassifier picks the Gemini classifier when an API key is configured
// and the simulated one otherwise. The real classifier is wrapped in a
// circuit breaker so a flapping upstream fails fast instead of eating the
// timeout on every batch.
func buildClassifier(cfg *config.Config) classify.Classifier {
	log := logging.With("main")
	if cfg.Classifier.APIKey == "" {
		log.Warn().Msg("no GEMINI_API_KEY set, using simulated classifier")
		return classify.NewSimulatedClassifier()
	}

	var opts []classify.GeminiOption
	if cfg.Classifier.Endpoint != "" {
		opts = append(opts, classify.WithEndpoint(cfg.Classifier.Endpoint))
	}
	gemini, err := classify.NewGeminiClassifier(cfg.Classifier.APIKey, cfg.Classifier.Model, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("gemini classifier unavailable, using simulated classifier")
		return classify.NewSimulatedClassifier()
	}
	log.Info().Str("model", cfg.Classifier.Model).Msg("using Gemini classifier")
	return classify.NewBreakerClassifier(gemini, 5)
}

// buildNotifier returns the speech notifier when enabled, otherwise a
// log-only notifier.
func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Alerts.Speech {
		return notify.NewSpeechNotifier(cfg.Alerts.SpeechCommand)
	}
	return notify.NewLogNotifier()
}

// normalizeAddr extracts the ":port" suffix from a listen address so it can
// be appended to a localhost URL.
func normalizeAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return addr
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":8080"
}

// openBrowser opens the dashboard URL with the platform's opener.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log := logging.With("main")
		log.Warn().Err(err).Msg("opening browser")
	}
}

// findWebDir searches for the dashboard assets in common locations.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".bagwatch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
