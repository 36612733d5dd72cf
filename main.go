// Program treemirror runs the consumer side of the mirror: it accepts one
// producer over websocket, maintains the mirrored node collection, exposes the
// HTTP API, and (on a terminal) renders the live tree dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"treemirror/buffer"
	"treemirror/config"
	"treemirror/ingest"
	"treemirror/journal"
	"treemirror/recorder"
	"treemirror/stats"
	"treemirror/transport"
	"treemirror/ui"
	"treemirror/wire"
)

const (
	defaultConfigPath = "data/config.yaml"
	envConfigPath     = "TREEMIRROR_CONFIG"
)

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// loadMirrorConfig tries the flag value, then the env override, then the
// default path. A missing file at the default path falls back to built-in
// defaults instead of failing startup.
func loadMirrorConfig(flagPath string) (*config.Config, string, error) {
	candidates := make([]string, 0, 2)
	if flagPath != "" {
		candidates = append(candidates, flagPath)
	}
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	explicit := len(candidates) > 0
	candidates = append(candidates, defaultConfigPath)

	for i, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if os.IsNotExist(err) && !(explicit && i < len(candidates)-1) {
				continue
			}
			if os.IsNotExist(err) {
				return nil, path, fmt.Errorf("config file %s not found", path)
			}
			return nil, path, err
		}
		return cfg, path, nil
	}
	return config.Default(), "", nil
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	noUI := flag.Bool("no-ui", false, "disable the terminal dashboard even on a TTY")
	flag.Parse()

	cfg, source, err := loadMirrorConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if source != "" {
		log.Printf("Config: loaded from %s", source)
	} else {
		log.Println("Config: using built-in defaults")
	}

	useUI := cfg.UI.Enabled && !*noUI && isStdoutTTY()

	// With the dashboard active the console belongs to tview; log lines go to
	// the daily file only.
	logCfg := cfg.Logging
	if useUI {
		logCfg.Console = false
		if strings.TrimSpace(logCfg.Dir) == "" {
			logCfg.Dir = "data/logs"
		}
	} else {
		logCfg.Console = true
	}
	fanout, err := setupLogging(logCfg, os.Stdout)
	if err != nil {
		log.Fatalf("Error setting up logging: %v", err)
	}
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()

	if !useUI {
		cfg.Print()
	}

	events := buffer.NewRingBuffer(cfg.Ingest.EventRingSize)
	store := ingest.NewStore(events)
	tracker := stats.NewTracker()

	codec, err := wire.NewCodec(true)
	if err != nil {
		log.Fatalf("Error creating codec: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.Journal.Dir)
		if err != nil {
			log.Fatalf("Error opening journal at %s: %v", cfg.Journal.Dir, err)
		}
		defer jnl.Close()
		log.Printf("Journal: writing applied messages to %s (retention %dd)",
			cfg.Journal.Dir, cfg.Journal.RetentionDays)
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cutoff := time.Now().AddDate(0, 0, -cfg.Journal.RetentionDays)
					if n, err := jnl.Prune(cutoff); err != nil {
						log.Printf("Journal: prune failed: %v", err)
					} else if n > 0 {
						log.Printf("Journal: pruned %d entries older than %s",
							n, cutoff.Format("2006-01-02"))
					}
				}
			}
		}()
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.NewRecorder(cfg.Recorder.Path, cfg.Recorder.MaxRows)
		if err != nil {
			log.Fatalf("Error opening recorder at %s: %v", cfg.Recorder.Path, err)
		}
		defer rec.Close()
		log.Printf("Recorder: sync history in %s (max %d rows)", cfg.Recorder.Path, cfg.Recorder.MaxRows)
	}

	server := transport.NewServer(store, codec, tracker, transport.Options{
		RootPath: cfg.Ingest.RootPath,
		Journal:  jnl,
		Recorder: rec,
		Events:   events,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}
	go func() {
		log.Printf("Server: listening on %s (producer endpoint /ws)", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server: %v", err)
		}
	}()

	monitor := ingest.NewMonitor(store, cfg.Ingest.Timeout(), cfg.Ingest.CheckInterval())
	go monitor.Run(ctx)

	// Periodic stats summary in headless mode; the dashboard shows the same
	// numbers live.
	if !useUI {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					log.Printf("Stats: %s", tracker.Summary())
					log.Printf("Store: %d nodes at version %d", len(store.ListNodes()), store.Version())
				}
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if useUI {
		dashboard := ui.NewDashboard(store, tracker, events, cfg.Ingest.RootPath,
			time.Duration(cfg.UI.RefreshMS)*time.Millisecond, cfg.UI.RecentEventRows)
		go func() {
			<-sigChan
			cancel()
		}()
		if err := dashboard.Run(ctx); err != nil {
			log.Printf("Dashboard: %v", err)
		}
	} else {
		log.Println("Mirror is running. Press Ctrl+C to stop.")
		<-sigChan
	}

	log.Println("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server: shutdown: %v", err)
	}
	log.Printf("Final stats: %s", tracker.Summary())
}
