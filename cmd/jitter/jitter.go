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
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/jitter.report/internal/api"
	"github.com/banshee-data/jitter.report/internal/config"
	"github.com/banshee-data/jitter.report/internal/db"
	"github.com/banshee-data/jitter.report/internal/drift"
	"github.com/banshee-data/jitter.report/internal/httputil"
	"github.com/banshee-data/jitter.report/internal/posemux"
	"github.com/banshee-data/jitter.report/internal/version"
	"github.com/banshee-data/jitter.report/internal/vr"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	device        = flag.String("device", "sim", "Pose source: 'sim', 'udp:<addr>', or a serial port path")
	baud          = flag.Int("baud", 115200, "Baud rate for serial pose sources")
	dbFile        = flag.String("db", "jitter.db", "Path to the sqlite database")
	configPath    = flag.String("config", "", "Path to a tuning config JSON file")
	exportDir     = flag.String("export-dir", "exports", "Directory for saved CSV exports")
	reportDir     = flag.String("report-dir", "reports", "Base directory for generated PNG reports")
	disableBridge = flag.Bool("disable-bridge", false, "Run without a pose source (API only)")
	simSeed       = flag.Int64("seed", 0, "Seed for the simulated pose source (0 picks one)")
)

func driftConfig(tuning *config.TuningConfig) drift.Config {
	return drift.Config{
		ThresholdMM:        tuning.GetDriftThresholdMM(),
		CalibrationSamples: tuning.GetDriftCalibrationSamples(),
		RingSize:           tuning.GetDriftRingSize(),
	}
}

// newBridge builds the pose source the -device flag asks for.
func newBridge(tuning *config.TuningConfig) (posemux.BridgeMuxInterface, error) {
	if *disableBridge {
		return posemux.NewDisabledBridgeMux(), nil
	}

	mopts := posemux.MuxOptions{PollHz: tuning.GetPollHz()}

	switch {
	case *device == "sim":
		sim := vr.NewSimulator(vr.SimConfig{Seed: *simSeed})
		interval := time.Duration(float64(time.Second) / tuning.GetPollHz())
		return posemux.NewMockBridgeMux(sim.NextLine, interval, mopts), nil
	case strings.HasPrefix(*device, "udp:"):
		addr := strings.TrimPrefix(*device, "udp:")
		return posemux.NewUDPBridgeMux(addr, mopts)
	default:
		popts := posemux.PortOptions{BaudRate: *baud}
		return posemux.NewSerialBridgeMux(*device, popts, mopts)
	}
}

func main() {
	flag.Parse()

	// subcommands short-circuit the server startup
	switch flag.Arg(0) {
	case "version":
		fmt.Println(version.String())
		return
	case "migrate":
		db.RunMigrateCommand(flag.Args()[1:], *dbFile, db.DefaultMigrationsDir)
		return
	case "status":
		if err := runStatus(os.Stdout, statusBaseURL(*listen), httputil.NewStandardClient(nil)); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *device == "" && !*disableBridge {
		log.Fatal("Pose source is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configPath)
	}

	bridge, err := newBridge(tuning)
	if err != nil {
		log.Fatalf("failed to create pose source: %v", err)
	}
	defer bridge.Close()

	if err := bridge.Initialize(); err != nil {
		log.Fatalf("failed to initialize pose source: %v", err)
	}
	log.Printf("initialized pose source %q", *device)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// databases that have adopted migrations must be current; a fresh
	// database gets its schema from NewDB and adopts them via the CLI
	if ms, err := database.GetMigrationStatus(db.DefaultMigrationsDir); err == nil && ms["schema_migrations_exists"] == true {
		if shouldExit, err := database.CheckAndPromptMigrations(db.DefaultMigrationsDir); shouldExit {
			log.Fatalf("database schema is out of date: %v", err)
		}
	}

	session := vr.NewSession(vr.SessionConfig{
		WindowSize:    tuning.GetWindowSize(),
		RenderDivisor: tuning.GetRenderDivisor(),
		DeviceTimeout: tuning.GetDeviceTimeout(),
		Drift:         driftConfig(tuning),
	})
	flusher := db.NewSampleFlusher(database, tuning.GetFlushInterval())
	history := api.NewHistory(tuning.GetChartWindowSize())

	// Wait group for the bridge monitor, event handler, persistence and
	// HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the bridge
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bridge.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor pose source: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the bridge frame lines and feed them to the session
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := bridge.Subscribe()
		defer bridge.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := posemux.HandleEvent(session, flusher, payload); err != nil {
					log.Printf("error handling frame: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// batch recorded samples into the database
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := flusher.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("sample flusher stopped: %v", err)
		}
	}()

	// keep the live chart history fed from the stats stream
	wg.Add(1)
	go func() {
		defer wg.Done()
		history.Follow(ctx, session)
	}()

	// persist base station state transitions
	wg.Add(1)
	go func() {
		defer wg.Done()
		newStationRecorder(database).follow(ctx, session)
	}()

	// watchdog: mark devices lost after the configured silence and log a
	// periodic ingest summary
	wg.Add(1)
	go func() {
		defer wg.Done()
		expire := time.NewTicker(time.Second)
		defer expire.Stop()
		report := time.NewTicker(30 * time.Second)
		defer report.Stop()
		for {
			select {
			case <-expire.C:
				for _, serial := range session.ExpireStale() {
					log.Printf("device %s lost (no poses within timeout)", serial)
				}
			case <-report.C:
				log.Printf("ingested %d frames, %d samples flushed, %d pending",
					session.FrameCount(), flusher.Flushed(), flusher.Pending())
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.ServerDeps{
			Session:   session,
			Bridge:    bridge,
			DB:        database,
			Flusher:   flusher,
			Tuning:    tuning,
			History:   history,
			ExportDir: *exportDir,
			ReportDir: *reportDir,
		}).ServeMux()

		bridge.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		// generated PNG reports are browsable directly
		mux.Handle("/reports/", http.StripPrefix("/reports/", http.FileServer(http.Dir(*reportDir))))

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("%s listening on %s", version.String(), *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
