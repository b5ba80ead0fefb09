// Command mmwave runs the presence service: it reads RD-03D frames from a
// serial port, tracks targets, serves the HTTP API, and records emitted
// reports to sqlite.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/presence.report/internal/api"
	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/pipeline"
	"github.com/banshee-data/presence.report/internal/rd03"
	"github.com/banshee-data/presence.report/internal/serialmux"
	"github.com/banshee-data/presence.report/internal/track"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (mock sensor, no serial port needed)")
	listen     = flag.String("listen", ":8080", "Listen address")
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	baud       = flag.Int("baud", 256000, "Serial baud rate")
	dbFile     = flag.String("db", "reports.db", "Path to the report database")
	migrations = flag.String("migrations", "", "Path to a migrations directory to apply at startup")
	configPath = flag.String("config", "", "Path to a tuning config JSON file")

	// pollInterval paces the processing loop. Well under the 100ms frame
	// timeout so partial frames are aged out promptly.
	pollInterval = flag.Duration("poll-interval", 10*time.Millisecond, "Processing loop tick")
)

// devFixtureFrame builds the frame the mock sensor replays in dev mode: one
// target about 1.5m out, approaching slowly.
func devFixtureFrame() []byte {
	frame := make([]byte, rd03.FrameLength)
	frame[0] = rd03.HeadSingle
	frame[1] = rd03.HeadFixed
	frame[2] = 1
	binary.LittleEndian.PutUint16(frame[4:], 0x0200+250)  // x = 250mm
	binary.LittleEndian.PutUint16(frame[6:], 0x8000+1480) // y = 1480mm
	binary.LittleEndian.PutUint16(frame[8:], 0x8000+18)   // speed = -18 (approaching)
	binary.LittleEndian.PutUint16(frame[10:], 4)          // gate
	frame[28] = rd03.FootA
	frame[29] = rd03.FootB
	return frame
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *port == "" && !*devMode {
		log.Fatal("Serial port is required")
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

	var sensor serialmux.SerialMuxInterface
	if *devMode {
		sensor = serialmux.NewMockSerialMux(devFixtureFrame())
	} else {
		var err error
		sensor, err = serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baud})
		if err != nil {
			log.Fatalf("failed to open sensor port: %v", err)
		}
	}
	defer sensor.Close()

	if err := sensor.Initialize(tuning.GetMultiTarget()); err != nil {
		log.Fatalf("failed to initialize sensor: %v", err)
	}
	log.Printf("sensor initialized (multi_target=%v)", tuning.GetMultiTarget())

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *migrations != "" {
		if err := database.MigrateUp(*migrations); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		if version, dirty, err := database.MigrateVersion(*migrations); err == nil {
			log.Printf("database schema version %d (dirty=%v)", version, dirty)
		}
	}

	session, err := database.BeginSession()
	if err != nil {
		log.Fatalf("failed to begin session: %v", err)
	}
	log.Printf("session %s", session)

	mode := track.ModeSingleTarget
	if tuning.GetMultiTarget() {
		mode = track.ModeMultiTarget
	}
	tracker := track.New(track.Config{
		MinDistanceM: tuning.GetMinDistanceM(),
		MinSpeed:     tuning.GetMinSpeed(),
		Smoothing:    tuning.GetEnableFiltering(),
		AngleEnabled: tuning.GetEnableAngle(),
		IdleTimeout:  tuning.GetIdleTimeout(),
	})

	recordSink := pipeline.ReportSinkFunc(func(r track.Report) {
		if err := database.RecordReport(session, r); err != nil {
			log.Printf("failed to record report: %v", err)
		}
	})
	emitter := pipeline.NewEmitter(tuning.GetOutputInterval(), recordSink)

	source := &pipeline.ChunkBuffer{}
	proc := pipeline.New(source, tracker, emitter, &pipeline.Stats{}, pipeline.Options{
		Mode:              mode,
		MaxFramesPerCycle: tuning.GetMaxFramesPerCycle(),
		OutputInterval:    tuning.GetOutputInterval(),
		FrameTimeout:      tuning.GetFrameTimeout(),
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensor.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the sensor byte stream and buffer it for the processing
	// loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := sensor.Subscribe()
		defer sensor.Unsubscribe(id)
		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					log.Print("subscribe routine terminated")
					return
				}
				source.Push(chunk)
			case <-ctx.Done():
				log.Print("subscribe routine terminated")
				return
			}
		}
	}()

	// processing loop: one Poll per tick on a single goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(*pollInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				proc.Poll(now)
			case <-ctx.Done():
				log.Print("processing routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(proc, sensor, database, tuning).ServeMux()
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
