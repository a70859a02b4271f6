package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/annotate"
	"github.com/Vivek9454/FalconEye/internal/camera"
	"github.com/Vivek9454/FalconEye/internal/config"
	"github.com/Vivek9454/FalconEye/internal/detect"
	"github.com/Vivek9454/FalconEye/internal/faces"
	"github.com/Vivek9454/FalconEye/internal/metrics"
	"github.com/Vivek9454/FalconEye/internal/monitor"
	"github.com/Vivek9454/FalconEye/internal/notify"
	"github.com/Vivek9454/FalconEye/internal/pipeline"
	"github.com/Vivek9454/FalconEye/internal/recorder"
	"github.com/Vivek9454/FalconEye/internal/server"
	"github.com/Vivek9454/FalconEye/internal/store"
	"github.com/Vivek9454/FalconEye/internal/upload"
	"github.com/Vivek9454/FalconEye/internal/vision"
	"github.com/Vivek9454/FalconEye/internal/ws"
)

const (
	alertCooldown     = 60 * time.Second
	detectionCooldown = 10 * time.Second
	clipDuration      = 12 * time.Second
	clipFPS           = 10.0
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Main] No .env file loaded: %v", err)
	}

	cfg := config.Load()
	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for databases and settings")
	flag.StringVar(&cfg.ClipDir, "clip-dir", cfg.ClipDir, "directory for recorded clips")
	flag.Parse()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("[Main] Failed to create data dir: %v", err)
	}
	if err := os.MkdirAll(cfg.ClipDir, 0o755); err != nil {
		log.Fatalf("[Main] Failed to create clip dir: %v", err)
	}

	st, err := store.New(filepath.Join(cfg.DataDir, "falconeye.db"))
	if err != nil {
		log.Fatalf("[Main] Failed to open metadata store: %v", err)
	}
	defer st.Close()

	settings := vision.NewStore(filepath.Join(cfg.DataDir, "vision_settings.json"))

	detector := detect.NewClient(detect.ClientConfig{Endpoint: cfg.DetectorURL})
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := detector.CheckHealth(healthCtx); err != nil {
		log.Printf("[Main] Detector not ready yet: %v", err)
	}
	healthCancel()

	// Alerts: shared cooldown table, MQTT delivery when a broker is
	// configured, log-only otherwise.
	cooldowns := alert.NewCooldowns(alertCooldown)
	cooldowns.SetKindWindow(alert.KindDetection, detectionCooldown)

	var sender alert.Sender
	if mqttSender, err := notify.NewMQTTSenderFromEnv("falconeye"); err != nil {
		log.Printf("[Main] MQTT notifications disabled: %v", err)
		sender = alert.SenderFunc(func(title, body string, tags []string) bool {
			log.Printf("[Alert] %s: %s", title, body)
			return true
		})
	} else {
		defer mqttSender.Close()
		sender = mqttSender
	}
	dispatcher := alert.NewDispatcher(sender, cooldowns, 25)

	hub := ws.NewHub()
	dispatcher.AddListener(hub.BroadcastAlert)

	m := metrics.New(hub.ClientCount)

	var uploader *upload.Uploader
	if u, err := upload.NewUploaderFromEnv(st, cfg.ClipDir); err != nil {
		log.Printf("[Main] Cloud sync disabled: %v", err)
	} else {
		uploader = u
	}

	coordinator := recorder.NewCoordinator(recorder.Config{
		OutputDir:     cfg.ClipDir,
		FPS:           clipFPS,
		Detector:      detector,
		Store:         st,
		WriterFactory: recorder.NewFFmpegWriter(),
		Annotate: func(jpegFrame []byte, detections []detect.Detection) []byte {
			boxes := make([]annotate.Box, 0, len(detections))
			for _, d := range detections {
				boxes = append(boxes, annotate.Box{Detection: d})
			}
			return annotate.DrawDetections(jpegFrame, boxes, settings.Snapshot())
		},
		OnClipSaved: func(clip store.ClipMetadata) {
			if uploader != nil {
				uploader.UploadAsync(clip.Filename)
			}
		},
	})

	faceService, faceDB := setupFaces(cfg, filepath.Join(cfg.DataDir, "faces.json"))
	if faceService != nil {
		defer faceService.Close()
	}

	tamper := monitor.NewTamperMonitor(monitor.DefaultTamperThreshold, monitor.DefaultTamperDwell)
	intruder := monitor.NewIntruderMonitor(monitor.IntruderConfig{}, cooldowns)

	loop := pipeline.NewLoop(pipeline.Config{
		Detector:     detector,
		Settings:     settings,
		Tamper:       tamper,
		Intruder:     intruder,
		Dispatcher:   dispatcher,
		Recorder:     coordinator,
		Faces:        faceService,
		Hub:          hub,
		Metrics:      m,
		ClipDuration: clipDuration,
	})

	// Cameras: pick the first reachable profile, start the sources,
	// attach each to the detection loop.
	profile := config.SelectProfile(cfg.Profiles)
	cameras := camera.NewManager()
	for _, camCfg := range profile.Cameras {
		if camCfg.URL == "" {
			continue
		}
		if err := cameras.Start(camCfg); err != nil {
			log.Printf("[Main] Failed to start camera %s: %v", camCfg.ID, err)
			continue
		}
		src, _ := cameras.Source(camCfg.ID)
		if err := loop.Watch(camCfg.ID, src); err != nil {
			log.Printf("[Main] Failed to watch camera %s: %v", camCfg.ID, err)
		}
	}
	defer cameras.StopAll()
	defer loop.Stop()

	// Retry any clips that never made it to the bucket last run.
	if uploader != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			uploader.RetryPending(ctx)
		}()
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: (&server.Server{
			Cameras:    cameras,
			Loop:       loop,
			Detector:   detector,
			Settings:   settings,
			Faces:      faceService,
			FaceDB:     faceDB,
			Store:      st,
			Dispatcher: dispatcher,
			Uploader:   uploader,
			Hub:        hub,
			Metrics:    m,
			ClipDir:    cfg.ClipDir,
		}).Routes(),
	}

	go func() {
		log.Printf("[Main] FalconEye listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Main] HTTP server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("[Main] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] HTTP shutdown: %v", err)
	}
}

// setupFaces wires the recognition service: an external worker process
// when FACE_WORKER_CMD is set, an HTTP encoder when FACE_SERVICE_URL is
// set, otherwise the feature stays off.
func setupFaces(cfg config.Config, dbPath string) (*faces.Service, *faces.DB) {
	db, err := faces.OpenDB(dbPath)
	if err != nil {
		log.Printf("[Main] Face database unavailable: %v", err)
		return nil, nil
	}

	if cfg.FaceWorker != "" {
		worker, err := faces.StartWorker(cfg.FaceWorker)
		if err == nil {
			log.Printf("[Main] Face worker started: %s", cfg.FaceWorker)
			return faces.NewService(worker, db), db
		}
		log.Printf("[Main] Face worker failed to start, trying HTTP encoder: %v", err)
	}

	if url := os.Getenv("FACE_SERVICE_URL"); url != "" {
		log.Printf("[Main] Using HTTP face encoder at %s", url)
		return faces.NewService(faces.NewHTTPEncoder(url), db), db
	}

	log.Printf("[Main] Face recognition disabled (no worker or service configured)")
	return nil, db
}
