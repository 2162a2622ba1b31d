package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom-monitor/internal/api"
	"classroom-monitor/internal/capability/remote"
	"classroom-monitor/internal/capability/speech"
	"classroom-monitor/internal/capture"
	"classroom-monitor/internal/classroom"
	"classroom-monitor/internal/enrollment"
	"classroom-monitor/internal/platform/config"
	"classroom-monitor/internal/platform/logger"
	"classroom-monitor/internal/platform/metrics"
	"classroom-monitor/internal/presence"
	"classroom-monitor/internal/report"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	events, err := classroom.NewEventLog(cfg.ReportsDir, cfg.SessionLogPath)
	if err != nil {
		log.Error("event log init failed", "error", err)
		os.Exit(1)
	}

	inference, err := remote.Dial(cfg.InferenceAddr, cfg.InferenceTimeout)
	if err != nil {
		log.Error("inference client init failed", "error", err)
		os.Exit(1)
	}
	defer inference.Close()
	caps := inference.Capabilities()

	if det, closeDet, err := localFaceDetector(cfg); err != nil {
		log.Error("local face detector init failed", "error", err)
		os.Exit(1)
	} else if det != nil {
		defer closeDet()
		caps.Faces = det
		log.Info("using in-process face detector", "models_dir", cfg.FaceModelsDir)
	}

	var speaker classroom.Speaker
	if cmd, err := speech.NewCommand(cfg.SpeechCommand); err != nil {
		log.Warn("speech command unavailable, alerts go to the log", "command", cfg.SpeechCommand, "error", err)
		speaker = speech.NewLogger(log)
	} else {
		speaker = cmd
	}

	open := sourceOpener(cfg.CaptureURL, cfg.CaptureDevice)

	monCfg := classroom.DefaultMonitorConfig()
	monCfg.AlertCooldown = cfg.AlertCooldown
	monCfg.LogInterval = cfg.LogInterval
	monCfg.AlertQueueSize = cfg.AlertQueueSize
	monCfg.Coordinator.DetectionScale = cfg.DetectionScale
	monCfg.Coordinator.JPEGQuality = cfg.JPEGQuality

	store := enrollment.NewStore(cfg.FaceDataDir, caps.Faces, events, log)
	resolver := classroom.NewResolver(nil, cfg.MatchTolerance)
	mon := classroom.NewMonitor(open, caps, resolver, store, events, speaker, monCfg, log, met)

	if _, err := mon.Reload(appCtx); err != nil {
		log.Warn("initial gallery load failed", "error", err)
	}

	if cfg.RedisAddr != "" {
		client, err := presence.Connect(appCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("presence mirror disabled", "error", err)
		} else {
			defer client.Close()
			go presence.NewMirror(client, mon, cfg.PresenceInterval, log).Run(appCtx)
			log.Info("presence mirror started", "redis_addr", cfg.RedisAddr)
		}
	}

	var teacherFeed api.Streamer
	if cfg.TeacherCameraEnabled() {
		teacherOpen := sourceOpener(cfg.TeacherCaptureURL, cfg.TeacherCaptureDevice)
		teacherFeed = classroom.NewRelay(teacherOpen, classroom.DefaultRelayCaption, cfg.JPEGQuality, log)
	}

	h := api.NewHandler(api.Deps{
		Monitor:     mon,
		TeacherFeed: teacherFeed,
		Enroller:    store,
		Reports:     report.NewReader(cfg.ReportsDir, "/reports/files"),
		Events:      events,
		Health:      inference,
		Log:         log,
		Metrics:     met,
	})

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetEnrolled(mon.Enrolled()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	// Request contexts derive from appCtx so open video feeds end on shutdown.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return appCtx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"inference_addr", cfg.InferenceAddr,
		"capture_url", cfg.CaptureURL,
		"capture_device", cfg.CaptureDevice,
		"teacher_camera", cfg.TeacherCameraEnabled(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// sourceOpener reads an MJPEG camera when url is set and a local device otherwise.
func sourceOpener(url string, device int) classroom.SourceOpener {
	return func(ctx context.Context) (classroom.FrameSource, error) {
		if url != "" {
			src, err := capture.OpenMJPEG(ctx, url, nil)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
		return openDevice(device)
	}
}
