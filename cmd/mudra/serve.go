package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/bench"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/source"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

type serveOptions struct {
	tray   bool
	enable bool
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Infow("opened database", "path", cfg.DBPath)

	rec := recognizer.New(ctx, cfg.Loader(), cfg.Recognizer(), logger.Named("recognizer"), nil)
	defer rec.Dispose(context.Background())

	src, closeSource := openSource(cfg, logger)
	defer closeSource()

	var plugins *plugin.Manager
	if cfg.PluginDir != "" {
		plugins = plugin.NewManager(cfg.PluginDir, logger.Named("plugin"))
	}

	hub := server.NewHub(logger.Named("ws"))
	pipeline := app.New(app.Config{
		Source:        src,
		Recognizer:    rec,
		Store:         st,
		Publisher:     hub,
		Plugins:       plugins,
		FrameRate:     cfg.FrameRate,
		MinConfidence: cfg.StabilityMinConfidence,
		Logger:        logger.Named("pipeline"),
	})
	if err := pipeline.LoadSettings(); err != nil {
		return err
	}
	if opts.enable {
		pipeline.SetEnabled(true)
	}
	if err := pipeline.DiscoverPlugins(); err != nil {
		logger.Warnw("plugin discovery failed", "dir", cfg.PluginDir, "error", err)
	}

	var t *tray.Tray
	var toggle api.Toggle = pipeline
	if opts.tray {
		t = tray.New(pipeline.IsEnabled(), rec.ReferenceMode())
		toggle = trayToggle{App: pipeline, tray: t}
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Infow("serving dashboard", "dir", staticDir)
	}
	srv := server.New(server.Config{
		StaticDir:  staticDir,
		Recognizer: rec,
		Store:      st,
		Hub:        hub,
		Toggle:     toggle,
		Logger:     logger.Named("http"),
	})

	if err := pipeline.Start(ctx); err != nil {
		return err
	}
	defer pipeline.Stop()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Run(ctx, cfg.Addr)
		stop()
	}()

	if t != nil {
		wireTray(ctx, t, cfg, rec, st, pipeline, stop, logger)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
		stop()
	}

	return <-srvErr
}

// openSource returns the replay source when one is configured and the
// camera otherwise. The returned func releases what openSource created
// beyond the source itself.
func openSource(cfg *config.Config, logger *zap.SugaredLogger) (source.Source, func()) {
	if cfg.ReplayPath != "" {
		logger.Infow("replaying frames", "path", cfg.ReplayPath, "loop", cfg.ReplayLoop)
		return source.NewReplayFile(cfg.ReplayPath, cfg.ReplayLoop), func() {}
	}

	var det detector.Detector
	mp, err := detector.NewMediaPipeDetector(detector.MediaPipeConfig{
		Config:     detector.DefaultConfig(),
		ScriptPath: cfg.ScriptPath,
	}, logger.Named("mediapipe"))
	if err == nil {
		det = mp
		logger.Info("using MediaPipe hand detection")
	} else {
		logger.Warnw("MediaPipe not available, using mock detector", "error", err)
		det = detector.NewMockDetector()
	}

	device := source.NewDevice(cfg.CameraID, cfg.FrameRate)
	cam := source.NewCamera(device, det, source.NewMotionGate(cfg.MotionThresh))
	return cam, func() {
		if err := det.Close(); err != nil {
			logger.Warnw("error closing detector", "error", err)
		}
	}
}

// trayToggle keeps the tray in step with enable changes made over HTTP.
type trayToggle struct {
	*app.App
	tray *tray.Tray
}

func (t trayToggle) SetEnabled(enabled bool) {
	t.App.SetEnabled(enabled)
	t.tray.SetEnabled(enabled)
}

func wireTray(ctx context.Context, t *tray.Tray, cfg *config.Config, rec *recognizer.Recognizer, st *store.Store, pipeline *app.App, quit func(), logger *zap.SugaredLogger) {
	settings := st.Settings()

	t.OnToggle(func(enabled bool) {
		pipeline.SetEnabled(enabled)
		if err := settings.SetBool(store.SettingEnabled, enabled); err != nil {
			logger.Warnw("failed to persist setting", "key", store.SettingEnabled, "error", err)
		}
	})
	t.OnReferenceMode(func(on bool) {
		rec.SetReferenceMode(on)
		if err := settings.SetBool(store.SettingReferenceMode, on); err != nil {
			logger.Warnw("failed to persist setting", "key", store.SettingReferenceMode, "error", err)
		}
	})
	t.OnBenchmark(func() {
		go func() {
			report, err := rec.RunBenchmark(ctx, detector.DiagonalHand(), bench.DefaultIterations)
			if err != nil {
				logger.Warnw("benchmark failed", "error", err)
				return
			}
			if err := st.Benchmarks().Create(store.NewBenchmarkRun(report, rec.Version())); err != nil {
				logger.Warnw("failed to store benchmark", "error", err)
			}
			t.SetBenchmark(tray.BenchmarkSummary(report.Speedup))
		}()
	})
	t.OnDashboard(func() {
		if err := openBrowser("http://" + cfg.Addr); err != nil {
			logger.Warnw("failed to open browser", "error", err)
		}
	})
	t.OnQuit(quit)

	pipeline.OnEmit(func(e store.Emission) {
		t.SetLastGesture(e.Gesture)
	})

	go func() {
		rec.WaitReady(ctx)
		t.SetStatus(string(rec.Status().Status))
	}()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the dashboard in common locations: "web",
// "../web", "../../web" and ~/.mudra/web. It returns "" when none exists.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
