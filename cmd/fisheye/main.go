// fisheye plays a camera or a looping video through the frame feed, polling
// it from a render loop and serving a live preview over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/teslashibe/go-fisheye/internal/config"
	"github.com/teslashibe/go-fisheye/internal/log"
	"github.com/teslashibe/go-fisheye/pkg/capture"
	_ "github.com/teslashibe/go-fisheye/pkg/capture/opencv"
	"github.com/teslashibe/go-fisheye/pkg/feed"
	"github.com/teslashibe/go-fisheye/pkg/preview"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log.L()); err != nil {
		log.Error("fisheye failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by -config, applies environment
// overrides, then applies flags that were set explicitly.
func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("fisheye", flag.ContinueOnError)

	path := fs.String("config", os.Getenv("FISHEYE_CONFIG"), "Path to a YAML config file")
	source := fs.String("source", "", "Device index (0, 1, ...) or video path/URI")
	backend := fs.String("backend", "", "Capture backend: auto, opencv, mock")
	preset := fs.String("preset", "", fmt.Sprintf("Resolution preset: %v", capture.PresetNames()))
	width := fs.Int("width", 0, "Requested frame width (0 = backend default)")
	height := fs.Int("height", 0, "Requested frame height (0 = backend default)")
	fps := fs.Int("fps", 0, "Requested capture FPS (0 = backend default)")
	poll := fs.Duration("poll-interval", 0, "Acquisition polling interval")
	renderFPS := fs.Int("render-fps", 0, "Render loop rate")
	previewAddr := fs.String("preview-addr", "", "Preview server listen address")
	noPreview := fs.Bool("no-preview", false, "Disable the preview server")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["source"] {
		cfg.Source.Identifier = *source
	}
	if set["backend"] {
		cfg.Source.Backend = capture.Backend(*backend)
	}
	if set["preset"] {
		cfg.Source.Preset = *preset
	}
	if set["width"] {
		cfg.Source.Width = *width
	}
	if set["height"] {
		cfg.Source.Height = *height
	}
	if set["fps"] {
		cfg.Source.FPS = *fps
	}
	if set["poll-interval"] {
		cfg.PollInterval = *poll
	}
	if set["render-fps"] {
		cfg.Render.FPS = *renderFPS
	}
	if set["preview-addr"] {
		cfg.Preview.Addr = *previewAddr
	}
	if *noPreview {
		cfg.Preview.Enabled = false
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	return cfg, cfg.Validate()
}

// run opens the feed and renders until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	f, err := feed.Open(cfg.Source,
		feed.WithPollInterval(cfg.PollInterval),
		feed.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer f.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		feed.NewCollector("fisheye", f, prometheus.Labels{"source": cfg.Source.Identifier}),
	)

	var srv *preview.Server
	if cfg.Preview.Enabled {
		srv = preview.NewServer(preview.Config{
			Addr:        cfg.Preview.Addr,
			FPS:         cfg.Preview.FPS,
			JPEGQuality: cfg.Preview.JPEGQuality,
		}, f, reg, logger)
		srv.StartAsync()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				logger.Warn("preview shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("feed ready",
		"source", cfg.Source.Identifier,
		"backend", f.SourceName(),
		"kind", f.Kind(),
		"geometry", f.Geometry().String(),
	)

	r := newRenderer(f, srv, logger)
	f.Start()
	r.loop(ctx, time.Second/time.Duration(cfg.Render.FPS), cfg.Render.StatsInterval)
	return nil
}
