// avatarview - Terminal avatar viewer
// Shows a body-scan avatar in the terminal and applies live morphology
// overrides to it.
//
// Controls:
//
//	Mouse drag  - Orbit
//	Scroll      - Zoom in/out
//	1/2/3       - Front / profile / three-quarter view
//	A           - Toggle auto-rotate
//	R           - Reset camera
//	Up/Down     - Select morph parameter
//	Left/Right  - Adjust selected parameter
//	T / Shift+T - Deeper / lighter skin tone
//	G           - Switch gender
//	P           - Toggle projection session
//	F           - Toggle performance mode
//	F5, Ctrl+R  - Retry after an error
//	?           - Toggle HUD
//	Esc         - Quit
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/taigrr/avatarview/internal/config"
	"github.com/taigrr/avatarview/internal/debugserver"
	"github.com/taigrr/avatarview/internal/logger"
	"github.com/taigrr/avatarview/pkg/assets"
	"github.com/taigrr/avatarview/pkg/mapping"
	"github.com/taigrr/avatarview/pkg/pressure"
	"github.com/taigrr/avatarview/pkg/viewer"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "avatarview - Terminal avatar viewer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: avatarview [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nControls:\n")
		fmt.Fprintf(os.Stderr, "  Mouse drag  - Orbit\n")
		fmt.Fprintf(os.Stderr, "  Scroll      - Zoom in/out\n")
		fmt.Fprintf(os.Stderr, "  1/2/3       - Front / profile / three-quarter\n")
		fmt.Fprintf(os.Stderr, "  A           - Toggle auto-rotate\n")
		fmt.Fprintf(os.Stderr, "  R           - Reset camera\n")
		fmt.Fprintf(os.Stderr, "  Up/Down     - Select morph parameter\n")
		fmt.Fprintf(os.Stderr, "  Left/Right  - Adjust parameter\n")
		fmt.Fprintf(os.Stderr, "  T/Shift+T   - Skin tone\n")
		fmt.Fprintf(os.Stderr, "  G           - Switch gender\n")
		fmt.Fprintf(os.Stderr, "  P           - Toggle projection session\n")
		fmt.Fprintf(os.Stderr, "  F           - Toggle performance mode\n")
		fmt.Fprintf(os.Stderr, "  F5          - Retry after an error\n")
		fmt.Fprintf(os.Stderr, "  Esc         - Quit\n")
	}
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// the terminal owns the screen; default logs to a file
	if cfg.Logging.LogFile == "" {
		cfg.Logging.LogFile = filepath.Join(config.ConfigDir(), "avatarview.log")
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("avatarview exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildResolvers(ctx context.Context, cfg *config.Config) (primary, fallback assets.Resolver, err error) {
	switch cfg.Assets.Driver {
	case "s3":
		primary, err = assets.NewS3Resolver(ctx, assets.S3Config{
			Region:          cfg.Assets.S3.Region,
			Bucket:          cfg.Assets.S3.Bucket,
			Endpoint:        cfg.Assets.S3.Endpoint,
			AccessKeyID:     os.Getenv("AVATARVIEW_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AVATARVIEW_S3_SECRET_ACCESS_KEY"),
			PathStyle:       cfg.Assets.S3.PathStyle,
			KeyTemplate:     cfg.Assets.KeyTemplate,
			Expiry:          cfg.Assets.URLExpiry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 resolver: %w", err)
		}
	case "urls":
		primary = assets.StaticResolver(cfg.Assets.URLs)
	default:
		primary = assets.NewDirResolver(cfg.Assets.Dir, cfg.Assets.KeyTemplate)
	}
	if cfg.Assets.FallbackDir != "" {
		fallback = assets.NewDirResolver(cfg.Assets.FallbackDir, cfg.Assets.KeyTemplate)
	}
	return primary, fallback, nil
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	primary, fallback, err := buildResolvers(ctx, cfg)
	if err != nil {
		return err
	}
	fetcher, err := assets.NewFetcher(assets.FetcherOptions{
		Client:       &http.Client{Timeout: cfg.Assets.FetchTimeout},
		CacheEntries: cfg.Assets.CacheEntries,
		Logger:       logger.Named("fetch"),
	})
	if err != nil {
		return fmt.Errorf("fetcher: %w", err)
	}

	monitor := pressure.New(pressure.Options{
		SoftLimit: uint64(cfg.Memory.SoftLimitMB) << 20,
		Interval:  cfg.Memory.PollInterval,
		Logger:    logger.Named("pressure"),
	})
	monitor.Start(ctx)

	reg := prometheus.NewRegistry()
	loop := viewer.NewLoop()
	v, err := viewer.New(viewer.Options{
		Resolver:        primary,
		Fallback:        fallback,
		Fetcher:         fetcher,
		Pressure:        monitor,
		Loop:            loop,
		Logger:          logger.Named("viewer"),
		Registry:        reg,
		Gender:          cfg.Subject.Gender,
		ScanID:          cfg.Subject.ScanID,
		FaceOnly:        cfg.Viewer.FaceOnly,
		PerformanceMode: cfg.Viewer.PerformanceMode,
		SkinTone:        viewer.SkinToneInput{Tone: cfg.Subject.SkinTone},
		AutoRotateSpeed: cfg.Viewer.AutoRotateSpeed,
	})
	if err != nil {
		return err
	}

	onMapping := func(t *mapping.Table, err error) {
		if err != nil {
			logger.Warn("mapping load failed", zap.String("path", cfg.Mapping.Path), zap.Error(err))
			return
		}
		loop.Post(func() { v.SetMapping(t) })
	}
	if cfg.Mapping.Watch {
		if err := mapping.Watch(ctx, cfg.Mapping.Path, onMapping); err != nil {
			logger.Warn("mapping watch unavailable", zap.Error(err))
			onMapping(mapping.Load(cfg.Mapping.Path))
		}
	} else {
		onMapping(mapping.Load(cfg.Mapping.Path))
	}

	if cfg.Debug.Addr != "" {
		srv := debugserver.BuildServer(v.Snapshot, reg, logger.Named("debug"),
			debugserver.WithLogLevel(logger.Level))
		go func() {
			if err := debugserver.Serve(ctx, srv, cfg.Debug.Addr); err != nil {
				logger.Error("debug server", zap.Error(err))
			}
		}()
		logger.Info("debug server listening", zap.String("addr", cfg.Debug.Addr))
	}

	term := uv.DefaultTerminal()
	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	fmt.Fprint(os.Stdout, "\x1b[?1003h") // any-event mouse tracking
	fmt.Fprint(os.Stdout, "\x1b[?1006h") // SGR extended mouse mode

	cleanup := func() {
		fmt.Fprint(os.Stdout, "\x1b[?1003l")
		fmt.Fprint(os.Stdout, "\x1b[?1006l")
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}
	defer cleanup()

	container := newTermContainer(width, height, loop.Post)
	host := newHost(v, cfg)
	v.Mount(container)

	go func() {
		for ev := range term.Events() {
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				w, h := ev.Width, ev.Height
				loop.Post(func() {
					term.Erase()
					term.Resize(w, h)
					container.setSize(w, h)
					v.ContainerResized()
				})
			case uv.KeyPressEvent:
				if ev.MatchString("escape", "ctrl+c") {
					cancel()
					return
				}
				loop.Post(func() { host.key(ev) })
			default:
				container.handle(ev)
			}
		}
	}()

	targetDuration := time.Second / time.Duration(cfg.Viewer.FPS)
	ticker := time.NewTicker(targetDuration)
	defer ticker.Stop()
	lastFrame := time.Now()

	for {
		select {
		case <-ctx.Done():
			loop.Post(v.Unmount)
			loop.RunPending()
			return nil
		case <-loop.Wake():
			loop.RunPending()
			continue
		case <-ticker.C:
		}

		loop.RunPending()

		now := time.Now()
		dt := now.Sub(lastFrame).Seconds()
		lastFrame = now
		if dt > 0.1 {
			dt = 0.1
		}

		host.tick()
		w, h := container.cells()
		area := uv.Rect(0, 0, w, h)
		if fb := v.Frame(dt); fb != nil {
			fb.Draw(term, area)
		} else {
			clearArea(term, area)
		}
		host.drawHUD(term, w, h)

		if err := term.Display(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
	}
}
