package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/midi"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

const shutdownTimeout = 5 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the controller",
	Long: `Opens the camera and the MIDI output, then streams hand readings as control
changes until interrupted. The control surface is served over HTTP and, unless
--no-tray is given, in the system tray.`,
	Args: cobra.NoArgs,
	RunE: runController,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)

	// 'run' is the default when no command is given.
	addRunFlags(rootCmd)
	rootCmd.RunE = runCmd.RunE
	rootCmd.Args = cobra.NoArgs
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("port", "", "MIDI output port name")
	cmd.Flags().Bool("virtual", false, "Create a virtual MIDI port instead of opening an existing one")
	cmd.Flags().Int("camera", 0, "Camera device index")
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().Bool("no-tray", false, "Do not show the system tray menu")
	cmd.Flags().Bool("dry-run", false, "Log control changes instead of sending them")
}

// applyRunFlags overrides config values with the flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.MIDI.Port, _ = flags.GetString("port")
	}
	if flags.Changed("virtual") {
		cfg.MIDI.Virtual, _ = flags.GetBool("virtual")
	}
	if flags.Changed("camera") {
		cfg.Camera.Device, _ = flags.GetInt("camera")
	}
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	noTray, _ := cmd.Flags().GetBool("no-tray")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	sink, err := openSink(cfg, dryRun, logger)
	if err != nil {
		return err
	}

	// Try MediaPipe first. Mapping mode still works without it.
	var handDetector detector.Detector
	if mp, err := detector.NewMediaPipeDetector(cfg.DetectionConfig(), logger.With("component", "detector")); err == nil {
		handDetector = mp
		logger.Info("using MediaPipe hand detection")
	} else {
		logger.Warn("MediaPipe not available, hand tracking disabled", "error", err)
		handDetector = detector.NewMockDetector()
	}

	var tr *tray.Tray
	m := metrics.New()

	application, err := app.New(app.Config{
		Controller: cfg.ControllerConfig(),
		FPS:        cfg.Camera.FPS,
	}, app.Deps{
		Camera:   capture.NewCamera(cfg.CaptureConfig()),
		Detector: handDetector,
		Sink:     sink,
		Store:    st,
		Metrics:  m,
		Logger:   logger,
		OnState: func(s controller.State) {
			if tr != nil {
				tr.Update(s)
			}
		},
	})
	if err != nil {
		sink.Close()
		handDetector.Close()
		return err
	}
	defer application.Stop()

	if !noTray {
		tr = tray.New(application.Controller(), logger.With("component", "tray"))
	}

	if err := application.Start(ctx); err != nil {
		return err
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Controller: application.Controller(),
		Hub:        application.Hub(),
		Metrics:    m,
		Logger:     logger.With("component", "server"),

		Calibration: cfg.Calibration,
	})

	serveErr := serve(srv, cfg.Server.Addr, stop, logger)

	if tr != nil {
		tr.OnPreview(func() { openBrowser(previewURL(cfg.Server.Addr), logger) })
		tr.OnQuit(stop)
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		// The tray needs the main goroutine on macOS and returns on Quit.
		tr.Run()
		stop()
	}

	<-ctx.Done()
	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
	default:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http server shutdown", "error", serr)
	}

	return err
}

type listener interface {
	ListenAndServe(addr string) error
}

// serve runs srv in the background. A listen failure is logged and ends the
// run through stop, so a failed bind does not leave the tray up without its
// HTTP surface. The error is delivered before stop is called.
func serve(srv listener, addr string, stop context.CancelFunc, logger *slog.Logger) <-chan error {
	errc := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe(addr)
		errc <- err
		if err != nil {
			logger.Error("http server failed", "addr", addr, "error", err)
			stop()
		}
	}()
	return errc
}

// openSink returns the MIDI output. Failing to open the port is fatal.
func openSink(cfg *config.Config, dryRun bool, logger *slog.Logger) (midi.Sink, error) {
	if dryRun {
		logger.Info("dry run: control changes are logged, not sent")
		return midi.NewLogSink(logger.With("component", "midi")), nil
	}

	port, err := midi.OpenPort(cfg.MIDI.Port, cfg.MIDI.Virtual)
	if err != nil {
		if errors.Is(err, midi.ErrDeviceUnavailable) {
			return nil, fmt.Errorf("%w (run 'mudra ports' to list outputs, or pass --virtual)", err)
		}
		return nil, err
	}
	logger.Info("midi output opened", "port", port.Name(), "virtual", cfg.MIDI.Virtual, "channel", cfg.MIDI.Channel+1)
	return port, nil
}

// previewURL turns a listen address such as ":8080" into a browsable URL.
func previewURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string, logger *slog.Logger) {
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
		logger.Warn("failed to open browser", "url", url, "error", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, config.DirName, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
