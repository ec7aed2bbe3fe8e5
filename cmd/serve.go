package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/andresmejia3/rollcall/internal/capture"
	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/known"
	"github.com/andresmejia3/rollcall/internal/labels"
	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/notify"
	"github.com/andresmejia3/rollcall/internal/pipeline"
	"github.com/andresmejia3/rollcall/internal/preview"
	"github.com/andresmejia3/rollcall/internal/server"
	"github.com/andresmejia3/rollcall/internal/store"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
)

// ServeOptions are the command-line overrides for serve
type ServeOptions struct {
	Listen        string
	KnownDir      string
	Ledger        string
	Source        string
	Device        int
	URL           string
	Threshold     float64
	ProcessEvery  int
	RecordUnknown bool
	Preview       bool
	AutoStart     bool
}

var serveOpts ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the attendance server (start/stop over HTTP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyServeFlags(cmd, Cfg, serveOpts); err != nil {
			return err
		}
		return runServe(cmd.Context(), Cfg, serveOpts.AutoStart)
	},
}

func init() {
	bindServeFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}

func bindServeFlags(cmd *cobra.Command, o *ServeOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.Listen, "listen", "l", ":5500", "HTTP listen address")
	f.StringVarP(&o.KnownDir, "known", "k", "input_images", "Directory of labeled face images (file name = identity)")
	f.StringVarP(&o.Ledger, "ledger", "o", "recognized_faces.csv", "Attendance CSV path")
	f.StringVarP(&o.Source, "source", "s", "device", "Frame source: device or stream")
	f.IntVar(&o.Device, "device", 0, "V4L2 device index (/dev/video<N>)")
	f.StringVarP(&o.URL, "url", "u", "", "Stream URL for --source stream (rtsp://, http://, file)")
	f.Float64VarP(&o.Threshold, "threshold", "t", matcher.DefaultThreshold, "Minimum similarity for a match (higher is stricter)")
	f.IntVarP(&o.ProcessEvery, "process-every", "n", 1, "Analyze every Nth captured frame")
	f.BoolVar(&o.RecordUnknown, "record-unknown", true, "Write Unknown faces to the ledger")
	f.BoolVarP(&o.Preview, "preview", "p", false, "Show an annotated preview window (requires -tags gocv)")
	f.BoolVar(&o.AutoStart, "start", false, "Start attendance immediately")
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts ServeOptions) error {
	set := cmd.Flags().Changed
	if set("listen") {
		cfg.Listen = opts.Listen
	}
	if set("known") {
		cfg.KnownFacesDir = opts.KnownDir
	}
	if set("ledger") {
		cfg.LedgerPath = opts.Ledger
	}
	if set("source") {
		cfg.Source.Kind = opts.Source
	}
	if set("device") {
		cfg.Source.Device = opts.Device
	}
	if set("url") {
		cfg.Source.URL = opts.URL
		if !set("source") {
			cfg.Source.Kind = "stream"
		}
	}
	if set("threshold") {
		cfg.Matcher.Threshold = opts.Threshold
	}
	if set("process-every") {
		cfg.Pipeline.ProcessEvery = opts.ProcessEvery
	}
	if set("record-unknown") {
		cfg.Pipeline.RecordUnknown = opts.RecordUnknown
	}
	if set("preview") {
		cfg.Pipeline.Preview = opts.Preview
	}
	return config.Validate(cfg)
}

// controllerConfig maps the configuration onto the pipeline.
func controllerConfig(cfg *config.Config, an pipeline.Analyzer, ids []types.KnownIdentity, rec pipeline.Recorder) pipeline.Config {
	src := cfg.Source
	pc := pipeline.Config{
		NewSource: func() (capture.Source, error) {
			return capture.NewSource(src.Kind, src.Device, src.URL, capture.Settings{
				BufferSize: src.BufferSize,
				FPS:        src.FPS,
				Width:      src.Width,
				Height:     src.Height,
			})
		},
		Analyzer: an,
		Matcher:  matcher.New(cfg.Matcher.Threshold),
		Known:    ids,
		Recorder: rec,
		Options: pipeline.Options{
			BufferCapacity: cfg.Pipeline.BufferCapacity,
			PopTimeout:     cfg.Pipeline.PopTimeout,
			ProcessEvery:   cfg.Pipeline.ProcessEvery,
			StopTimeout:    cfg.Pipeline.StopTimeout,
			RecordUnknown:  cfg.Pipeline.RecordUnknown,
			Backoff:        src.ReconnectInterval,
			MaxReconnects:  src.MaxReconnects,
		},
	}
	if cfg.Pipeline.Preview {
		pc.NewRenderer = func() (pipeline.Renderer, error) {
			return preview.New("Rollcall")
		}
	}
	return pc
}

func runServe(ctx context.Context, cfg *config.Config, autoStart bool) error {
	// 1. Face backend
	an, err := newAnalyzer(cfg.Analyzer)
	if err != nil {
		utils.ShowError("Failed to start face analyzer", err, nil)
		return err
	}
	defer an.Close()

	// 2. Known identities, read once
	res, err := known.Load(ctx, cfg.KnownFacesDir, an, os.Stderr)
	if err != nil {
		utils.ShowError("Failed to load known faces", err, nil)
		return err
	}
	if len(res.Identities) == 0 {
		fmt.Fprintf(os.Stderr, "⚠️  No known faces loaded from %s, everyone will be Unknown\n", cfg.KnownFacesDir)
	}

	// 3. Ledger and its sinks
	book, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		utils.ShowError("Failed to open attendance ledger", err, nil)
		return err
	}

	hub := notify.NewHub()
	defer hub.Close()
	book.AddSink(hub)

	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	if DB != nil {
		mirror := store.NewMirror(DB, 256)
		go mirror.Run(sinkCtx)
		defer func() {
			stopSinks()
			mirror.Wait()
		}()
		book.AddSink(mirror)
		fmt.Fprintln(os.Stderr, "🗄️  Mirroring attendance to PostgreSQL")
	}

	if cfg.MQTT.Broker != "" {
		pub := notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Format:   cfg.MQTT.Format,
			QoS:      cfg.MQTT.QoS,
		})
		if err := pub.Connect(5 * time.Second); err != nil {
			// The client keeps retrying in the background
			slog.Warn("serve: mqtt not connected yet", "broker", cfg.MQTT.Broker, "err", err)
		}
		defer pub.Disconnect()
		book.AddSink(pub)
		fmt.Fprintf(os.Stderr, "📡 Publishing attendance to %s (%s)\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	// 4. Controller
	ctrl := pipeline.New(controllerConfig(cfg, an, res.Identities, book))

	// 5. HTTP surface
	srvCfg := server.Config{
		Attendance: ctrl,
		Records:    book,
		Feed:       hub.ServeWS,
	}
	if ex := newLabelExtractor(ctx, cfg.Labels); ex != nil {
		srvCfg.Labels = ex
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(srvCfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	fmt.Fprintf(os.Stderr, "✅ Listening on %s with %d known faces\n", cfg.Listen, len(res.Identities))
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if autoStart {
		if _, err := ctrl.Start(); err != nil {
			utils.ShowError("Failed to start attendance", err, nil)
		}
	}

	// 6. Wait for Ctrl+C or a server failure
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\n🛑 Shutting down...")
	case err := <-serveErr:
		if err != nil {
			utils.ShowError("HTTP server failed", err, nil)
			ctrl.Stop()
			return err
		}
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err := ctrl.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		slog.Error("serve: pipeline stop", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("serve: http shutdown", "err", err)
	}

	fmt.Fprintf(os.Stderr, "✨ %d people recorded in %s\n", book.Len(), book.Path())
	return nil
}

// newLabelExtractor returns nil when no API key is configured.
func newLabelExtractor(ctx context.Context, cfg config.LabelsConfig) *labels.Extractor {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		slog.Info("serve: label OCR disabled", "missing_env", cfg.APIKeyEnv)
		return nil
	}
	ocr, err := labels.NewGemini(ctx, key, cfg.Model)
	if err != nil {
		slog.Warn("serve: label OCR disabled", "err", err)
		return nil
	}
	return &labels.Extractor{OCR: ocr, Workbook: cfg.Workbook, SpareParts: cfg.SpareParts}
}
