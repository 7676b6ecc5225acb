package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/snestrace/internal/admin"
	"github.com/danmuck/snestrace/internal/annotation"
	"github.com/danmuck/snestrace/internal/config"
	"github.com/danmuck/snestrace/internal/livesession"
	"github.com/danmuck/snestrace/internal/romstore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// defaultROMSize sizes the store when no ROM image is given: 4 MiB covers
// every LoROM and HiROM layout.
const defaultROMSize = 0x400000

type connectOptions struct {
	configPath string
	host       string
	port       int
	romPath    string
	mapMode    string
	adminAddr  string
	attempts   int
	comments   bool
	report     string
}

func connectCmd() *cobra.Command {
	var opts connectOptions

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Stream a live trace session into the annotation store",
		Long: `Connect to the emulator, import trace events until interrupted or the
emulator closes the session, then print the session report.

Examples:
  tracectl connect --rom game.sfc
  tracectl connect --config tracectl.toml --report yaml
  tracectl connect --host 10.0.0.5 --port 1234 --admin 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConnect(ctx, cfg, opts.report, cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&opts.host, "host", "", "Emulator host (overrides config)")
	flags.IntVarP(&opts.port, "port", "p", 0, "Emulator port (overrides config)")
	flags.StringVar(&opts.romPath, "rom", "", "ROM image to annotate (overrides config)")
	flags.StringVar(&opts.mapMode, "map-mode", "", "ROM mapping: lorom or hirom (overrides config)")
	flags.StringVar(&opts.adminAddr, "admin", "", "Admin HTTP listen address (overrides config)")
	flags.IntVar(&opts.attempts, "attempts", -1, "Connect attempts, 0 retries until interrupted (overrides config)")
	flags.BoolVar(&opts.comments, "comments", false, "Stage trace comments for executed offsets")
	flags.StringVar(&opts.report, "report", "text", "Report format: text or yaml")
	return cmd
}

// resolveConfig layers explicitly set flags over the config file.
func resolveConfig(cmd *cobra.Command, opts connectOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Emulator.Host = strings.TrimSpace(opts.host)
	}
	if flags.Changed("port") {
		cfg.Emulator.Port = opts.port
	}
	if flags.Changed("rom") {
		cfg.ROM.Path = strings.TrimSpace(opts.romPath)
	}
	if flags.Changed("map-mode") {
		mode, err := annotation.ParseMapMode(strings.ToLower(strings.TrimSpace(opts.mapMode)))
		if err != nil {
			return config.Config{}, err
		}
		cfg.ROM.MapMode = mode
	}
	if flags.Changed("admin") {
		cfg.Admin.Listen = strings.TrimSpace(opts.adminAddr)
	}
	if flags.Changed("attempts") {
		cfg.Emulator.MaxConnectAttempts = opts.attempts
	}
	if flags.Changed("comments") {
		cfg.Import.StageTraceComments = opts.comments
	}
	switch opts.report {
	case "text", "yaml":
	default:
		return config.Config{}, fmt.Errorf("unknown report format %q", opts.report)
	}
	return cfg, cfg.Validate()
}

func openStore(cfg config.Config) (*romstore.Store, error) {
	if cfg.ROM.Path == "" {
		log.Warn().Msgf("tracectl.openStore no rom image, using empty %d byte store", defaultROMSize)
		return romstore.New(defaultROMSize, cfg.ROM.MapMode), nil
	}
	return romstore.Load(cfg.ROM.Path, cfg.ROM.MapMode)
}

func runConnect(ctx context.Context, cfg config.Config, format string, cmd *cobra.Command) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	mgr := livesession.New(store, cfg.LiveSession())

	adminErr := make(chan error, 1)
	if cfg.Admin.Listen != "" {
		srv := admin.New(mgr, admin.Options{
			Listen:       cfg.Admin.Listen,
			PushInterval: cfg.Admin.PushInterval,
			Version:      version,
			Token:        cfg.Admin.Token,
		})
		go func() { adminErr <- srv.ListenAndServe(ctx) }()
	}

	started := time.Now()
	if err := mgr.ConnectWithRetry(ctx, cfg.Params(), cfg.Emulator.MaxConnectAttempts); err != nil {
		return fmt.Errorf("connect %s:%d: %w", cfg.Emulator.Host, cfg.Emulator.Port, err)
	}
	remote, _ := mgr.RemoteHandshake()
	fmt.Fprintf(cmd.ErrOrStderr(), "connected to %q at %s:%d, press Ctrl+C to stop\n",
		remote.ROMName, cfg.Emulator.Host, cfg.Emulator.Port)

	reason := "interrupted"
	select {
	case <-ctx.Done():
	case <-mgr.Done():
		reason = "emulator closed session"
	case err := <-adminErr:
		if err != nil {
			log.Error().Msgf("tracectl.runConnect admin server failed err=%v", err)
			reason = "admin server failed"
		}
	}

	state := mgr.State()
	modified := mgr.Disconnect()
	rep := buildReport(store, mgr.CurrentStatistics(), state, reason, time.Since(started))
	rep.BytesModified = modified
	return writeReport(cmd.OutOrStdout(), format, rep)
}
