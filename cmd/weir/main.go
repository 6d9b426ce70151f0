package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/weirlab/weir/internal/cliconfig"
	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/weir"
	"github.com/weirlab/weir/plugins/spoolclean"
	"github.com/weirlab/weir/plugins/spoolwatch"
)

const helpBanner = `
 █████   ███   █████ ██████████ █████ ███████████
░░███   ░███  ░░███ ░░███░░░░░█░░███ ░░███░░░░░███
 ░███   ░███   ░███  ░███  █ ░  ░███  ░███    ░███
 ░███   ░███   ░███  ░██████    ░███  ░██████████
 ░░███  █████  ███   ░███░░█    ░███  ░███░░░░░███
  ░░░█████░█████░    ░███ ░   █ ░███  ░███    ░███
    ░░███ ░░███      ██████████ █████ █████   █████
     ░░░   ░░░      ░░░░░░░░░░ ░░░░░ ░░░░░   ░░░░░
`

const helpDescription = `
Merge timestamped capture spools into one time-ordered stream with bounded latency.

Highlights:
  - Low-watermark merge keeps the output in timestamp order across sources.
  - A silent source never stalls the stream for longer than --max-buffer-span.
  - Resumes from persisted positions after a restart; nothing shipped twice.
  - Ship over HTTPS or write a local merged spool that can be merged again.

Docs: https://docs.weirlab.io/getting-started
`

var longHelp = strings.TrimSpace(helpBanner) + "\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  weir --spool /var/spool/weir/eth0 --spool /var/spool/weir/eth1 --auth-key <api-key>
  weir --config $HOME/.weir/config.toml --follow
  weir --spool /var/spool/weir/eth0 --out-dir /var/spool/weir/merged --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	cliLog := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "weir",
		Short:   "Merge timestamped capture spools into one time-ordered stream",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.weir/config.toml),
			// then env, then flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment variables (WEIR_*) override file config but are
			// overridden by flags (checked via changed map).
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			// Log configuration (masking the API key)
			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			cliLog.Info().Interface("config", logCfg).Msg("configuration")

			libCfg := weir.Config{
				SpoolDirs:       cfg.SpoolDirs,
				StreamID:        cfg.StreamID,
				ServiceURL:      cfg.ServiceURL,
				AuthKey:         cfg.AuthKey,
				OutDir:          cfg.OutDir,
				StateDir:        cfg.StateDir,
				MaxBufferSpan:   cfg.MaxBufferSpan,
				PollInterval:    cfg.PollInterval,
				SendInterval:    cfg.SendInterval,
				HardInterval:    cfg.HardInterval,
				HTTPTimeout:     cfg.HTTPTimeout,
				MaxBatchBytes:   cfg.MaxBatchBytes,
				MaxSegmentBytes: cfg.MaxSegmentBytes,
				Follow:          cfg.Follow && !cfg.Once,
				Verify:          cfg.Verify,
			}

			var logger weir.Logger
			if cfg.LogFile != "" {
				logger = log.NewRotatingFileAdapter(log.RotationConfig{Path: cfg.LogFile})
			} else {
				logger = log.NewZerologAdapterWithLogger(cliLog)
			}

			opts := []weir.Option{
				weir.WithLogger(logger),
				spoolclean.WithDefaultSpoolCleanup(),
			}
			if libCfg.Follow {
				// Waking on spool writes only matters while tailing.
				opts = append(opts, spoolwatch.WithDefaultSpoolWatcher())
			}
			if cfg.MetricsAddr != "" {
				opts = append(opts, weir.WithMetricsAddr(cfg.MetricsAddr))
			}

			w, err := weir.New(libCfg, opts...)
			if err != nil {
				return fmt.Errorf("create weir: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start weir: %w", err)
			}

			// Detect completion for drain mode.
			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						status := w.Status()
						if status == weir.StateStopped || status == weir.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			select {
			case <-sigCh:
				cliLog.Info().Msg("received signal, stopping...")
			case <-doneCh:
				if w.Status() == weir.StateCrashed {
					cliLog.Error().Msg("weir crashed")
				}
			}

			if err := w.Stop(); err != nil {
				return fmt.Errorf("stop weir: %w", err)
			}
			return nil
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.weir/config.toml)")
	root.Flags().StringSliceVar(&cfg.SpoolDirs, "spool", nil, "spool directory to merge (repeatable)")
	root.Flags().StringVar(&cfg.StreamID, "stream-id", cfg.StreamID, "stream identifier (defaults to hostname)")

	root.Flags().StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, fmt.Sprintf("base service URL (defaults to %s)", cliconfig.DefaultServiceURL))
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")
	root.Flags().StringVar(&cfg.OutDir, "out-dir", cfg.OutDir, "write the merged stream to a local spool instead of shipping")

	root.Flags().DurationVar(&cfg.MaxBufferSpan, "max-buffer-span", cfg.MaxBufferSpan, "latency bound before a flush is forced")
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval when idle")
	root.Flags().DurationVar(&cfg.SendInterval, "send-interval", cfg.SendInterval, "soft send interval")
	root.Flags().DurationVar(&cfg.HardInterval, "hard-interval", cfg.HardInterval, "hard send interval")
	root.Flags().IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum payload bytes per shipment")
	root.Flags().Int64Var(&cfg.MaxSegmentBytes, "max-segment-bytes", cfg.MaxSegmentBytes, "output spool segment rotation size")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for the progress file (defaults to the first spool dir)")
	if err := root.Flags().MarkHidden("state-dir"); err != nil {
		cliLog.Info().Err(err).Msg("failed to hide state-dir flag")
	}
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "expose Prometheus metrics on this address (disabled when empty)")
	root.Flags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write JSON logs to a rotated file instead of stderr")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	root.Flags().BoolVar(&cfg.Follow, "follow", cfg.Follow, "keep waiting for new frames at the end of the spools")
	root.Flags().BoolVar(&cfg.Verify, "verify", cfg.Verify, "verify frame CRCs while reading (debug)")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "merge available frames and exit, even if follow is configured")

	if err := root.Execute(); err != nil {
		cliLog.Error().Err(err).Msg("weir")
		os.Exit(1)
	}
}
