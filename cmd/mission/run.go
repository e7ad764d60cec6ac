package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/command"
	"github.com/ChristopherRabotin/missionseq/ephem"
	"github.com/ChristopherRabotin/missionseq/frame"
	"github.com/ChristopherRabotin/missionseq/internal/logs"
	"github.com/ChristopherRabotin/missionseq/internal/observability"
	"github.com/ChristopherRabotin/missionseq/publish"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readOptions(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		rep, runErr := execute(ctx, opts, cmd.OutOrStdout())
		if rep != nil && opts.report != "" {
			if err := rep.write(opts.report); err != nil {
				return errors.Join(runErr, err)
			}
		}
		return runErr
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the scenario builds a well formed sequence",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readOptions(cmd)
		if err != nil {
			return err
		}
		s, err := loadScenario(opts.scenario)
		if err != nil {
			return err
		}
		eph, err := ephem.New(opts.config.Ephemeris)
		if err != nil {
			return err
		}
		if closer, ok := eph.(io.Closer); ok {
			defer closer.Close()
		}
		m, err := s.build(opts.config, eph)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d commands, %d participants, %d locators\n", s.Mission.Name, m.seq.Len(), len(m.store.Names()), len(m.locators))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd, validateCmd)
	runCmd.Flags().StringP("report", "r", "", "write the YAML report of the run to this file")
	runCmd.Flags().String("metrics-addr", "", "serve the prometheus metrics on this address during the run")
	runCmd.Flags().StringP("export", "e", "", "write every propagated stream as CSV into this directory")
}

type options struct {
	scenario    string
	report      string
	metricsAddr string
	export      string
	config      missionseq.Config
}

func readOptions(cmd *cobra.Command) (options, error) {
	var opts options
	opts.scenario, _ = cmd.Flags().GetString("scenario")
	if opts.scenario == "" {
		return opts, fmt.Errorf("%w: no scenario provided", missionseq.ErrConfig)
	}
	if cmd.Flags().Lookup("report") != nil {
		opts.report, _ = cmd.Flags().GetString("report")
		opts.metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		opts.export, _ = cmd.Flags().GetString("export")
	}
	var err error
	if dir, _ := cmd.Flags().GetString("config"); dir != "" {
		opts.config, err = missionseq.LoadConfig(dir)
	} else {
		opts.config, err = missionseq.Settings()
	}
	return opts, err
}

// execute runs the scenario and returns its report, also when the run itself failed.
func execute(ctx context.Context, opts options, out io.Writer) (rep *report, err error) {
	cfg := opts.config
	logger := logs.New(out, cfg.Logging.Format, cfg.Logging.Level)
	s, err := loadScenario(opts.scenario)
	if err != nil {
		return nil, err
	}
	eph, err := ephem.New(cfg.Ephemeris)
	if err != nil {
		return nil, err
	}
	if closer, ok := eph.(io.Closer); ok {
		defer closer.Close()
	}
	m, err := s.build(cfg, eph)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return nil, err
	}
	if opts.metricsAddr != "" {
		shutdown, err := serveMetrics(opts.metricsAddr, reg, logger)
		if err != nil {
			return nil, err
		}
		defer shutdown()
	}

	rec := publish.NewRecorder()
	pubs := publish.Multi{rec, publish.NewLogPublisher(logs.Subsystem(logger, "publish"))}
	if opts.export != "" {
		exporter, err := publish.NewCSVExporter(opts.export)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", missionseq.ErrConfig, err)
		}
		defer func() {
			if cerr := exporter.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
		pubs = append(pubs, exporter)
	}
	c := command.NewContext(m.store, cfg)
	c.Logger = logger
	c.Metrics = metrics
	c.Publisher = pubs
	c.Transform = frame.NewOriginShift(eph)
	c.Locators = m.locators

	start := time.Now()
	runErr := command.NewSandbox(m.seq, c).Run(ctx)
	level.Info(logs.Subsystem(logger, "mission")).Log("scenario", s.Mission.Name, "run", rec.Run(), "events", m.table.Len(), "published", rec.Count(), "duration", time.Since(start))
	return newReport(s.Mission.Name, rec, m, runErr), runErr
}

func serveMetrics(addr string, reg *prometheus.Registry, logger kitlog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: metrics address: %s", missionseq.ErrConfig, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("subsys", "metrics", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
