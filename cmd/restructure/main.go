// Command restructure is the CLI entrypoint: it resolves configuration
// from flags and an optional config file, opens every backing store, and
// drives one Orchestrator pass (or a repeating service-mode schedule).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/radarbase/restructure/internal/config"
	"github.com/radarbase/restructure/internal/convert"
	"github.com/radarbase/restructure/internal/filecache"
	"github.com/radarbase/restructure/internal/lock"
	"github.com/radarbase/restructure/internal/logging"
	"github.com/radarbase/restructure/internal/metrics"
	"github.com/radarbase/restructure/internal/objectstore"
	"github.com/radarbase/restructure/internal/offsetstore"
	"github.com/radarbase/restructure/internal/orchestrator"
	"github.com/radarbase/restructure/internal/pathfactory"
	"github.com/radarbase/restructure/internal/worker"
)

type flags struct {
	nameservice      string
	outputDirectory  string
	format           string
	compression      string
	deduplicate      bool
	numThreads       int
	cacheSize        int
	maxFilesPerTopic int
	excludeTopics    []string
	service          bool
	interval         int
	tmpDir           string
	lockDirectory    string
	configFile       string
	progress         bool
	printTiming      bool
	logFormat        string
	logLevel         string
	metricsAddr      string
}

func main() {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "restructure [input-paths...]",
		Short: "Restructure Avro HDFS/object-store topics into CSV or JSON-Lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.nameservice, "nameservice", "n", "", "HDFS nameservice (HDFS source only)")
	fs.StringVarP(&f.outputDirectory, "output-directory", "o", "", "output directory (required)")
	fs.StringVarP(&f.format, "format", "f", "csv", "output format: csv or json")
	fs.StringVarP(&f.compression, "compression", "c", "none", "output compression: none, gzip, zip")
	fs.BoolVarP(&f.deduplicate, "deduplicate", "d", false, "deduplicate records within a file")
	fs.IntVarP(&f.numThreads, "num-threads", "t", 1, "number of topics processed concurrently")
	fs.IntVarP(&f.cacheSize, "cache-size", "s", 100, "maximum open file handles per topic")
	fs.IntVar(&f.maxFilesPerTopic, "max-files-per-topic", 0, "maximum files scanned per topic per pass (0 = unbounded)")
	fs.StringArrayVar(&f.excludeTopics, "exclude-topic", nil, "topic to exclude (repeatable)")
	fs.BoolVarP(&f.service, "service", "S", false, "run as a repeating service instead of a single pass")
	fs.IntVarP(&f.interval, "interval", "i", 3600, "service mode interval in seconds")
	fs.StringVar(&f.tmpDir, "tmp-dir", "", "temporary directory for in-flight cache files")
	fs.StringVar(&f.lockDirectory, "lock-directory", "", "directory holding the topic lock database")
	fs.StringVarP(&f.configFile, "config-file", "F", "", "path to a YAML configuration file")
	fs.BoolVar(&f.progress, "progress", false, "log per-file progress")
	fs.BoolVar(&f.printTiming, "print-timing", false, "print a read/write/flush timing summary on exit")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.metricsAddr, "metrics-address", "", "address to serve Prometheus /metrics on (empty disables)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, roots []string, f *flags) error {
	cfg := config.Defaults()
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = config.Apply(cfg, config.Overrides{
		Inputs:           roots,
		Nameservice:      f.nameservice,
		OutputDirectory:  f.outputDirectory,
		Format:           f.format,
		Compression:      f.compression,
		Deduplicate:      f.deduplicate,
		NumThreads:       f.numThreads,
		CacheSize:        f.cacheSize,
		MaxFilesPerTopic: f.maxFilesPerTopic,
		ExcludeTopics:    f.excludeTopics,
		Service:          f.service,
		IntervalSeconds:  f.interval,
		TmpDir:           f.tmpDir,
		LockDirectory:    f.lockDirectory,
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.Setup(logging.Config{Format: f.logFormat, Level: f.logLevel})

	if f.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(f.metricsAddr); err != nil {
				log.Error("metrics server exited", "error", err)
			}
		}()
	}
	var met *metrics.Metrics
	if f.metricsAddr != "" {
		met = metrics.Init()
	}

	source, err := objectstore.Open(ctx, objectstore.Config{
		Type: cfg.Source.Type, Dir: firstNonEmpty(cfg.Source.Prefix, "/"),
		Bucket: cfg.Source.Bucket, Endpoint: cfg.Source.Endpoint, Region: cfg.Source.Region,
	})
	if err != nil {
		return fmt.Errorf("restructure: open source store: %w", err)
	}
	defer source.Close()

	target, err := objectstore.Open(ctx, objectstore.Config{
		Type: cfg.Target.Type, Dir: cfg.Paths.Output,
		Bucket: cfg.Target.Bucket, Endpoint: cfg.Target.Endpoint, Region: cfg.Target.Region,
	})
	if err != nil {
		return fmt.Errorf("restructure: open target store: %w", err)
	}
	defer target.Close()

	lockPath := cfg.Paths.LockDirectory
	if lockPath == "" {
		lockPath = cfg.Worker.TmpDir
	}
	locks, err := lock.Open(lockPath+"/locks.bolt", ownerID(), cfg.LockTTL(), log)
	if err != nil {
		return fmt.Errorf("restructure: open lock manager: %w", err)
	}
	defer locks.Close()

	offsetBackend, err := offsetstore.OpenBoltBackend(lockPath + "/offsets.bolt")
	if err != nil {
		return fmt.Errorf("restructure: open offset store backend: %w", err)
	}
	offsets := offsetstore.Open(offsetBackend, log)
	defer offsets.Close()

	converterFactory, ok := convert.Lookup(cfg.Format.Type)
	if !ok {
		return fmt.Errorf("restructure: unknown format %q", cfg.Format.Type)
	}
	compressor, err := filecache.LookupCompressor(cfg.Compression.Type)
	if err != nil {
		return err
	}

	timeBinFormat := pathfactory.Hourly
	if cfg.Topics.TimeBin == "monthly" {
		timeBinFormat = pathfactory.Monthly
	}
	pf := &pathfactory.Factory{
		TimeBinFormat:  timeBinFormat,
		Extension:      converterFactory.Extension(),
		CompressionExt: compressor.Extension(),
	}

	bins := worker.NewBins()
	timer := worker.NewTimer(f.printTiming)

	orch := orchestrator.New(orchestrator.Options{
		Cfg:         cfg,
		Source:      source,
		Target:      target,
		OffsetStore: offsets,
		Locks:       locks,
		Converter:   converterFactory,
		Compressor:  compressor,
		PathFactory: pf,
		Bins:        bins,
		Timer:       timer,
		Metrics:     met,
		Progress:    f.progress,
		Log:         log,
	})

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		log.Info("shutdown requested, finishing in-flight files")
		orch.Close()
	}()

	if cfg.Service.Enabled {
		svc, err := orchestrator.NewService(orch, roots, cfg.ServiceInterval(), log)
		if err != nil {
			return err
		}
		svc.Start()
		<-sigCtx.Done()
		return svc.Stop()
	}

	totals, err := orch.Process(sigCtx, roots)
	if err != nil {
		return err
	}
	log.Info("pass complete", "files", totals.Files, "records", totals.Records, "skipped", totals.Skipped)
	if f.printTiming {
		fmt.Println(timer.Report())
	}
	if err := bins.WriteTo(ctx, target, "bins.csv"); err != nil {
		log.Warn("failed to write bins.csv", "error", err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func ownerID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString())
}
