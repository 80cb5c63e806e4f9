// Command logfilecheck inspects the metadata journal of an NTFS volume: it
// scans the journal for its restart pages, reports whether the volume was
// shut down cleanly, and can reset the journal after a clean check.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pallassgj/ntfs/core/journal/attr"
	"github.com/pallassgj/ntfs/core/journal/logfile"
	"github.com/pallassgj/ntfs/core/journal/pagecache"
	"github.com/pallassgj/ntfs/pkg/logger"
	"github.com/pallassgj/ntfs/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultPoolSize = 64
	defaultPageSize = 4096
)

// config is the optional YAML configuration file.
type config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	// PoolSize is the number of page frames in the journal page cache.
	PoolSize int `yaml:"pool_size"`
	// PageSize is the page cache granularity in bytes.
	PageSize int `yaml:"page_size"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		Logger:   logger.Config{Level: "info", Format: "console"},
		PoolSize: defaultPoolSize,
		PageSize: defaultPageSize,
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		reset      = flag.Bool("reset", false, "empty the journal after a clean check")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <logfile>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zlog.Sync()

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "logfilecheck"
	}
	_, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		zlog.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer shutdown(context.Background())
	logfile.RegisterMetrics(prometheus.DefaultRegisterer)

	if err := run(zlog, cfg, path, *reset); err != nil {
		zlog.Error("journal check failed", zap.String("path", path), zap.Error(err))
		os.Exit(1)
	}
}

func run(zlog *zap.Logger, cfg config, path string, reset bool) error {
	a, err := attr.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	cache, err := pagecache.New(a, zlog, cfg.PoolSize, cfg.PageSize)
	if err != nil {
		return err
	}
	j := logfile.NewJournal(a, cache, zlog)

	rp, err := j.Check()
	if err != nil {
		return err
	}
	if rp == nil {
		fmt.Println("journal is empty, volume is clean")
	} else {
		zlog.Info("journal checked",
			zap.Int64("restart_page_pos", rp.Pos()),
			zap.Int64("lsn", int64(rp.LSN())),
			zap.Uint32("system_page_size", rp.SystemPageSize()))
		if j.IsClean(rp) {
			fmt.Println("volume is clean")
		} else {
			fmt.Println("volume is dirty, metadata recovery is required")
			if reset {
				return fmt.Errorf("refusing to reset a dirty journal")
			}
			return nil
		}
	}

	if reset {
		if err := j.Empty(); err != nil {
			return err
		}
		fmt.Println("journal reset")
	}
	return nil
}
