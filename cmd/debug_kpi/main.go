package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go-kpi/internal/config"
	"go-kpi/internal/elastic"
	"go-kpi/internal/features/kpi"
	"go-kpi/internal/logger"

	"go.uber.org/zap"
)

func main() {
	kpiID := flag.String("kpi", "", "KPI id to load")
	from := flag.Int64("from", 0, "window start, epoch millis (0 uses the KPI default window)")
	to := flag.Int64("to", 0, "window end, epoch millis (0 is now)")
	timeout := flag.Duration("timeout", time.Minute, "overall load timeout")
	flag.Parse()

	if *kpiID == "" {
		fmt.Fprintln(os.Stderr, "usage: debug_kpi -kpi <id> [-from ms] [-to ms]")
		os.Exit(2)
	}

	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewBaseLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLogger.Sync()

	// 2. Definitions and search client
	registry, err := kpi.LoadRegistryFile(cfg.KPIDefinitionsPath)
	if err != nil {
		log.Fatalf("Failed to load KPI definitions: %v", err)
	}
	def, err := registry.Get(*kpiID)
	if err != nil {
		log.Fatalf("%v", err)
	}

	client, err := elastic.NewClient(cfg.ES, zapLogger)
	if err != nil {
		log.Fatalf("Failed to create search client: %v", err)
	}

	// 3. Load
	loader, err := kpi.NewLoader(client, def, kpi.LoaderOptions{
		Strict:  cfg.StrictAggregations,
		Ambient: kpi.AmbientContext(nil, time.Now(), cfg.JSONDateZone),
		Zone:    cfg.JSONDateZone,
		Logger:  zapLogger.With(zap.String("kpi", def.ID)),
	})
	if err != nil {
		log.Fatalf("Invalid KPI: %v", err)
	}
	if err := loader.SetTimeRange(*from, *to); err != nil {
		log.Fatalf("Invalid time range: %v", err)
	}
	for _, r := range loader.Ranges() {
		fmt.Fprintf(os.Stderr, "range: %s\n", r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := loader.RetrieveData(ctx)
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}

	// 4. Print
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
