// Command survival-report scores survival model predictions against
// censored datasets, serves the evaluation API, and renders reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/survival.report/internal/api"
	"github.com/banshee-data/survival.report/internal/comm"
	"github.com/banshee-data/survival.report/internal/comm/wscomm"
	"github.com/banshee-data/survival.report/internal/config"
	"github.com/banshee-data/survival.report/internal/dataset"
	"github.com/banshee-data/survival.report/internal/db"
	"github.com/banshee-data/survival.report/internal/monitoring"
	"github.com/banshee-data/survival.report/internal/report"
	"github.com/banshee-data/survival.report/internal/security"
	"github.com/banshee-data/survival.report/internal/survival"
	"github.com/banshee-data/survival.report/internal/version"
)

const usageText = `usage: survival-report <command> [flags]

commands:
  serve       run the evaluation API server
  evaluate    score a prediction file against a dataset
  coordinate  host the reduction endpoint for multi-process evaluation
  report      render the scale sweep report for a dataset
  migrate     manage the run store schema
  version     print build information

Run 'survival-report <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(os.Args[2:])
	case "evaluate":
		evaluateCmd(os.Args[2:])
	case "coordinate":
		coordinateCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "migrate":
		migrateCmd(os.Args[2:])
	case "version":
		fmt.Printf("survival-report %s\n", version.String())
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}
}

// loadConfig reads the config file when given, otherwise returns an empty
// config whose getters answer the defaults.
func loadConfig(path string) *config.EvalConfig {
	if path == "" {
		return config.EmptyEvalConfig()
	}
	cfg, err := config.LoadEvalConfig(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file (flags override its values)")
	listen := fs.String("listen", "", "HTTP listen address")
	dbFile := fs.String("db", "", "Path to the SQLite run store")
	dataDirs := fs.String("data-dirs", "", "Comma-separated directories the report endpoint may read")
	unitsFlag := fs.String("units", "", "Time unit of request bounds")
	distribution := fs.String("distribution", "", "Default AFT residual distribution (normal, logistic, extreme)")
	scale := fs.String("scale", "", "Default AFT distribution scale")
	dev := fs.Bool("dev", false, "Run in dev mode (read migrations from disk)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *listen == "" {
		*listen = cfg.GetListenAddr()
	}
	if *dbFile == "" {
		*dbFile = cfg.GetDBPath()
	}
	if *unitsFlag == "" {
		*unitsFlag = cfg.GetUnits()
	}
	dirs := cfg.DataDirs
	if *dataDirs != "" {
		dirs = strings.Split(*dataDirs, ",")
	}

	opts := cfg.MetricOptions()
	if *distribution != "" {
		opts[survival.OptDistribution] = *distribution
	}
	if *scale != "" {
		opts[survival.OptScale] = *scale
	}
	defaults, err := survival.AFTParamsFromOptions(opts)
	if err != nil {
		log.Fatalf("invalid metric defaults: %v", err)
	}

	db.DevMode = *dev
	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer database.Close()

	server := api.NewServer(database, defaults, *unitsFlag, dirs)
	mux := server.ServeMux()
	database.AttachAdminRoutes(mux)

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("survival-report %s listening on %s (run store %s)", version.Version, *listen, *dbFile)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := httpServer.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("graceful shutdown complete")
}

func evaluateCmd(args []string) {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file (flags override its values)")
	dataPath := fs.String("data", "", "Dataset CSV: label_lower_bound,label_upper_bound[,weight]")
	predsPath := fs.String("preds", "", "Predictions CSV, one log time per row")
	metricName := fs.String("metric", "", "Metric to evaluate")
	distribution := fs.String("distribution", "", "AFT residual distribution (normal, logistic, extreme)")
	scale := fs.String("scale", "", "AFT distribution scale")
	unitsFlag := fs.String("units", "", "Time unit of the dataset bounds")
	workers := fs.Int("workers", 0, "In-process evaluation workers")
	splitFlag := fs.String("split", "", "Partition mode for multi-worker runs (row, col; default row)")
	coordinatorURL := fs.String("coordinator", "", "Coordinator URL for multi-process evaluation")
	rank := fs.Int("rank", 0, "This worker's rank when joining a coordinator")
	world := fs.Int("world", 0, "Total worker count when joining a coordinator")
	save := fs.Bool("save", false, "Record the run in the run store")
	dbFile := fs.String("db", "", "Path to the SQLite run store (with -save)")
	jsonOut := fs.Bool("json", false, "Print the result as JSON")
	fs.Parse(args)

	if *dataPath == "" || *predsPath == "" {
		log.Fatal("evaluate requires -data and -preds")
	}

	cfg := loadConfig(*configPath)
	if *metricName == "" {
		*metricName = cfg.GetMetric()
	}
	if *unitsFlag == "" {
		*unitsFlag = cfg.GetUnits()
	}
	if *workers == 0 {
		*workers = cfg.GetWorkers()
	}

	mode := cfg.GetSplit()
	if *splitFlag != "" {
		var err error
		mode, err = dataset.ParseSplitMode(*splitFlag)
		if err != nil {
			log.Fatalf("invalid -split: %v", err)
		}
	}

	metric, err := survival.NewMetric(*metricName)
	if err != nil {
		log.Fatalf("invalid -metric: %v", err)
	}
	opts := cfg.MetricOptions()
	if *distribution != "" {
		opts[survival.OptDistribution] = *distribution
	}
	if *scale != "" {
		opts[survival.OptScale] = *scale
	}
	if err := metric.Configure(opts); err != nil {
		log.Fatalf("invalid metric options: %v", err)
	}

	ds, err := dataset.ReadFile(*dataPath, dataset.Options{Units: *unitsFlag})
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	preds, err := dataset.ReadPredictionsFile(*predsPath)
	if err != nil {
		log.Fatalf("failed to load predictions: %v", err)
	}
	if len(preds) != ds.NumRows() {
		log.Fatalf("%d predictions for %d dataset rows", len(preds), ds.NumRows())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	size := *workers
	if *coordinatorURL != "" {
		size = *world
	}
	if size > 1 && mode == dataset.SplitNone {
		mode = dataset.SplitRow
	}

	start := time.Now()
	var value float64
	switch {
	case *coordinatorURL != "":
		value, err = evaluateRemote(ctx, metric, ds, preds, *coordinatorURL, *rank, *world, mode)
	case *workers > 1:
		value, err = evaluateParallel(ctx, metric, ds, preds, *workers, mode)
	default:
		value, err = metric.Evaluate(ctx, preds, ds, nil)
	}
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	durationMs := time.Since(start).Milliseconds()

	summary, err := dataset.Summarize(ds)
	if err != nil {
		log.Fatalf("failed to summarize dataset: %v", err)
	}
	log.Printf("dataset %s: %s", ds.Name, summary)

	resp := &api.EvaluateResponse{
		Metric:      metric.Name(),
		Value:       value,
		Rows:        summary.Rows,
		TotalWeight: summary.TotalWeight,
		Summary:     &summary,
		DurationMs:  durationMs,
	}

	if *save {
		if *dbFile == "" {
			*dbFile = cfg.GetDBPath()
		}
		database, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer database.Close()

		run := &db.EvalRun{
			Dataset:     ds.Name,
			Metric:      metric.Name(),
			Split:       mode.String(),
			Workers:     size,
			RowCount:    summary.Rows,
			TotalWeight: summary.TotalWeight,
			Value:       value,
			DurationMs:  durationMs,
		}
		if aft, ok := metric.(*survival.AFTNegLogLik); ok {
			run.Distribution = aft.Params().Distribution.String()
			run.Scale = aft.Params().Scale
		}
		if err := database.InsertRun(run); err != nil {
			log.Fatalf("failed to save run: %v", err)
		}
		resp.RunID = run.RunID
		log.Printf("✓ saved run %s", run.RunID)
	}

	if *jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
		return
	}
	fmt.Printf("%s = %.6f (%d rows, %dms)\n", metric.Name(), value, summary.Rows, durationMs)
}

// shardFor cuts one rank's view of the dataset and predictions.
func shardFor(ds *dataset.Dataset, preds []float64, rank, size int, mode dataset.SplitMode) (*dataset.Dataset, []float64, error) {
	switch mode {
	case dataset.SplitRow:
		shard, err := ds.RowShard(rank, size)
		if err != nil {
			return nil, nil, err
		}
		n := len(preds)
		return shard, preds[rank*n/size : (rank+1)*n/size], nil
	case dataset.SplitCol:
		shard, err := ds.ColShard(rank, size)
		if err != nil {
			return nil, nil, err
		}
		return shard, preds, nil
	default:
		return nil, nil, fmt.Errorf("split mode %s cannot be partitioned across %d workers", mode, size)
	}
}

// evaluateParallel fans the evaluation across in-process workers joined by
// a local reduction group. Any worker failure cancels the rest so nobody
// blocks on a reduction round that will never complete.
func evaluateParallel(ctx context.Context, metric survival.Metric, ds *dataset.Dataset, preds []float64, workers int, mode dataset.SplitMode) (float64, error) {
	peers, err := comm.NewLocalGroup(workers)
	if err != nil {
		return 0, err
	}

	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	values := make([]float64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for rank := 0; rank < workers; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			shard, shardPreds, err := shardFor(ds, preds, rank, workers, mode)
			if err != nil {
				errs[rank] = err
				cancel()
				return
			}
			values[rank], errs[rank] = metric.Evaluate(evalCtx, shardPreds, shard, peers[rank])
			if errs[rank] != nil {
				cancel()
			}
		}(rank)
	}
	wg.Wait()

	// Report the root cause, not the cancellations it triggered.
	for _, workerErr := range errs {
		if workerErr != nil && !errors.Is(workerErr, context.Canceled) {
			return 0, workerErr
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, workerErr := range errs {
		if workerErr != nil {
			return 0, workerErr
		}
	}
	return values[0], nil
}

// evaluateRemote joins a coordinator as one rank of a multi-process group
// and scores this rank's shard. Every rank prints the same reduced value.
func evaluateRemote(ctx context.Context, metric survival.Metric, ds *dataset.Dataset, preds []float64, coordinatorURL string, rank, world int, mode dataset.SplitMode) (float64, error) {
	if world < 2 {
		return 0, fmt.Errorf("-world must be at least 2 when joining a coordinator, got %d", world)
	}
	worker, err := wscomm.Dial(ctx, coordinatorURL, rank, world)
	if err != nil {
		return 0, fmt.Errorf("failed to join coordinator: %w", err)
	}
	defer worker.Close()
	log.Printf("joined %s as rank %d of %d", coordinatorURL, rank, world)

	shard, shardPreds, err := shardFor(ds, preds, rank, world, mode)
	if err != nil {
		return 0, err
	}
	return metric.Evaluate(ctx, shardPreds, shard, worker)
}

func coordinateCmd(args []string) {
	fs := flag.NewFlagSet("coordinate", flag.ExitOnError)
	listen := fs.String("listen", ":7171", "Listen address for worker connections")
	world := fs.Int("world", 2, "Number of workers to coordinate")
	debug := fs.Bool("debug", false, "Log per-round reduction traffic")
	fs.Parse(args)

	monitoring.SetDebug(*debug)
	coordinator := wscomm.NewCoordinator(*world)
	httpServer := &http.Server{Addr: *listen, Handler: coordinator}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("reduction coordinator for %d workers on %s", *world, *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start coordinator: %v", err)
		}
	}()

	<-ctx.Done()
	coordinator.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("coordinator shutdown error: %v", err)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dataPath := fs.String("data", "", "Dataset CSV: label_lower_bound,label_upper_bound[,weight]")
	predsPath := fs.String("preds", "", "Predictions CSV, one log time per row")
	unitsFlag := fs.String("units", "", "Time unit of the dataset bounds")
	scalesFlag := fs.String("scales", "", "Comma-separated scales to sweep (default built-in grid)")
	out := fs.String("o", "sweep.html", "Output path for the sweep chart")
	cards := fs.String("cards", "", "Directory for per-family distribution card PNGs")
	fs.Parse(args)

	if *dataPath == "" || *predsPath == "" {
		log.Fatal("report requires -data and -preds")
	}

	ds, err := dataset.ReadFile(*dataPath, dataset.Options{Units: *unitsFlag})
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	preds, err := dataset.ReadPredictionsFile(*predsPath)
	if err != nil {
		log.Fatalf("failed to load predictions: %v", err)
	}

	var scales []float64
	if *scalesFlag != "" {
		for _, field := range strings.Split(*scalesFlag, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				log.Fatalf("invalid scale %q", field)
			}
			scales = append(scales, v)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweep, err := report.RunScaleSweep(ctx, ds, preds, scales)
	if err != nil {
		log.Fatalf("scale sweep failed: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *out, err)
	}
	if err := report.RenderSweepHTML(f, sweep); err != nil {
		f.Close()
		log.Fatalf("failed to render sweep: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to write %s: %v", *out, err)
	}
	log.Printf("✓ wrote %s (best %s @ scale %g: %.4f)", *out, sweep.Best.Distribution, sweep.Best.Scale, sweep.BestLoss)

	if *cards != "" {
		if err := os.MkdirAll(*cards, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", *cards, err)
		}
		base := security.SanitizeFilename(ds.Name)
		for i, family := range sweep.Families {
			path := filepath.Join(*cards, fmt.Sprintf("%s-%s.png", base, family))
			if err := report.SaveDistributionCard(family, bestScaleFor(sweep, i), path); err != nil {
				log.Fatalf("failed to render %s card: %v", family, err)
			}
			log.Printf("✓ wrote %s", path)
		}
	}
}

// bestScaleFor returns the scale with the lowest loss for one family row
// of the sweep.
func bestScaleFor(sweep *report.SweepResult, family int) float64 {
	best := 0
	for j := range sweep.Scales {
		if sweep.Loss[family][j] < sweep.Loss[family][best] {
			best = j
		}
	}
	return sweep.Scales[best]
}

func migrateCmd(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbFile := fs.String("db", "survival.db", "Path to the SQLite run store")
	dev := fs.Bool("dev", false, "Read migrations from disk instead of the embedded copies")
	fs.Parse(args)

	db.DevMode = *dev
	db.RunMigrateCommand(fs.Args(), *dbFile)
}
