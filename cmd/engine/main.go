// Command engine runs the ingestion, recognition, and scheduling core in
// one process: ingest.Manager owns ffmpeg-backed RTSP sessions,
// recognition.Worker consumes their frames synchronously, and
// orchestrator.Orchestrator decides which camera/event pairs should be
// ingesting right now. These three pieces share Go channels and function
// closures rather than a message queue, so they cannot usefully live in
// separate processes the way the control-plane API can.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/binding"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/observability"
	"github.com/technosupport/sentinel/internal/orchestrator"
	"github.com/technosupport/sentinel/internal/queue"
	"github.com/technosupport/sentinel/internal/recognition"
	"github.com/technosupport/sentinel/internal/repository"
	"github.com/technosupport/sentinel/internal/storage"
	"github.com/technosupport/sentinel/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting sentinel recognition engine", "cpu_cores", runtime.NumCPU())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := repository.NewPostgres(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	detector, err := vision.NewTimeoutDetector(vision.Config{
		ModelsDir:          cfg.Vision.ModelsDir,
		DetectionThreshold: float32(cfg.Vision.DetectionThreshold),
	}, vision.DefaultCallTimeout)
	if err != nil {
		slog.Error("init vision capability", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	index := annindex.New(store.PersonFaces())
	if err := index.Initialize(ctx); err != nil {
		slog.Warn("ann index initial build failed — recognition will report every face as unknown", "error", err)
	}

	resolver := binding.New(store, time.Now)
	worker := recognition.NewWorker(detector, index, resolver, store, minioStore, producer)
	ingestor := ingest.NewManager()
	defer ingestor.Close()

	orch := orchestrator.New(store, ingestor, worker)
	orch.Start(ctx)
	defer orch.Stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("engine metrics listening", "addr", ":8081")
		if err := http.ListenAndServe(":8081", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down engine...")
	cancel()
	ingestor.StopAll()
	time.Sleep(2 * time.Second)
	slog.Info("engine stopped")
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
