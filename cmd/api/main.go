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

	"github.com/nats-io/nats.go"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/api"
	"github.com/technosupport/sentinel/internal/api/handlers"
	"github.com/technosupport/sentinel/internal/api/ws"
	"github.com/technosupport/sentinel/internal/config"
	"github.com/technosupport/sentinel/internal/observability"
	"github.com/technosupport/sentinel/internal/queue"
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
	slog.Info("starting sentinel control-plane API", "port", cfg.Server.Port)

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

	index := annindex.New(store.PersonFaces())
	if err := index.Initialize(ctx); err != nil {
		slog.Warn("ann index initial build failed — search/recognition will see no known faces", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	sub, err := producer.Subscribe(queue.DetectionsSubjectBase+".*", func(msg *nats.Msg) {
		hub.BroadcastRaw(msg.Data)
	})
	if err != nil {
		slog.Warn("subscribe to detection broadcasts failed — live feed disabled", "error", err)
	} else {
		defer sub.Unsubscribe()
	}

	var embedFn handlers.EmbedFn
	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — enrollment/search unavailable", "error", err)
	} else {
		defer ort.DestroyEnvironment()
		capability, err := vision.NewCapability(vision.Config{
			ModelsDir:          cfg.Vision.ModelsDir,
			DetectionThreshold: float32(cfg.Vision.DetectionThreshold),
		})
		if err != nil {
			slog.Warn("vision capability init failed — enrollment/search unavailable", "error", err)
		} else {
			defer capability.Close()
			embedFn = singleFaceEmbedFn(capability)
			slog.Info("vision capability ready for enrollment/search")
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Store:    store,
		MinIO:    minioStore,
		Producer: producer,
		Index:    index,
		Hub:      hub,
		EmbedFn:  embedFn,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// singleFaceEmbedFn adapts vision.Capability.Detect (multi-face) to the
// single-embedding contract enrollment and search need: it requires
// exactly one face in the submitted image and rejects anything else.
func singleFaceEmbedFn(capability *vision.Capability) handlers.EmbedFn {
	return func(imageData []byte) ([]float32, float32, error) {
		result, err := capability.Detect(imageData)
		if err != nil {
			return nil, 0, err
		}
		if len(result.Faces) == 0 {
			return nil, 0, fmt.Errorf("no face detected in image")
		}
		if len(result.Faces) > 1 {
			return nil, 0, fmt.Errorf("image must contain exactly one face, found %d", len(result.Faces))
		}
		face := result.Faces[0]
		return face.Embedding, face.Confidence, nil
	}
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
