package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/api/handlers"
	"github.com/technosupport/sentinel/internal/api/ws"
	"github.com/technosupport/sentinel/internal/auth"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/orchestrator"
	"github.com/technosupport/sentinel/internal/queue"
	"github.com/technosupport/sentinel/internal/repository"
	"github.com/technosupport/sentinel/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	Store    repository.Store
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Index    *annindex.Index
	Ingestor *ingest.Manager
	Orch     *orchestrator.Orchestrator
	Hub      *ws.Hub
	// EmbedFn extracts a face embedding from image bytes via the vision capability.
	EmbedFn handlers.EmbedFn
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.Store, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	orgH := handlers.NewOrganizationHandler(cfg.Store)
	v1.POST("/organizations", orgH.Create)
	v1.GET("/organizations/:id", orgH.Get)

	cameraH := handlers.NewCameraHandler(cfg.Store)
	v1.POST("/cameras", cameraH.Create)
	v1.GET("/cameras", cameraH.List)
	v1.GET("/cameras/:id", cameraH.Get)

	personH := handlers.NewPersonHandler(cfg.Store, cfg.MinIO, cfg.Index)
	personH.EmbedFn = cfg.EmbedFn
	v1.POST("/persons", personH.Create)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:id", personH.Get)
	v1.POST("/persons/:id/faces", personH.AddFace)
	v1.GET("/persons/:id/faces", personH.ListFaces)
	v1.DELETE("/persons/:id/faces/:faceId", personH.DeleteFace)
	v1.POST("/detections/:id/promote", personH.PromoteDetection)

	detH := handlers.NewDetectionHandler(cfg.Store, cfg.MinIO, cfg.Index)
	detH.EmbedFn = cfg.EmbedFn
	v1.GET("/detections/:id", detH.Get)
	v1.GET("/detections/:id/image", detH.Image)
	v1.GET("/faces/:faceId/detections", detH.ListByPersonFace)
	v1.POST("/search", detH.Search)

	streamH := handlers.NewStreamHandler(cfg.Store, cfg.Ingestor, cfg.Orch)
	v1.POST("/streams/start/:cameraId", streamH.StartForCamera)
	v1.POST("/streams/stop/:sessionId", streamH.StopSession)
	v1.GET("/streams/status/:sessionId", streamH.SessionStatus)
	v1.GET("/streams/active", streamH.ListActive)
	v1.POST("/streams/cleanup", streamH.Cleanup)

	v1.GET("/face-recognition/camera/:cameraId/status", streamH.CameraFaceRecognitionStatus)
	v1.POST("/face-recognition/camera/:cameraId/start", streamH.StartForCamera)
	v1.POST("/face-recognition/camera/:cameraId/stop", streamH.CameraFaceRecognitionStop)

	eventH := handlers.NewEventHandler(cfg.Store, cfg.Orch)
	v1.POST("/events", eventH.Create)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:id", eventH.Get)
	v1.PATCH("/events/:id/active", eventH.SetActive)
	v1.POST("/events/:id/start", eventH.Start)
	v1.POST("/events/:id/stop", eventH.Stop)

	return r
}
