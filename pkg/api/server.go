package api

import (
	"encoding/hex"
	"net/http"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/open-teleop/handpose/domain/pose"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/open-teleop/handpose/pkg/transport"
	"github.com/open-teleop/handpose/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOptions carries everything the HTTP surface serves from.
// Nil optional fields disable the routes that need them.
type ServerOptions struct {
	AppName     string
	Logger      customlog.Logger
	Codec       handpose.Codec
	IngestTopic string

	Router        transport.Router
	Poses         *pose.PoseService
	Hub           *pose.Hub
	Director      *processing.MessageDirector
	ConfigService services.StreamConfigService
	Collector     *metrics.Collector

	// AccessLog enables fiber's request logger.
	AccessLog bool
}

// NewApp builds the fiber application with all routes registered.
func NewApp(opts ServerOptions) *fiber.App {
	if opts.Logger == nil {
		opts.Logger = customlog.NewDiscardLogger()
	}
	if opts.AppName == "" {
		opts.AppName = "Hand Pose Relay"
	}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(opts.AppName)
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if opts.Collector != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Collector.Gatherer(), promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")
	if opts.Poses != nil {
		v1.Get("/pose/latest", opts.Poses.GetLatestHandler)
		v1.Get("/pose/sources", opts.Poses.GetStatsHandler)
	}
	v1.Get("/stream/stats", func(c *fiber.Ctx) error {
		return c.JSON(streamStats(opts))
	})
	if opts.Router != nil {
		v1.Post("/pose", submitPoseHandler(opts))
	}

	if opts.ConfigService != nil {
		RegisterConfigRoutes(app, opts.ConfigService, opts.Logger)
	}

	ws := app.Group("/ws")
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if opts.Hub != nil {
		ws.Get("/pose", websocket.New(func(conn *websocket.Conn) {
			PoseViewerHandler(conn, opts.Hub, opts.Logger)
		}))
	}
	if opts.Router != nil {
		ws.Get("/ingest", websocket.New(func(conn *websocket.Conn) {
			IngestWebSocketHandler(conn, opts.IngestTopic, opts.Codec, opts.Router, opts.Collector, opts.Logger)
		}))
	}

	return app
}

func streamStats(opts ServerOptions) StreamStats {
	stats := StreamStats{Sources: []pose.SourceStats{}}
	if opts.Hub != nil {
		stats.Viewers = opts.Hub.Count()
	}
	if opts.Poses != nil {
		stats.Sources = opts.Poses.Stats()
	}
	if opts.Director != nil {
		stats.Topics = opts.Director.TopicRegistry().GetTopicStats()
		stats.Pools = opts.Director.GetPoolMetrics()
	}
	return stats
}

// submitPoseHandler accepts a JSON record and routes it like any other
// producer. The topic defaults to the ingest topic.
func submitPoseHandler(opts ServerOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var submission PoseSubmission
		if err := c.BodyParser(&submission); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid pose body: "+err.Error())
		}
		topic := submission.Topic
		if topic == "" {
			topic = opts.IngestTopic
		}

		env := processing.NewRecordEnvelope(topic, "http:"+c.IP(), opts.Codec, submission.Record)
		if err := opts.Router.RouteMessage(env); err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"topic": topic,
			"wire":  hex.EncodeToString(opts.Codec.Encode(submission.Record)),
		})
	}
}

// customErrorHandler renders errors as JSON.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
