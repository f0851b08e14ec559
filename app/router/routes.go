// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/app/handlers"
	"github.com/amirphl/Tamamo-no-Mae/app/middleware"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/config"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Handlers groups the endpoint handlers the router mounts
type Handlers struct {
	Execution    handlers.CampaignExecutionHandlerInterface
	Notification handlers.NotificationHandlerInterface
	Webhook      handlers.WebhookHandlerInterface
	Unsubscribe  handlers.UnsubscribeHandlerInterface
}

// HealthProbe reports whether a backing dependency is reachable
type HealthProbe func(ctx context.Context) error

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      *config.ProductionConfig
	handlers Handlers
	auth     *middleware.AuthMiddleware
	probes   map[string]HealthProbe
	logger   *zap.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	h Handlers,
	auth *middleware.AuthMiddleware,
	probes map[string]HealthProbe,
	logger *zap.Logger,
) *FiberRouter {
	r := &FiberRouter{
		cfg:      cfg,
		handlers: h,
		auth:     auth,
		probes:   probes,
		logger:   logger,
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "Tamamo no Mae API",
		ServerHeader: "Tamamo-no-Mae",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				OK:      false,
				Reason:  "RATE_LIMIT_EXCEEDED",
				Message: "Too many requests. Please try again later.",
			})
		},
		Next: func(c fiber.Ctx) bool {
			// Provider webhooks arrive in bursts from a handful of IPs
			return c.Path() == healthPath || strings.HasPrefix(c.Path(), "/api/v1/webhooks/")
		},
	}))

	campaigns := api.Group("/campaigns", r.auth.Authenticate(services.RoleOperator))
	campaigns.Post("/:id/execute", r.handlers.Execution.ExecuteCampaign)
	campaigns.Get("/:id/report", r.handlers.Execution.DownloadReport)

	cron := api.Group("/cron", r.auth.Authenticate(services.RoleCron))
	cron.Post("/campaigns/execute-due", r.handlers.Execution.ExecuteDueCampaigns)
	cron.Post("/notifications/process", r.handlers.Notification.ProcessQueue)
	cron.Post("/social/publish-due", r.handlers.Execution.PublishDueSocial)

	webhooks := api.Group("/webhooks")
	webhooks.Post("/email",
		middleware.WebhookBasicAuth(r.cfg.Security.WebhookUsername, r.cfg.Security.WebhookPassword),
		r.handlers.Webhook.EmailEvent,
	)

	api.Get("/newsletter/unsubscribe", r.handlers.Unsubscribe.Unsubscribe)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("routes configured", zap.Bool("metrics", r.cfg.Metrics.Enabled))
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic recovered",
				zap.Any("panic", e),
				zap.Any("request_id", c.Locals("requestid")),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("ip", c.IP()),
			)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'self'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	if len(r.cfg.Security.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.Security.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
				"X-Request-ID",
			},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           r.cfg.Security.CORSMaxAge,
		}))
	}

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// xlsx is already zip compressed
			return strings.HasSuffix(c.Path(), "/report")
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics(r.cfg.Metrics.Path, healthPath))
	}

	if r.cfg.Logging.AccessLog {
		r.app.Use(r.accessLog)
	}
}

// accessLog writes one structured line per request
func (r *FiberRouter) accessLog(c fiber.Ctx) error {
	if c.Path() == healthPath || c.Path() == r.cfg.Metrics.Path {
		return c.Next()
	}

	start := time.Now()
	err := c.Next()

	r.logger.Info("http request",
		zap.Any("request_id", c.Locals("requestid")),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("ip", c.IP()),
		zap.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("latency", time.Since(start)),
		zap.Int("bytes_out", len(c.Response().Body())),
	)
	return err
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("starting server", zap.String("address", address))
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := make(fiber.Map, len(r.probes))
	healthy := true
	for name, probe := range r.probes {
		if err := probe(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := fiber.StatusOK
	resp := dto.APIResponse{
		OK:      healthy,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"service":   "tamamo-no-mae-api",
			"checks":    checks,
		},
	}
	if !healthy {
		status = fiber.StatusServiceUnavailable
		resp.Reason = "DEPENDENCY_UNAVAILABLE"
		resp.Message = "Service is degraded"
	}
	return c.Status(status).JSON(resp)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		OK:      false,
		Reason:  "NOT_FOUND",
		Message: "The requested resource was not found",
		Details: fiber.Map{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": c.Locals("requestid"),
		},
	})
}

// errorHandler renders errors that escaped a handler
func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	reason := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			reason = "REQUEST_ERROR"
		}
	}

	if code >= fiber.StatusInternalServerError {
		r.logger.Error("request failed",
			zap.Int("status", code),
			zap.Error(err),
			zap.Any("request_id", c.Locals("requestid")),
			zap.String("path", c.Path()),
		)
	}

	return c.Status(code).JSON(dto.APIResponse{
		OK:      false,
		Reason:  reason,
		Message: message,
		Details: fiber.Map{
			"timestamp":  utils.UTCNow().Unix(),
			"request_id": c.Locals("requestid"),
		},
	})
}
