package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
)

const (
	localRequestID = "requestID"
	localSession   = "session"
)

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mt5_http_duration_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"method", "route", "status_code"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mt5_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status_code"})
)

func PrometheusMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := fmt.Sprintf("%d", c.Response().StatusCode())

		httpDuration.WithLabelValues(c.Method(), c.Route().Path, status).Observe(duration)
		httpRequests.WithLabelValues(c.Method(), c.Route().Path, status).Inc()

		return err
	}
}

func RateLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return errorJSON(c, fiber.StatusTooManyRequests, "muitas requisições")
		},
	})
}

func ErrorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		code := fiber.StatusInternalServerError
		message := "erro interno"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.WithContext(c.UserContext()).Error("erro não tratado",
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		return errorJSON(c, code, message)
	}
}

func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("X-Request-ID", requestID)
		c.Locals(localRequestID, requestID)
		c.SetUserContext(logger.ContextWithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}

// RequireSession resolve o token Bearer e deixa a sessão em c.Locals.
func RequireSession(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.UserContext(), bearerToken(c))
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return errorJSON(c, fiber.StatusUnauthorized, "sessão inválida ou expirada")
			}
			logger.WithContext(c.UserContext()).Error("erro ao validar sessão", zap.Error(err))
			return errorJSON(c, fiber.StatusServiceUnavailable, "não foi possível validar a sessão")
		}

		c.Locals(localSession, sess)
		return c.Next()
	}
}

func BasicAuth(user, password string) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Users: map[string]string{user: password},
		Realm: "mt5-history admin",
		Unauthorized: func(c *fiber.Ctx) error {
			return errorJSON(c, fiber.StatusUnauthorized, "não autorizado")
		},
	})
}

func bearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func currentSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals(localSession).(*session.Session)
	return sess
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(localRequestID).(string); ok {
		return id
	}
	return ""
}

func errorJSON(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: getRequestID(c),
		Timestamp: time.Now(),
	})
}
