package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/auth"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/service"
)

// Server: зависимости HTTP-слоя. Обработчики только разбирают вход,
// вызывают сервисы и сериализуют ответ.
type Server struct {
	DB         *gorm.DB
	Appts      *service.AppointmentService
	Conv       *service.ConversationService
	Intake     *service.IntakeService
	Reschedule *service.RescheduleService
	Finder     *service.SlotFinder
	Voice      *service.VoiceService
	Auth       *auth.Manager
	Twilio     config.TwilioConfig
	CORS       []string
	Gatherer   prometheus.Gatherer
	Now        func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Router собирает gin-движок со всеми маршрутами.
func (s *Server) Router(logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger), metricsMiddleware())
	if len(s.CORS) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.CORS,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", logging.HeaderRequestID},
			ExposeHeaders:    []string{logging.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/readyz", s.readyz)
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	public := v1.Group("/public/offer/:token")
	public.GET("", s.viewOffer)
	public.GET("/respond", s.respondOffer)
	public.POST("/respond", s.respondOffer)

	hooks := v1.Group("/webhooks")
	hooks.POST("/twilio/voice", s.twilioVoice)
	hooks.POST("/email/inbound", s.inboundEmail)

	admin := v1.Group("/admin")
	admin.Use(auth.RequireAccessToken(s.Auth), auth.RequireRoles(model.ActorAdmin, model.ActorSubcontractor))
	{
		admin.GET("/slots", s.findSlots)

		admin.GET("/appointments", s.listAppointments)
		admin.GET("/appointments/:id", s.getAppointment)
		admin.POST("/holds", s.createHold)
		admin.POST("/appointments/:id/confirm", s.confirmAppointment)
		admin.POST("/appointments/:id/cancel", s.cancelAppointment)

		// Операции над днём целиком доступны только ADMIN.
		day := admin.Group("/schedule", auth.RequireRoles(model.ActorAdmin))
		day.POST("/daily-approve", s.dailyApprove)
		day.POST("/reschedule/preview", s.reschedulePreview)
		day.POST("/reschedule/confirm", s.rescheduleConfirm)
		day.POST("/sweep", s.sweep)

		admin.POST("/call-requests", s.createCallRequest)
		admin.GET("/call-requests/:id", s.getCallRequest)
		admin.PATCH("/call-requests/:id/intake", s.updateIntake)
		admin.POST("/call-requests/:id/offer/prepare", s.prepareOffer)
		admin.POST("/call-requests/:id/offer/send", s.sendOffer)
	}
	return r
}

func (s *Server) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	sqlDB, err := s.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		logging.FromGin(c).Warn("readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observability.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
