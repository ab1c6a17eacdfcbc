// Package httpapi wires the Gin transport to the application services. It
// owns middleware ordering, dependency construction and route registration.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/checkpoint"
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/handlers"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/longpoll"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// conversationRepoShim adapts the repo free functions to services.ConversationRepo.
type conversationRepoShim struct{}

func (conversationRepoShim) CreateConversation(ctx context.Context, db *gorm.DB, isGroup bool, userIDs ...string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, isGroup, userIDs...)
}

func (conversationRepoShim) FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	return repo.FindDirectConversation(ctx, db, a, b)
}

func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

func (conversationRepoShim) IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	return repo.IsParticipant(ctx, db, conversationID, userID)
}

func (conversationRepoShim) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountConversations(ctx, db, userID)
}

func (conversationRepoShim) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, offset, limit)
}

// idempotencyStore persists Idempotency-Key outcomes in the idempotency table.
// It backs both the middleware lookup and the handler replay.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup implements middleware.IdempotencyLookup. A missing record is a miss,
// not an error.
func (s idempotencyStore) Lookup(ctx context.Context, userID, conversationID, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.db, userID, conversationID, key, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Replay returns the message recorded for key, if it still exists.
func (s idempotencyStore) Replay(ctx context.Context, userID, conversationID, key string) (*domain.Message, bool) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, conversationID, key, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	msg, err := repo.GetMessage(ctx, s.db, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return msg, true
}

// Remember records messageID as the answer for key. A concurrent duplicate
// is not an error: the first writer's message stays authoritative.
func (s idempotencyStore) Remember(ctx context.Context, userID, conversationID, key, messageID string) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, conversationID, key, messageID, http.StatusCreated, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// newServices builds the handler dependencies over db and the checkpoint store.
func newServices(db *gorm.DB, store checkpoint.Store, cfg config.Config) handlers.Services {
	users := services.NewUserService(db)
	convs := services.NewConversationService(db, conversationRepoShim{}, users)
	notifs := services.NewNotificationService(db)
	msgs := services.NewMessageService(db, convs, users, notifs)
	feedback := services.NewFeedbackService(db, users, notifs)

	poll := &services.PollService{
		Controller:            longpoll.NewController(store, nil),
		Users:                 users,
		Conversations:         convs,
		Notifications:         notifs,
		Messages:              msgs,
		Interval:              cfg.Poll.Interval,
		MessagesDeadline:      cfg.Poll.MessagesDeadline,
		NotificationsDeadline: cfg.Poll.NotificationsDeadline,
	}

	return handlers.Services{
		Users:         users,
		Conversations: convs,
		Messages:      msgs,
		Notifications: notifs,
		Feedback:      feedback,
		Poll:          poll,
		Idempotency:   idempotencyStore{db: db, ttl: cfg.IdempotencyTTL},
	}
}

// RegisterRoutes installs middleware, operational endpoints and the public
// API on r.
//
// Middleware order:
//  1. otelgin
//  2. RequestID, UserIdentity
//  3. AccessLog, Recovery
//  4. body limit, Metrics, gzip
//  5. IdempotencyValidator (before the limiter so replays bypass it)
//  6. rate limiter
//  7. CORS, security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store checkpoint.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	idem := idempotencyStore{db: db, ttl: cfg.IdempotencyTTL}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.UserIdentity())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(newServices(db, store, cfg))

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/users", h.CreateUser)
		api.GET("/users/:id", h.GetUser)
		api.POST("/users/:id/feedback", h.CreateFeedback)
		api.GET("/users/:id/feedback", h.ListFeedback)
		api.PATCH("/feedback/:id", h.UpdateFeedback)
		api.DELETE("/feedback/:id", h.DeleteFeedback)

		api.POST("/conversations", h.OpenConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.POST("/conversations/:id/messages", h.SendMessage)
		api.PUT("/messages/:id/read", h.MarkMessageRead)

		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications", h.CreateNotification)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)

		api.GET("/conversations/:id/messages/long-poll", middleware.NoStore(), h.PollMessages)
		api.GET("/notifications/long-poll", middleware.NoStore(), h.PollNotifications)
	}
}

// useCORS allows every origin when none is configured, otherwise only the
// listed ones.
func useCORS(r *gin.Engine, c config.CORSConfig) {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		conf.AllowAllOrigins = true
		// gin-contrib/cors only answers requests carrying Origin; health
		// checks and curl get the header too.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
	} else {
		conf.AllowOrigins = c.AllowedOrigins
	}
	r.Use(cors.New(conf))
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
