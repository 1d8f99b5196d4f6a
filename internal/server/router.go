package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/events"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/media"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/portfolio"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	subjectContextKey = "portfolio_subject"
	publishTimeout    = 5 * time.Second
)

var (
	errMissingCredentials   = errors.New("credential checker dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingDocuments     = errors.New("document gateway dependency required")
	errMissingPortfolio     = errors.New("portfolio service dependency required")
	errMissingUploader      = errors.New("media uploader dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// CredentialChecker verifies the owner login.
type CredentialChecker interface {
	Check(username, password string) bool
	Subject() string
}

// TokenManager issues and validates admin bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	Credentials  CredentialChecker
	TokenManager TokenManager
	Documents    content.Gateway
	Portfolio    *portfolio.Service
	Chat         *chat.Service
	Uploader     *media.Uploader
	// MediaFiles serves GET /media/* when uploads live on local disk.
	MediaFiles     media.BlobStore
	Publisher      events.Publisher
	Notifications  *NotificationDispatcher
	Sessions       *SessionRegistry
	HealthChecks   []HealthCheck
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Credentials == nil {
		return nil, errMissingCredentials
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Documents == nil {
		return nil, errMissingDocuments
	}
	if deps.Portfolio == nil {
		return nil, errMissingPortfolio
	}
	if deps.Uploader == nil {
		return nil, errMissingUploader
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	notifications := deps.Notifications
	if notifications == nil {
		notifications = NewNotificationDispatcher()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry(SessionRegistryConfig{
			Gateway: deps.Documents,
			Clock:   clock,
			Logger:  logger,
		})
	}

	handler := &httpHandler{
		credentials:   deps.Credentials,
		tokens:        deps.TokenManager,
		documents:     deps.Documents,
		portfolio:     deps.Portfolio,
		chat:          deps.Chat,
		uploader:      deps.Uploader,
		mediaFiles:    deps.MediaFiles,
		publisher:     publisher,
		notifications: notifications,
		sessions:      sessions,
		healthChecks:  deps.HealthChecks,
		clock:         clock,
		logger:        logger,
	}
	sessions.observe(handler)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/health", handler.handleHealth)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/portfolio", handler.handleGetPortfolio)
	router.GET("/documents", handler.handleListPublishedDocuments)
	router.GET("/documents/:id", handler.handleGetPublishedDocument)
	router.POST("/chat", handler.handleChat)
	if handler.mediaFiles != nil {
		router.GET("/media/*key", handler.handleServeMedia)
	}

	router.GET("/admin/notifications", handler.authorizeStream, handler.handleNotificationStream)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeRequest)
	admin.PUT("/portfolio/bio", handler.handleUpdateBio)
	admin.PUT("/portfolio/projects", handler.handleSyncProjects)
	admin.DELETE("/portfolio/projects/:id", handler.handleDeleteProject)
	admin.PUT("/portfolio/interests", handler.handleSyncInterests)
	admin.DELETE("/portfolio/interests/:id", handler.handleDeleteInterest)

	admin.GET("/documents", handler.handleListDocuments)
	admin.GET("/documents/:id/versions", handler.handleListVersions)

	admin.POST("/sessions", handler.handleOpenSession)
	admin.GET("/sessions/:sid", handler.handleGetSession)
	admin.DELETE("/sessions/:sid", handler.handleCloseSession)
	admin.POST("/sessions/:sid/blocks", handler.handleAddBlock)
	admin.PATCH("/sessions/:sid/blocks/:bid", handler.handleUpdateBlock)
	admin.DELETE("/sessions/:sid/blocks/:bid", handler.handleRemoveBlock)
	admin.POST("/sessions/:sid/blocks/:bid/gallery", handler.handleGalleryUpload)
	admin.POST("/sessions/:sid/reorder", handler.handleReorder)
	admin.PATCH("/sessions/:sid/metadata", handler.handleUpdateMetadata)
	admin.POST("/sessions/:sid/save", handler.handleSave)

	admin.POST("/media", handler.handleUploadMedia)

	return router, nil
}

type httpHandler struct {
	credentials   CredentialChecker
	tokens        TokenManager
	documents     content.Gateway
	portfolio     *portfolio.Service
	chat          *chat.Service
	uploader      *media.Uploader
	mediaFiles    media.BlobStore
	publisher     events.Publisher
	notifications *NotificationDispatcher
	sessions      *SessionRegistry
	healthChecks  []HealthCheck
	clock         func() time.Time
	logger        *zap.Logger
}

// corsMiddleware allows any origin without credentials when no origins are
// configured; credentials are only shared with listed origins.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.credentials.Check(request.Username, request.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), h.credentials.Subject())
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	h.authorizeToken(c, strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
}

// authorizeStream also accepts ?access_token= since EventSource cannot set headers.
func (h *httpHandler) authorizeStream(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		h.authorizeToken(c, strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		return
	}
	h.authorizeToken(c, strings.TrimSpace(c.Query("access_token")))
}

func (h *httpHandler) authorizeToken(c *gin.Context, token string) {
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// respondError maps domain errors onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, errSessionNotFound),
		errors.Is(err, content.ErrBlockNotFound),
		errors.Is(err, content.ErrDocumentNotFound),
		errors.Is(err, portfolio.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, content.ErrValidation),
		errors.Is(err, content.ErrIndexOutOfRange),
		errors.Is(err, portfolio.ErrInvalidInput),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, chat.ErrInvalidRole):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, content.ErrNoDocument):
		status, code = http.StatusConflict, "no_document"
	case errors.Is(err, content.ErrSessionClosed):
		status, code = http.StatusConflict, "session_closed"
	case errors.Is(err, errRegistryClosed):
		status, code = http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, content.ErrPersistence):
		status, code = http.StatusBadGateway, "persistence_failed"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.Error(err))
		c.JSON(status, gin.H{"error": code})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func (h *httpHandler) notify(notification Notification) {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = h.clock().UTC()
	}
	h.notifications.Publish(notification)
}

func (h *httpHandler) sessionSaved(entry *editorSession, document content.Document) {
	if document.Status != content.StatusPublished {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	event := events.NewDocumentPublished(document, h.clock())
	if err := h.publisher.PublishDocumentPublished(ctx, event); err != nil {
		h.logger.Warn("failed to publish document event",
			zap.String("operation", "server.session_saved"),
			zap.String("session_id", entry.id),
			zap.String("document_id", document.ID),
			zap.Error(err))
	}
}

func (h *httpHandler) snapshotFailed(entry *editorSession, failure *content.SnapshotError) {
	h.notify(Notification{
		Subject:    entry.subject,
		EventType:  NotificationSnapshotFailed,
		SessionID:  entry.id,
		DocumentID: failure.DocumentID,
		Message:    "Saved, but the version history could not be updated.",
	})
}
