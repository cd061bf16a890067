// Package api exposes the carousing engine, the table editors and the overlay websocket over
// HTTP. The caller is identified by a bearer token from the login endpoint, or the access_token
// query parameter on the websocket endpoint.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bloops-games/carousing/internal/auth"
	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/carousing"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/identity"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	bearerPrefix = "Bearer "
	tokenQuery   = "access_token"

	callerKey = "caller"
	userKey   = "user"
)

type Actors interface {
	FetchAll(ctx context.Context) ([]actorModel.Actor, error)
	FetchByOwner(ctx context.Context, ownerID string) ([]actorModel.Actor, error)
}

type Users interface {
	User(ctx context.Context, id string) (userModel.User, error)
}

type Presence interface {
	Join(userID string) bool
	Leave(userID string) bool
	Online() []string
}

type Authenticator interface {
	Login(ctx context.Context, userID, secret string) (string, error)
	Verify(token string) (string, error)
}

type Deps struct {
	Auth     Authenticator
	Engine   *carousing.Engine
	Tables   *tables.Repository
	Actors   Actors
	Users    Users
	Presence Presence
	Hub      *broadcast.Hub
	Metrics  *metrics.Metrics
	// AllowedOrigins may open the websocket in addition to the serving host.
	AllowedOrigins []string
}

func New(deps Deps) *Handler {
	return &Handler{
		auth:     deps.Auth,
		upgrader: newUpgrader(deps.AllowedOrigins),
		engine:   deps.Engine,
		tables:   deps.Tables,
		actors:   deps.Actors,
		users:    deps.Users,
		presence: deps.Presence,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
	}
}

type Handler struct {
	auth     Authenticator
	upgrader websocket.Upgrader
	engine   *carousing.Engine
	tables   *tables.Repository
	actors   Actors
	users    Users
	presence Presence
	hub      *broadcast.Hub
	metrics  *metrics.Metrics
}

// Register mounts the API on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/api/v1/login", h.login)

	v1 := r.Group("/api/v1", h.caller)

	v1.GET("/mode", h.getMode)
	v1.PUT("/mode", h.putMode)

	v1.GET("/session", h.getSession)
	v1.GET("/status", h.getStatus)
	v1.PUT("/session/table", h.putTable)
	v1.PUT("/session/tier", h.putTier)
	v1.PUT("/session/drops/:player", h.putDrop)
	v1.PUT("/session/confirmations/:player", h.putConfirmation)
	v1.PUT("/session/modifiers/:player", h.putModifier)
	v1.POST("/session/roll", h.postRoll)
	v1.POST("/session/reset", h.postReset)
	v1.POST("/session/prune", h.postPrune)
	v1.POST("/session/results/:player", h.postResult)
	v1.DELETE("/session/results/:player/:kind/:index", h.deleteResult)

	v1.GET("/tables", h.listTables)
	v1.POST("/tables/:kind", h.createTable)
	v1.PUT("/tables/:kind/:id", h.updateTable)
	v1.DELETE("/tables/:kind/:id", h.deleteTable)
	v1.GET("/tables/:kind/:id/export", h.exportTable)
	v1.POST("/tables/:kind/import", h.importTable)
	v1.POST("/tables/:kind/parse", h.parseTable)

	v1.GET("/actors", h.listActors)
	v1.POST("/actors/:id/award", h.awardActor)

	v1.GET("/ws", h.serveWS)
}

type loginRequest struct {
	User   string `json:"user" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.User, req.Secret)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// caller resolves the calling user from its token before any handler runs.
func (h *Handler) caller(c *gin.Context) {
	token := c.Query(tokenQuery)
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		token = strings.TrimPrefix(header, bearerPrefix)
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	id, err := h.auth.Verify(token)
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}

	u, err := h.users.User(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}

	c.Set(callerKey, id)
	c.Set(userKey, u)
	c.Next()
}

func callerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

func callerUser(c *gin.Context) userModel.User {
	u, _ := c.Get(userKey)
	return u.(userModel.User)
}

// fail maps engine and repository errors to status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError

	switch {
	case errors.Is(err, identity.ErrUnknownUser), errors.Is(err, auth.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, carousing.ErrForbidden), errors.Is(err, tables.ErrBuiltIn):
		code = http.StatusForbidden
	case errors.Is(err, tables.ErrNotFound), errors.Is(err, actorDb.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, tables.ErrInvalid), errors.Is(err, tables.ErrWrongType), carousing.IsValidation(err):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	}

	if code == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Named("api.fail").Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		_ = c.Error(err)
		c.JSON(code, gin.H{"error": "internal error"})
		return
	}

	c.JSON(code, gin.H{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
