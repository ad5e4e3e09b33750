// Package gateway is the HTTP presentation adapter. Handlers call the
// catalog and auth services directly, then hand the result to the engine as
// an intent and answer with the re-rendered view.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/auth"
	"github.com/example/medistore/pkg/catalog"
	"github.com/example/medistore/pkg/checkout"
	"github.com/example/medistore/pkg/config"
	"github.com/example/medistore/pkg/engine"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/reminder"
	"github.com/example/medistore/pkg/repository"
	"github.com/example/medistore/pkg/view"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const maxHistoryLimit = 100

var errHistoryDisabled = fmt.Errorf("%w: audit trail is not configured", apperr.ErrNotFound)

// Dispatcher delivers intents to the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent interface{}) (*engine.Reply, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResponse, error)
	Register(ctx context.Context, reg models.Registration) (*auth.RegisterResponse, error)
}

// AuditHistory reads the audit trail of one order or reminder.
type AuditHistory interface {
	History(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

type Gateway struct {
	config  *config.GatewayConfig
	engine  Dispatcher
	catalog catalog.Catalog
	browser *catalog.Browser
	auth    Authenticator
	history AuditHistory
	logger  *zap.Logger
	router  *gin.Engine
	server  *http.Server
	// loginGen is bumped by every login and logout; a login whose response
	// arrives after another bump is discarded.
	loginGen atomic.Uint64
}

func NewGateway(cfg *config.GatewayConfig, logger *zap.Logger, d Dispatcher, c catalog.Catalog, a Authenticator) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	if cfg.IntentTimeout <= 0 {
		cfg.IntentTimeout = 5 * time.Second
	}
	g := &Gateway{
		config:  cfg,
		engine:  d,
		catalog: c,
		browser: catalog.NewBrowser(c, logger.Named("browser")),
		auth:    a,
		logger:  logger,
		router:  router,
	}
	g.SetupRoutes()
	return g
}

func (g *Gateway) Handler() http.Handler { return g.router }

// SetHistory enables the audit history routes. Without it they answer 404.
func (g *Gateway) SetHistory(h AuditHistory) { g.history = h }

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.GET("/view", g.getView)

		medicines := v1.Group("/medicines")
		{
			medicines.GET("", g.listMedicines)
			medicines.GET("/:id", g.getMedicine)
		}

		cartItems := v1.Group("/cart")
		{
			cartItems.GET("", g.getCart)
			cartItems.POST("/items", g.addToCart)
			cartItems.PATCH("/items/:id", g.updateQuantity)
			cartItems.DELETE("/items/:id", g.removeFromCart)
		}

		v1.POST("/checkout", g.checkout)
		v1.GET("/orders", g.listOrders)
		v1.GET("/orders/:id/history", g.orderHistory)

		reminders := v1.Group("/reminders")
		{
			reminders.GET("", g.listReminders)
			reminders.POST("", g.createReminder)
			reminders.DELETE("/:id", g.deleteReminder)
			reminders.GET("/:id/history", g.reminderHistory)
		}

		sess := v1.Group("/session")
		{
			sess.POST("/login", g.login)
			sess.POST("/register", g.register)
			sess.DELETE("", g.logout)
		}
	}

	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Start serves until Shutdown is called.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:              g.config.Addr(),
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) dispatch(c *gin.Context, intent interface{}) (*engine.Reply, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), g.config.IntentTimeout)
	defer cancel()
	reply, err := g.engine.Dispatch(ctx, intent)
	if err != nil {
		g.fail(c, err)
		return nil, false
	}
	return reply, true
}

func (g *Gateway) getView(c *gin.Context) {
	reply, ok := g.dispatch(c, &engine.GetSnapshot{})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view.Render(reply.Snapshot))
}

func (g *Gateway) listMedicines(c *gin.Context) {
	meds, err := g.browser.Browse(c.Request.Context(), c.Query("q"))
	if err != nil {
		g.fail(c, err)
		return
	}
	if meds == nil {
		meds = []models.Medicine{}
	}
	c.JSON(http.StatusOK, gin.H{"medicines": meds, "total": len(meds)})
}

func (g *Gateway) getMedicine(c *gin.Context) {
	id, ok := g.medicineID(c)
	if !ok {
		return
	}
	m, err := g.browser.Detail(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (g *Gateway) getCart(c *gin.Context) {
	reply, ok := g.dispatch(c, &engine.GetSnapshot{})
	if !ok {
		return
	}
	if reply.Snapshot.User == nil {
		g.fail(c, apperr.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, view.Render(reply.Snapshot).Cart)
}

type addToCartRequest struct {
	MedicineID int64 `json:"medicine_id" binding:"required"`
}

// addToCart prices the item from the catalog, never from the request body.
func (g *Gateway) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, apperr.NewValidation("medicine_id is required", "medicine_id"))
		return
	}
	m, err := g.catalog.GetByID(c.Request.Context(), req.MedicineID)
	if err != nil {
		g.fail(c, err)
		return
	}
	if !m.InStock() {
		g.fail(c, apperr.NewValidation("medicine is out of stock", "medicine_id"))
		return
	}
	g.respond(c, http.StatusOK, &engine.AddToCart{MedicineID: m.ID, Name: m.Name, UnitPrice: m.Price})
}

type updateQuantityRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (g *Gateway) updateQuantity(c *gin.Context) {
	id, ok := g.medicineID(c)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, apperr.NewValidation("delta must be a non-zero integer", "delta"))
		return
	}
	g.respond(c, http.StatusOK, &engine.UpdateQuantity{MedicineID: id, Delta: req.Delta})
}

func (g *Gateway) removeFromCart(c *gin.Context) {
	id, ok := g.medicineID(c)
	if !ok {
		return
	}
	g.respond(c, http.StatusOK, &engine.RemoveFromCart{MedicineID: id})
}

func (g *Gateway) checkout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, apperr.NewValidation("invalid checkout request", "customerInfo"))
		return
	}
	reply, ok := g.dispatch(c, &engine.Checkout{Request: req, RequireLogin: true})
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": reply.Order, "view": view.Render(reply.Snapshot)})
}

func (g *Gateway) listOrders(c *gin.Context) {
	reply, ok := g.dispatch(c, &engine.ListOrders{})
	if !ok {
		return
	}
	orders := reply.Orders
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

// orderHistory answers the audit trail of an order in the ledger.
func (g *Gateway) orderHistory(c *gin.Context) {
	id := c.Param("id")
	reply, ok := g.dispatch(c, &engine.ListOrders{})
	if !ok {
		return
	}
	for _, o := range reply.Orders {
		if o.OrderID == id {
			g.writeHistory(c, id)
			return
		}
	}
	g.fail(c, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id))
}

// reminderHistory answers the audit trail of a reminder, including one that
// has since been deleted.
func (g *Gateway) reminderHistory(c *gin.Context) {
	g.writeHistory(c, c.Param("id"))
}

func (g *Gateway) writeHistory(c *gin.Context, entityID string) {
	if g.history == nil {
		g.fail(c, errHistoryDisabled)
		return
	}
	limit := int64(repository.DefaultHistoryLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			g.fail(c, apperr.NewValidation(fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit), "limit"))
			return
		}
		limit = n
	}

	entries, err := g.history.History(c.Request.Context(), entityID, limit)
	if err != nil {
		g.fail(c, fmt.Errorf("failed to read audit history: %w", err))
		return
	}
	if entries == nil {
		entries = []*repository.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "total": len(entries)})
}

func (g *Gateway) listReminders(c *gin.Context) {
	reply, ok := g.dispatch(c, &engine.ListReminders{})
	if !ok {
		return
	}
	rendered := view.Render(reply.Snapshot).Reminders
	c.JSON(http.StatusOK, gin.H{"reminders": rendered, "total": len(rendered)})
}

func (g *Gateway) createReminder(c *gin.Context) {
	var in reminder.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		g.fail(c, apperr.NewValidation("invalid reminder"))
		return
	}
	reply, ok := g.dispatch(c, &engine.CreateReminder{Input: in})
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reminder": reply.Reminder, "view": view.Render(reply.Snapshot)})
}

func (g *Gateway) deleteReminder(c *gin.Context) {
	g.respond(c, http.StatusOK, &engine.DeleteReminder{ID: c.Param("id")})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, apperr.NewValidation("email and password are required", "email", "password"))
		return
	}

	gen := g.loginGen.Add(1)
	resp, err := g.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		g.fail(c, err)
		return
	}
	if g.loginGen.Load() != gen {
		g.fail(c, apperr.ErrStaleResponse)
		return
	}
	g.respond(c, http.StatusOK, &engine.ApplyLogin{Token: resp.Token, User: resp.User})
}

func (g *Gateway) register(c *gin.Context) {
	var reg models.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		g.fail(c, apperr.NewValidation("invalid registration"))
		return
	}
	resp, err := g.auth.Register(c.Request.Context(), reg)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (g *Gateway) logout(c *gin.Context) {
	g.loginGen.Add(1)
	g.browser.Invalidate()
	g.respond(c, http.StatusOK, &engine.Logout{})
}

func (g *Gateway) respond(c *gin.Context, status int, intent interface{}) {
	reply, ok := g.dispatch(c, intent)
	if !ok {
		return
	}
	c.JSON(status, view.Render(reply.Snapshot))
}

func (g *Gateway) medicineID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		g.fail(c, apperr.NewValidation("valid medicine id is required", "id"))
		return 0, false
	}
	return id, true
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		body["fields"] = ve.Fields
	}
	if status >= http.StatusInternalServerError {
		g.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	var se *apperr.ServiceError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrStaleResponse):
		return http.StatusConflict
	case errors.As(err, &se):
		// Upstream rejections of the caller's input keep their status.
		if se.Status >= 400 && se.Status < 500 {
			return se.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, actor.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
