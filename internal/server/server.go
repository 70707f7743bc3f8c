package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/comptoir/internal/audit"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/identity"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"github.com/smallbiznis/comptoir/internal/invoice"
	invoicedomain "github.com/smallbiznis/comptoir/internal/invoice/domain"
	"github.com/smallbiznis/comptoir/internal/observability"
	obsmiddleware "github.com/smallbiznis/comptoir/internal/observability/logger"
	obstracing "github.com/smallbiznis/comptoir/internal/observability/tracing"
	"github.com/smallbiznis/comptoir/internal/order"
	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	"github.com/smallbiznis/comptoir/internal/payment"
	paymentdomain "github.com/smallbiznis/comptoir/internal/payment/domain"
	"github.com/smallbiznis/comptoir/internal/product"
	productdomain "github.com/smallbiznis/comptoir/internal/product/domain"
	"github.com/smallbiznis/comptoir/internal/ratelimit"
	"github.com/smallbiznis/comptoir/internal/reporting"
	reportingdomain "github.com/smallbiznis/comptoir/internal/reporting/domain"
	"github.com/smallbiznis/comptoir/internal/sequence"
	"github.com/smallbiznis/comptoir/internal/stock"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	"github.com/smallbiznis/comptoir/internal/supply"
	supplydomain "github.com/smallbiznis/comptoir/internal/supply/domain"
	"github.com/smallbiznis/comptoir/internal/table"
	tabledomain "github.com/smallbiznis/comptoir/internal/table/domain"
	"github.com/smallbiznis/comptoir/internal/tenant"
	tenantdomain "github.com/smallbiznis/comptoir/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domains bundles the business services the HTTP surface and the scheduler
// depend on.
var Domains = fx.Options(
	authorization.Module,
	audit.Module,
	identity.Module,
	sequence.Module,
	product.Module,
	table.Module,
	stock.Module,
	order.Module,
	supply.Module,
	invoice.Module,
	payment.Module,
	tenant.Module,
	reporting.Module,
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	identitySvc identitydomain.Service
	auditSvc    auditdomain.Service
	productSvc  productdomain.Service
	tableSvc    tabledomain.Service
	stockSvc    stockdomain.Service
	orderSvc    orderdomain.Service
	supplySvc   supplydomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	tenantSvc   tenantdomain.Service

	reportingSvc reportingdomain.Service

	limiter *ratelimit.PrincipalLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	IdentitySvc  identitydomain.Service
	AuditSvc     auditdomain.Service
	ProductSvc   productdomain.Service
	TableSvc     tabledomain.Service
	StockSvc     stockdomain.Service
	OrderSvc     orderdomain.Service
	SupplySvc    supplydomain.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	TenantSvc    tenantdomain.Service
	ReportingSvc reportingdomain.Service
	Limiter      *ratelimit.PrincipalLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		identitySvc:  p.IdentitySvc,
		auditSvc:     p.AuditSvc,
		productSvc:   p.ProductSvc,
		tableSvc:     p.TableSvc,
		stockSvc:     p.StockSvc,
		orderSvc:     p.OrderSvc,
		supplySvc:    p.SupplySvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		tenantSvc:    p.TenantSvc,
		reportingSvc: p.ReportingSvc,
		limiter:      p.Limiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterRoutes mounts every route group on the engine.
func RegisterRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
	s.RegisterInternalRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", s.PrincipalRequired(), s.RateLimit())

	// -------- Supplies --------
	api.POST("/supplies", s.CreateSupply)
	api.GET("/supplies", s.ListSuppliesByPeriod)
	api.GET("/supplies/:id", s.GetSupplyByID)
	api.PATCH("/supplies/:id", s.UpdateSupply)
	api.DELETE("/supplies/:id", s.DeleteSupply)

	// -------- Orders --------
	api.POST("/orders", s.CreateOrder)
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/:id", s.GetOrderByID)
	api.DELETE("/orders/:id", s.DeleteOrder)
	api.POST("/orders/:id/items", s.AddOrderItem)
	api.PATCH("/orders/:id/items/:itemId", s.UpdateOrderItem)
	api.DELETE("/orders/:id/items/:itemId", s.RemoveOrderItem)
	api.POST("/orders/:id/validate", s.ValidateOrder)
	api.POST("/orders/:id/cancel", s.CancelOrder)
	api.POST("/orders/:id/invoice", s.GenerateInvoice)

	// -------- Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/overdue", s.ListOverdueInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.POST("/invoices/:id/payments", s.RecordPayment)
	api.GET("/invoices/:id/payments", s.ListPayments)

	// -------- Products --------
	api.GET("/products", s.ListProducts)
	api.POST("/products", s.CreateProduct)
	api.GET("/products/:id", s.GetProductByID)
	api.PATCH("/products/:id", s.UpdateProduct)
	api.DELETE("/products/:id", s.DeleteProduct)

	// -------- Stock --------
	api.GET("/stock", s.ListStockLevels)
	api.GET("/stock/alerts", s.ListStockAlerts)
	api.GET("/stock/:productId", s.GetStockLevel)
	api.GET("/stock/:productId/movements", s.ListStockMovements)
	api.PUT("/stock/:productId/threshold", s.SetStockThreshold)
	api.POST("/stock/:productId/reconcile", s.ReconcileStock)

	// -------- Tables --------
	api.GET("/tables", s.ListTables)
	api.POST("/tables", s.CreateTable)
	api.GET("/tables/:id", s.GetTableByID)
	api.PATCH("/tables/:id", s.UpdateTable)
	api.DELETE("/tables/:id", s.DeleteTable)

	// -------- Principals --------
	api.GET("/principals", s.ListPrincipals)
	api.POST("/principals", s.CreatePrincipal)
	api.POST("/principals/me/login", s.RecordLogin)
	api.GET("/principals/:id", s.GetPrincipalByID)
	api.PATCH("/principals/:id", s.UpdatePrincipal)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
	api.POST("/audit-logs", s.RecordAuditAction)

	// -------- Reports --------
	api.GET("/reports/kpis", s.GetKPIs)
	api.GET("/reports/sales-by-product", s.GetSalesByProduct)
	api.GET("/reports/revenue", s.GetRevenueSeries)
	api.GET("/reports/collections", s.GetCollectionsByMethod)
	api.GET("/reports/transactions", s.SearchTransactions)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.PrincipalRequired(), s.RateLimit())

	admin.GET("/tenants", s.ListTenants)
	admin.POST("/tenants", s.CreateTenant)
	admin.GET("/tenants/:id", s.GetTenantByID)
	admin.PATCH("/tenants/:id", s.UpdateTenant)
	admin.DELETE("/tenants/:id", s.DeleteTenant)
	admin.POST("/tenants/:id/confirm-payment", s.ConfirmTenantPayment)
	admin.POST("/tenants/:id/suspend", s.SuspendTenant)
	admin.POST("/tenants/:id/reactivate", s.ReactivateTenant)
}

func (s *Server) RegisterInternalRoutes() {
	internal := s.engine.Group("/internal", s.CronSecretRequired())

	internal.POST("/cron/expire-subscriptions", s.ExpireSubscriptions)
}
