package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/crmbilling/internal/activity"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
	"github.com/smallbiznis/crmbilling/internal/authorization"
	"github.com/smallbiznis/crmbilling/internal/company"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/smallbiznis/crmbilling/internal/events"
	"github.com/smallbiznis/crmbilling/internal/events/natspub"
	"github.com/smallbiznis/crmbilling/internal/invoice"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/notification"
	"github.com/smallbiznis/crmbilling/internal/observability"
	obsmiddleware "github.com/smallbiznis/crmbilling/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/crmbilling/internal/observability/metrics"
	obstracing "github.com/smallbiznis/crmbilling/internal/observability/tracing"
	"github.com/smallbiznis/crmbilling/internal/payment"
	paymentdomain "github.com/smallbiznis/crmbilling/internal/payment/domain"
	"github.com/smallbiznis/crmbilling/internal/plan"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/smallbiznis/crmbilling/internal/providers"
	"github.com/smallbiznis/crmbilling/internal/reminder"
	"github.com/smallbiznis/crmbilling/internal/scheduler"
	"github.com/smallbiznis/crmbilling/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
	"github.com/smallbiznis/crmbilling/internal/tax"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires every billing domain behind the HTTP API.
var Module = fx.Module("http.server",
	events.Module,
	natspub.Module,
	activity.Module,
	authorization.Module,
	providers.Module,
	company.Module,
	plan.Module,
	tax.Module,
	invoice.Module,
	payment.Module,
	subscription.Module,
	reminder.Module,
	notification.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	activitySvc     activitydomain.Service
	companySvc      companydomain.Service
	planSvc         plandomain.Service
	taxSvc          taxdomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	scheduler       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	ActivitySvc     activitydomain.Service
	CompanySvc      companydomain.Service
	PlanSvc         plandomain.Service
	TaxSvc          taxdomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Scheduler       *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		activitySvc:     p.ActivitySvc,
		companySvc:      p.CompanySvc,
		planSvc:         p.PlanSvc,
		taxSvc:          p.TaxSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		scheduler:       p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.PrincipalRequired())

	// -------- Companies --------
	api.GET("/companies", s.authorize(authorization.ObjectCompany, authorization.ActionView), s.ListCompanies)
	api.POST("/companies", s.authorize(authorization.ObjectCompany, authorization.ActionCreate), s.CreateCompany)
	api.GET("/companies/:id", s.authorizeCompany(authorization.ObjectCompany, authorization.ActionView), s.GetCompany)

	// -------- Subscription lifecycle --------
	sub := api.Group("/companies/:id/subscription")
	{
		sub.POST("/request", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionRequest), s.RequestSubscription)
		sub.POST("/trial", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionTrial), s.StartTrial)
		sub.POST("/cancel", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
		sub.GET("/upgrade/preview", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionUpgrade), s.PreviewUpgrade)
		sub.POST("/upgrade", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionUpgrade), s.InitiateUpgrade)
		sub.POST("/approve", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionApprove), s.ApproveSubscription)
		sub.POST("/reject", s.authorizeCompany(authorization.ObjectSubscription, authorization.ActionSubscriptionReject), s.RejectSubscription)
	}

	// -------- Packages --------
	api.GET("/packages", s.authorize(authorization.ObjectPackage, authorization.ActionView), s.ListPackages)
	api.POST("/packages", s.authorize(authorization.ObjectPackage, authorization.ActionCreate), s.CreatePackage)
	api.GET("/packages/:id", s.authorize(authorization.ObjectPackage, authorization.ActionView), s.GetPackage)
	api.PATCH("/packages/:id", s.authorize(authorization.ObjectPackage, authorization.ActionUpdate), s.UpdatePackage)
	api.POST("/packages/:id/deactivate", s.authorize(authorization.ObjectPackage, authorization.ActionPackageDeactivate), s.DeactivatePackage)

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.ListInvoices)
	api.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionCreate), s.CreateInvoice)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.GetInvoice)
	api.PATCH("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionUpdate), s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionDelete), s.DeleteInvoice)
	api.GET("/invoices/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.DownloadInvoicePDF)
	api.POST("/invoices/:id/send", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceSend), s.SendInvoice)
	api.POST("/invoices/:id/payment-received", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoicePaymentReceived), s.MarkPaymentReceived)
	api.POST("/invoices/:id/paid", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceMarkPaid), s.MarkInvoicePaid)
	api.POST("/invoices/:id/void", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.VoidInvoice)
	api.POST("/invoices/:id/allocate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceAllocate), s.AllocatePayments)

	// -------- Payments --------
	api.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.ListPayments)
	api.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionCreate), s.RecordPayment)
	api.DELETE("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionDelete), s.VoidPayment)

	// -------- Billing settings --------
	api.GET("/billing-settings", s.authorize(authorization.ObjectBillingSettings, authorization.ActionView), s.GetBillingSettings)
	api.PUT("/billing-settings", s.authorize(authorization.ObjectBillingSettings, authorization.ActionUpdate), s.UpdateBillingSettings)

	// -------- Sweeps --------
	api.POST("/sweeps/expiry", s.authorize(authorization.ObjectSweep, authorization.ActionSweepRun), s.RunExpirySweep)
	api.POST("/sweeps/reminders", s.authorize(authorization.ObjectSweep, authorization.ActionSweepRun), s.RunReminderSweep)

	// -------- Activity --------
	api.GET("/activity-logs", s.authorize(authorization.ObjectActivityLog, authorization.ActionView), s.ListActivityLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
