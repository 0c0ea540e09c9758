package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const platformDomain = "platform"

const (
	ObjectCompany         = "company"
	ObjectPackage         = "package"
	ObjectSubscription    = "subscription"
	ObjectInvoice         = "invoice"
	ObjectPayment         = "payment"
	ObjectBillingSettings = "billing_settings"
	ObjectSweep           = "sweep"
	ObjectActivityLog     = "activity_log"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionSubscriptionRequest = "request"
	ActionSubscriptionTrial   = "trial"
	ActionSubscriptionCancel  = "cancel"
	ActionSubscriptionUpgrade = "upgrade"
	ActionSubscriptionApprove = "approve"
	ActionSubscriptionReject  = "reject"

	ActionInvoiceSend            = "send"
	ActionInvoicePaymentReceived = "payment_received"
	ActionInvoiceMarkPaid        = "mark_paid"
	ActionInvoiceVoid            = "void"
	ActionInvoiceAllocate        = "allocate"

	ActionPackageDeactivate = "deactivate"
	ActionSweepRun          = "run"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Activity activitydomain.Sink `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	activity activitydomain.Sink
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		activity: p.Activity,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, p Principal, object string, action string, targetCompanyID string) error {
	p.ActorID = strings.TrimSpace(p.ActorID)
	p.CompanyID = strings.TrimSpace(p.CompanyID)
	if p.ActorID == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, domain, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	requestDomain := domain
	if !p.Platform() {
		target := strings.TrimSpace(targetCompanyID)
		if target == "" {
			target = p.CompanyID
		}
		requestDomain = companyDomain(target)
	}

	allowed, err := s.enforcer.Enforce(subject, requestDomain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.recordDenied(ctx, p, object, action, targetCompanyID)
		return ErrForbidden
	}
	return nil
}

// resolve maps a principal to its casbin subject, role and home domain.
func (s *ServiceImpl) resolve(p Principal) (string, string, string, error) {
	switch p.Role {
	case RoleSuperAdmin, RoleSystem:
		return fmt.Sprintf("%s:%s", p.Role, p.ActorID), roleName(p.Role), platformDomain, nil
	case RoleCompanyAdmin:
		companyID, err := snowflake.ParseString(p.CompanyID)
		if err != nil || companyID == 0 {
			return "", "", "", ErrInvalidCompany
		}
		return fmt.Sprintf("user:%s", p.ActorID), roleName(p.Role), companyDomain(companyID.String()), nil
	default:
		return "", "", "", ErrInvalidRole
	}
}

func roleName(r Role) string { return "role:" + string(r) }

func companyDomain(id string) string { return "company:" + id }

// ensureGrouping keeps exactly one role link per subject and domain.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) recordDenied(ctx context.Context, p Principal, object string, action string, targetCompanyID string) {
	s.log.Info("authorization denied",
		zap.String("actor_id", p.ActorID),
		zap.String("role", string(p.Role)),
		zap.String("object", object),
		zap.String("action", action),
		zap.String("target_company_id", targetCompanyID),
	)
	if s.activity == nil {
		return
	}
	var companyID snowflake.ID
	if id, err := snowflake.ParseString(p.CompanyID); err == nil {
		companyID = id
	}
	err := s.activity.Record(ctx, activitydomain.LevelWarning, activitydomain.CategorySystem,
		fmt.Sprintf("Denied %s.%s", object, action), companyID, map[string]any{
			"actor_id":          p.ActorID,
			"actor_type":        string(p.Role),
			"object":            object,
			"action":            action,
			"target_company_id": targetCompanyID,
		})
	if err != nil {
		s.log.Warn("record denied access failed", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	superAdmin := roleName(RoleSuperAdmin)
	companyAdmin := roleName(RoleCompanyAdmin)
	system := roleName(RoleSystem)

	policies := [][]string{
		// Platform administrators manage every tenant.
		{superAdmin, ObjectCompany, "*"},
		{superAdmin, ObjectPackage, "*"},
		{superAdmin, ObjectSubscription, "*"},
		{superAdmin, ObjectInvoice, "*"},
		{superAdmin, ObjectPayment, "*"},
		{superAdmin, ObjectBillingSettings, "*"},
		{superAdmin, ObjectSweep, "*"},
		{superAdmin, ObjectActivityLog, "*"},

		// Tenant administrators act on their own company only.
		{companyAdmin, ObjectCompany, ActionView},
		{companyAdmin, ObjectPackage, ActionView},
		{companyAdmin, ObjectSubscription, ActionView},
		{companyAdmin, ObjectSubscription, ActionSubscriptionRequest},
		{companyAdmin, ObjectSubscription, ActionSubscriptionTrial},
		{companyAdmin, ObjectSubscription, ActionSubscriptionUpgrade},
		{companyAdmin, ObjectInvoice, ActionView},
		{companyAdmin, ObjectPayment, ActionView},
		{companyAdmin, ObjectBillingSettings, ActionView},

		// Automated processes.
		{system, ObjectSweep, ActionSweepRun},
		{system, ObjectCompany, ActionView},
		{system, ObjectInvoice, ActionView},
		{system, ObjectInvoice, ActionInvoiceSend},
		{system, ObjectBillingSettings, ActionView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
