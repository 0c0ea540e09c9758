package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/smallbiznis/crmbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  plandomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  plandomain.Repository
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreateRequest) (*plandomain.Response, error) {
	duration, ok := plandomain.ParseDurationType(req.DurationType)
	if !ok {
		return nil, plandomain.ErrInvalidDurationType
	}
	name := strings.TrimSpace(req.Name)
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := s.clock.Now()
	pkg := &plandomain.Package{
		ID:                s.genID.Generate(),
		Name:              name,
		Code:              slug.Make(name),
		DurationType:      duration,
		PriceWeekly:       nullable(req.PriceWeekly),
		PriceMonthly:      nullable(req.PriceMonthly),
		PriceQuarterly:    nullable(req.PriceQuarterly),
		PriceYearly:       nullable(req.PriceYearly),
		Currency:          currency,
		IsTrial:           req.IsTrial,
		TrialDurationDays: req.TrialDurationDays,
		MaxStaff:          req.MaxStaff,
		MaxLeadsPerMonth:  req.MaxLeadsPerMonth,
		Features:          features(req.Features),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, pkg); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, plandomain.ErrCodeTaken
		}
		return nil, err
	}

	s.log.Info("package created",
		zap.String("package_id", pkg.ID.String()),
		zap.String("code", pkg.Code),
	)
	resp := plandomain.ToResponse(pkg)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req plandomain.UpdateRequest) (*plandomain.Response, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	var updated *plandomain.Package
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if pkg == nil {
			return plandomain.ErrNotFound
		}

		if req.Name != nil {
			pkg.Name = strings.TrimSpace(*req.Name)
		}
		if req.PriceWeekly != nil {
			pkg.PriceWeekly = nullable(req.PriceWeekly)
		}
		if req.PriceMonthly != nil {
			pkg.PriceMonthly = nullable(req.PriceMonthly)
		}
		if req.PriceQuarterly != nil {
			pkg.PriceQuarterly = nullable(req.PriceQuarterly)
		}
		if req.PriceYearly != nil {
			pkg.PriceYearly = nullable(req.PriceYearly)
		}
		if req.MaxStaff != nil {
			pkg.MaxStaff = *req.MaxStaff
		}
		if req.MaxLeadsPerMonth != nil {
			pkg.MaxLeadsPerMonth = *req.MaxLeadsPerMonth
		}
		if req.Features != nil {
			pkg.Features = features(req.Features)
		}
		if err := pkg.Validate(); err != nil {
			return err
		}
		pkg.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, pkg); err != nil {
			return err
		}
		updated = pkg
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := plandomain.ToResponse(updated)
	return &resp, nil
}

// Deactivate soft-disables a package no active tenant holds.
func (s *Service) Deactivate(ctx context.Context, rawID string) (*plandomain.Response, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	var pkg *plandomain.Package
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return plandomain.ErrNotFound
		}
		if !found.IsActive {
			pkg = found
			return nil
		}

		holders, err := s.repo.CountActiveTenants(ctx, tx, id)
		if err != nil {
			return err
		}
		if holders > 0 {
			return plandomain.ErrInUse
		}

		found.IsActive = false
		found.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		pkg = found
		return nil
	})
	if err != nil {
		if errors.Is(err, plandomain.ErrInUse) {
			s.log.Warn("package deactivation refused", zap.String("package_id", id.String()))
		}
		return nil, err
	}

	resp := plandomain.ToResponse(pkg)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*plandomain.Response, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, plandomain.ErrNotFound
	}
	resp := plandomain.ToResponse(pkg)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req plandomain.ListRequest) ([]plandomain.Response, error) {
	items, err := s.repo.List(ctx, s.db, req.ActiveOnly)
	if err != nil {
		return nil, err
	}
	resp := make([]plandomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, plandomain.ToResponse(&items[i]))
	}
	return resp, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, plandomain.ErrInvalidID
	}
	return id, nil
}

func nullable(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v.Round(2))
}

func features(in []string) datatypes.JSONSlice[string] {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return datatypes.NewJSONSlice(out)
}
