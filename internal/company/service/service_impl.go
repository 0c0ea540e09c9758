package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  companydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  companydomain.Repository
}

func NewService(p Params) companydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("company.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req companydomain.CreateRequest) (*companydomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, companydomain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, companydomain.ErrInvalidEmail
	}

	now := s.clock.Now()
	company := &companydomain.Company{
		ID:                 s.genID.Generate(),
		Name:               name,
		Email:              email,
		SubscriptionStatus: companydomain.StatusNone,
		IsActive:           false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, company); err != nil {
		return nil, err
	}

	s.log.Info("company registered", zap.String("company_id", company.ID.String()))
	resp := companydomain.ToResponse(company)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*companydomain.Response, error) {
	companyID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || companyID == 0 {
		return nil, companydomain.ErrInvalidID
	}
	company, err := s.repo.FindByID(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}
	resp := companydomain.ToResponse(company)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req companydomain.ListRequest) ([]companydomain.Response, error) {
	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return nil, err
	}
	resp := make([]companydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, companydomain.ToResponse(&items[i]))
	}
	return resp, nil
}
