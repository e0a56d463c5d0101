package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/fiskal/internal/checkout/domain"
	"github.com/smallbiznis/fiskal/internal/fiscal/manager"
	"github.com/smallbiznis/fiskal/internal/orgcontext"
	"github.com/smallbiznis/fiskal/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Registry *manager.Registry
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	registry *manager.Registry
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		registry: p.Registry,
	}
}

// CreateSale persists the sale and then asks the org's fiscal manager to
// sign it. Signing is best-effort: the sale commits with or without a
// signature, and a missing tse_data column is how operators notice
// degraded signing.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (*domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	orgIDValue := int64(orgID)

	if req.TotalAmount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	switch req.PaymentMethod {
	case fiscaldomain.PaymentMethodCash, fiscaldomain.PaymentMethodCard:
	default:
		return nil, domain.ErrInvalidPaymentMethod
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}

	items, err := json.Marshal(req.Items)
	if err != nil {
		return nil, domain.ErrInvalidItems
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:            s.genID.Generate().Int64(),
		OrgID:         orgIDValue,
		FiscalTxID:    uuid.NewString(),
		TotalAmount:   req.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		Items:         datatypes.JSON(items),
		Status:        domain.SaleStatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &sale); err != nil {
		// A fiscal tx id collision is a regenerable accident, not a
		// caller error.
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		sale.FiscalTxID = uuid.NewString()
		if err := s.repo.Insert(ctx, s.db, &sale); err != nil {
			return nil, err
		}
	}

	mgr, err := s.registry.Get(ctx, orgIDValue)
	if err != nil {
		s.log.Error("fiscal manager unavailable",
			zap.Int64("org_id", orgIDValue),
			zap.Error(err),
		)
		return &sale, nil
	}

	snapshot := mgr.SignTransaction(ctx, sale.FiscalTxID, sale.TotalAmount, sale.PaymentMethod, req.Items)
	if snapshot != nil {
		tseData, err := json.Marshal(snapshot)
		if err == nil {
			if err := s.repo.AttachTseData(ctx, s.db, sale.ID, datatypes.JSON(tseData), time.Now().UTC()); err != nil {
				s.log.Error("attaching tse data failed",
					zap.Int64("sale_id", sale.ID),
					zap.Error(err),
				)
			} else {
				sale.TseData = datatypes.JSON(tseData)
			}
		}
	}

	return &sale, nil
}

// CancelSale marks the sale cancelled and voids the remote fiscal
// transaction best-effort.
func (s *Service) CancelSale(ctx context.Context, saleID int64) (*domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	orgIDValue := int64(orgID)

	sale, err := s.repo.FindByID(ctx, s.db, orgIDValue, saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled {
		return nil, domain.ErrAlreadyCancelled
	}

	if err := s.repo.UpdateStatus(ctx, s.db, sale.ID, domain.SaleStatusCancelled, time.Now().UTC()); err != nil {
		return nil, err
	}
	sale.Status = domain.SaleStatusCancelled

	if mgr, err := s.registry.Get(ctx, orgIDValue); err == nil {
		mgr.CancelTransaction(ctx, sale.FiscalTxID)
	}

	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, saleID int64) (*domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	sale, err := s.repo.FindByID(ctx, s.db, int64(orgID), saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, domain.ErrNotFound
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, int64(orgID))
}
