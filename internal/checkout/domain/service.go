package domain

import (
	"context"
	"errors"

	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
)

// Service is the checkout flow. It consumes the fiscal manager through
// the registry; a nil signature never fails a sale.
type Service interface {
	CreateSale(ctx context.Context, req CreateSaleRequest) (*Sale, error)
	CancelSale(ctx context.Context, saleID int64) (*Sale, error)
	GetSale(ctx context.Context, saleID int64) (*Sale, error)
	ListSales(ctx context.Context) ([]Sale, error)
}

// CreateSaleRequest carries the cart as submitted at checkout.
type CreateSaleRequest struct {
	TotalAmount   float64                 `json:"total_amount"`
	PaymentMethod string                  `json:"payment_method"`
	Items         []fiscaldomain.SaleItem `json:"items"`
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidItems         = errors.New("invalid_items")
	ErrNotFound             = errors.New("not_found")
	ErrAlreadyCancelled     = errors.New("already_cancelled")
)
