package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Committer runs a mutation and reports it once committed.
type Committer interface {
	WithRetry(ctx context.Context, fn func(context.Context) error) error
}

type Service struct {
	repo      Repository
	committer Committer
}

func NewService(repo Repository, committer Committer) *Service {
	return &Service{repo: repo, committer: committer}
}

func (s *Service) mutate(ctx context.Context, fn func(context.Context, Repository) error) error {
	return s.committer.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) Create(ctx context.Context, req CreateProductRequest) (*Product, error) {
	p := Product{
		SKU:           strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		UnitPrice:     shared.RoundMoney(req.UnitPrice),
		UnitCost:      shared.RoundMoney(req.UnitCost),
		StockQuantity: req.StockQuantity,
		ReorderLevel:  req.ReorderLevel,
		IsActive:      true,
	}
	var id int64
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateProductRequest) (*Product, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := make(map[string]any)
	if req.SKU != nil {
		updates["sku"] = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.UnitPrice != nil {
		updates["unit_price"] = shared.RoundMoney(*req.UnitPrice)
	}
	if req.UnitCost != nil {
		updates["unit_cost"] = shared.RoundMoney(*req.UnitCost)
	}
	if req.StockQuantity != nil {
		updates["stock_quantity"] = *req.StockQuantity
	}
	if req.ReorderLevel != nil {
		updates["reorder_level"] = *req.ReorderLevel
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return existing, nil
	}
	if err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Update(ctx, id, updates)
	}); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Delete(ctx, id)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	return s.repo.List(ctx, req)
}

// Inventory values the stock of every active product at unit cost.
func (s *Service) Inventory(ctx context.Context) (Inventory, error) {
	items, err := s.repo.All(ctx)
	if err != nil {
		return Inventory{}, err
	}
	return BuildInventory(items), nil
}

// BuildInventory computes stock value and low-stock flags.
func BuildInventory(items []Product) Inventory {
	inv := Inventory{Items: make([]InventoryItem, 0, len(items)), TotalValue: decimal.Zero}
	for _, p := range items {
		value := shared.RoundMoney(decimal.NewFromInt(p.StockQuantity).Mul(p.UnitCost))
		low := p.StockQuantity <= p.ReorderLevel
		inv.Items = append(inv.Items, InventoryItem{
			ProductID:     p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			StockQuantity: p.StockQuantity,
			ReorderLevel:  p.ReorderLevel,
			UnitCost:      p.UnitCost,
			StockValue:    value,
			LowStock:      low,
		})
		inv.TotalQuantity += p.StockQuantity
		inv.TotalValue = inv.TotalValue.Add(value)
		if low {
			inv.LowStockCount++
		}
	}
	return inv
}
