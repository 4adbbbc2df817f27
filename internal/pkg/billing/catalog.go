package billing

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
)

// ProductPayload is the subset of a Stripe product mirrored locally.
type ProductPayload struct {
	ID          string            `json:"id"`
	Active      bool              `json:"active"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Images      []string          `json:"images"`
	Metadata    map[string]string `json:"metadata"`
}

// PricePayload is the subset of a Stripe price mirrored locally.
type PricePayload struct {
	ID         string            `json:"id"`
	Product    ExpandableID      `json:"product"`
	Active     bool              `json:"active"`
	Nickname   string            `json:"nickname"`
	UnitAmount *int64            `json:"unit_amount"`
	Currency   string            `json:"currency"`
	Type       string            `json:"type"`
	Recurring  *PriceRecurring   `json:"recurring"`
	Metadata   map[string]string `json:"metadata"`
}

type PriceRecurring struct {
	Interval        string `json:"interval"`
	IntervalCount   int64  `json:"interval_count"`
	TrialPeriodDays *int64 `json:"trial_period_days"`
}

// CatalogSyncResult counts the rows written by SyncCatalog.
type CatalogSyncResult struct {
	Products int `json:"products"`
	Prices   int `json:"prices"`
}

func ProductFromPayload(p ProductPayload) *models.Product {
	product := &models.Product{
		ID:          p.ID,
		Active:      p.Active,
		Name:        p.Name,
		Description: p.Description,
		Metadata:    toJSONMap(p.Metadata),
	}
	if len(p.Images) > 0 {
		product.Image = p.Images[0]
	}
	return product
}

func PriceFromPayload(p PricePayload) *models.Price {
	price := &models.Price{
		ID:          p.ID,
		ProductID:   p.Product.String(),
		Active:      p.Active,
		Description: p.Nickname,
		UnitAmount:  p.UnitAmount,
		Currency:    strings.ToLower(p.Currency),
		Type:        p.Type,
		Metadata:    toJSONMap(p.Metadata),
	}
	if p.Recurring != nil {
		price.Interval = p.Recurring.Interval
		if p.Recurring.IntervalCount > 0 {
			count := p.Recurring.IntervalCount
			price.IntervalCount = &count
		}
		price.TrialPeriodDays = p.Recurring.TrialPeriodDays
	}
	return price
}

// PricingCacheKey is the redis key of the cached pricing list.
const PricingCacheKey = "saasfox:pricing:v1"

// SyncCatalog mirrors the active Stripe products and prices into the store.
// Products are written first so every price row has its product.
func (s *Service) SyncCatalog(ctx context.Context) (CatalogSyncResult, error) {
	var res CatalogSyncResult
	if s.gateway == nil {
		return res, ErrGatewayNotConfigured
	}

	products, err := s.gateway.ListActiveProducts(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range products {
		if err := s.repo.UpsertProduct(ctx, ProductFromPayload(p)); err != nil {
			return res, err
		}
		res.Products++
	}

	prices, err := s.gateway.ListActivePrices(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range prices {
		if err := s.repo.UpsertPrice(ctx, PriceFromPayload(p)); err != nil {
			return res, err
		}
		res.Prices++
	}

	log.Infof("[Billing] Catalog synced: %d products, %d prices", res.Products, res.Prices)
	return res, nil
}

// ListPricing returns active products with their active prices, ordered by
// the numeric "index" metadata key. Products without an index follow in
// name order.
func (s *Service) ListPricing(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}
	SortProductsByIndex(products)
	return products, nil
}

// SortProductsByIndex orders products by metadata.index. A missing or
// unparseable index counts as 0; ties keep their incoming order.
func SortProductsByIndex(products []models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		ii, _ := metadataIndex(products[i].Metadata)
		ji, _ := metadataIndex(products[j].Metadata)
		return ii < ji
	})
}

func metadataIndex(m datatypes.JSONMap) (int, bool) {
	v, ok := m["index"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func toJSONMap(m map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
