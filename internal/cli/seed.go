package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/storage"
)

// SeedFile is the YAML layout accepted by `marketplace seed`.
//
//	categories:
//	  - name: Outdoor
//	products:
//	  - vendor_id: 1
//	    name: Camp Chair
//	    sku: CHAIR-1
//	    price: "49.90"
//	    stock: 12
//	    category: Outdoor
//	    tags: [summer]
type SeedFile struct {
	Categories []SeedCategory `yaml:"categories"`
	Products   []SeedProduct  `yaml:"products"`
}

type SeedCategory struct {
	Name string `yaml:"name"`
}

type SeedProduct struct {
	ID       int64          `yaml:"id"`
	VendorID int64          `yaml:"vendor_id"`
	Name     string         `yaml:"name"`
	SKU      string         `yaml:"sku"`
	Status   catalog.Status `yaml:"status"`
	Price    string         `yaml:"price"`
	Stock    int            `yaml:"stock"`
	Category string         `yaml:"category"`
	Tags     []string       `yaml:"tags"`
	Variants []SeedVariant  `yaml:"variants"`
}

type SeedVariant struct {
	SKU   string `yaml:"sku"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Stock int    `yaml:"stock"`
}

// SeedResult counts what was written.
type SeedResult struct {
	Categories int
	Products   int
}

func newSeedCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo categories and products from a YAML file",
		Example: `  marketplace seed --file catalog.yaml
  marketplace seed --file catalog.yaml --config prod.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.NewLoggerWithComponent(a.cfg.Observability.Logging, "seed")

			seed, err := LoadSeedFile(file)
			if err != nil {
				return err
			}

			store, err := storage.NewStorage(a.cfg.Storage.DatabasePath, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result, err := Seed(cmd.Context(), store, seed)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d categories and %d products into %s\n",
				result.Categories, result.Products, a.cfg.Storage.DatabasePath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Seed writes the categories first, then products referencing them by name.
func Seed(ctx context.Context, repo storage.Repository, seed *SeedFile) (SeedResult, error) {
	var result SeedResult
	categoryIDs := make(map[string]int64, len(seed.Categories))

	for _, sc := range seed.Categories {
		c := &catalog.Category{Name: sc.Name}
		if err := repo.CreateCategory(ctx, c); err != nil {
			return result, err
		}
		categoryIDs[sc.Name] = c.ID
		result.Categories++
	}

	for i, sp := range seed.Products {
		p, err := sp.toProduct(categoryIDs)
		if err != nil {
			return result, fmt.Errorf("product %d (%s): %w", i+1, sp.Name, err)
		}
		if err := repo.CreateProduct(ctx, p); err != nil {
			return result, fmt.Errorf("product %d (%s): %w", i+1, sp.Name, err)
		}
		result.Products++
	}

	return result, nil
}

func (sp SeedProduct) toProduct(categoryIDs map[string]int64) (*catalog.Product, error) {
	if sp.VendorID <= 0 {
		return nil, errors.New("vendor_id must be positive")
	}
	if sp.Status != "" && !sp.Status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", sp.Status)
	}

	price, err := parsePrice(sp.Price)
	if err != nil {
		return nil, err
	}

	p := &catalog.Product{
		ID:       sp.ID,
		VendorID: sp.VendorID,
		Name:     sp.Name,
		SKU:      sp.SKU,
		Status:   sp.Status,
		Price:    price,
		Stock:    sp.Stock,
		Tags:     sp.Tags,
	}

	if sp.Category != "" {
		id, ok := categoryIDs[sp.Category]
		if !ok {
			return nil, fmt.Errorf("category %q is not declared in the seed file", sp.Category)
		}
		p.CategoryID = &id
	}

	for _, sv := range sp.Variants {
		vp, err := parsePrice(sv.Price)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", sv.SKU, err)
		}
		p.Variants = append(p.Variants, catalog.Variant{SKU: sv.SKU, Name: sv.Name, Price: vp, Stock: sv.Stock})
	}

	return p, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("price %s must not be negative", s)
	}
	return d, nil
}
