package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

// FileCatalog reads products from a JSON array file owned by the catalog service.
// The file is re-read on every lookup so edits made by its owner are picked up.
type FileCatalog struct {
	path string
}

func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

func (c *FileCatalog) FindProduct(ctx context.Context, id int64) (*domain.Product, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for _, p := range products {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, ErrProductNotFound
}
