package catalog

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/models"
	"go.uber.org/zap"
)

// Browser fronts a Catalog for an interactive session. Each browse call takes
// a generation number; when a newer call starts, or Invalidate is called,
// before the response arrives, the response is discarded with
// apperr.ErrStaleResponse.
type Browser struct {
	catalog    Catalog
	generation atomic.Uint64
	logger     *zap.Logger
}

func NewBrowser(c Catalog, logger *zap.Logger) *Browser {
	return &Browser{catalog: c, logger: logger}
}

// Invalidate marks every in-flight request as stale.
func (b *Browser) Invalidate() {
	b.generation.Add(1)
}

// Generation is the number of the most recent request.
func (b *Browser) Generation() uint64 {
	return b.generation.Load()
}

// Browse lists the catalog, or searches it when query is non-empty.
func (b *Browser) Browse(ctx context.Context, query string) ([]models.Medicine, error) {
	gen := b.generation.Add(1)
	query = strings.TrimSpace(query)

	var (
		out []models.Medicine
		err error
	)
	if query == "" {
		out, err = b.catalog.ListMedicines(ctx)
	} else {
		out, err = b.catalog.Search(ctx, query)
	}
	if b.generation.Load() != gen {
		b.logger.Debug("Discarding stale catalog response", zap.String("query", query), zap.Uint64("generation", gen))
		return nil, apperr.ErrStaleResponse
	}
	return out, err
}

// Detail fetches a single medicine under the same generation rule.
func (b *Browser) Detail(ctx context.Context, id int64) (*models.Medicine, error) {
	gen := b.generation.Add(1)
	m, err := b.catalog.GetByID(ctx, id)
	if b.generation.Load() != gen {
		b.logger.Debug("Discarding stale catalog response", zap.Int64("medicine_id", id), zap.Uint64("generation", gen))
		return nil, apperr.ErrStaleResponse
	}
	return m, err
}
