// Package nutrition resolves food detail for a recommendation and groups
// nutrients for display.
package nutrition

import (
	"context"
	"log/slog"
	"maps"

	"github.com/ashureev/nutribot/internal/domain"
)

// LoadErrorText is shown inline when the detail endpoint fails.
const LoadErrorText = "No se pudieron cargar los detalles del alimento"

// DetailSource fetches food detail by FoodData Central id.
type DetailSource interface {
	FoodDetails(ctx context.Context, fdcID int) (*domain.FoodDetails, error)
}

// Result is the outcome of a detail lookup. When the fetch fails, Error
// carries LoadErrorText and Details, if non-nil, is built from the
// nutrient data already attached to the recommendation.
type Result struct {
	Details  *domain.FoodDetails `json:"details"`
	Error    string              `json:"error,omitempty"`
	Fallback bool                `json:"fallback"`
	Groups   *Groups             `json:"groups,omitempty"`
}

// Lookup fetches food detail with a local fallback.
type Lookup struct {
	source DetailSource
	logger *slog.Logger
}

// NewLookup creates a lookup over source.
func NewLookup(source DetailSource, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{source: source, logger: logger}
}

// Details fetches detail for fdcID. rec is the recommendation the request
// came from and may be nil. Errors never escape: they become Result.Error.
func (l *Lookup) Details(ctx context.Context, fdcID int, rec *domain.FoodRecommendation) Result {
	d, err := l.source.FoodDetails(ctx, fdcID)
	if err == nil {
		g := Group(d.Nutrientes)
		return Result{Details: d, Groups: &g}
	}

	l.logger.Warn("Food detail lookup failed, using fallback",
		"fdc_id", fdcID,
		"error", err,
	)

	res := Result{Error: LoadErrorText}
	if fb := FallbackDetails(rec); fb != nil {
		if fb.FdcID == 0 {
			fb.FdcID = fdcID
		}
		g := Group(fb.Nutrientes)
		res.Details = fb
		res.Fallback = true
		res.Groups = &g
	}
	return res
}

// FallbackDetails builds detail from the data carried by rec. It returns nil
// when rec has no info.
func FallbackDetails(rec *domain.FoodRecommendation) *domain.FoodDetails {
	if rec == nil || rec.Info == nil {
		return nil
	}
	desc := rec.Info.Nombre
	if desc == "" {
		desc = rec.DisplayName
	}
	nutrients := make(domain.Nutrients, len(rec.Info.Nutrientes))
	maps.Copy(nutrients, rec.Info.Nutrientes)
	return &domain.FoodDetails{
		FdcID:       rec.Info.FdcID,
		Description: desc,
		Nutrientes:  nutrients,
	}
}

// FindByFdcID returns the recommendation in recs whose info carries fdcID.
func FindByFdcID(recs []domain.FoodRecommendation, fdcID int) *domain.FoodRecommendation {
	for i := range recs {
		if recs[i].Info != nil && recs[i].Info.FdcID == fdcID {
			r := recs[i]
			return &r
		}
	}
	return nil
}
