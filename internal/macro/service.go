package macro

import (
	"context"

	"liqflow/internal/models"
)

// Service ties the CoinGecko provider to the stored history. Both the
// periodic snapshot loop and the on-demand API endpoint go through it, so a
// manual snapshot lands in the same series.
type Service struct {
	provider *Provider
	history  *History
}

// NewService builds the macro service.
func NewService(provider *Provider, history *History) *Service {
	return &Service{provider: provider, history: history}
}

// TakeSnapshot fetches the current figures and appends them to the series.
func (s *Service) TakeSnapshot(ctx context.Context) (models.MacroSnapshot, error) {
	snap, err := s.provider.Snapshot(ctx)
	if err != nil {
		return models.MacroSnapshot{}, err
	}
	s.history.Append(snap)
	return snap, nil
}

// Series returns the bucketed snapshot series.
func (s *Service) Series(bucket string, limit int) []SeriesPoint {
	return s.history.Series(bucket, limit)
}

// Latest returns the newest stored snapshot.
func (s *Service) Latest() (models.MacroSnapshot, bool) {
	return s.history.Latest()
}
