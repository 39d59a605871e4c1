// Package position ingests dated position snapshots.
package position

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// Compile-time interface check
var _ interfaces.PositionService = (*Service)(nil)

// Service implements PositionService. Values are encrypted before they reach
// storage; plaintext never leaves this call.
type Service struct {
	storage interfaces.StorageManager
	cipher  interfaces.ValueCipher
	logger  *common.Logger
}

// NewService creates a new position service
func NewService(storage interfaces.StorageManager, cipher interfaces.ValueCipher, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		cipher:  cipher,
		logger:  logger,
	}
}

// IngestSnapshot stores every position of one date. A date can be ingested
// once; a second call returns models.ErrSnapshotExists.
func (s *Service) IngestSnapshot(ctx context.Context, date time.Time, inputs []*models.PositionInput) (*models.SnapshotInfo, error) {
	date = models.DateOf(date)

	seen := make(map[string]bool, len(inputs))
	positions := make([]*models.Position, 0, len(inputs))
	for i, in := range inputs {
		id := strings.TrimSpace(in.ID)
		account := strings.TrimSpace(in.AccountID)
		if id == "" || account == "" {
			return nil, fmt.Errorf("%w %d: id and account_id are required", models.ErrInvalidPosition, i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w %s: duplicate id", models.ErrInvalidPosition, id)
		}
		seen[id] = true

		token, err := s.cipher.Encrypt(in.Value)
		if err != nil {
			return nil, fmt.Errorf("position %s: failed to encrypt value: %w", id, err)
		}

		positions = append(positions, &models.Position{
			ID:          id,
			AccountID:   account,
			Ticker:      strings.TrimSpace(in.Ticker),
			AssetClass:  in.AssetClass,
			SecondLevel: in.SecondLevel,
			ThirdLevel:  in.ThirdLevel,
			Liquidity:   in.Liquidity,
			ValueToken:  token,
			AsOf:        date,
		})
	}

	if err := s.storage.PositionStore().PutSnapshot(ctx, date, positions); err != nil {
		return nil, err
	}

	s.logger.Info().Str("date", models.FormatDate(date)).Int("positions", len(positions)).Msg("Position snapshot ingested")

	return &models.SnapshotInfo{
		Date:          date,
		PositionCount: len(positions),
		IngestedAt:    time.Now(),
	}, nil
}

func (s *Service) ListSnapshots(ctx context.Context) ([]*models.SnapshotInfo, error) {
	infos, err := s.storage.PositionStore().ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return infos, nil
}
