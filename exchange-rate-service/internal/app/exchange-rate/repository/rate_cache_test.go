package repository

import (
	"context"
	"testing"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RateSnapshotRepositoryTestSuite тестовый suite для снимков курсов в Redis
type RateSnapshotRepositoryTestSuite struct {
	suite.Suite
	miniRedis *miniredis.Miniredis
	client    *redis.Client
	repo      RateSnapshotRepository
}

func TestRateSnapshotRepositorySuite(t *testing.T) {
	suite.Run(t, new(RateSnapshotRepositoryTestSuite))
}

func (s *RateSnapshotRepositoryTestSuite) SetupSuite() {
	var err error
	s.miniRedis, err = miniredis.Run()
	require.NoError(s.T(), err)

	s.client = redis.NewClient(&redis.Options{
		Addr: s.miniRedis.Addr(),
	})

	s.repo = NewRateSnapshotRepository(s.client, 24*time.Hour)
}

func (s *RateSnapshotRepositoryTestSuite) SetupTest() {
	s.miniRedis.FlushAll()
}

func (s *RateSnapshotRepositoryTestSuite) TearDownSuite() {
	s.client.Close()
	s.miniRedis.Close()
}

// ===================== SaveAll Tests =====================

func (s *RateSnapshotRepositoryTestSuite) TestSaveAll_Success() {
	ctx := context.Background()
	records := []entity.RateRecord{
		newRecord("USD", "117.50", baseTime),
		newRecord("EUR", "128.10", baseTime),
	}

	// Act
	err := s.repo.SaveAll(ctx, records)

	// Assert
	s.NoError(err)
	s.True(s.miniRedis.Exists("rates:USD"))
	s.True(s.miniRedis.Exists("rates:EUR"))
	s.Equal(24*time.Hour, s.miniRedis.TTL("rates:USD"))
}

func (s *RateSnapshotRepositoryTestSuite) TestSaveAll_Empty() {
	err := s.repo.SaveAll(context.Background(), nil)

	s.NoError(err)
	s.Empty(s.miniRedis.Keys())
}

// ===================== LoadAll Tests =====================

func (s *RateSnapshotRepositoryTestSuite) TestLoadAll_RoundTripKeepsDecimalPrecision() {
	ctx := context.Background()
	rec := newRecord("USD", "117.6470588235294118", baseTime)
	s.Require().NoError(s.repo.SaveAll(ctx, []entity.RateRecord{rec}))

	// Act
	result, err := s.repo.LoadAll(ctx, []string{"USD", "GBP"})

	// Assert
	s.NoError(err)
	s.Len(result, 1)
	s.True(result["USD"].RateToBase.Equal(rec.RateToBase))
	s.True(result["USD"].FetchedAt.Equal(rec.FetchedAt))
	s.True(result["USD"].ExpiresAt.Equal(rec.ExpiresAt))
}

func (s *RateSnapshotRepositoryTestSuite) TestLoadAll_InvalidJSON() {
	s.Require().NoError(s.miniRedis.Set("rates:USD", "not json"))

	result, err := s.repo.LoadAll(context.Background(), []string{"USD"})

	s.Error(err)
	s.Nil(result)
	s.Contains(err.Error(), "failed to unmarshal")
}

func (s *RateSnapshotRepositoryTestSuite) TestLoadAll_Expired() {
	ctx := context.Background()
	s.Require().NoError(s.repo.SaveAll(ctx, []entity.RateRecord{newRecord("USD", "117", baseTime)}))
	s.miniRedis.FastForward(25 * time.Hour)

	result, err := s.repo.LoadAll(ctx, []string{"USD"})

	s.NoError(err)
	s.Empty(result)
}

func (s *RateSnapshotRepositoryTestSuite) TestPing() {
	s.NoError(s.repo.Ping(context.Background()))
}
