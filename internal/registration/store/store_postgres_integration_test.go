//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vigil/internal/registration/models"
	"vigil/internal/registration/store"
	"vigil/pkg/testutil/containers"
)

type PostgresTokenStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	tokens   *store.PostgresTokenStore
	events   *store.PostgresEventStore
}

func TestPostgresTokenStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresTokenStoreSuite))
}

func (s *PostgresTokenStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.tokens = store.NewPostgresTokenStore(s.postgres.DB)
	s.events = store.NewPostgresEventStore(s.postgres.DB)
}

func (s *PostgresTokenStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "registration_tokens", "events"))
}

func (s *PostgresTokenStoreSuite) seedEvent(id string) {
	s.Require().NoError(s.events.Insert(context.Background(), &models.Event{
		ID:              id,
		PatientID:       "patient-1",
		StartAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationSeconds: 900,
		CreatedAt:       time.Now(),
	}))
}

func (s *PostgresTokenStoreSuite) TestInsertDuplicateConflicts() {
	ctx := context.Background()
	s.seedEvent("evt-1")

	token := &models.RegistrationToken{ID: "tok_pg", EventID: "evt-1", Status: models.StatusPending}
	s.Require().NoError(s.tokens.Insert(ctx, token))
	s.Assert().ErrorIs(s.tokens.Insert(ctx, token), store.ErrConflict)
}

func (s *PostgresTokenStoreSuite) TestFindNotFound() {
	_, err := s.tokens.FindByID(context.Background(), "tok_missing")
	s.Assert().ErrorIs(err, store.ErrNotFound)
}

// TestConcurrentConsume verifies the conditioned UPDATE admits exactly one
// winner when many connections race on the same token.
func (s *PostgresTokenStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	const goroutines = 25

	s.seedEvent("evt-race")
	s.Require().NoError(s.tokens.Insert(ctx, &models.RegistrationToken{
		ID: "tok_race", EventID: "evt-race", Status: models.StatusPending,
	}))

	var wg sync.WaitGroup
	var wins atomic.Int32
	var losses atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.tokens.CompareAndSetStatus(ctx, "tok_race", models.StatusPending, models.StatusDone)
			if err == nil {
				wins.Add(1)
				return
			}
			losses.Add(1)
		}()
	}
	wg.Wait()

	s.Assert().Equal(int32(1), wins.Load())
	s.Assert().Equal(int32(goroutines-1), losses.Load())

	token, err := s.tokens.FindByID(ctx, "tok_race")
	s.Require().NoError(err)
	s.Assert().Equal(models.StatusDone, token.Status)
}

func (s *PostgresTokenStoreSuite) TestCompareAndSetNotFound() {
	err := s.tokens.CompareAndSetStatus(context.Background(), "tok_ghost", models.StatusPending, models.StatusDone)
	s.Assert().ErrorIs(err, store.ErrNotFound)
}
