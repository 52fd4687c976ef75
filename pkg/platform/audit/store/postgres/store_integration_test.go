//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	store *Store
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	db := containers.NewPostgres(s.T())
	s.store = New(db)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) TestTrailResumesAfterRestart() {
	ctx := context.Background()

	trail, err := audit.NewTrail(ctx, s.store)
	s.Require().NoError(err)
	first := trail.Append(ctx, audit.Record{UserID: "1", Action: audit.ActionLogin, ResourceType: audit.ResourceAuth})
	s.Require().NotEqual(audit.FailedRecordID, first)
	trail.Close()

	restarted, err := audit.NewTrail(ctx, s.store)
	s.Require().NoError(err)
	defer restarted.Close()
	second := restarted.Append(ctx, audit.Record{
		UserID:       "1",
		Action:       audit.ActionView,
		ResourceType: audit.ResourceProfile,
		ResourceID:   audit.StringPtr("1"),
	})
	s.Equal(first+1, second)

	records, err := restarted.Query(ctx, audit.Filter{UserID: "1"})
	s.Require().NoError(err)
	s.Require().GreaterOrEqual(len(records), 2)
	s.Equal(second, records[len(records)-1].ID)
	s.Equal("1", *records[len(records)-1].ResourceID)
}
