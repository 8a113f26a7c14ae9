package models_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/yourusername/stockmeta/db"
	"github.com/yourusername/stockmeta/models"
)

type ExportRepositorySuite struct {
	suite.Suite
	repo *models.ExportRepository
}

func (s *ExportRepositorySuite) SetupSuite() {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		s.T().Skip("TEST_DATABASE_URL not set")
	}
	db.ConnectAttempts = 1
	if err := db.Connect(url); err != nil {
		s.T().Skipf("Skipping database integration test: %v", err)
	}
	s.Require().NoError(db.Migrate())
	s.repo = models.NewExportRepositoryFrom(db.Conn)
}

func (s *ExportRepositorySuite) TearDownSuite() {
	db.Close()
}

func (s *ExportRepositorySuite) SetupTest() {
	_, err := db.DB.Exec("TRUNCATE exports")
	s.Require().NoError(err)
}

func (s *ExportRepositorySuite) TestCreateAssignsIDAndTimestamp() {
	title := "Sunset"
	rec := &models.ExportRecord{
		ClientID:       "lightroom",
		SourceFilename: "sunset.jpg",
		OutputFilename: "sunset.jpg",
		Policy:         "embed",
		OutputSize:     1234,
		Title:          &title,
		KeywordCount:   3,
	}
	s.Require().NoError(s.repo.Create(rec))
	s.NotEmpty(rec.ID.String())
	s.False(rec.CreatedAt.IsZero())
}

func (s *ExportRepositorySuite) TestListByClientPaginates() {
	for _, name := range []string{"a.jpg", "b.png", "c.jpg"} {
		s.Require().NoError(s.repo.Create(&models.ExportRecord{
			ClientID: "lightroom", SourceFilename: name, OutputFilename: name, Policy: "embed",
		}))
	}
	s.Require().NoError(s.repo.Create(&models.ExportRecord{
		ClientID: "other", SourceFilename: "x.jpg", OutputFilename: "x.jpg", Policy: "embed",
	}))

	first, total, err := s.repo.ListByClient("lightroom", 1, 2)
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Len(first, 2)
	s.Equal("c.jpg", first[0].SourceFilename)

	second, _, err := s.repo.ListByClient("lightroom", 2, 2)
	s.Require().NoError(err)
	s.Len(second, 1)
	s.Equal("a.jpg", second[0].SourceFilename)

	none, total, err := s.repo.ListByClient("nobody", 1, 10)
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(none)
}

func (s *ExportRepositorySuite) TestReconnectKeepsRepositoryUsable() {
	s.Require().NoError(db.Reconnect())
	_, _, err := s.repo.ListByClient("lightroom", 1, 10)
	s.NoError(err)
}

func TestExportRepositorySuite(t *testing.T) {
	suite.Run(t, new(ExportRepositorySuite))
}
