package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inletmail/inlet/internal/models"
	"github.com/inletmail/inlet/internal/repository"
)

// MatcherTestSuite exercises rule matching against a real repository.
type MatcherTestSuite struct {
	suite.Suite
	db      *gorm.DB
	repo    repository.MappingRepository
	matcher *Matcher
	user    models.User
}

func (s *MatcherTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	err = db.AutoMigrate(&models.User{}, &models.Mapping{}, &models.LoggedMail{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = repository.NewMappingRepository(db)
	s.matcher = NewMatcher(s.repo)
}

func (s *MatcherTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

func (s *MatcherTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM mappings")
	s.db.Exec("DELETE FROM users")

	s.user = models.User{Login: "owner"}
	require.NoError(s.T(), s.db.Create(&s.user).Error)
}

func TestMatcherTestSuite(t *testing.T) {
	suite.Run(t, new(MatcherTestSuite))
}

func (s *MatcherTestSuite) addRule(emailUser string) *models.Mapping {
	mapping := &models.Mapping{
		UserID:      s.user.ID,
		EmailUser:   emailUser,
		EmailDomain: "example.com",
		Destination: "https://example.com/hook",
		Transport:   models.TransportHTTPPost,
	}
	require.NoError(s.T(), s.repo.Save(context.Background(), mapping))
	return mapping
}

func (s *MatcherTestSuite) TestWildcardPrecedence() {
	star := s.addRule("*")
	prefix := s.addRule("abc*")
	exact := s.addRule("abc")

	tests := []struct {
		address string
		wantID  uint
	}{
		{"abc@example.com", exact.ID},
		{"abc1@example.com", prefix.ID},
		{"xyz@example.com", star.ID},
	}
	for _, tt := range tests {
		mapping, matched, err := s.matcher.Match(context.Background(), []string{tt.address})
		require.NoError(s.T(), err)
		require.NotNil(s.T(), mapping, "no rule for %s", tt.address)
		assert.Equal(s.T(), tt.wantID, mapping.ID, "wrong rule for %s", tt.address)
		assert.Equal(s.T(), tt.address, matched)
	}
}

func (s *MatcherTestSuite) TestStopsAtFirstMatchingCandidate() {
	s.addRule("first")
	s.addRule("second")

	mapping, matched, err := s.matcher.Match(context.Background(),
		[]string{"nomatch@example.com", "first@example.com", "second@example.com"})

	require.NoError(s.T(), err)
	require.NotNil(s.T(), mapping)
	assert.Equal(s.T(), "first", mapping.EmailUser)
	assert.Equal(s.T(), "first@example.com", matched)
}

func (s *MatcherTestSuite) TestNormalizesCandidates() {
	exact := s.addRule("abc")

	mapping, matched, err := s.matcher.Match(context.Background(), []string{"  ABC@Example.COM "})

	require.NoError(s.T(), err)
	require.NotNil(s.T(), mapping)
	assert.Equal(s.T(), exact.ID, mapping.ID)
	assert.Equal(s.T(), "abc@example.com", matched)
}

func (s *MatcherTestSuite) TestNoMatchIsNotAnError() {
	mapping, matched, err := s.matcher.Match(context.Background(),
		[]string{"nobody@example.com", "malformed-address"})

	assert.NoError(s.T(), err)
	assert.Nil(s.T(), mapping)
	assert.Empty(s.T(), matched)
}

func (s *MatcherTestSuite) TestWildcardDoesNotCrossDomains() {
	s.addRule("*")

	mapping, _, err := s.matcher.Match(context.Background(), []string{"abc@other.com"})

	assert.NoError(s.T(), err)
	assert.Nil(s.T(), mapping)
}
