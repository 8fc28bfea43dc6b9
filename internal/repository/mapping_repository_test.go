package repository

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
)

// MappingRepositoryTestSuite is the test suite for MappingRepository
type MappingRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo MappingRepository
	user models.User
}

// SetupSuite runs once before all tests
func (s *MappingRepositoryTestSuite) SetupSuite() {
	// Use in-memory SQLite for testing
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.User{}, &models.Mapping{}, &models.LoggedMail{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewMappingRepository(db)
}

// TearDownSuite runs once after all tests
func (s *MappingRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test - clean up data
func (s *MappingRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM logged_mails")
	s.db.Exec("DELETE FROM mappings")
	s.db.Exec("DELETE FROM users")

	s.user = models.User{Login: "owner"}
	require.NoError(s.T(), s.db.Create(&s.user).Error)
}

// TestMappingRepositoryTestSuite runs the test suite
func TestMappingRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(MappingRepositoryTestSuite))
}

func (s *MappingRepositoryTestSuite) newMapping(emailUser string) *models.Mapping {
	return &models.Mapping{
		UserID:      s.user.ID,
		EmailUser:   emailUser,
		EmailDomain: "example.com",
		Destination: "https://example.com/hook",
		Transport:   models.TransportHTTPPost,
	}
}

func (s *MappingRepositoryTestSuite) TestSave_Success() {
	mapping := s.newMapping("abc")

	err := s.repo.Save(context.Background(), mapping)

	assert.NoError(s.T(), err)
	assert.NotZero(s.T(), mapping.ID)
}

func (s *MappingRepositoryTestSuite) TestSave_DuplicateAddress_ReturnsError() {
	require.NoError(s.T(), s.repo.Save(context.Background(), s.newMapping("abc")))

	err := s.repo.Save(context.Background(), s.newMapping("abc"))

	assert.ErrorIs(s.T(), err, ErrDuplicateEntry)
}

func (s *MappingRepositoryTestSuite) TestSave_InvalidMapping_ReturnsError() {
	mapping := s.newMapping("a*b*")

	err := s.repo.Save(context.Background(), mapping)

	assert.ErrorIs(s.T(), err, ErrInvalidInput)
}

func (s *MappingRepositoryTestSuite) TestFindByUserDomain() {
	require.NoError(s.T(), s.repo.Save(context.Background(), s.newMapping("abc")))

	found, err := s.repo.FindByUserDomain(context.Background(), "abc", "example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "abc", found.EmailUser)

	_, err = s.repo.FindByUserDomain(context.Background(), "missing", "example.com")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *MappingRepositoryTestSuite) TestFindWildcardsByDomain() {
	require.NoError(s.T(), s.repo.Save(context.Background(), s.newMapping("abc")))
	require.NoError(s.T(), s.repo.Save(context.Background(), s.newMapping("abc*")))
	require.NoError(s.T(), s.repo.Save(context.Background(), s.newMapping("*")))

	wildcards, err := s.repo.FindWildcardsByDomain(context.Background(), "example.com")
	require.NoError(s.T(), err)
	require.Len(s.T(), wildcards, 2)
	for _, w := range wildcards {
		assert.True(s.T(), w.Wildcard())
	}

	none, err := s.repo.FindWildcardsByDomain(context.Background(), "other.com")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), none)
}

func (s *MappingRepositoryTestSuite) TestList_And_Delete() {
	m := s.newMapping("abc")
	require.NoError(s.T(), s.repo.Save(context.Background(), m))

	mappings, total, err := s.repo.List(context.Background(), 10, 0)
	require.NoError(s.T(), err)
	assert.EqualValues(s.T(), 1, total)
	require.Len(s.T(), mappings, 1)

	require.NoError(s.T(), s.repo.Delete(context.Background(), m.ID))
	assert.ErrorIs(s.T(), s.repo.Delete(context.Background(), m.ID), ErrNotFound)
}
