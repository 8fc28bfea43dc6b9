package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inletmail/inlet/internal/models"
)

// LoggedMailRepositoryTestSuite is the test suite for LoggedMailRepository
type LoggedMailRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo LoggedMailRepository
}

// SetupSuite runs once before all tests
func (s *LoggedMailRepositoryTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	err = db.AutoMigrate(&models.User{}, &models.Mapping{}, &models.LoggedMail{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewLoggedMailRepository(db)
}

// TearDownSuite runs once after all tests
func (s *LoggedMailRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test - clean up data
func (s *LoggedMailRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM logged_mails")
}

// TestLoggedMailRepositoryTestSuite runs the test suite
func TestLoggedMailRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(LoggedMailRepositoryTestSuite))
}

func (s *LoggedMailRepositoryTestSuite) TestSaveAndQueryHelpers() {
	count, err := s.repo.Count(context.Background())
	require.NoError(s.T(), err)
	assert.Zero(s.T(), count)

	_, err = s.repo.First(context.Background())
	assert.ErrorIs(s.T(), err, ErrNotFound)

	delivered := time.Now().UTC()
	logged := &models.LoggedMail{
		Sender:      "bob@example.com",
		Recipient:   "abc@example.com",
		Subject:     "hello",
		DeliveredAt: &delivered,
	}
	require.NoError(s.T(), s.repo.Save(context.Background(), logged))

	count, err = s.repo.Count(context.Background())
	require.NoError(s.T(), err)
	assert.EqualValues(s.T(), 1, count)

	first, err := s.repo.First(context.Background())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "bob@example.com", first.Sender)
	assert.True(s.T(), first.Delivered())
	assert.False(s.T(), first.Errored())
}

func (s *LoggedMailRepositoryTestSuite) TestList_NewestFirst() {
	for _, subject := range []string{"one", "two", "three"} {
		require.NoError(s.T(), s.repo.Save(context.Background(), &models.LoggedMail{
			Sender:    "bob@example.com",
			Recipient: "abc@example.com",
			Subject:   subject,
		}))
	}

	logged, total, err := s.repo.List(context.Background(), 2, 0)
	require.NoError(s.T(), err)
	assert.EqualValues(s.T(), 3, total)
	require.Len(s.T(), logged, 2)
	assert.Equal(s.T(), "three", logged[0].Subject)
}

// TestSave_DatabaseError verifies error wrapping on driver failures using a
// mocked connection.
func TestSave_DatabaseError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "logged_mails"`)).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	repo := NewLoggedMailRepository(db)
	err = repo.Save(context.Background(), &models.LoggedMail{Sender: "bob@example.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save logged mail")
	assert.NoError(t, mock.ExpectationsWereMet())
}
