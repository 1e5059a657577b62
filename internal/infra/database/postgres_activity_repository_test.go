package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"activity_scraper/internal/domain/acquisition"
	"activity_scraper/internal/domain/activity"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleActivities() []activity.Activity {
	scrapedAt := time.Date(2025, 5, 1, 3, 0, 0, 0, time.UTC)
	return []activity.Activity{
		{ExternalID: "a-1", Name: "Bouldering", TopLevelCategory: "SPORT", SubLevelCategory: "climbing", Latitude: 52.37, Longitude: 4.89, URL: "https://source.test/a-1", ScrapedAt: scrapedAt},
		{ExternalID: "a-2", Name: "Rijksmuseum", TopLevelCategory: "CULTURE", SubLevelCategory: "museum", Latitude: 52.36, Longitude: 4.88, URL: "https://source.test/a-2", ScrapedAt: scrapedAt},
	}
}

func TestSaveActivities_CommitsAllInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	activities := sampleActivities()
	mock.ExpectBegin()
	for _, a := range activities {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO activities`)).
			WithArgs(a.ExternalID, a.Name, a.Description, a.TopLevelCategory, a.SubLevelCategory,
				a.Latitude, a.Longitude, a.URL, a.ScrapedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	repo := NewPostgresActivityRepository(db)
	require.NoError(t, repo.SaveActivities(context.Background(), activities))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveActivities_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	activities := sampleActivities()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO activities`)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO activities`)).
		WillReturnError(&pq.Error{Code: "23502", Message: "null value in column \"name\""})
	mock.ExpectRollback()

	repo := NewPostgresActivityRepository(db)
	err = repo.SaveActivities(context.Background(), activities)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a-2")
	assert.False(t, errors.Is(err, acquisition.ErrTransport))
	assert.Equal(t, acquisition.KindUnexpected, acquisition.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveActivities_ConnectionErrorIsTransport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	repo := NewPostgresActivityRepository(db)
	err = repo.SaveActivities(context.Background(), sampleActivities())

	require.Error(t, err)
	assert.True(t, errors.Is(err, acquisition.ErrTransport))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveActivities_EmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresActivityRepository(db)
	require.NoError(t, repo.SaveActivities(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActivities(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM activities`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(128))

	repo := NewPostgresActivityRepository(db)
	count, err := repo.CountActivities(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 128, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActivities_ConnDone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM activities`)).WillReturnError(sql.ErrConnDone)

	repo := NewPostgresActivityRepository(db)
	_, err = repo.CountActivities(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, acquisition.ErrTransport))
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS activities`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
