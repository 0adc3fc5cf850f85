package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/probekit/recipecrawl/internal/discovery"
)

func TestSavePermalinkInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPermalinkStoreWithPool(mock, "permalinks")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := discovery.PermalinkRecord{
		RunID:        "run-1",
		Site:         "allrecipes",
		ResourceID:   158968,
		URL:          "https://www.allrecipes.com/recipe/158968/spinach-and-feta-turkey-burgers/",
		StatusCode:   301,
		DiscoveredAt: now,
	}

	mock.ExpectExec("INSERT INTO permalinks").
		WithArgs(rec.RunID, rec.Site, rec.ResourceID, rec.URL, rec.StatusCode, rec.DiscoveredAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SavePermalink(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePermalinkRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPermalinkStoreWithPool(mock, "")
	require.NoError(t, err)

	err = store.SavePermalink(context.Background(), discovery.PermalinkRecord{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPermalinksScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPermalinkStoreWithPool(mock, "permalinks")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"run_id", "site", "resource_id", "url", "status_code", "discovered_at"}).
		AddRow("run-1", "allrecipes", int64(6663), "https://www.allrecipes.com/recipe/6663/", 301, now).
		AddRow("run-1", "allrecipes", int64(6664), "https://www.allrecipes.com/recipe/6664/", 301, now)

	mock.ExpectQuery("SELECT run_id, site, resource_id, url, status_code, discovered_at").
		WithArgs("run-1").
		WillReturnRows(rows)

	got, err := store.ListPermalinks(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(6663), got[0].ResourceID)
	require.Equal(t, int64(6664), got[1].ResourceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPermalinkStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPermalinkStoreWithPool(mock, "permalinks; DROP TABLE")
	require.Error(t, err)
}
