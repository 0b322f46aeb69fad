package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/models"
)

func TestUpsertLink_SecondInsertForSameURLIsNoOp(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")

	link := &models.Link{
		ID: "link1", ProjectID: "proj1", URL: "https://example.com/a",
		Status: models.LinkStatusPending, CreatedAt: time.Unix(1000, 0),
	}
	inserted, err := db.UpsertLink(context.Background(), link)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &models.Link{
		ID: "link2", ProjectID: "proj1", URL: "https://example.com/a",
		Status: models.LinkStatusPending, CreatedAt: time.Unix(2000, 0),
	}
	inserted, err = db.UpsertLink(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate (project_id, url) must not land a second row")

	stored, err := db.GetLink(context.Background(), "link1")
	require.NoError(t, err)
	assert.Equal(t, "link1", stored.ID)

	_, err = db.GetLink(context.Background(), "link2")
	assert.Error(t, err, "the no-op insert must not have created link2")
}

func TestUpsertLink_SameURLAcrossDifferentProjectsBothLand(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")
	seedProject(t, db, "proj2")

	for _, projectID := range []string{"proj1", "proj2"} {
		inserted, err := db.UpsertLink(context.Background(), &models.Link{
			ID: projectID + "-link", ProjectID: projectID, URL: "https://example.com/shared",
			Status: models.LinkStatusPending, CreatedAt: time.Unix(1000, 0),
		})
		require.NoError(t, err)
		assert.True(t, inserted)
	}
}

func TestMarkLinksProcessingThenRevert_RoundTripsStatus(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")

	ids := []string{"l1", "l2"}
	for _, id := range ids {
		_, err := db.UpsertLink(context.Background(), &models.Link{
			ID: id, ProjectID: "proj1", URL: "https://example.com/" + id,
			Status: models.LinkStatusPending, CreatedAt: time.Unix(1000, 0),
		})
		require.NoError(t, err)
	}

	require.NoError(t, db.MarkLinksProcessing(context.Background(), ids))
	for _, id := range ids {
		l, err := db.GetLink(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.LinkStatusProcessing, l.Status)
	}

	require.NoError(t, db.RevertProcessingLinks(context.Background(), ids))
	for _, id := range ids {
		l, err := db.GetLink(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.LinkStatusPending, l.Status)
	}
}

func TestRevertProcessingLinks_LeavesNonProcessingLinksAlone(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")

	_, err := db.UpsertLink(context.Background(), &models.Link{
		ID: "completed-link", ProjectID: "proj1", URL: "https://example.com/done",
		Status: models.LinkStatusCompleted, CreatedAt: time.Unix(1000, 0),
	})
	require.NoError(t, err)

	require.NoError(t, db.RevertProcessingLinks(context.Background(), []string{"completed-link"}))

	l, err := db.GetLink(context.Background(), "completed-link")
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusCompleted, l.Status, "only processing links may revert")
}
