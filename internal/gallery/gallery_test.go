// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package gallery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/galleria/internal/album"
	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/config"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/pipeline"
	"github.com/tomtom215/galleria/internal/query"
	"github.com/tomtom215/galleria/internal/scheduler"
	"github.com/tomtom215/galleria/internal/share"
	"github.com/tomtom215/galleria/internal/snapshot"
	"github.com/tomtom215/galleria/internal/storage"
	"github.com/tomtom215/galleria/internal/token"
)

func testID(seed byte) string {
	const hexdigits = "0123456789abcdef"
	return strings.Repeat(string(hexdigits[seed%16]), models.IDLength)
}

type fixture struct {
	svc   *Service
	store *database.Store
	tree  *index.Tree
	coord *flush.Coordinator
	alb   *album.Aggregator
	cfg   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	layout := storage.NewLayout(root)
	require.NoError(t, layout.EnsureDirs())

	openDB := func(path string) *database.Store {
		db, err := database.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return database.NewStore(db)
	}
	store := openDB(layout.IndexDB())

	snapDB, err := database.Open(layout.TempDB())
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapDB.Close() })
	cacheDB, err := database.Open(layout.CacheDB())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheDB.Close() })
	expireDB, err := database.Open(layout.ExpireDB())
	require.NoError(t, err)
	t.Cleanup(func() { _ = expireDB.Close() })

	tree := index.NewTree()
	engine := snapshot.NewEngine(tree,
		database.NewSnapshotStore(snapDB),
		database.NewCacheStore(cacheDB),
		database.NewExpireStore(expireDB))

	ctx, cancel := context.WithCancel(context.Background())
	coord := flush.NewCoordinator(ctx, store, tree, engine.Sweep)

	ioActor := scheduler.NewActor("io", 8)
	cpuActor := scheduler.NewActor("cpu", 4)
	ioDone := make(chan struct{})
	cpuDone := make(chan struct{})
	go func() { defer close(ioDone); _ = ioActor.Serve(ctx) }()
	go func() { defer close(cpuDone); _ = cpuActor.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-ioDone
		<-cpuDone
		coord.Close()
	})

	pipe := pipeline.New(ctx, layout, store, coord, ioActor, cpuActor)
	aggregator := album.NewAggregator(store, tree, coord, ioActor)
	cfg := &config.Config{}
	svc := New(cfg, layout, store, tree, engine, coord, pipe, aggregator,
		token.NewSigner("test-key"))

	return &fixture{svc: svc, store: store, tree: tree, coord: coord,
		alb: aggregator, cfg: cfg}
}

// seedMedia flushes synthetic media records directly, bypassing the
// pipeline: facade tests exercise query/edit semantics, not ingestion.
func (f *fixture) seedMedia(t *testing.T, n int) []*models.Record {
	t.Helper()
	records := make([]*models.Record, 0, n)
	for i := 0; i < n; i++ {
		record := models.NewImage(testID(byte(i+1)), models.ImageMetadata{
			MediaMetadata: models.MediaMetadata{
				Ext:    "jpg",
				Size:   int64(100 * (i + 1)),
				Width:  1600,
				Height: 900,
				Alias: []models.FileModify{{
					File:     "/photos/img.jpg",
					ScanTime: int64(1000 * (i + 1)),
				}},
			},
		})
		records = append(records, record)
	}
	require.NoError(t, f.coord.FlushSync(context.Background(),
		flush.Mutation{Inserts: records}))
	return records
}

func (f *fixture) openAll(t *testing.T) (int64, int) {
	t.Helper()
	ts, n, err := f.svc.OpenSnapshot(&query.Expression{}, nil, share.AdminContext)
	require.NoError(t, err)
	return ts, n
}

func TestReadPageRedactsAndSignsTokens(t *testing.T) {
	f := newFixture(t)
	f.seedMedia(t, 3)
	ts, n := f.openAll(t)
	require.Equal(t, 3, n)

	page, err := f.svc.ReadPage(ts, 0, 3, share.AdminContext)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.NotEmpty(t, page.TimestampToken)
	for _, item := range page.Items {
		assert.NotEmpty(t, item.Token)
		assert.Len(t, item.Record.Media().Alias, 1)
	}

	// Tokens renew through the page's timestamp token.
	fresh, err := f.svc.RenewToken(page.Items[0].Token, page.TimestampToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh)
}

func TestEditTagsAndFlags(t *testing.T) {
	f := newFixture(t)
	records := f.seedMedia(t, 2)
	ts, _ := f.openAll(t)

	require.NoError(t, f.svc.EditTags(context.Background(), []int{0, 1}, ts,
		[]string{"trip"}, nil))

	fav := true
	require.NoError(t, f.svc.EditFlags(context.Background(), []int{0}, ts, &fav, nil, nil))

	updated, err := f.store.Get(records[1].ID) // index 0 = newest = records[1]
	require.NoError(t, err)
	assert.True(t, updated.Tags.Has("trip"))
	assert.True(t, updated.IsFavorite)
	assert.Greater(t, updated.UpdateAt, records[1].UpdateAt)

	// Reserved prefix is rejected.
	err = f.svc.EditTags(context.Background(), []int{0}, ts, []string{"_hidden"}, nil)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestAlbumLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedMedia(t, 3)
	ts, _ := f.openAll(t)

	albumID, err := f.svc.CreateAlbum(context.Background(), "Trip", []int{0, 1}, ts)
	require.NoError(t, err)

	// EditAlbums scheduled the aggregate update on the io actor.
	require.Eventually(t, func() bool {
		got, err := f.store.Get(albumID)
		return err == nil && got.Album.ItemCount == 2
	}, 5*time.Second, 20*time.Millisecond)

	got, err := f.store.Get(albumID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Album.Title)
	assert.Equal(t, int64(300+200), got.Album.ItemSize)
	require.NotNil(t, got.Album.Cover)

	// Cover pinning.
	members, err := f.svc.resolveIndices(ts, []int{1})
	require.NoError(t, err)
	require.NoError(t, f.svc.SetAlbumCover(context.Background(), albumID, members[0]))
	got, err = f.store.Get(albumID)
	require.NoError(t, err)
	assert.Equal(t, members[0], *got.Album.Cover)

	require.NoError(t, f.svc.SetAlbumTitle(context.Background(), albumID, "Trip 2024"))
	got, err = f.store.Get(albumID)
	require.NoError(t, err)
	assert.Equal(t, "Trip 2024", got.Album.Title)
}

func TestDeleteAlbumCleansMembership(t *testing.T) {
	f := newFixture(t)
	f.seedMedia(t, 3)
	ts, _ := f.openAll(t)

	albumID, err := f.svc.CreateAlbum(context.Background(), "Doomed", []int{0, 1, 2}, ts)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := f.store.Get(albumID)
		return err == nil && got.Album.ItemCount == 3
	}, 5*time.Second, 20*time.Millisecond)

	// Open a snapshot that includes the album record, find its position.
	ts2, _ := f.openAll(t)
	items, err := f.svc.engine.Load(ts2)
	require.NoError(t, err)
	albumIdx := -1
	for i, item := range items {
		if item.Hash == albumID {
			albumIdx = i
		}
	}
	require.GreaterOrEqual(t, albumIdx, 0)

	require.NoError(t, f.svc.DeleteRecords(context.Background(), []int{albumIdx}, ts2))

	// The album row is gone and no member still references it.
	_, err = f.store.Get(albumID)
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, f.store.ForEach(func(r *models.Record) error {
		if media := r.Media(); media != nil {
			assert.False(t, media.Albums.Has(albumID))
		}
		return nil
	}))

	// A fresh membership snapshot is empty.
	_, n, err := f.svc.OpenSnapshot(&query.Expression{
		Album: &query.Match{Value: &albumID},
	}, nil, share.AdminContext)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestShareLifecycleAndRestrictedView(t *testing.T) {
	f := newFixture(t)
	f.seedMedia(t, 4)
	ts, _ := f.openAll(t)

	albumID, err := f.svc.CreateAlbum(context.Background(), "Shared", []int{0, 1}, ts)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := f.store.Get(albumID)
		return err == nil && got.Album.ItemCount == 2
	}, 5*time.Second, 20*time.Millisecond)

	shareID, err := f.svc.CreateShare(context.Background(), albumID, ShareParams{
		Description: "for grandma",
		Password:    "tulips",
	})
	require.NoError(t, err)

	// Wrong password is Unauthorized.
	_, err = f.svc.ResolveShare(albumID, shareID, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, share.ErrUnauthorized)

	viewer, err := f.svc.ResolveShare(albumID, shareID, "tulips")
	require.NoError(t, err)
	assert.False(t, viewer.ShowMetadata())

	// Tag queries collapse under the hide-metadata share.
	tag := "anything"
	_, n, err := f.svc.OpenSnapshot(&query.Expression{
		Tag: &query.Match{Value: &tag},
	}, nil, viewer)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Album(A) returns exactly the members, redacted.
	shareTS, n, err := f.svc.OpenSnapshot(&query.Expression{
		Album: &query.Match{Value: &albumID},
	}, nil, viewer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := f.svc.ReadPage(shareTS, 0, n, viewer)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, item := range page.Items {
		media := item.Record.Media()
		assert.Nil(t, media.Alias)
		assert.Nil(t, media.Albums)
		assert.Nil(t, media.Exif)
		assert.Nil(t, item.Record.Tags)
	}

	// Edit: drop the password, grant metadata.
	require.NoError(t, f.svc.EditShare(context.Background(), albumID, shareID, ShareParams{
		ShowMetadata: true,
	}))
	// The old password was kept only if a new one wasn't supplied and the
	// grant still resolves with it.
	viewer, err = f.svc.ResolveShare(albumID, shareID, "tulips")
	require.NoError(t, err)
	assert.True(t, viewer.ShowMetadata())

	require.NoError(t, f.svc.DeleteShare(context.Background(), albumID, shareID))
	_, err = f.svc.ResolveShare(albumID, shareID, "tulips")
	assert.ErrorIs(t, err, share.ErrUnauthorized)
}

func TestReadOnlyModeRejectsMutations(t *testing.T) {
	f := newFixture(t)
	f.seedMedia(t, 1)
	ts, _ := f.openAll(t)

	f.cfg.Public.ReadOnlyMode = true

	err := f.svc.EditTags(context.Background(), []int{0}, ts, []string{"x"}, nil)
	assert.Equal(t, apperr.ReadOnlyMode, apperr.KindOf(err))

	_, err = f.svc.CreateAlbum(context.Background(), "nope", nil, ts)
	assert.Equal(t, apperr.ReadOnlyMode, apperr.KindOf(err))

	err = f.svc.SubmitPath("/tmp/x.jpg", "")
	assert.Equal(t, apperr.ReadOnlyMode, apperr.KindOf(err))

	// Reads still work.
	_, err = f.svc.ReadPage(ts, 0, 1, share.AdminContext)
	assert.NoError(t, err)
}

func TestFavoriteSnapshotScenario(t *testing.T) {
	f := newFixture(t)
	f.seedMedia(t, 6)
	ts, _ := f.openAll(t)

	// Favorite the three newest, trash one of them.
	require.NoError(t, f.svc.EditFlags(context.Background(), []int{0, 1, 2}, ts,
		boolPtr(true), nil, nil))
	require.NoError(t, f.svc.EditFlags(context.Background(), []int{1}, ts,
		nil, nil, boolPtr(true)))

	fav, trashed := true, true
	ts2, n, err := f.svc.OpenSnapshot(&query.Expression{
		And: []query.Expression{
			{Favorite: &fav},
			{Not: &query.Expression{Trashed: &trashed}},
		},
	}, []string{"DateTimeOriginal", "filename", "modified", "scan_time"}, share.AdminContext)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := f.svc.ReadPage(ts2, 0, 50, share.AdminContext)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	prev := int64(1 << 62)
	for _, item := range page.Items {
		assert.True(t, item.Record.IsFavorite)
		assert.False(t, item.Record.IsTrashed)
		entry, ok := f.tree.Get(item.Record.ID)
		require.True(t, ok)
		assert.LessOrEqual(t, entry.SortTimestamp, prev)
		prev = entry.SortTimestamp
	}
}

func boolPtr(b bool) *bool { return &b }
