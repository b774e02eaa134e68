package sqlstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/homeinv/internal/db"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/remote"
)

func newTestStore(t *testing.T) *Store {
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return New(d, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func insertTag(t *testing.T, s *Store, id, name string) {
	t.Helper()
	err := s.Insert(context.Background(), remote.TableTags, domain.Tag{
		ID: id, Name: name, Color: "#fff", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	min := 2

	item := domain.Item{
		ID: "i1", Name: "Flour", Quantity: 3, MinThreshold: &min, Status: domain.StatusInStock,
		CustomFields: domain.Fields{"brand": "King Arthur"},
		CreatedAt:    time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Insert(ctx, remote.TableItems, item))

	var got domain.Item
	found, err := s.Get(ctx, remote.TableItems, "i1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Flour", got.Name)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, 2, *got.MinThreshold)
	assert.Nil(t, got.CategoryID)
	assert.Equal(t, "King Arthur", got.CustomFields["brand"])
	assert.False(t, got.PurchasePrice.Valid)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	var got domain.Tag
	found, err := s.Get(context.Background(), remote.TableTags, "nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSelectFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTag(t, s, "t1", "Pantry")
	insertTag(t, s, "t2", "Freezer")
	insertTag(t, s, "t3", "Garage")

	var tags []domain.Tag
	require.NoError(t, s.Select(ctx, remote.TableTags, remote.Where(remote.Like("name", "%AR%")).OrderBy(remote.Asc("name")), &tags))
	require.Len(t, tags, 2)
	assert.Equal(t, "Garage", tags[0].Name)
	assert.Equal(t, "Pantry", tags[1].Name)

	tags = nil
	require.NoError(t, s.Select(ctx, remote.TableTags, remote.Where(remote.In("id", []string{"t1", "t3"})).OrderBy(remote.Desc("id")), &tags))
	require.Len(t, tags, 2)
	assert.Equal(t, "t3", tags[0].ID)

	tags = nil
	require.NoError(t, s.Select(ctx, remote.TableTags, remote.Where(remote.In("id", []string{})), &tags))
	assert.Empty(t, tags)

	tags = nil
	require.NoError(t, s.Select(ctx, remote.TableTags, remote.Query{}.OrderBy(remote.Asc("name")).Page(1, 1), &tags))
	require.Len(t, tags, 1)
	assert.Equal(t, "Garage", tags[0].Name)

	n, err := s.Count(ctx, remote.TableTags, remote.Neq("id", "t1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdateIncrementAndNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	cat := "c1"
	require.NoError(t, s.Insert(ctx, remote.TableCategories, domain.Category{ID: cat, Name: "Baking", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.Insert(ctx, remote.TableTemplates, domain.ItemTemplate{
		ID: "tpl", Name: "Sugar", CategoryID: &cat, DefaultQuantity: 1, CreatedAt: now, UpdatedAt: now,
	}))

	n, err := s.Update(ctx, remote.TableTemplates, remote.Record{
		"use_count":   remote.Increment{By: 1},
		"category_id": nil,
	}, remote.Eq("id", "tpl"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got domain.ItemTemplate
	_, err = s.Get(ctx, remote.TableTemplates, "tpl", &got)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UseCount)
	assert.Nil(t, got.CategoryID)
}

func TestUpdateEncodesJSONContainers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.Insert(ctx, remote.TableItems, domain.Item{ID: "i1", Name: "Tea", Status: domain.StatusInStock, CreatedAt: now, UpdatedAt: now}))

	_, err := s.Update(ctx, remote.TableItems, remote.Record{
		"custom_fields": map[string]any{"origin": "Assam"},
	}, remote.Eq("id", "i1"))
	require.NoError(t, err)

	var got domain.Item
	_, err = s.Get(ctx, remote.TableItems, "i1", &got)
	require.NoError(t, err)
	assert.Equal(t, "Assam", got.CustomFields["origin"])
}

func TestUnknownIdentifiersRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var out []domain.Tag
	err := s.Select(ctx, "sqlite_master", remote.Query{}, &out)
	var rerr *remote.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "select", rerr.Op)

	err = s.Select(ctx, remote.TableTags, remote.Where(remote.Eq("name; DROP TABLE tags", "x")), &out)
	assert.Error(t, err)

	_, err = s.Update(ctx, remote.TableTags, remote.Record{"bogus": 1}, remote.Eq("id", "t1"))
	assert.Error(t, err)
}

func TestChangesPublishedWithOrigin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, remote.TableTags)
	require.NoError(t, err)
	defer sub.Close()

	insertTag(t, s, "t1", "Pantry")
	_, err = s.Update(remote.WithOrigin(ctx, "client-a"), remote.TableTags, remote.Record{"color": "#000"}, remote.Eq("id", "t1"))
	require.NoError(t, err)
	_, err = s.Delete(ctx, remote.TableTags, remote.Eq("id", "missing"))
	require.NoError(t, err)
	n, err := s.Delete(ctx, remote.TableTags, remote.Eq("id", "t1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	insert := <-sub.C
	assert.Equal(t, remote.ChangeInsert, insert.Op)
	assert.Equal(t, []string{"t1"}, insert.IDs)

	update := <-sub.C
	assert.Equal(t, remote.ChangeUpdate, update.Op)
	assert.Equal(t, "client-a", update.Origin)

	del := <-sub.C
	assert.Equal(t, remote.ChangeDelete, del.Op, "deleting nothing publishes nothing")
	assert.Equal(t, []string{"t1"}, del.IDs)
}

func TestSubscribeUnknownTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Subscribe(context.Background(), "nope")
	assert.Error(t, err)
}
