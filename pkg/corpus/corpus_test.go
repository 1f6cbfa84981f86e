package corpus

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-api/diffvm/differ"
	"github.com/speakeasy-api/diffvm/pkg/ktest"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newCase(arg string, a, b string) *TestCase {
	d := differ.New(0, 1)
	d.AddArgs(map[uint8]string{0: arg})
	if err := d.AddOutput("out!1!0", []byte(a), []byte(b)); err != nil {
		panic(err)
	}
	return &TestCase{
		StateID:   7,
		Divergent: a != b,
		Seed: &ktest.File{
			Args:    []string{"prog"},
			Objects: []ktest.Object{{Name: "arg00", Bytes: append([]byte(arg), 0)}},
		},
		Diff: d,
	}
}

func TestPutGet(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	tc := newCase("x", "a", "b")
	stored, err := s.Put(ctx, tc)
	require.NoError(t, err)
	assert.True(t, stored)
	require.NotEmpty(t, tc.ID)
	assert.False(t, tc.Created.IsZero())

	got, err := s.Get(tc.ID)
	require.NoError(t, err)
	assert.Equal(t, tc.ID, got.ID)
	assert.Equal(t, uint32(7), got.StateID)
	assert.True(t, got.Divergent)
	assert.Equal(t, tc.Diff.String(), got.Diff.String())
	require.NotNil(t, got.Seed)
	assert.Equal(t, tc.Seed.Objects, got.Seed.Objects)
	assert.Equal(t, tc.Fingerprint(), got.Fingerprint())
}

func TestPut_Deduplicates(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	stored, err := s.Put(ctx, newCase("x", "a", "b"))
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = s.Put(ctx, newCase("x", "a", "b"))
	require.NoError(t, err)
	assert.False(t, stored, "same rendering must not be stored twice")

	stored, err = s.Put(ctx, newCase("y", "a", "b"))
	require.NoError(t, err)
	assert.True(t, stored)

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGet_NotFound(t *testing.T) {
	s := openInMemory(t)
	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestList_Order(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	late := newCase("late", "1", "2")
	late.ID = "a-late"
	late.Created = base.Add(time.Minute)
	early := newCase("early", "1", "2")
	early.ID = "b-early"
	early.Created = base

	for _, tc := range []*TestCase{late, early} {
		_, err := s.Put(ctx, tc)
		require.NoError(t, err)
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b-early", list[0].ID)
	assert.Equal(t, "a-late", list[1].ID)
	assert.True(t, base.Equal(list[0].Created))
}

func TestPut_Cancelled(t *testing.T) {
	s := openInMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Put(ctx, newCase("x", "a", "b"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "corpus")
	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	tc := newCase("x", "a", "a")
	_, err = s.Put(context.Background(), tc)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(tc.ID)
	require.NoError(t, err)
	assert.False(t, got.Divergent)

	_, err = Open(Config{})
	assert.Error(t, err)
}
