package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/store"
	"github.com/lherron/folio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "user-1"

func fixedClock(s *store.Store, ts string) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	s.SetClock(func() time.Time { return t })
}

func seedProject(t *testing.T, s *store.Store) *domain.Project {
	t.Helper()
	p := &domain.Project{UserID: user, Title: "Novel"}
	require.NoError(t, s.SaveProject(context.Background(), p))
	return p
}

func TestSaveProject_StampsIDAndTimestamps(t *testing.T) {
	s := testutil.TempStore(t)
	fixedClock(s, "2024-03-01T10:00:00Z")

	p := seedProject(t, s)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", p.CreatedAt)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", p.UpdatedAt)

	fixedClock(s, "2024-03-02T10:00:00Z")
	p.Title = "Renamed"
	require.NoError(t, s.SaveProject(context.Background(), p))
	assert.Equal(t, "2024-03-01T10:00:00.000Z", p.CreatedAt)
	assert.Equal(t, "2024-03-02T10:00:00.000Z", p.UpdatedAt)

	got, err := s.Get(context.Background(), domain.EntityProject, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.(domain.Project).Title)
}

func TestSave_RequiresUser(t *testing.T) {
	s := testutil.TempStore(t)
	err := s.SaveProject(context.Background(), &domain.Project{Title: "x"})
	require.Error(t, err)
}

func TestSaveWorldDocument_RejectsUnknownType(t *testing.T) {
	s := testutil.TempStore(t)
	p := seedProject(t, s)
	err := s.SaveWorldDocument(context.Background(), &domain.WorldDocument{
		UserID: user, ProjectID: p.ID, DocType: "timeline",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "docType", verr.Field)
}

func TestEntities_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	p := seedProject(t, s)

	c2 := &domain.Chapter{UserID: user, ProjectID: p.ID, Title: "Two", Content: "one two three", Order: 2}
	c1 := &domain.Chapter{UserID: user, ProjectID: p.ID, Title: "One", Order: 1}
	require.NoError(t, s.SaveChapter(ctx, c2))
	require.NoError(t, s.SaveChapter(ctx, c1))
	assert.Equal(t, 3, c2.WordCount)

	require.NoError(t, s.SaveCharacter(ctx, &domain.Character{UserID: user, ProjectID: p.ID, Name: "Mira", Role: "lead"}))
	require.NoError(t, s.SaveTerm(ctx, &domain.Term{UserID: user, ProjectID: p.ID, Term: "Aether"}))
	require.NoError(t, s.SaveWorldDocument(ctx, &domain.WorldDocument{UserID: user, ProjectID: p.ID, DocType: domain.WorldDocPlot, Content: `{"nodes":[]}`}))
	require.NoError(t, s.SaveMemo(ctx, &domain.Memo{UserID: user, ProjectID: p.ID, Title: "idea", Tags: []string{"act1", "twist"}}))

	chapters, err := s.ListChapters(ctx, user, p.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "One", chapters[0].Title)
	assert.Equal(t, "Two", chapters[1].Title)

	characters, err := s.ListCharacters(ctx, user, p.ID)
	require.NoError(t, err)
	require.Len(t, characters, 1)
	assert.Equal(t, "lead", characters[0].Role)

	terms, err := s.ListTerms(ctx, user, p.ID)
	require.NoError(t, err)
	assert.Len(t, terms, 1)

	docs, err := s.ListWorldDocuments(ctx, user, p.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.WorldDocPlot, docs[0].DocType)

	memos, err := s.ListMemos(ctx, user, p.ID)
	require.NoError(t, err)
	require.Len(t, memos, 1)
	assert.Equal(t, []string{"act1", "twist"}, memos[0].Tags)
	assert.Nil(t, memos[0].DeletedAt)
}

func TestGet_NotFound(t *testing.T) {
	s := testutil.TempStore(t)
	_, err := s.Get(context.Background(), domain.EntityChapter, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = s.Get(context.Background(), domain.EntityType("folder"), "x")
	assert.Error(t, err)
}

func TestSoftDelete_WritesTombstone(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	p := seedProject(t, s)
	c := &domain.Chapter{UserID: user, ProjectID: p.ID, Title: "One"}
	require.NoError(t, s.SaveChapter(ctx, c))

	fixedClock(s, "2024-05-01T00:00:00Z")
	tomb, err := s.SoftDelete(ctx, user, domain.EntityChapter, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityChapter, tomb.EntityType)
	assert.Equal(t, c.ID, tomb.EntityID)
	assert.Equal(t, p.ID, tomb.ProjectID)
	assert.Equal(t, "2024-05-01T00:00:00.000Z", tomb.DeletedAt)

	live, err := s.ListChapters(ctx, user, p.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	got, err := s.Get(ctx, domain.EntityChapter, c.ID)
	require.NoError(t, err)
	assert.True(t, got.SoftDeleted())

	tombs, err := s.ListTombstones(ctx, user)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, tomb.ID, tombs[0].ID)
}

func TestSoftDelete_ProjectTombstoneTargetsProject(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	p := seedProject(t, s)

	tomb, err := s.SoftDelete(ctx, user, domain.EntityProject, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntityProject, tomb.EntityType)
	assert.Equal(t, p.ID, tomb.EntityID)
	assert.Equal(t, p.ID, tomb.ProjectID)
}

func TestSoftDelete_Missing(t *testing.T) {
	s := testutil.TempStore(t)
	_, err := s.SoftDelete(context.Background(), user, domain.EntityMemo, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	tombs, err := s.ListTombstones(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestLocalBundle_IncludesDeletedRowsAndTombstones(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	p := seedProject(t, s)
	keep := &domain.Chapter{UserID: user, ProjectID: p.ID, Title: "Keep"}
	gone := &domain.Chapter{UserID: user, ProjectID: p.ID, Title: "Gone"}
	require.NoError(t, s.SaveChapter(ctx, keep))
	require.NoError(t, s.SaveChapter(ctx, gone))
	_, err := s.SoftDelete(ctx, user, domain.EntityChapter, gone.ID)
	require.NoError(t, err)

	other := &domain.Project{UserID: "someone-else", Title: "Theirs"}
	require.NoError(t, s.SaveProject(ctx, other))

	b, err := s.LocalBundle(ctx, user)
	require.NoError(t, err)
	assert.Len(t, b.Projects, 1)
	assert.Len(t, b.Chapters, 2)
	assert.Len(t, b.Tombstones, 1)
	assert.NotNil(t, b.Memos)
}

func TestApplyBundle_ReplacesState(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	p := seedProject(t, s)
	stale := &domain.Chapter{UserID: user, ProjectID: p.ID, Title: "Stale"}
	require.NoError(t, s.SaveChapter(ctx, stale))

	local, err := s.LocalBundle(ctx, user)
	require.NoError(t, err)

	merged := bundle.Empty()
	merged.Projects = local.Projects
	merged.Chapters = []domain.Chapter{{
		ID: "c-remote", ProjectID: p.ID, Title: "From remote", Content: "text",
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-02T00:00:00Z",
	}}
	merged.Tombstones = []domain.Tombstone{{
		ID: "t1", UserID: user, ProjectID: p.ID, EntityType: domain.EntityChapter,
		EntityID: stale.ID, DeletedAt: "2024-01-03T00:00:00Z", UpdatedAt: "2024-01-03T00:00:00Z",
	}}

	stats, err := s.ApplyBundle(ctx, user, merged)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 3, stats.Upserted)

	after, err := s.LocalBundle(ctx, user)
	require.NoError(t, err)
	require.Len(t, after.Chapters, 1)
	assert.Equal(t, "c-remote", after.Chapters[0].ID)
	assert.Equal(t, user, after.Chapters[0].UserID, "empty owner is filled in")
	assert.Len(t, after.Tombstones, 1)

	// Applying the same bundle again is a no-op on content.
	again, err := s.ApplyBundle(ctx, user, merged)
	require.NoError(t, err)
	assert.Zero(t, again.Deleted)

	revAfter, err := bundle.Rev(after)
	require.NoError(t, err)
	final, err := s.LocalBundle(ctx, user)
	require.NoError(t, err)
	revFinal, err := bundle.Rev(final)
	require.NoError(t, err)
	assert.Equal(t, revAfter, revFinal)
}

func TestApplyBundle_LeavesOtherUsersAlone(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	other := &domain.Project{UserID: "someone-else", Title: "Theirs"}
	require.NoError(t, s.SaveProject(ctx, other))

	_, err := s.ApplyBundle(ctx, user, bundle.Empty())
	require.NoError(t, err)

	_, err = s.Get(ctx, domain.EntityProject, other.ID)
	assert.NoError(t, err)
}

func TestSyncState(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)

	_, err := s.GetSyncState(ctx, user)
	assert.ErrorIs(t, err, store.ErrNotFound)

	fixedClock(s, "2024-06-01T12:00:00Z")
	require.NoError(t, s.SetSyncState(ctx, user, "sha256:aaa"))
	require.NoError(t, s.SetSyncState(ctx, user, "sha256:bbb"))

	st, err := s.GetSyncState(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "sha256:bbb", st.MergedRev)
	assert.Equal(t, "2024-06-01T12:00:00.000Z", st.LastSyncedAt)
}

func TestLiveIDs(t *testing.T) {
	ctx := context.Background()
	s := testutil.TempStore(t)
	p := seedProject(t, s)
	m := &domain.Memo{UserID: user, ProjectID: p.ID}
	require.NoError(t, s.SaveMemo(ctx, m))

	ids, err := s.LiveIDs(ctx, user, domain.EntityMemo)
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, ids)

	_, err = s.SoftDelete(ctx, user, domain.EntityMemo, m.ID)
	require.NoError(t, err)
	ids, err = s.LiveIDs(ctx, user, domain.EntityMemo)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, store.CountWords(""))
	assert.Equal(t, 4, store.CountWords("  It was  a night\n"))
}
