package bundle

import (
	"sort"
	"strings"
	"testing"

	"github.com/lherron/folio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	t1 = "2025-01-01T10:00:00.000Z"
	t2 = "2025-01-02T10:00:00.000Z"
	t3 = "2025-01-03T10:00:00.000Z"
	t4 = "2025-01-04T10:00:00.000Z"
)

func strPtr(s string) *string { return &s }

func chapter(id, project, content, updatedAt string) domain.Chapter {
	return domain.Chapter{
		ID:        id,
		UserID:    "u1",
		ProjectID: project,
		Title:     "Chapter " + id,
		Content:   content,
		CreatedAt: t1,
		UpdatedAt: updatedAt,
	}
}

func sampleBundle() *SyncBundle {
	b := Empty()
	b.Projects = []domain.Project{{ID: "p1", UserID: "u1", Title: "Novel", CreatedAt: t1, UpdatedAt: t1}}
	b.Chapters = []domain.Chapter{chapter("c1", "p1", "It was a dark night.", t1), chapter("c2", "p1", "Morning.", t2)}
	b.Characters = []domain.Character{{ID: "ch1", UserID: "u1", ProjectID: "p1", Name: "Ana", CreatedAt: t1, UpdatedAt: t1}}
	b.Terms = []domain.Term{{ID: "tm1", UserID: "u1", ProjectID: "p1", Term: "Aether", CreatedAt: t1, UpdatedAt: t1}}
	b.WorldDocuments = []domain.WorldDocument{{ID: "w1", UserID: "u1", ProjectID: "p1", DocType: domain.WorldDocPlot, Content: "{}", CreatedAt: t1, UpdatedAt: t1}}
	b.Memos = []domain.Memo{{ID: "m1", UserID: "u1", ProjectID: "p1", Title: "todo", Tags: []string{"x"}, CreatedAt: t1, UpdatedAt: t1}}
	return b
}

func ids[T domain.Record](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.RecordID())
	}
	return out
}

func allIDs(b *SyncBundle) []string {
	var out []string
	out = append(out, ids(b.Projects)...)
	out = append(out, ids(b.Chapters)...)
	out = append(out, ids(b.Characters)...)
	out = append(out, ids(b.Terms)...)
	out = append(out, ids(b.WorldDocuments)...)
	out = append(out, ids(b.Memos)...)
	sort.Strings(out)
	return out
}

func TestEmpty(t *testing.T) {
	b := Empty()
	assert.True(t, b.IsEmpty())
	assert.NotNil(t, b.Projects)
	assert.NotNil(t, b.Tombstones)
}

func TestMerge_IdentityWithEmpty(t *testing.T) {
	b := sampleBundle()

	left := Merge(b, Empty())
	right := Merge(Empty(), b)

	wantRev, err := Rev(b)
	require.NoError(t, err)
	for _, res := range []Result{left, right} {
		gotRev, err := Rev(res.Merged)
		require.NoError(t, err)
		assert.Equal(t, wantRev, gotRev)
		assert.Zero(t, res.Conflicts.Total())
		assert.Empty(t, res.InvalidTimestamps)
	}
}

func TestMerge_IdentityStillAppliesTombstones(t *testing.T) {
	b := sampleBundle()
	b.Tombstones = []domain.Tombstone{{ID: "ts1", UserID: "u1", ProjectID: "p1", EntityType: domain.EntityChapter, EntityID: "c2", DeletedAt: t3, UpdatedAt: t3}}

	res := Merge(b, Empty())
	assert.Equal(t, []string{"c1"}, ids(res.Merged.Chapters))
	assert.Len(t, res.Merged.Tombstones, 1)
}

func TestMerge_RemoteNewerWinsAndCountsConflict(t *testing.T) {
	local := Empty()
	local.Chapters = []domain.Chapter{chapter("c1", "p1", "local draft", t1)}
	remote := Empty()
	remote.Chapters = []domain.Chapter{chapter("c1", "p1", "remote rewrite", t2)}

	res := Merge(local, remote)

	require.Len(t, res.Merged.Chapters, 1)
	assert.Equal(t, "remote rewrite", res.Merged.Chapters[0].Content)
	assert.Equal(t, 1, res.Conflicts.Chapters)
	assert.Equal(t, 1, res.Conflicts.Total())
}

func TestMerge_LocalNewerWins(t *testing.T) {
	local := Empty()
	local.Chapters = []domain.Chapter{chapter("c1", "p1", "local rewrite", t3)}
	remote := Empty()
	remote.Chapters = []domain.Chapter{chapter("c1", "p1", "remote draft", t2)}

	res := Merge(local, remote)
	require.Len(t, res.Merged.Chapters, 1)
	assert.Equal(t, "local rewrite", res.Merged.Chapters[0].Content)
	assert.Equal(t, 1, res.Conflicts.Chapters)
}

func TestMerge_TimestampOnlyDifferenceIsNotConflict(t *testing.T) {
	local := Empty()
	local.Chapters = []domain.Chapter{chapter("c1", "p1", "same", t1)}
	remote := Empty()
	remote.Chapters = []domain.Chapter{chapter("c1", "p1", "same", t2)}

	res := Merge(local, remote)
	assert.Zero(t, res.Conflicts.Chapters)
	assert.Equal(t, t2, res.Merged.Chapters[0].UpdatedAt)
}

func TestMerge_EqualTimestampsFavorLocal(t *testing.T) {
	local := Empty()
	local.Terms = []domain.Term{{ID: "tm1", ProjectID: "p1", Term: "local", UpdatedAt: t2}}
	remote := Empty()
	remote.Terms = []domain.Term{{ID: "tm1", ProjectID: "p1", Term: "remote", UpdatedAt: t2}}

	ab := Merge(local, remote)
	ba := Merge(remote, local)

	// Same id set either way; the first argument wins the exact tie.
	assert.Equal(t, allIDs(ab.Merged), allIDs(ba.Merged))
	assert.Equal(t, "local", ab.Merged.Terms[0].Term)
	assert.Equal(t, "remote", ba.Merged.Terms[0].Term)
	assert.Zero(t, ab.Conflicts.Terms)
}

func TestMerge_SymmetricIDSet(t *testing.T) {
	a := sampleBundle()
	a.Chapters = append(a.Chapters, chapter("c3", "p1", "a only", t2))
	a.Tombstones = []domain.Tombstone{{ID: "ts1", EntityType: domain.EntityMemo, EntityID: "m1", DeletedAt: t2, UpdatedAt: t2}}

	b := Empty()
	b.Chapters = []domain.Chapter{chapter("c1", "p1", "edited", t3), chapter("c4", "p1", "b only", t1)}
	b.Characters = []domain.Character{{ID: "ch1", ProjectID: "p1", Name: "Ana", UpdatedAt: t2, DeletedAt: strPtr(t2)}}
	b.Memos = []domain.Memo{{ID: "m1", ProjectID: "p1", Title: "resurrected", UpdatedAt: t4}}

	ab := Merge(a, b)
	ba := Merge(b, a)

	assert.Equal(t, allIDs(ab.Merged), allIDs(ba.Merged))
	assert.Equal(t, ab.Conflicts, ba.Conflicts)
	assert.NotContains(t, allIDs(ab.Merged), "m1")
	assert.NotContains(t, allIDs(ab.Merged), "ch1")
}

func TestMerge_ProjectTombstoneCascades(t *testing.T) {
	local := Empty()
	local.Projects = []domain.Project{{ID: "p2", Title: "Other", UpdatedAt: t1}}
	local.Tombstones = []domain.Tombstone{{
		ID: "ts-p1", UserID: "u1", ProjectID: "p1",
		EntityType: domain.EntityProject, EntityID: "p1",
		DeletedAt: t3, UpdatedAt: t3,
	}}

	remote := Empty()
	remote.Projects = []domain.Project{{ID: "p1", Title: "Novel", UpdatedAt: t4}}
	remote.Chapters = []domain.Chapter{chapter("c1", "p1", "newer than the delete", t4), chapter("c9", "p2", "keep", t1)}
	remote.Characters = []domain.Character{{ID: "ch1", ProjectID: "p1", Name: "Ana", UpdatedAt: t4}}
	remote.Terms = []domain.Term{{ID: "tm1", ProjectID: "p1", Term: "Aether", UpdatedAt: t4}}
	remote.WorldDocuments = []domain.WorldDocument{{ID: "w1", ProjectID: "p1", DocType: domain.WorldDocPlot, UpdatedAt: t4}}
	remote.Memos = []domain.Memo{{ID: "m1", ProjectID: "p1", UpdatedAt: t4}}

	res := Merge(local, remote)

	for _, id := range allIDs(res.Merged) {
		assert.NotEqual(t, "p1", id)
	}
	assert.Equal(t, []string{"p2"}, ids(res.Merged.Projects))
	assert.Equal(t, []string{"c9"}, ids(res.Merged.Chapters))
	assert.Empty(t, res.Merged.Characters)
	assert.Empty(t, res.Merged.Terms)
	assert.Empty(t, res.Merged.WorldDocuments)
	assert.Empty(t, res.Merged.Memos)
	require.Len(t, res.Merged.Tombstones, 1)
}

func TestMerge_EntityTombstoneRemovesOnlyThatEntity(t *testing.T) {
	local := sampleBundle()
	remote := Empty()
	remote.Tombstones = []domain.Tombstone{{ID: "ts1", ProjectID: "p1", EntityType: domain.EntityChapter, EntityID: "c1", DeletedAt: t1, UpdatedAt: t1}}

	res := Merge(local, remote)
	assert.Equal(t, []string{"c2"}, ids(res.Merged.Chapters))
	assert.Equal(t, []string{"p1"}, ids(res.Merged.Projects))
	assert.Len(t, res.Merged.Characters, 1)
}

func TestMerge_SoftDeleteNeverProducesConflictCopy(t *testing.T) {
	tests := []struct {
		name   string
		local  domain.Chapter
		remote domain.Chapter
	}{
		{
			name:   "local delete, remote edit",
			local:  func() domain.Chapter { c := chapter("c1", "p1", "old", t2); c.DeletedAt = strPtr(t2); return c }(),
			remote: chapter("c1", "p1", "edited later", t4),
		},
		{
			name:   "local edit, remote delete",
			local:  chapter("c1", "p1", "edited later", t4),
			remote: func() domain.Chapter { c := chapter("c1", "p1", "old", t2); c.DeletedAt = strPtr(t2); return c }(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := Empty()
			local.Chapters = []domain.Chapter{tt.local}
			remote := Empty()
			remote.Chapters = []domain.Chapter{tt.remote}

			res := Merge(local, remote)

			assert.Empty(t, res.Merged.Chapters)
			assert.Zero(t, res.Conflicts.Chapters)
			for _, c := range res.Merged.Chapters {
				assert.NotContains(t, c.Title, "Conflict Copy")
			}
		})
	}
}

func TestMerge_OneSidedSoftDeletedIsKept(t *testing.T) {
	local := Empty()
	c := chapter("c1", "p1", "gone", t2)
	c.DeletedAt = strPtr(t2)
	local.Chapters = []domain.Chapter{c}

	res := Merge(local, Empty())
	require.Len(t, res.Merged.Chapters, 1)
	assert.True(t, res.Merged.Chapters[0].SoftDeleted())
}

func TestMerge_OrderLocalThenRemoteOnly(t *testing.T) {
	local := Empty()
	local.Chapters = []domain.Chapter{chapter("c3", "p1", "", t1), chapter("c1", "p1", "", t1)}
	remote := Empty()
	remote.Chapters = []domain.Chapter{chapter("c2", "p1", "", t1), chapter("c1", "p1", "", t1), chapter("c0", "p1", "", t1)}

	res := Merge(local, remote)
	assert.Equal(t, []string{"c3", "c1", "c2", "c0"}, ids(res.Merged.Chapters))
}

func TestMerge_DuplicateIDWithinSide(t *testing.T) {
	local := Empty()
	local.Chapters = []domain.Chapter{chapter("c1", "p1", "first", t1), chapter("c2", "p1", "", t1), chapter("c1", "p1", "second", t1)}

	res := Merge(local, Empty())
	assert.Equal(t, []string{"c1", "c2"}, ids(res.Merged.Chapters))
	assert.Equal(t, "second", res.Merged.Chapters[0].Content)
}

func TestMerge_MalformedTimestampLoses(t *testing.T) {
	local := Empty()
	local.Chapters = []domain.Chapter{chapter("c1", "p1", "broken clock", "not-a-date")}
	remote := Empty()
	remote.Chapters = []domain.Chapter{chapter("c1", "p1", "valid", t1)}

	res := Merge(local, remote)
	require.Len(t, res.Merged.Chapters, 1)
	assert.Equal(t, "valid", res.Merged.Chapters[0].Content)
	assert.Equal(t, []string{"chapter:c1"}, res.InvalidTimestamps)

	// Reversed roles: the malformed side still loses.
	res = Merge(remote, local)
	assert.Equal(t, "valid", res.Merged.Chapters[0].Content)
}

func TestMerge_BothMalformedTieToLocal(t *testing.T) {
	local := Empty()
	local.Memos = []domain.Memo{{ID: "m1", ProjectID: "p1", Title: "local", UpdatedAt: "??"}}
	remote := Empty()
	remote.Memos = []domain.Memo{{ID: "m1", ProjectID: "p1", Title: "remote", UpdatedAt: "!!"}}

	res := Merge(local, remote)
	assert.Equal(t, "local", res.Merged.Memos[0].Title)
	assert.Equal(t, 1, res.Conflicts.Memos)
}

func TestMerge_TombstoneUnionKeepsLatest(t *testing.T) {
	local := Empty()
	local.Tombstones = []domain.Tombstone{{ID: "ts1", EntityType: domain.EntityMemo, EntityID: "m1", DeletedAt: t1, UpdatedAt: t1}}
	remote := Empty()
	remote.Tombstones = []domain.Tombstone{
		{ID: "ts1", EntityType: domain.EntityMemo, EntityID: "m1", DeletedAt: t1, UpdatedAt: t2},
		{ID: "ts2", EntityType: domain.EntityTerm, EntityID: "tm1", DeletedAt: t1, UpdatedAt: t1},
	}

	res := Merge(local, remote)
	require.Len(t, res.Merged.Tombstones, 2)
	assert.Equal(t, t2, res.Merged.Tombstones[0].UpdatedAt)
	assert.Equal(t, "ts2", res.Merged.Tombstones[1].ID)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	local := sampleBundle()
	remote := sampleBundle()
	remote.Chapters[0].Content = "changed"
	remote.Chapters[0].UpdatedAt = t4
	remote.Tombstones = []domain.Tombstone{{ID: "ts", EntityType: domain.EntityMemo, EntityID: "m1", UpdatedAt: t1}}

	before, err := Canonical(local)
	require.NoError(t, err)
	Merge(local, remote)
	after, err := Canonical(local)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Len(t, remote.Memos, 1)
}

func TestMerge_ResultSharesNoMemory(t *testing.T) {
	deleted := t2
	local := sampleBundle()
	local.Chapters[1].DeletedAt = &deleted
	remote := Empty()

	res := Merge(local, remote)
	require.Len(t, res.Merged.Memos, 1)
	require.Len(t, res.Merged.Chapters, 2)

	res.Merged.Memos[0].Tags[0] = "edited"
	*res.Merged.Chapters[1].DeletedAt = t3
	assert.Equal(t, []string{"x"}, local.Memos[0].Tags)
	assert.Equal(t, t2, *local.Chapters[1].DeletedAt)
}

func TestMerge_NilInputs(t *testing.T) {
	res := Merge(nil, sampleBundle())
	assert.Len(t, res.Merged.Chapters, 2)
	res = Merge(nil, nil)
	assert.True(t, res.Merged.IsEmpty())
}

func TestDecode_MissingCollections(t *testing.T) {
	b, err := Decode(strings.NewReader(`{"chapters":[{"id":"c1","projectId":"p1","updatedAt":"2025-01-01T00:00:00Z","deletedAt":null}]}`))
	require.NoError(t, err)
	assert.NotNil(t, b.Projects)
	assert.NotNil(t, b.Tombstones)
	require.Len(t, b.Chapters, 1)
	assert.False(t, b.Chapters[0].SoftDeleted())
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"chapters":`))
	assert.Error(t, err)
}

func TestEncodeDecodeKeepsEveryKey(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Encode(&sb, &SyncBundle{}))
	for _, key := range []string{"projects", "chapters", "characters", "terms", "worldDocuments", "memos", "tombstones"} {
		assert.Contains(t, sb.String(), `"`+key+`":[]`)
	}
}

func TestEncode_LeavesInputUntouched(t *testing.T) {
	b := &SyncBundle{}
	var sb strings.Builder
	require.NoError(t, Encode(&sb, b))
	assert.Nil(t, b.Projects)
	assert.Nil(t, b.Tombstones)
}

func TestCanonical_OrderIndependent(t *testing.T) {
	a := sampleBundle()
	b := sampleBundle()
	b.Chapters[0], b.Chapters[1] = b.Chapters[1], b.Chapters[0]

	ra, err := Rev(a)
	require.NoError(t, err)
	rb, err := Rev(b)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
	assert.True(t, strings.HasPrefix(ra, "sha256:"))

	b.Chapters[0].Content = "edit"
	rc, err := Rev(b)
	require.NoError(t, err)
	assert.NotEqual(t, ra, rc)
}
