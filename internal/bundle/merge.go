package bundle

import (
	"sort"
	"time"

	"github.com/lherron/folio/internal/domain"
)

// ConflictSummary counts, per collection, the entities present on both sides
// with different updatedAt and different content, resolved by picking one.
type ConflictSummary struct {
	Projects       int `json:"projects"`
	Chapters       int `json:"chapters"`
	Characters     int `json:"characters"`
	Terms          int `json:"terms"`
	WorldDocuments int `json:"worldDocuments"`
	Memos          int `json:"memos"`
}

// Total returns the number of conflicts across all collections.
func (c ConflictSummary) Total() int {
	return c.Projects + c.Chapters + c.Characters + c.Terms + c.WorldDocuments + c.Memos
}

// Result is the outcome of Merge.
type Result struct {
	Merged    *SyncBundle     `json:"merged"`
	Conflicts ConflictSummary `json:"conflicts"`
	// InvalidTimestamps lists "<entityType>:<id>" for entities whose
	// updatedAt could not be parsed. Such entities lose every comparison.
	InvalidTimestamps []string `json:"invalidTimestamps,omitempty"`
}

// Merge reconciles a local and a remote bundle.
//
// Tombstones from both sides are applied first and unconditionally: an
// entity is dropped when a tombstone targets its id, or when a project
// tombstone targets its projectId, whatever the entity's updatedAt.
// Surviving ids present on one side are kept. Ids present on both sides are
// dropped if either copy is soft-deleted; otherwise the strictly later
// updatedAt wins and exact ties go to local. Merged collections list local
// ids first, then remote-only ids, each in input order.
//
// Merge does not modify its inputs and reads no clock. The merged bundle
// shares no memory with them: deletedAt pointers and memo tags are copied.
func Merge(local, remote *SyncBundle) Result {
	if local == nil {
		local = Empty()
	}
	if remote == nil {
		remote = Empty()
	}

	m := &merger{invalid: make(map[string]struct{})}
	tombstones := m.mergeTombstones(local.Tombstones, remote.Tombstones)
	m.index = newTombstoneIndex(tombstones)

	merged := &SyncBundle{Tombstones: tombstones}
	var conflicts ConflictSummary

	merged.Projects, conflicts.Projects = mergeCollection(m, domain.EntityProject, local.Projects, remote.Projects)
	merged.Chapters, conflicts.Chapters = mergeCollection(m, domain.EntityChapter, local.Chapters, remote.Chapters)
	merged.Characters, conflicts.Characters = mergeCollection(m, domain.EntityCharacter, local.Characters, remote.Characters)
	merged.Terms, conflicts.Terms = mergeCollection(m, domain.EntityTerm, local.Terms, remote.Terms)
	merged.WorldDocuments, conflicts.WorldDocuments = mergeCollection(m, domain.EntityWorldDocument, local.WorldDocuments, remote.WorldDocuments)
	merged.Memos, conflicts.Memos = mergeCollection(m, domain.EntityMemo, local.Memos, remote.Memos)

	merged.detach()
	return Result{
		Merged:            merged,
		Conflicts:         conflicts,
		InvalidTimestamps: m.invalidList(),
	}
}

type merger struct {
	index   tombstoneIndex
	invalid map[string]struct{}
}

// tombstoneIndex answers whether an entity is covered by a tombstone.
type tombstoneIndex struct {
	entities map[string]struct{}
	projects map[string]struct{}
}

func newTombstoneIndex(tombstones []domain.Tombstone) tombstoneIndex {
	ix := tombstoneIndex{
		entities: make(map[string]struct{}, len(tombstones)),
		projects: make(map[string]struct{}),
	}
	for _, t := range tombstones {
		ix.entities[t.EntityID] = struct{}{}
		if t.EntityType == domain.EntityProject {
			ix.projects[t.EntityID] = struct{}{}
		}
	}
	return ix
}

func (ix tombstoneIndex) covers(r domain.Record) bool {
	if _, ok := ix.entities[r.RecordID()]; ok {
		return true
	}
	if pid := r.RecordProjectID(); pid != "" {
		if _, ok := ix.projects[pid]; ok {
			return true
		}
	}
	return false
}

// mergeTombstones unions both sides' tombstones by id. A repeated id keeps
// the later updatedAt, local on ties.
func (m *merger) mergeTombstones(local, remote []domain.Tombstone) []domain.Tombstone {
	out := make([]domain.Tombstone, 0, len(local)+len(remote))
	pos := make(map[string]int, len(local)+len(remote))

	add := func(t domain.Tombstone) {
		i, seen := pos[t.ID]
		if !seen {
			pos[t.ID] = len(out)
			out = append(out, t)
			return
		}
		if m.newer(domain.EntityType("tombstone"), t.ID, t.UpdatedAt, out[i].UpdatedAt) {
			out[i] = t
		}
	}
	for _, t := range local {
		add(t)
	}
	for _, t := range remote {
		add(t)
	}
	return out
}

func mergeCollection[T domain.Record](m *merger, kind domain.EntityType, local, remote []T) ([]T, int) {
	localByID, localOrder := indexRecords(local)
	remoteByID, remoteOrder := indexRecords(remote)

	merged := make([]T, 0, len(localOrder)+len(remoteOrder))
	conflicts := 0

	for _, id := range localOrder {
		l := localByID[id]
		r, onBoth := remoteByID[id]

		if m.index.covers(l) || (onBoth && m.index.covers(r)) {
			continue
		}
		if !onBoth {
			m.check(kind, l)
			merged = append(merged, l)
			continue
		}
		// Delete wins over an edit on the other side; no conflict copy.
		if l.SoftDeleted() || r.SoftDeleted() {
			continue
		}

		winner := l
		if m.newer(kind, id, r.RecordUpdatedAt(), l.RecordUpdatedAt()) {
			winner = r
		}
		if !sameInstant(l.RecordUpdatedAt(), r.RecordUpdatedAt()) && !samePayload(l, r) {
			conflicts++
		}
		merged = append(merged, winner)
	}

	for _, id := range remoteOrder {
		if _, onLocal := localByID[id]; onLocal {
			continue
		}
		r := remoteByID[id]
		if m.index.covers(r) {
			continue
		}
		m.check(kind, r)
		merged = append(merged, r)
	}

	return merged, conflicts
}

// indexRecords maps id to entity. A repeated id keeps its first position and
// takes the later element's value.
func indexRecords[T domain.Record](items []T) (map[string]T, []string) {
	byID := make(map[string]T, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := item.RecordID()
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = item
	}
	return byID, order
}

// newer reports whether candidate is strictly later than current. An
// unparseable timestamp always loses; two unparseable ones tie.
func (m *merger) newer(kind domain.EntityType, id, candidate, current string) bool {
	ct, cerr := domain.ParseTimestamp(candidate)
	if cerr != nil {
		m.invalid[string(kind)+":"+id] = struct{}{}
	}
	ut, uerr := domain.ParseTimestamp(current)
	if uerr != nil {
		m.invalid[string(kind)+":"+id] = struct{}{}
	}
	switch {
	case cerr != nil:
		return false
	case uerr != nil:
		return true
	default:
		return ct.After(ut)
	}
}

func (m *merger) check(kind domain.EntityType, r domain.Record) {
	if _, err := domain.ParseTimestamp(r.RecordUpdatedAt()); err != nil {
		m.invalid[string(kind)+":"+r.RecordID()] = struct{}{}
	}
}

func (m *merger) invalidList() []string {
	if len(m.invalid) == 0 {
		return nil
	}
	out := make([]string, 0, len(m.invalid))
	for key := range m.invalid {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func sameInstant(a, b string) bool {
	if a == b {
		return true
	}
	at, aerr := domain.ParseTimestamp(a)
	bt, berr := domain.ParseTimestamp(b)
	if aerr != nil || berr != nil {
		return false
	}
	return at.Equal(bt)
}

func samePayload(a, b any) bool {
	ka, err := payloadKey(a)
	if err != nil {
		return false
	}
	kb, err := payloadKey(b)
	if err != nil {
		return false
	}
	return ka == kb
}

// Newest returns the latest parseable updatedAt across the bundle, or the zero
// time when none parses.
func Newest(b *SyncBundle) time.Time {
	var newest time.Time
	consider := func(s string) {
		if t, err := domain.ParseTimestamp(s); err == nil && t.After(newest) {
			newest = t
		}
	}
	for _, p := range b.Projects {
		consider(p.UpdatedAt)
	}
	for _, c := range b.Chapters {
		consider(c.UpdatedAt)
	}
	for _, c := range b.Characters {
		consider(c.UpdatedAt)
	}
	for _, t := range b.Terms {
		consider(t.UpdatedAt)
	}
	for _, w := range b.WorldDocuments {
		consider(w.UpdatedAt)
	}
	for _, mm := range b.Memos {
		consider(mm.UpdatedAt)
	}
	for _, t := range b.Tombstones {
		consider(t.UpdatedAt)
	}
	return newest
}

// detach replaces every pointer and slice field of the merged entities with
// a private copy.
func (b *SyncBundle) detach() {
	for i := range b.Projects {
		b.Projects[i].DeletedAt = cloneString(b.Projects[i].DeletedAt)
	}
	for i := range b.Chapters {
		b.Chapters[i].DeletedAt = cloneString(b.Chapters[i].DeletedAt)
	}
	for i := range b.Characters {
		b.Characters[i].DeletedAt = cloneString(b.Characters[i].DeletedAt)
	}
	for i := range b.Terms {
		b.Terms[i].DeletedAt = cloneString(b.Terms[i].DeletedAt)
	}
	for i := range b.WorldDocuments {
		b.WorldDocuments[i].DeletedAt = cloneString(b.WorldDocuments[i].DeletedAt)
	}
	for i := range b.Memos {
		b.Memos[i].DeletedAt = cloneString(b.Memos[i].DeletedAt)
		if b.Memos[i].Tags != nil {
			b.Memos[i].Tags = append([]string(nil), b.Memos[i].Tags...)
		}
	}
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
