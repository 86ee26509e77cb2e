package mocks

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/store"
)

// MemoryStore is an in-memory stand-in for the Postgres task and ledger
// stores. It honours the same conditional-write contracts (ErrConflict on a
// lost compare-and-swap, ErrInstanceExists and ErrTaskAwardExists on unique
// violations) and implements store.Transactor by snapshotting state and
// restoring it when the transaction function fails.
//
// Transactions are serialized with each other. A non-transactional write that
// interleaves with a transaction which later rolls back is lost, so tests
// should not mix the two on the same rows.
type MemoryStore struct {
	txMu sync.Mutex

	mu          sync.Mutex
	tasks       map[uuid.UUID]*domain.Task
	ledger      []*domain.LedgerEntry
	settlements []*domain.WeeklySettlement

	// WriteHook, when set, runs before every write with the operation name
	// ("create", "claim", "transition", "update", "delete", "append",
	// "mark_reminded", "settle"). A non-nil error aborts the write and is
	// returned.
	WriteHook func(op string) error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

var _ store.Transactor = (*MemoryStore)(nil)

// Tasks returns the store.TaskStore view.
func (s *MemoryStore) Tasks() *MemoryTaskStore { return &MemoryTaskStore{s: s} }

// Ledger returns the store.LedgerStore view.
func (s *MemoryStore) Ledger() *MemoryLedgerStore { return &MemoryLedgerStore{s: s} }

// Settlements returns the store.SettlementStore view.
func (s *MemoryStore) Settlements() *MemorySettlementStore { return &MemorySettlementStore{s: s} }

// RunInTransaction implements store.Transactor. The function receives a nil
// *sql.Tx; WithTx on the memory views ignores it.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn store.TxFn) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			// ALLOW-PANIC: Propagating caught panic from transaction
			panic(p)
		}
	}()

	if err := fn(ctx, nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// RunReadOnly implements store.Transactor. It is serialized with
// transactions, so the reads in fn never observe half of one.
func (s *MemoryStore) RunReadOnly(ctx context.Context, fn store.TxFn) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, nil)
}

// Put stores a copy of task without validation, for seeding test state.
func (s *MemoryStore) Put(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
}

// Task returns a copy of the stored task, or nil.
func (s *MemoryStore) Task(id uuid.UUID) *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.Clone()
	}
	return nil
}

// AllTasks returns copies of every stored task in creation order.
func (s *MemoryStore) AllTasks() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Entries returns copies of every ledger entry in append order.
func (s *MemoryStore) Entries() []*domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.LedgerEntry, len(s.ledger))
	for i, e := range s.ledger {
		out[i] = cloneEntry(e)
	}
	return out
}

type memorySnapshot struct {
	tasks       map[uuid.UUID]*domain.Task
	ledger      []*domain.LedgerEntry
	settlements []*domain.WeeklySettlement
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memorySnapshot{
		tasks:  make(map[uuid.UUID]*domain.Task, len(s.tasks)),
		ledger: make([]*domain.LedgerEntry, len(s.ledger)),
	}
	for id, t := range s.tasks {
		snap.tasks[id] = t.Clone()
	}
	for i, e := range s.ledger {
		snap.ledger[i] = cloneEntry(e)
	}
	snap.settlements = append([]*domain.WeeklySettlement(nil), s.settlements...)
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = snap.tasks
	s.ledger = snap.ledger
	s.settlements = snap.settlements
}

func (s *MemoryStore) hook(op string) error {
	if s.WriteHook == nil {
		return nil
	}
	return s.WriteHook(op)
}

func cloneEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	c := *e
	if e.TaskID != nil {
		id := *e.TaskID
		c.TaskID = &id
	}
	if e.CreatedBy != nil {
		id := *e.CreatedBy
		c.CreatedBy = &id
	}
	return &c
}

// MemoryTaskStore implements store.TaskStore over a MemoryStore.
type MemoryTaskStore struct {
	s *MemoryStore
}

var _ store.TaskStore = (*MemoryTaskStore)(nil)

// WithTx implements store.TaskStore.
func (m *MemoryTaskStore) WithTx(*sql.Tx) store.TaskStore { return m }

// Create implements store.TaskStore.
func (m *MemoryTaskStore) Create(_ context.Context, task *domain.Task) error {
	if err := m.s.hook("create"); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.tasks[task.ID]; ok {
		return store.ErrDuplicate
	}
	if task.TemplateID != nil && task.DueDate != nil {
		for _, existing := range m.s.tasks {
			if existing.TemplateID != nil && *existing.TemplateID == *task.TemplateID &&
				existing.DueDate != nil && existing.DueDate.Equal(*task.DueDate) {
				return store.ErrInstanceExists
			}
		}
	}
	m.s.tasks[task.ID] = task.Clone()
	return nil
}

// GetByID implements store.TaskStore.
func (m *MemoryTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	if t := m.s.Task(id); t != nil {
		return t, nil
	}
	return nil, store.ErrTaskNotFound
}

// Claim implements store.TaskStore.
func (m *MemoryTaskStore) Claim(_ context.Context, id, actorID uuid.UUID, now time.Time) (*domain.Task, error) {
	if err := m.s.hook("claim"); err != nil {
		return nil, err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t, ok := m.s.tasks[id]
	if !ok || t.Status != domain.TaskStatusPending || !t.CanClaim(actorID) {
		return nil, fmt.Errorf("%w: claim task %s", store.ErrConflict, id)
	}
	actor := actorID
	t.Status = domain.TaskStatusClaimed
	t.AssigneeID = &actor
	t.Version++
	t.UpdatedAt = now.UTC()
	return t.Clone(), nil
}

// UpdateTransition implements store.TaskStore.
func (m *MemoryTaskStore) UpdateTransition(
	_ context.Context,
	next *domain.Task,
	fromStatus domain.TaskStatus,
	fromVersion int,
) error {
	if err := m.s.hook("transition"); err != nil {
		return err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t, ok := m.s.tasks[next.ID]
	if !ok || t.Status != fromStatus || t.Version != fromVersion {
		return fmt.Errorf("%w: task", store.ErrConflict)
	}
	src := next.Clone()
	updated := t.Clone()
	updated.Status = src.Status
	updated.AssigneeID = src.AssigneeID
	updated.ApproverID = src.ApproverID
	updated.CompletedAt = src.CompletedAt
	updated.ApprovedAt = src.ApprovedAt
	updated.RejectedAt = src.RejectedAt
	updated.RejectionReason = src.RejectionReason
	updated.Version = src.Version
	updated.UpdatedAt = src.UpdatedAt
	m.s.tasks[next.ID] = updated
	return nil
}

// UpdateDetails implements store.TaskStore.
func (m *MemoryTaskStore) UpdateDetails(_ context.Context, task *domain.Task, fromVersion int) error {
	if err := m.s.hook("update"); err != nil {
		return err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t, ok := m.s.tasks[task.ID]
	if !ok || t.Version != fromVersion || !t.Status.IsDeletable() {
		return fmt.Errorf("%w: task", store.ErrConflict)
	}
	src := task.Clone()
	updated := t.Clone()
	updated.Title = src.Title
	updated.Description = src.Description
	updated.Points = src.Points
	updated.DueDate = src.DueDate
	updated.ReservedFor = src.ReservedFor
	updated.Metadata = src.Metadata
	updated.Version = src.Version
	updated.UpdatedAt = src.UpdatedAt
	m.s.tasks[task.ID] = updated
	return nil
}

// Delete implements store.TaskStore.
func (m *MemoryTaskStore) Delete(_ context.Context, id uuid.UUID, fromVersion int) error {
	if err := m.s.hook("delete"); err != nil {
		return err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t, ok := m.s.tasks[id]
	if !ok || t.Version != fromVersion || !t.Status.IsDeletable() {
		return fmt.Errorf("%w: task", store.ErrConflict)
	}
	delete(m.s.tasks, id)
	for _, e := range m.s.ledger {
		if e.TaskID != nil && *e.TaskID == id {
			e.TaskID = nil
		}
	}
	for _, other := range m.s.tasks {
		if other.TemplateID != nil && *other.TemplateID == id {
			other.TemplateID = nil
		}
	}
	return nil
}

// List implements store.TaskStore.
func (m *MemoryTaskStore) List(_ context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	all := m.s.AllTasks()

	matched := make([]*domain.Task, 0, len(all))
	for _, t := range all {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.AssigneeID != nil && !t.IsAssignee(*filter.AssigneeID) {
			continue
		}
		if filter.Involving != nil {
			id := *filter.Involving
			involved := t.CreatorID == id || t.IsAssignee(id) || (t.ReservedFor != nil && *t.ReservedFor == id)
			if !involved {
				continue
			}
		}
		matched = append(matched, t)
	}

	// Newest first, matching the SQL ordering.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return bytes.Compare(matched[i].ID[:], matched[j].ID[:]) < 0
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

// ListRecurringTemplates implements store.TaskStore.
func (m *MemoryTaskStore) ListRecurringTemplates(context.Context) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range m.s.AllTasks() {
		if t.IsTemplate() {
			out = append(out, t)
		}
	}
	return out, nil
}

// InstanceExists implements store.TaskStore.
func (m *MemoryTaskStore) InstanceExists(_ context.Context, templateID uuid.UUID, dueDate, since time.Time) (bool, error) {
	for _, t := range m.s.AllTasks() {
		if t.TemplateID != nil && *t.TemplateID == templateID &&
			t.DueDate != nil && t.DueDate.Equal(dueDate) &&
			!t.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ListDueSoon implements store.TaskStore.
func (m *MemoryTaskStore) ListDueSoon(_ context.Context, from, to, remindedBefore time.Time) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range m.s.AllTasks() {
		if !t.Status.IsDeletable() || t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(from) || t.DueDate.After(to) {
			continue
		}
		if t.RemindedAt != nil && !t.RemindedAt.Before(remindedBefore) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

// MarkReminded implements store.TaskStore.
func (m *MemoryTaskStore) MarkReminded(_ context.Context, id uuid.UUID, at, remindedBefore time.Time) (bool, error) {
	if err := m.s.hook("mark_reminded"); err != nil {
		return false, err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t, ok := m.s.tasks[id]
	if !ok || (t.RemindedAt != nil && !t.RemindedAt.Before(remindedBefore)) {
		return false, nil
	}
	ts := at.UTC()
	t.RemindedAt = &ts
	return true, nil
}

// MemoryLedgerStore implements store.LedgerStore over a MemoryStore.
type MemoryLedgerStore struct {
	s *MemoryStore
}

var _ store.LedgerStore = (*MemoryLedgerStore)(nil)

// WithTx implements store.LedgerStore.
func (m *MemoryLedgerStore) WithTx(*sql.Tx) store.LedgerStore { return m }

// Append implements store.LedgerStore.
func (m *MemoryLedgerStore) Append(_ context.Context, entry *domain.LedgerEntry) error {
	if err := m.s.hook("append"); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if entry.Kind == domain.EntryKindTaskAward && entry.TaskID != nil {
		for _, e := range m.s.ledger {
			if e.Kind == domain.EntryKindTaskAward && e.TaskID != nil && *e.TaskID == *entry.TaskID {
				return store.ErrTaskAwardExists
			}
		}
	}
	m.s.ledger = append(m.s.ledger, cloneEntry(entry))
	return nil
}

// SumForActor implements store.LedgerStore.
func (m *MemoryLedgerStore) SumForActor(_ context.Context, actorID uuid.UUID, since *time.Time) (int64, error) {
	var total int64
	for _, e := range m.s.Entries() {
		if e.ActorID == actorID && inWindow(e, since) {
			total += int64(e.Points)
		}
	}
	return total, nil
}

// ListByActor implements store.LedgerStore.
func (m *MemoryLedgerStore) ListByActor(_ context.Context, actorID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	var mine []*domain.LedgerEntry
	entries := m.s.Entries()
	// Reverse append order so equal timestamps still come out newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ActorID == actorID {
			mine = append(mine, entries[i])
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })

	start := min(offset, len(mine))
	end := min(start+limit, len(mine))
	return mine[start:end], nil
}

// CountByActor implements store.LedgerStore.
func (m *MemoryLedgerStore) CountByActor(_ context.Context, actorID uuid.UUID) (int, error) {
	n := 0
	for _, e := range m.s.Entries() {
		if e.ActorID == actorID {
			n++
		}
	}
	return n, nil
}

// Leaderboard implements store.LedgerStore.
func (m *MemoryLedgerStore) Leaderboard(_ context.Context, since *time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	totals := map[uuid.UUID]int64{}
	for _, e := range m.s.Entries() {
		if inWindow(e, since) {
			totals[e.ActorID] += int64(e.Points)
		}
	}

	board := make([]domain.LeaderboardEntry, 0, len(totals))
	for actor, total := range totals {
		board = append(board, domain.LeaderboardEntry{ActorID: actor, TotalPoints: total})
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].TotalPoints != board[j].TotalPoints {
			return board[i].TotalPoints > board[j].TotalPoints
		}
		return bytes.Compare(board[i].ActorID[:], board[j].ActorID[:]) < 0
	})
	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}
	for i := range board {
		board[i].Rank = i + 1
	}
	return board, nil
}

// AwardForTask implements store.LedgerStore.
func (m *MemoryLedgerStore) AwardForTask(_ context.Context, taskID uuid.UUID) (*domain.LedgerEntry, error) {
	for _, e := range m.s.Entries() {
		if e.Kind == domain.EntryKindTaskAward && e.TaskID != nil && *e.TaskID == taskID {
			return e, nil
		}
	}
	return nil, store.ErrLedgerEntryNotFound
}

func inWindow(e *domain.LedgerEntry, since *time.Time) bool {
	return since == nil || !e.CreatedAt.Before(*since)
}

// MemorySettlementStore implements store.SettlementStore over a MemoryStore.
type MemorySettlementStore struct {
	s *MemoryStore
}

var _ store.SettlementStore = (*MemorySettlementStore)(nil)

// WithTx implements store.SettlementStore.
func (m *MemorySettlementStore) WithTx(*sql.Tx) store.SettlementStore { return m }

// WeeklyRanking implements store.SettlementStore.
func (m *MemorySettlementStore) WeeklyRanking(_ context.Context, start, end time.Time) ([]domain.WeeklyRanking, error) {
	totals := map[uuid.UUID]int64{}
	for _, e := range m.s.Entries() {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			totals[e.ActorID] += int64(e.Points)
		}
	}
	completed := map[uuid.UUID]int{}
	for _, t := range m.s.AllTasks() {
		if t.Status == domain.TaskStatusApproved && t.AssigneeID != nil && t.ApprovedAt != nil &&
			!t.ApprovedAt.Before(start) && t.ApprovedAt.Before(end) {
			completed[*t.AssigneeID]++
		}
	}

	rankings := []domain.WeeklyRanking{}
	for actor, total := range totals {
		if total > 0 {
			rankings = append(rankings, domain.WeeklyRanking{
				ActorID:        actor,
				TotalPoints:    total,
				TasksCompleted: completed[actor],
			})
		}
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].TotalPoints != rankings[j].TotalPoints {
			return rankings[i].TotalPoints > rankings[j].TotalPoints
		}
		return bytes.Compare(rankings[i].ActorID[:], rankings[j].ActorID[:]) < 0
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings, nil
}

// Create implements store.SettlementStore.
func (m *MemorySettlementStore) Create(_ context.Context, settlement *domain.WeeklySettlement) error {
	if err := m.s.hook("settle"); err != nil {
		return err
	}
	if err := settlement.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, existing := range m.s.settlements {
		if existing.WeekStart.Equal(settlement.WeekStart) {
			return store.ErrSettlementExists
		}
	}
	c := *settlement
	c.Rankings = append([]domain.WeeklyRanking(nil), settlement.Rankings...)
	m.s.settlements = append(m.s.settlements, &c)
	return nil
}

// List implements store.SettlementStore.
func (m *MemorySettlementStore) List(_ context.Context, limit int) ([]*domain.WeeklySettlement, error) {
	m.s.mu.Lock()
	out := make([]*domain.WeeklySettlement, 0, len(m.s.settlements))
	for _, ws := range m.s.settlements {
		c := *ws
		c.Rankings = nil
		out = append(out, &c)
	}
	m.s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
