package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists the authoritative entry state. Writes happen
// synchronously inside a commit so no observable mutation is left
// non-durable.
type Repository interface {
	LoadEntries(ctx context.Context) ([]Entry, error)
	// Apply atomically upserts and deletes the given entries.
	Apply(ctx context.Context, upserts []Entry, deletes []string) error
}

// AccountWindow is the activity window of one imputation account, used to
// flag (not reject) splits referencing closed or inactive accounts.
type AccountWindow struct {
	Number    string
	OpenDate  string
	CloseDate string
	Active    bool
}

// AccountDirectory supplies account activity windows for split warnings.
type AccountDirectory interface {
	AccountWindows(ctx context.Context) (map[int64]AccountWindow, error)
}

// LinkTemplate expands one external system's reference values to deep links.
type LinkTemplate interface {
	Resolve(value string) string
}

// LinkDirectory supplies deep-link templates, keyed by link-type id, for
// reference decoration in listings.
type LinkDirectory interface {
	LinkTemplates(ctx context.Context) (map[int64]LinkTemplate, error)
}

// UndoResult reports the outcome of an undo or redo call. OK is false on an
// empty stack, which is not an error.
type UndoResult struct {
	OK         bool       `json:"ok"`
	ActionType ActionType `json:"action_type,omitempty"`
}

// Status reflects whether either history stack is non-empty.
type Status struct {
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}

// Config groups Service dependencies.
type Config struct {
	Repository   Repository
	Accounts     AccountDirectory
	Links        LinkDirectory
	SharedFields map[SharedField]bool
	HistoryLimit int
	Logger       *slog.Logger
}

// Service is the serialized facade over the entry store, linking engine and
// action log. Every mutation runs under one writer lock: capture before,
// apply, persist, capture after, record. Reads copy a consistent view out
// under the same lock.
type Service struct {
	mu     sync.Mutex
	store  *store
	hist   *history
	repo   Repository
	dir    AccountDirectory
	links  LinkDirectory
	shared map[SharedField]bool
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// sharedFieldOrder fixes the iteration order for conflict detection so
// error messages and resolution checks are deterministic.
var sharedFieldOrder = []SharedField{FieldDescription, FieldDuration, FieldNotes, FieldReferences, FieldSplits}

// New constructs a Service. A nil Repository keeps the ledger in memory
// only. The shared-field set defaults to description.
func New(cfg Config) *Service {
	shared := cfg.SharedFields
	if shared == nil {
		shared = map[SharedField]bool{FieldDescription: true}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  newStore(),
		hist:   newHistory(cfg.HistoryLimit),
		repo:   cfg.Repository,
		dir:    cfg.Accounts,
		links:  cfg.Links,
		shared: shared,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Load primes the store from the repository. Call once at boot.
func (s *Service) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	entries, err := s.repo.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		c := e.Clone()
		s.store.put(&c)
	}
	return nil
}

// Create adds a new entry at the end of the given day.
func (s *Service) Create(ctx context.Context, date string, duration int) (Entry, error) {
	if !validDate(date) {
		return Entry{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	if duration < 0 {
		return Entry{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entry{
		ID:       s.newID(),
		Date:     date,
		Duration: duration,
		OrderKey: appendKey(s.store.byDate(date)),
	}
	before := []Snapshot{{ID: e.ID}}
	s.store.put(e)
	if err := s.commit(ctx, ActionCreate, before, s.snapshots(e.ID)); err != nil {
		return Entry{}, err
	}
	return e.Clone(), nil
}

// Update applies a partial field patch. When the entry is grouped, patched
// shared fields propagate to every group member within the same action.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (Entry, error) {
	if err := validatePatch(patch); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.get(id)
	if !ok {
		return Entry{}, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}

	touched := []string{id}
	var siblings []*Entry
	if e.GroupID != "" && s.patchTouchesShared(patch) {
		for _, m := range s.store.groupMembers(e.GroupID) {
			if m.ID != id {
				siblings = append(siblings, m)
				touched = append(touched, m.ID)
			}
		}
	}
	before := s.snapshots(touched...)

	applyPatch(e, patch)
	for _, m := range siblings {
		for _, f := range sharedFieldOrder {
			if s.shared[f] && patchHasField(patch, f) {
				copyField(m, *e, f)
			}
		}
	}

	if err := s.commit(ctx, ActionUpdate, before, s.snapshots(touched...)); err != nil {
		return Entry{}, err
	}
	return e.Clone(), nil
}

// Delete removes an entry. A sibling left alone in the entry's group has
// its group id cleared atomically with the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.get(id)
	if !ok {
		return fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}

	touched := []string{id}
	var lone *Entry
	if e.GroupID != "" {
		if members := s.store.groupMembers(e.GroupID); len(members) == 2 {
			for _, m := range members {
				if m.ID != id {
					lone = m
					touched = append(touched, m.ID)
				}
			}
		}
	}
	before := s.snapshots(touched...)

	s.store.remove(id)
	if lone != nil {
		lone.GroupID = ""
	}

	return s.commit(ctx, ActionDelete, before, s.snapshots(touched...))
}

// Duplicate copies an entry onto targetDate. With link=true the copy and
// the source are joined into a group.
func (s *Service) Duplicate(ctx context.Context, id, targetDate string, link bool) (Entry, error) {
	if !validDate(targetDate) {
		return Entry{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.store.get(id)
	if !ok {
		return Entry{}, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}

	dup := src.Clone()
	dup.ID = s.newID()
	dup.Date = targetDate
	dup.GroupID = ""
	dup.OrderKey = appendKey(s.store.byDate(targetDate))

	typ := ActionDuplicate
	touched := []string{dup.ID}
	if link {
		typ = ActionDuplicateAndLink
		touched = append(touched, src.ID)
	}
	before := s.snapshots(touched...)

	if link {
		if src.GroupID == "" {
			src.GroupID = s.newID()
		}
		dup.GroupID = src.GroupID
	}
	s.store.put(&dup)

	if err := s.commit(ctx, typ, before, s.snapshots(touched...)); err != nil {
		return Entry{}, err
	}
	return dup.Clone(), nil
}

// Reorder moves an entry to immediately precede beforeID within its day.
// An empty beforeID moves it to the end of the day. A closed key gap
// triggers renormalization of the whole day first.
func (s *Service) Reorder(ctx context.Context, id, beforeID string) error {
	if beforeID == id {
		return fmt.Errorf("%w: cannot reorder an entry before itself", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.get(id)
	if !ok {
		return fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}

	day := s.store.byDate(e.Date)
	rest := make([]*Entry, 0, len(day)-1)
	for _, d := range day {
		if d.ID != id {
			rest = append(rest, d)
		}
	}

	touched := []string{id}
	var before []Snapshot

	if beforeID == "" {
		before = s.snapshots(touched...)
		e.OrderKey = appendKey(rest)
		return s.commit(ctx, ActionReorder, before, s.snapshots(touched...))
	}

	anchor, ok := s.store.get(beforeID)
	if !ok {
		return fmt.Errorf("%w: entry %s", ErrNotFound, beforeID)
	}
	if anchor.Date != e.Date {
		return fmt.Errorf("%w: before_id %s is on %s, not %s", ErrInvalidArgument, beforeID, anchor.Date, e.Date)
	}

	idx := 0
	for i, d := range rest {
		if d.ID == beforeID {
			idx = i
			break
		}
	}
	var prevKey int64
	if idx > 0 {
		prevKey = rest[idx-1].OrderKey
	}

	key, fits := keyBetween(prevKey, anchor.OrderKey)
	if !fits {
		// Gap exhausted: re-index the whole day, snapshotting it first so
		// undo restores every shifted key.
		for _, d := range day {
			if d.ID != id {
				touched = append(touched, d.ID)
			}
		}
		before = s.snapshots(touched...)
		renormalize(rest)
		prevKey = 0
		if idx > 0 {
			prevKey = rest[idx-1].OrderKey
		}
		key, _ = keyBetween(prevKey, anchor.OrderKey)
	} else {
		before = s.snapshots(touched...)
	}

	e.OrderKey = key
	return s.commit(ctx, ActionReorder, before, s.snapshots(touched...))
}

// Link merges the shared fields of two entries under the given resolution
// and joins them into one group. Every shared field whose values differ
// must carry a resolution decision; nothing is auto-resolved.
func (s *Service) Link(ctx context.Context, sourceID, targetID string, resolution Resolution) (Entry, error) {
	if sourceID == targetID {
		return Entry{}, fmt.Errorf("%w: cannot link an entry to itself", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.store.get(sourceID)
	if !ok {
		return Entry{}, fmt.Errorf("%w: entry %s", ErrNotFound, sourceID)
	}
	tgt, ok := s.store.get(targetID)
	if !ok {
		return Entry{}, fmt.Errorf("%w: entry %s", ErrNotFound, targetID)
	}

	// Validate the full resolution before touching anything.
	type merge struct {
		field SharedField
		from  *Entry
	}
	var merges []merge
	for _, f := range sharedFieldOrder {
		if !s.shared[f] || !fieldDiffers(*src, *tgt, f) {
			continue
		}
		side, ok := resolution[f]
		if !ok {
			return Entry{}, fmt.Errorf("%w: field %q differs but has no resolution", ErrInvalidArgument, f)
		}
		switch side {
		case ResolveSource:
			merges = append(merges, merge{field: f, from: src})
		case ResolveTarget:
			merges = append(merges, merge{field: f, from: tgt})
		default:
			return Entry{}, fmt.Errorf("%w: resolution for %q must be %q or %q", ErrInvalidArgument, f, ResolveSource, ResolveTarget)
		}
	}

	// The target's group wins, so linking can pull the source out of its
	// own group. A sibling left alone there has its group dissolved in the
	// same action, as Delete and Ungroup do.
	touched := []string{sourceID, targetID}
	var stranded *Entry
	if src.GroupID != "" && tgt.GroupID != "" && src.GroupID != tgt.GroupID {
		if members := s.store.groupMembers(src.GroupID); len(members) == 2 {
			for _, m := range members {
				if m.ID != src.ID {
					stranded = m
					touched = append(touched, m.ID)
				}
			}
		}
	}
	before := s.snapshots(touched...)

	for _, m := range merges {
		if m.from == src {
			copyField(tgt, *src, m.field)
		} else {
			copyField(src, *tgt, m.field)
		}
	}
	groupID := tgt.GroupID
	if groupID == "" {
		groupID = src.GroupID
	}
	if groupID == "" {
		groupID = s.newID()
	}
	src.GroupID = groupID
	tgt.GroupID = groupID
	if stranded != nil {
		stranded.GroupID = ""
	}

	if err := s.commit(ctx, ActionLink, before, s.snapshots(touched...)); err != nil {
		return Entry{}, err
	}
	return src.Clone(), nil
}

// Ungroup clears an entry's group id, dissolving a remaining group of one.
// Ungrouping an already ungrouped entry is a no-op and records no action.
func (s *Service) Ungroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.get(id)
	if !ok {
		return fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	if e.GroupID == "" {
		return nil
	}

	touched := []string{id}
	var lone *Entry
	if members := s.store.groupMembers(e.GroupID); len(members) == 2 {
		for _, m := range members {
			if m.ID != id {
				lone = m
				touched = append(touched, m.ID)
			}
		}
	}
	before := s.snapshots(touched...)

	e.GroupID = ""
	if lone != nil {
		lone.GroupID = ""
	}

	return s.commit(ctx, ActionUngroup, before, s.snapshots(touched...))
}

// List returns days ascending within the optional inclusive range, entries
// ordered by order key. Splits referencing unknown, inactive or
// out-of-window accounts carry a display warning, and references resolve
// their link-type template into a deep link.
func (s *Service) List(ctx context.Context, from, to string) ([]Day, error) {
	if from != "" && !validDate(from) {
		return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidArgument)
	}
	if to != "" && !validDate(to) {
		return nil, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidArgument)
	}

	// Fetch account windows and link templates outside the lock: a slow
	// directory must not stall writers, and both are display-only anyway.
	var windows map[int64]AccountWindow
	if s.dir != nil {
		var err error
		windows, err = s.dir.AccountWindows(ctx)
		if err != nil {
			s.logger.Warn("account windows unavailable", slog.Any("error", err))
			windows = nil
		}
	}
	var templates map[int64]LinkTemplate
	if s.links != nil {
		var err error
		templates, err = s.links.LinkTemplates(ctx)
		if err != nil {
			s.logger.Warn("link templates unavailable", slog.Any("error", err))
			templates = nil
		}
	}

	s.mu.Lock()
	days := make([]Day, 0)
	for _, date := range s.store.dates(from, to) {
		day := Day{Date: date}
		for _, e := range s.store.byDate(date) {
			day.Entries = append(day.Entries, e.Clone())
			day.Total += e.Duration
		}
		days = append(days, day)
	}
	s.mu.Unlock()

	for di := range days {
		for ei := range days[di].Entries {
			if windows != nil {
				decorateSplits(&days[di].Entries[ei], windows)
			}
			if templates != nil {
				decorateReferences(&days[di].Entries[ei], templates)
			}
		}
	}
	return days, nil
}

// SuggestLinks ranks other entries by similarity to the given one. Entries
// already sharing its group are included and flagged.
func (s *Service) SuggestLinks(ctx context.Context, id string) ([]Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.store.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}

	suggestions := make([]Suggestion, 0)
	for _, cand := range s.store.entries {
		if cand.ID == id {
			continue
		}
		score := suggestionScore(base, cand)
		if score <= 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Entry:   cand.Clone(),
			Score:   score,
			Grouped: base.GroupID != "" && cand.GroupID == base.GroupID,
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		if suggestions[i].Entry.Date != suggestions[j].Entry.Date {
			return suggestions[i].Entry.Date > suggestions[j].Entry.Date
		}
		return suggestions[i].Entry.ID < suggestions[j].Entry.ID
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

// GroupOf returns the membership and duration total of an entry's group.
// An ungrouped entry reports a group of itself with no group id.
func (s *Service) GroupOf(ctx context.Context, id string) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.get(id)
	if !ok {
		return Group{}, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	g := Group{GroupID: e.GroupID}
	if e.GroupID == "" {
		g.Members = []Entry{e.Clone()}
		g.Total = e.Duration
		return g, nil
	}
	for _, m := range s.store.groupMembers(e.GroupID) {
		g.Members = append(g.Members, m.Clone())
		g.Total += m.Duration
	}
	return g, nil
}

// Undo reverts the most recent action by restoring its before snapshots,
// bypassing business validation. ok=false on an empty stack.
func (s *Service) Undo(ctx context.Context) (UndoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.hist.popUndo()
	if !ok {
		return UndoResult{}, nil
	}
	if err := s.persistSnapshots(ctx, a.Before); err != nil {
		s.hist.unpopUndo()
		return UndoResult{}, fmt.Errorf("persist undo: %w", err)
	}
	for _, snap := range a.Before {
		s.store.restore(snap)
	}
	return UndoResult{OK: true, ActionType: a.Type}, nil
}

// Redo re-applies the most recently undone action from its after snapshots.
func (s *Service) Redo(ctx context.Context) (UndoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.hist.popRedo()
	if !ok {
		return UndoResult{}, nil
	}
	if err := s.persistSnapshots(ctx, a.After); err != nil {
		s.hist.unpopRedo()
		return UndoResult{}, fmt.Errorf("persist redo: %w", err)
	}
	for _, snap := range a.After {
		s.store.restore(snap)
	}
	return UndoResult{OK: true, ActionType: a.Type}, nil
}

// HistoryStatus reports whether undo and redo are currently possible.
func (s *Service) HistoryStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{CanUndo: s.hist.canUndo(), CanRedo: s.hist.canRedo()}
}

// commit persists the after state, rolling the in-memory store back to the
// before snapshots on failure, then records the action.
func (s *Service) commit(ctx context.Context, typ ActionType, before, after []Snapshot) error {
	if err := s.persistSnapshots(ctx, after); err != nil {
		for _, snap := range before {
			s.store.restore(snap)
		}
		return fmt.Errorf("persist %s: %w", typ, err)
	}
	s.hist.record(&Action{ID: s.newID(), Type: typ, Before: before, After: after, At: s.now()})
	return nil
}

func (s *Service) persistSnapshots(ctx context.Context, snaps []Snapshot) error {
	if s.repo == nil {
		return nil
	}
	var upserts []Entry
	var deletes []string
	for _, snap := range snaps {
		if snap.Exists {
			upserts = append(upserts, snap.Entry.Clone())
		} else {
			deletes = append(deletes, snap.ID)
		}
	}
	return s.repo.Apply(ctx, upserts, deletes)
}

func (s *Service) snapshots(ids ...string) []Snapshot {
	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, s.store.snapshot(id))
	}
	return snaps
}

func (s *Service) patchTouchesShared(p Patch) bool {
	for _, f := range sharedFieldOrder {
		if s.shared[f] && patchHasField(p, f) {
			return true
		}
	}
	return false
}

func patchHasField(p Patch, f SharedField) bool {
	switch f {
	case FieldDescription:
		return p.Description != nil
	case FieldDuration:
		return p.Duration != nil
	case FieldNotes:
		return p.Notes != nil
	case FieldReferences:
		return p.References != nil
	case FieldSplits:
		return p.Splits != nil
	}
	return false
}

func validatePatch(p Patch) error {
	if p.Duration != nil && *p.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidArgument)
	}
	if p.Date != nil && !validDate(*p.Date) {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	if p.Splits != nil {
		seen := make(map[int64]bool, len(*p.Splits))
		for _, sp := range *p.Splits {
			if sp.Duration < 0 {
				return fmt.Errorf("%w: split duration must not be negative", ErrInvalidArgument)
			}
			if seen[sp.AccountID] {
				return fmt.Errorf("%w: duplicate split account %d", ErrInvalidArgument, sp.AccountID)
			}
			seen[sp.AccountID] = true
		}
	}
	return nil
}

// applyPatch mutates the entry in place. A date change deliberately keeps
// the order key; the entry joins its new day at its old relative position.
func applyPatch(e *Entry, p Patch) {
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Duration != nil {
		e.Duration = *p.Duration
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.References != nil {
		refs := make([]Reference, len(*p.References))
		copy(refs, *p.References)
		for i := range refs {
			// Deep links are computed at read time, never stored.
			refs[i].URL = ""
		}
		e.References = refs
	}
	if p.Splits != nil {
		splits := make([]Split, len(*p.Splits))
		copy(splits, *p.Splits)
		for i := range splits {
			// Warnings are computed at read time, never stored.
			splits[i].Warning = ""
		}
		e.Splits = splits
	}
}

func decorateSplits(e *Entry, windows map[int64]AccountWindow) {
	for i := range e.Splits {
		w, ok := windows[e.Splits[i].AccountID]
		switch {
		case !ok:
			e.Splits[i].Warning = "unknown account"
		case !w.Active:
			e.Splits[i].Warning = fmt.Sprintf("account %s inactive", w.Number)
		case w.OpenDate != "" && e.Date < w.OpenDate:
			e.Splits[i].Warning = fmt.Sprintf("before account %s opening", w.Number)
		case w.CloseDate != "" && e.Date > w.CloseDate:
			e.Splits[i].Warning = fmt.Sprintf("after account %s closure", w.Number)
		}
	}
}

func decorateReferences(e *Entry, templates map[int64]LinkTemplate) {
	for i := range e.References {
		if t, ok := templates[e.References[i].LinkTypeID]; ok {
			e.References[i].URL = t.Resolve(e.References[i].Value)
		}
	}
}
