package ledger

import "sort"

// store holds the authoritative in-memory entry state. It is not safe for
// concurrent use; the Service serializes access around it.
type store struct {
	entries map[string]*Entry
}

func newStore() *store {
	return &store{entries: make(map[string]*Entry)}
}

func (s *store) get(id string) (*Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

func (s *store) put(e *Entry) {
	s.entries[e.ID] = e
}

func (s *store) remove(id string) {
	delete(s.entries, id)
}

// byDate returns the entries of one day ordered by order key. Ties break on
// id so the listing is deterministic even mid-renormalization.
func (s *store) byDate(date string) []*Entry {
	var day []*Entry
	for _, e := range s.entries {
		if e.Date == date {
			day = append(day, e)
		}
	}
	sort.Slice(day, func(i, j int) bool {
		if day[i].OrderKey != day[j].OrderKey {
			return day[i].OrderKey < day[j].OrderKey
		}
		return day[i].ID < day[j].ID
	})
	return day
}

// groupMembers returns all entries sharing a group id.
func (s *store) groupMembers(groupID string) []*Entry {
	if groupID == "" {
		return nil
	}
	var members []*Entry
	for _, e := range s.entries {
		if e.GroupID == groupID {
			members = append(members, e)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Date != members[j].Date {
			return members[i].Date < members[j].Date
		}
		if members[i].OrderKey != members[j].OrderKey {
			return members[i].OrderKey < members[j].OrderKey
		}
		return members[i].ID < members[j].ID
	})
	return members
}

// dates returns every distinct day within the optional inclusive range,
// ascending. Empty bounds are open.
func (s *store) dates(from, to string) []string {
	seen := make(map[string]bool)
	for _, e := range s.entries {
		if from != "" && e.Date < from {
			continue
		}
		if to != "" && e.Date > to {
			continue
		}
		seen[e.Date] = true
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// snapshot freezes the current state of one entry id.
func (s *store) snapshot(id string) Snapshot {
	if e, ok := s.entries[id]; ok {
		return Snapshot{ID: id, Exists: true, Entry: e.Clone()}
	}
	return Snapshot{ID: id}
}

// restore applies a snapshot verbatim, bypassing all business validation.
// The snapshot was taken from a valid state, so replaying it yields one.
func (s *store) restore(snap Snapshot) {
	if !snap.Exists {
		delete(s.entries, snap.ID)
		return
	}
	e := snap.Entry.Clone()
	s.entries[snap.ID] = &e
}
