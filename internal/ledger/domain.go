package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the ledger core.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)

// DateLayout is the calendar-day format used throughout the ledger.
const DateLayout = "2006-01-02"

// Reference points an entry at a record in an external system. URL is the
// resolved deep link, filled at read time from the link-type template.
type Reference struct {
	LinkTypeID int64  `json:"link_type_id"`
	Value      string `json:"value"`
	URL        string `json:"url,omitempty"`
}

// Split allocates part of an entry's duration to an imputation account.
// The sum of splits is not required to match the entry duration.
type Split struct {
	AccountID int64  `json:"account_id"`
	Duration  int    `json:"duration"`
	Warning   string `json:"warning,omitempty"`
}

// Entry is one time-tracking record for a single day.
type Entry struct {
	ID          string      `json:"id"`
	Date        string      `json:"date"`
	Duration    int         `json:"duration"`
	Description string      `json:"description"`
	Notes       string      `json:"notes"`
	References  []Reference `json:"references"`
	Splits      []Split     `json:"splits"`
	GroupID     string      `json:"group_id,omitempty"`
	OrderKey    int64       `json:"order_key"`
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	if e.References != nil {
		c.References = make([]Reference, len(e.References))
		copy(c.References, e.References)
	}
	if e.Splits != nil {
		c.Splits = make([]Split, len(e.Splits))
		copy(c.Splits, e.Splits)
	}
	return c
}

// Day groups the entries of one calendar day in display order.
type Day struct {
	Date    string  `json:"date"`
	Total   int     `json:"total"`
	Entries []Entry `json:"entries"`
}

// Group is the derived membership view of a linked set of entries.
type Group struct {
	GroupID string  `json:"group_id"`
	Total   int     `json:"total"`
	Members []Entry `json:"members"`
}

// Patch carries a partial entry update; nil fields are untouched.
type Patch struct {
	Date        *string
	Duration    *int
	Description *string
	Notes       *string
	References  *[]Reference
	Splits      *[]Split
}

// ActionType enumerates the reversible mutations recorded by the action log.
type ActionType string

const (
	ActionCreate           ActionType = "create"
	ActionUpdate           ActionType = "update"
	ActionDelete           ActionType = "delete"
	ActionDuplicate        ActionType = "duplicate"
	ActionDuplicateAndLink ActionType = "duplicate_and_link"
	ActionLink             ActionType = "link"
	ActionUngroup          ActionType = "ungroup"
	ActionReorder          ActionType = "reorder"
)

// Snapshot freezes the state of one entry at a point in time. Exists=false
// records that the entry was absent, so restoring the snapshot deletes it.
type Snapshot struct {
	ID     string
	Exists bool
	Entry  Entry
}

// Action is one reversible unit of mutation. Before and After cover every
// entry the mutation altered, so a restore is atomic across records.
type Action struct {
	ID     string
	Type   ActionType
	Before []Snapshot
	After  []Snapshot
	At     time.Time
}

// SharedField names an entry field the linking engine treats as shared
// across group members.
type SharedField string

const (
	FieldDescription SharedField = "description"
	FieldDuration    SharedField = "duration"
	FieldNotes       SharedField = "notes"
	FieldReferences  SharedField = "references"
	FieldSplits      SharedField = "splits"
)

// ParseSharedFields converts configured field names into a shared-field set.
func ParseSharedFields(names []string) (map[SharedField]bool, error) {
	set := make(map[SharedField]bool, len(names))
	for _, name := range names {
		f := SharedField(name)
		switch f {
		case FieldDescription, FieldDuration, FieldNotes, FieldReferences, FieldSplits:
			set[f] = true
		default:
			return nil, fmt.Errorf("%w: unknown shared field %q", ErrInvalidArgument, name)
		}
	}
	return set, nil
}

func fieldDiffers(a, b Entry, f SharedField) bool {
	switch f {
	case FieldDescription:
		return a.Description != b.Description
	case FieldDuration:
		return a.Duration != b.Duration
	case FieldNotes:
		return a.Notes != b.Notes
	case FieldReferences:
		if len(a.References) != len(b.References) {
			return true
		}
		for i := range a.References {
			if a.References[i].LinkTypeID != b.References[i].LinkTypeID || a.References[i].Value != b.References[i].Value {
				return true
			}
		}
		return false
	case FieldSplits:
		if len(a.Splits) != len(b.Splits) {
			return true
		}
		for i := range a.Splits {
			if a.Splits[i].AccountID != b.Splits[i].AccountID || a.Splits[i].Duration != b.Splits[i].Duration {
				return true
			}
		}
		return false
	}
	return false
}

func copyField(dst *Entry, src Entry, f SharedField) {
	switch f {
	case FieldDescription:
		dst.Description = src.Description
	case FieldDuration:
		dst.Duration = src.Duration
	case FieldNotes:
		dst.Notes = src.Notes
	case FieldReferences:
		dst.References = src.Clone().References
	case FieldSplits:
		dst.Splits = src.Clone().Splits
	}
}

func validDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}
