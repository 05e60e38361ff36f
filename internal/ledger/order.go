package ledger

// orderStep is the spacing between freshly assigned order keys. Midpoint
// insertion halves the available gap, so a day survives ~10 adjacent
// insertions before its keys are renormalized.
const orderStep int64 = 1 << 10

// appendKey returns the order key for an entry appended after the current
// last entry of a day.
func appendKey(day []*Entry) int64 {
	if len(day) == 0 {
		return orderStep
	}
	return day[len(day)-1].OrderKey + orderStep
}

// keyBetween returns a key strictly between prev and next. ok is false when
// the gap is exhausted and the day must be renormalized first.
func keyBetween(prev, next int64) (int64, bool) {
	if next-prev < 2 {
		return 0, false
	}
	return prev + (next-prev)/2, true
}

// renormalize re-indexes a day's entries to evenly spaced keys, preserving
// their relative order. It returns the entries whose key changed.
func renormalize(day []*Entry) []*Entry {
	var touched []*Entry
	for i, e := range day {
		key := int64(i+1) * orderStep
		if e.OrderKey != key {
			e.OrderKey = key
			touched = append(touched, e)
		}
	}
	return touched
}
