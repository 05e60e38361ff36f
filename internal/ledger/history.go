package ledger

// DefaultHistoryLimit bounds the undo stack when no limit is configured.
const DefaultHistoryLimit = 100

// history keeps the undo/redo stacks. Like store, it relies on the Service
// for serialization.
type history struct {
	undo  []*Action
	redo  []*Action
	limit int
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &history{limit: limit}
}

// record pushes a fresh action and invalidates any previously undone future.
// The oldest action is evicted once the stack exceeds the limit.
func (h *history) record(a *Action) {
	h.undo = append(h.undo, a)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
}

func (h *history) popUndo() (*Action, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	a := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, a)
	return a, true
}

func (h *history) popRedo() (*Action, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	a := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, a)
	return a, true
}

// unpopUndo reverts a popUndo after a failed restore so the stacks keep
// matching the observable state.
func (h *history) unpopUndo() {
	if len(h.redo) == 0 {
		return
	}
	a := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, a)
}

func (h *history) unpopRedo() {
	if len(h.undo) == 0 {
		return
	}
	a := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, a)
}

func (h *history) canUndo() bool { return len(h.undo) > 0 }
func (h *history) canRedo() bool { return len(h.redo) > 0 }
