package conversation

// appendBounded appends m and keeps only the limit most recent messages.
// A non-positive limit means unbounded.
func appendBounded(window []Message, m Message, limit int) []Message {
	window = append(window, m)
	if limit <= 0 || len(window) <= limit {
		return window
	}
	// Copy so the dropped prefix can be collected.
	trimmed := make([]Message, limit)
	copy(trimmed, window[len(window)-limit:])
	return trimmed
}
