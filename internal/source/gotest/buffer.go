package gotest

// lineBuffer is a fixed-capacity ring of output lines. When full, the oldest
// line is evicted to make room, so a chatty test keeps only its tail.
type lineBuffer struct {
	items   []string
	cap     int
	head    int // index of the oldest element
	count   int // number of elements currently stored
	dropped int
}

func newLineBuffer(capacity int) *lineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &lineBuffer{
		items: make([]string, capacity),
		cap:   capacity,
	}
}

func (b *lineBuffer) Add(line string) {
	if b.count == b.cap {
		b.items[b.head] = line
		b.head = (b.head + 1) % b.cap
		b.dropped++
		return
	}
	b.items[(b.head+b.count)%b.cap] = line
	b.count++
}

// Lines returns the stored lines oldest first.
func (b *lineBuffer) Lines() []string {
	if b.count == 0 {
		return nil
	}
	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.head+i)%b.cap]
	}
	return out
}

// Dropped is the number of lines evicted so far.
func (b *lineBuffer) Dropped() int {
	return b.dropped
}
