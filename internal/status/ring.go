package status

// alertRing is a fixed-capacity FIFO of alert records; the oldest is
// overwritten when full. Not safe for concurrent use.
type alertRing struct {
	buf      []AlertRecord
	capacity int
	head     int // next write position
	count    int
}

func newAlertRing(capacity int) *alertRing {
	return &alertRing{
		buf:      make([]AlertRecord, capacity),
		capacity: capacity,
	}
}

func (r *alertRing) push(rec AlertRecord) {
	r.buf[r.head] = rec
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// list returns a copy of the records, oldest first.
func (r *alertRing) list() []AlertRecord {
	if r.count == 0 {
		return nil
	}
	out := make([]AlertRecord, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}
	return out
}

func (r *alertRing) len() int {
	return r.count
}
