// Package window holds compressed bytes that are waiting for the decoder.
//
// A Window is a bounded sliding view: the decoder reads from Peek, reports how
// much it used through Consume, and new bytes are added behind the residual
// with Reserve/Commit. Residual bytes are shifted back to the front
// only when room is needed.
package window

type Window struct {
	buf  []byte
	head int
	n    int
}

func New(capacity int) *Window {
	return &Window{buf: make([]byte, capacity)}
}

func (w *Window) Len() int  { return w.n }
func (w *Window) Cap() int  { return len(w.buf) }
func (w *Window) Free() int { return len(w.buf) - w.n }

// Peek returns the residual bytes. The slice is only valid until the next
// mutating call.
func (w *Window) Peek() []byte {
	return w.buf[w.head : w.head+w.n]
}

// Consume drops k bytes from the front of the residual.
func (w *Window) Consume(k int) {
	if k > w.n {
		k = w.n
	}
	if k <= 0 {
		return
	}
	w.head += k
	w.n -= k
	if w.n == 0 {
		w.head = 0
	}
}

// Reserve returns a writable slice of up to k bytes placed right after the
// residual. The bytes become part of the window only after Commit.
func (w *Window) Reserve(k int) []byte {
	w.compact()
	if free := w.Free(); k > free {
		k = free
	}
	if k < 0 {
		k = 0
	}
	return w.buf[w.n : w.n+k]
}

// Commit appends k bytes previously written into a Reserve slice.
func (w *Window) Commit(k int) {
	if k > w.Free() {
		k = w.Free()
	}
	if k > 0 {
		w.n += k
	}
}

func (w *Window) Reset() {
	w.head = 0
	w.n = 0
}

func (w *Window) compact() {
	if w.head == 0 {
		return
	}
	if w.n > 0 {
		copy(w.buf, w.buf[w.head:w.head+w.n])
	}
	w.head = 0
}
