package ringbuf

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewRejectsBadCapacity(t *testing.T) {
	if _, err := New(0, OverflowStop); !errors.Is(err, ErrCapacity) {
		t.Fatalf("New(0) err = %v, want ErrCapacity", err)
	}
	if _, err := New(8, Overflow(9)); err == nil {
		t.Fatal("New with unknown policy should fail")
	}
}

func TestWriteReadWrapAround(t *testing.T) {
	rb, err := New(8, OverflowStop)
	if err != nil {
		t.Fatal(err)
	}

	if n := rb.Write([]byte("abcdef")); n != 6 {
		t.Fatalf("Write = %d, want 6", n)
	}
	out := make([]byte, 4)
	if n := rb.Read(out); n != 4 || string(out) != "abcd" {
		t.Fatalf("Read = %d %q", n, out)
	}

	// wraps past the end of the backing array
	if n := rb.Write([]byte("ghijk")); n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}
	all := make([]byte, 16)
	n := rb.Read(all)
	if got := string(all[:n]); got != "efghijk" {
		t.Fatalf("Read = %q, want %q", got, "efghijk")
	}
}

func TestStopPolicyRejectsOverflow(t *testing.T) {
	rb, _ := New(4, OverflowStop)
	if n := rb.Write([]byte("123456")); n != 4 {
		t.Fatalf("Write = %d, want 4", n)
	}
	if n := rb.Write([]byte("7")); n != 0 {
		t.Fatalf("Write on full buffer = %d, want 0", n)
	}
	out := make([]byte, 4)
	rb.Read(out)
	if string(out) != "1234" {
		t.Fatalf("got %q", out)
	}
}

func TestCoverPolicyKeepsNewest(t *testing.T) {
	rb, _ := New(4, OverflowCover)
	rb.Write([]byte("abc"))
	if n := rb.Write([]byte("def")); n != 3 {
		t.Fatalf("Write = %d, want 3", n)
	}
	out := make([]byte, 4)
	n := rb.Read(out)
	if string(out[:n]) != "cdef" {
		t.Fatalf("got %q, want cdef", out[:n])
	}

	rb.Write([]byte("0123456789"))
	n = rb.Read(out)
	if string(out[:n]) != "6789" {
		t.Fatalf("got %q, want 6789", out[:n])
	}
}

func TestUsedPlusFreeIsCapacity(t *testing.T) {
	rb, _ := New(37, OverflowStop)
	chunk := bytes.Repeat([]byte{0x5a}, 11)
	buf := make([]byte, 7)

	for i := 0; i < 200; i++ {
		if i%3 == 0 {
			rb.Read(buf)
		} else {
			rb.Write(chunk)
		}
		if rb.Used()+rb.Free() != rb.Cap() {
			t.Fatalf("step %d: used %d + free %d != cap %d", i, rb.Used(), rb.Free(), rb.Cap())
		}
	}
}

func TestResetAndClose(t *testing.T) {
	rb, _ := New(16, OverflowStop)
	rb.Write([]byte("hello"))
	rb.Reset()
	if rb.Used() != 0 || rb.Free() != 16 {
		t.Fatalf("after Reset used=%d free=%d", rb.Used(), rb.Free())
	}
	if n := rb.Read(make([]byte, 4)); n != 0 {
		t.Fatalf("Read on empty = %d", n)
	}

	rb.Close()
	if rb.Cap() != 0 || rb.Write([]byte("x")) != 0 {
		t.Fatal("closed buffer should accept nothing")
	}
}
