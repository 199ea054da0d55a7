package ipc

import "testing"

func TestStdinRelayCollectsDeclaredLength(t *testing.T) {
	var r StdinRelay
	if r.BeginExpecting(5) {
		t.Fatal("BeginExpecting(5) reported complete")
	}

	rest, complete := r.Append([]byte("abc"))
	if complete || len(rest) != 0 {
		t.Fatalf("Append(abc) = %q, %v", rest, complete)
	}
	if r.Received() != 3 || r.Remaining() != 2 {
		t.Fatalf("received=%d remaining=%d", r.Received(), r.Remaining())
	}

	rest, complete = r.Append([]byte("de{\"stdin\":\"y\"}"))
	if !complete {
		t.Fatal("Append() did not complete")
	}
	if string(rest) != `{"stdin":"y"}` {
		t.Fatalf("rest = %q", rest)
	}

	if got := string(r.Take()); got != "abcde" {
		t.Fatalf("Take() = %q", got)
	}
	if got := r.Take(); got != nil {
		t.Fatalf("second Take() = %q, want nil", got)
	}
	if r.Active() {
		t.Fatal("Active() = true after Take")
	}
}

func TestStdinRelayZeroLength(t *testing.T) {
	var r StdinRelay
	if !r.BeginExpecting(0) {
		t.Fatal("BeginExpecting(0) = false, want complete")
	}
	if got := r.Take(); len(got) != 0 {
		t.Fatalf("Take() = %q, want empty", got)
	}
}

func TestStdinRelayReuse(t *testing.T) {
	var r StdinRelay
	for i, want := range []string{"first", "second", "x"} {
		r.BeginExpecting(len(want))
		if _, complete := r.Append([]byte(want)); !complete {
			t.Fatalf("cycle %d: incomplete", i)
		}
		if got := string(r.Take()); got != want {
			t.Fatalf("cycle %d: Take() = %q, want %q", i, got, want)
		}
	}
}

func TestStdinRelayInactiveAppend(t *testing.T) {
	var r StdinRelay
	rest, complete := r.Append([]byte("abc"))
	if complete || string(rest) != "abc" {
		t.Fatalf("Append() on idle relay = %q, %v", rest, complete)
	}
}
