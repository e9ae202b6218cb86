package feeds

import "testing"

func TestFilterMatchesJSONFields(t *testing.T) {
	f, err := CompileFilter(`json.kind == "message" && seq > 1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Match(Event{Kind: KindEvent, Seq: 5, Body: []byte(`{"kind":"message"}`)}) {
		t.Fatal("matching event rejected")
	}
	if f.Match(Event{Kind: KindEvent, Seq: 5, Body: []byte(`{"kind":"presence"}`)}) {
		t.Fatal("non-matching event accepted")
	}
	// start markers always pass
	if !f.Match(Event{Kind: KindStart, Seq: 1}) {
		t.Fatal("start marker filtered out")
	}
}

func TestFilterDisabledAndInvalid(t *testing.T) {
	f, err := CompileFilter("  ")
	if err != nil {
		t.Fatalf("compile empty: %v", err)
	}
	if !f.Match(Event{Kind: KindEvent, Body: []byte("anything")}) {
		t.Fatal("disabled filter rejected event")
	}
	if _, err := CompileFilter("json."); err == nil {
		t.Fatal("invalid expression compiled")
	}
}
