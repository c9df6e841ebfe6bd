package browser

import "testing"

func TestParseSnapshotLinesBasic(t *testing.T) {
	text := `- button "Submit"
- link "Home" [href=/home]
- textbox "Email" [tag=input]`
	refs := parseSnapshotLines(text)
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %d: %+v", len(refs), refs)
	}
	if refs[0].Role != "button" || refs[0].Name != "Submit" {
		t.Errorf("ref 0 = %+v", refs[0])
	}
	if refs[1].Href != "/home" {
		t.Errorf("ref 1 href = %q, want /home", refs[1].Href)
	}
	if refs[2].Tag != "input" {
		t.Errorf("ref 2 tag = %q, want input", refs[2].Tag)
	}
}

func TestParseSnapshotLinesSkipsBlankAndMalformed(t *testing.T) {
	text := "\n  \n- button \"OK\"\nnot a matching line\n"
	refs := parseSnapshotLines(text)
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref after skipping blank/malformed lines, got %d: %+v", len(refs), refs)
	}
}

func TestParseSnapshotLinesAssignsOccurrenceIndex(t *testing.T) {
	text := `- button "OK"
- button "OK"
- button "Cancel"`
	refs := parseSnapshotLines(text)
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %d", len(refs))
	}
	if refs[0].Nth != 0 || refs[1].Nth != 1 {
		t.Errorf("expected duplicate (role,name) pairs to get increasing Nth, got %d then %d", refs[0].Nth, refs[1].Nth)
	}
	if refs[2].Nth != 0 {
		t.Errorf("expected a distinct name to start its own Nth count at 0, got %d", refs[2].Nth)
	}
}

func TestRoleSelectorKnownRoles(t *testing.T) {
	tests := []string{"button", "link", "textbox", "checkbox"}
	for _, role := range tests {
		if sel := roleSelector(role); sel == "" {
			t.Errorf("roleSelector(%q) returned empty selector", role)
		}
	}
}

func TestInteractiveRolesContainsCommonRoles(t *testing.T) {
	for _, role := range []string{"button", "link", "textbox", "checkbox"} {
		if !interactiveRoles[role] {
			t.Errorf("expected %q to be an interactive role", role)
		}
	}
	if interactiveRoles["paragraph"] {
		t.Error("paragraph should not be considered interactive")
	}
}

func TestRefMapSetAndGet(t *testing.T) {
	m := NewRefMap()
	m.set("e1", Ref{ID: "e1", Role: "button", Name: "OK"})
	r, ok := m.Get("e1")
	if !ok || r.Name != "OK" {
		t.Errorf("Get(e1) = %+v, %v", r, ok)
	}
	if _, ok := m.Get("e2"); ok {
		t.Error("expected Get to report false for an unset ref")
	}
}
