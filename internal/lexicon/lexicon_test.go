package lexicon

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gridscout.ai/internal/command"
)

func TestLookup_ExactDefault(t *testing.T) {
	l := New()
	m, err := l.Lookup("  Turn   LEFT ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !m.Exact || m.Source != SourceDefault || !reflect.DeepEqual(m.Commands, []command.Command{command.TurnLeft}) {
		t.Fatalf("m=%+v", m)
	}
}

func TestLookup_SubstringPrefersLongest(t *testing.T) {
	l := New()
	m, err := l.Lookup("please turn around now")
	if err != nil {
		t.Fatal(err)
	}
	if m.Exact || m.Phrase != "turn around" || len(m.Commands) != 2 {
		t.Fatalf("m=%+v", m)
	}
	if _, err := l.Lookup("xyzzy"); !errors.Is(err, ErrUnknownPhrase) {
		t.Fatalf("err=%v", err)
	}
	if _, err := l.Lookup("   "); !errors.Is(err, ErrEmptyPhrase) {
		t.Fatalf("err=%v", err)
	}
	st := l.Stats()
	if st.Total != 3 || st.Understood != 1 || st.Unknown != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestLookup_CommandNames(t *testing.T) {
	l := New()
	m, err := l.Lookup("legs.forward, hand.grab")
	if err != nil {
		t.Fatal(err)
	}
	if m.Source != SourceCommand || !reflect.DeepEqual(m.Commands, []command.Command{command.Forward, command.Grab}) {
		t.Fatalf("m=%+v", m)
	}
}

func TestLearn_ShadowsDefaultAndForget(t *testing.T) {
	l := New()
	if err := l.Learn("Grab", []command.Command{command.Look, command.Grab}); err != nil {
		t.Fatal(err)
	}
	m, _ := l.Lookup("grab")
	if m.Source != SourceLearned || len(m.Commands) != 2 {
		t.Fatalf("learned layer not consulted first: %+v", m)
	}
	// Callers cannot mutate the stored sequence.
	m.Commands[0] = command.Release
	m2, _ := l.Lookup("grab")
	if m2.Commands[0] != command.Look {
		t.Fatalf("stored sequence mutated")
	}

	if !l.Forget("grab") || l.Forget("grab") {
		t.Fatalf("forget semantics")
	}
	m, _ = l.Lookup("grab")
	if m.Source != SourceDefault {
		t.Fatalf("default not restored: %+v", m)
	}
	if err := l.Learn("", []command.Command{command.Wait}); !errors.Is(err, ErrEmptyPhrase) {
		t.Fatalf("err=%v", err)
	}
	if err := l.Learn("x", nil); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("err=%v", err)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	_ = a.Learn("fetch", []command.Command{command.Grab})
	if _, err := b.Lookup("fetch"); err == nil {
		t.Fatalf("learned entry leaked across instances")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lex", "learned.json")
	a := New()
	_ = a.Learn("spin", []command.Command{command.TurnLeft, command.TurnLeft, command.TurnLeft, command.TurnLeft})
	_ = a.Learn("fetch", []command.Command{command.Grab})
	if err := a.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}

	b := New()
	if err := b.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := b.Learned()
	if len(got) != 2 || got[0].Phrase != "fetch" || len(got[1].Commands) != 4 {
		t.Fatalf("learned=%+v", got)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), `"turn left"`) {
		t.Fatalf("defaults written to file: %s", raw)
	}

	if err := New().Load(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte(`{"version": 9}`), 0o644)
	if err := New().Load(bad); err == nil {
		t.Fatalf("expected version error")
	}
}
