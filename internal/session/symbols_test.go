package session

import (
	"testing"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

func sym(name string, kind lspDomain.SymbolKind, startLine, endLine int, children ...*lspDomain.Symbol) *lspDomain.Symbol {
	return &lspDomain.Symbol{
		Name:           name,
		Kind:           kind,
		Range:          lspDomain.Range{Start: lspDomain.Position{Line: startLine}, End: lspDomain.Position{Line: endLine, Character: 1}},
		SelectionRange: lspDomain.Range{Start: lspDomain.Position{Line: startLine}, End: lspDomain.Position{Line: startLine, Character: 1}},
		Children:       children,
	}
}

func TestCorrectBlankAnchor(t *testing.T) {
	lines := []string{"module", "", "/// Doc", "type Foo = ..."}
	foo := sym("Foo", lspDomain.KindClass, 1, 3)

	correctBlankAnchor(lines, foo)

	if foo.Range.Start.Line != 2 {
		t.Errorf("corrected start line = %d, want 2 (the comment line)", foo.Range.Start.Line)
	}
	if foo.Range.End.Line != 4 {
		t.Errorf("corrected end line = %d, want 4 (shifted with the start)", foo.Range.End.Line)
	}
}

func TestCorrectBlankAnchorShiftsDescendants(t *testing.T) {
	lines := []string{"", "", "// doc", "class C:", "  def m():", "    pass"}
	child := sym("m", lspDomain.KindMethod, 4, 5)
	parent := sym("C", lspDomain.KindClass, 0, 5, child)

	correctBlankAnchor(lines, parent)

	if parent.Range.Start.Line != 2 || parent.Range.End.Line != 7 {
		t.Fatalf("parent range = %d..%d, want 2..7", parent.Range.Start.Line, parent.Range.End.Line)
	}
	// Descendants shift by the same delta.
	if child.Range.Start.Line != 6 || child.Range.End.Line != 7 {
		t.Errorf("child range = %d..%d, want shifted by 2", child.Range.Start.Line, child.Range.End.Line)
	}
	if child.SelectionRange.Start.Line != 6 {
		t.Errorf("child selection start = %d, want 6", child.SelectionRange.Start.Line)
	}
	if !parent.Range.Contains(child.Range) {
		t.Errorf("parent %d..%d no longer contains child %d..%d",
			parent.Range.Start.Line, parent.Range.End.Line, child.Range.Start.Line, child.Range.End.Line)
	}
}

func TestCorrectBlankAnchorLeavesGoodSymbolsAlone(t *testing.T) {
	lines := []string{"package x", "func f() {}"}
	f := sym("f", lspDomain.KindFunction, 1, 1)

	correctBlankAnchor(lines, f)

	if f.Range.Start.Line != 1 {
		t.Errorf("start line = %d, want unchanged 1", f.Range.Start.Line)
	}
}

func TestFlattenAssignsNamePaths(t *testing.T) {
	add := sym("add", lspDomain.KindMethod, 2, 3)
	sub := sym("sub", lspDomain.KindMethod, 5, 6)
	calc := sym("Calc", lspDomain.KindClass, 0, 8, add, sub)
	main := sym("main", lspDomain.KindFunction, 10, 12)

	flat := flatten([]*lspDomain.Symbol{calc, main})

	want := map[string]bool{"Calc": true, "Calc/add": true, "Calc/sub": true, "main": true}
	if len(flat) != len(want) {
		t.Fatalf("flat has %d symbols, want %d", len(flat), len(want))
	}
	for _, s := range flat {
		if !want[s.NamePath] {
			t.Errorf("unexpected name path %q", s.NamePath)
		}
	}
	if add.NamePath != "Calc/add" {
		t.Errorf("add.NamePath = %q", add.NamePath)
	}
}

func TestIdentifierAt(t *testing.T) {
	lines := []string{"result := calc.Add(x, y)"}

	tests := []struct {
		char int
		want string
	}{
		{0, "result"},
		{3, "result"},
		{15, "Add"},
		{19, "x"},
		{9, ""}, // between tokens
	}
	for _, tt := range tests {
		got := identifierAt(lines, lspDomain.Position{Line: 0, Character: tt.char})
		if got != tt.want {
			t.Errorf("identifierAt(char=%d) = %q, want %q", tt.char, got, tt.want)
		}
	}
}

func TestWholeWordOccurrences(t *testing.T) {
	cols := wholeWordOccurrences("add(addend, add)", "add")
	if len(cols) != 2 || cols[0] != 0 || cols[1] != 13 {
		t.Errorf("cols = %v, want [0 13]", cols)
	}
}
