package lineset

import (
	"reflect"
	"testing"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\n", []string{"a"}},
		{"1\n2\n3\n", []string{"1", "2", "3"}},
		{"a\n\n", []string{"a", ""}},
		{"\n", []string{""}},
	}
	for _, tt := range tests {
		if got := SplitLines(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiff_Replace(t *testing.T) {
	ops := Diff([]string{"1", "2", "3"}, []string{"1", "X", "3"})
	var ins, del, eq int
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			ins += op.Count
		case OpDelete:
			del += op.Count
		case OpEqual:
			eq += op.Count
		}
	}
	if ins != 1 || del != 1 || eq != 2 {
		t.Errorf("ins/del/eq = %d/%d/%d, want 1/1/2 (ops %v)", ins, del, eq, ops)
	}
}

func TestDiff_EmptySides(t *testing.T) {
	if ops := Diff(nil, nil); ops != nil {
		t.Errorf("Diff(nil, nil) = %v, want nil", ops)
	}
	if ops := Diff(nil, []string{"a", "b"}); !reflect.DeepEqual(ops, []Op{{OpInsert, 2}}) {
		t.Errorf("all-insert = %v", ops)
	}
	if ops := Diff([]string{"a"}, nil); !reflect.DeepEqual(ops, []Op{{OpDelete, 1}}) {
		t.Errorf("all-delete = %v", ops)
	}
}

func TestDiff_OpsCoverBothSides(t *testing.T) {
	old := SplitLines("a\nb\nc\nd\ne\nf\n")
	new := SplitLines("a\nX\nc\ne\nY\nZ\nf\n")
	var oldN, newN int
	for _, op := range Diff(old, new) {
		switch op.Kind {
		case OpEqual:
			oldN += op.Count
			newN += op.Count
		case OpInsert:
			newN += op.Count
		case OpDelete:
			oldN += op.Count
		}
	}
	if oldN != len(old) || newN != len(new) {
		t.Errorf("ops cover %d/%d lines, want %d/%d", oldN, newN, len(old), len(new))
	}
}

func TestStats(t *testing.T) {
	added, deleted := Stats(SplitLines("a\nb\nc"), SplitLines("a\nc\nd\ne"))
	if added != 2 || deleted != 1 {
		t.Errorf("Stats = +%d -%d, want +2 -1", added, deleted)
	}
}
