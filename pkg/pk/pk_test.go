package pk

import "testing"

func TestString_Primitives(t *testing.T) {
	cases := []struct {
		in   PK
		want string
	}{
		{"abc", "abc"},
		{42, "42"},
		{int64(42), "42"},
		{3.5, "3.5"},
	}
	for _, c := range cases {
		if got := String(c.in); got != c.want {
			t.Errorf("String(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestString_NilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected String(nil) to panic")
		}
	}()
	String(nil)
}

func TestString_CompoundJoinsPartsWithSeparator(t *testing.T) {
	c := NewCompound("tenant-1", 7)
	got := String(c)
	want := String("tenant-1") + "\x1f" + String(7)
	if got != want {
		t.Fatalf("String(compound) = %q, want %q", got, want)
	}
}

func TestCompound_PartsIsADefensiveCopy(t *testing.T) {
	c := NewCompound("a", "b")
	parts := c.Parts()
	parts[0] = "mutated"
	if c.At(0) != "a" {
		t.Fatal("expected mutating the returned Parts slice not to affect the Compound")
	}
}

func TestCompare_NumericOrdering(t *testing.T) {
	if Compare(1, 2) != -1 {
		t.Fatal("expected 1 < 2")
	}
	if Compare(2, 1) != 1 {
		t.Fatal("expected 2 > 1")
	}
	if Compare(2, 2) != 0 {
		t.Fatal("expected 2 == 2")
	}
	if Compare(1, 2.0) != -1 {
		t.Fatal("expected int/float64 comparison to work across types")
	}
}

func TestCompare_StringOrdering(t *testing.T) {
	if Compare("a", "b") != -1 {
		t.Fatal("expected \"a\" < \"b\"")
	}
}

func TestCompare_CompoundIsComponentwise(t *testing.T) {
	a := NewCompound("tenant-1", 1)
	b := NewCompound("tenant-1", 2)
	if Compare(a, b) != -1 {
		t.Fatal("expected compound keys to compare by their first differing component")
	}

	c := NewCompound("tenant-2", 0)
	if Compare(a, c) != -1 {
		t.Fatal("expected \"tenant-1\" < \"tenant-2\" to dominate the comparison")
	}
}

func TestCompare_MixedCompoundAndPrimitiveTreatsPrimitiveAsSingleton(t *testing.T) {
	a := NewCompound("x")
	if Compare(a, "x") != 0 {
		t.Fatal("expected a single-component compound to compare equal to the bare primitive")
	}
}
