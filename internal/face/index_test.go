package face

import "testing"

func TestIndex_EmptyReturnsNothing(t *testing.T) {
	x := NewIndex()
	if got := x.Nearest(Descriptor{0, 0}, 3); len(got) != 0 {
		t.Errorf("expected no candidates from empty index, got %d", len(got))
	}
	x.Build(nil, 2)
	if x.Len() != 0 {
		t.Errorf("Len = %d, want 0", x.Len())
	}
}

func TestIndex_NearestFindsExactMatch(t *testing.T) {
	reg := make([]Registered, 0, 20)
	for i := 0; i < 20; i++ {
		reg = append(reg, Registered{
			Owner:      string(rune('a' + i)),
			Descriptor: Descriptor{float32(i), float32(i) * 0.5, 1},
		})
	}
	x := NewIndex()
	x.Build(reg, 3)
	if x.Len() != 20 {
		t.Fatalf("Len = %d, want 20", x.Len())
	}

	got := x.Nearest(Descriptor{7, 3.5, 1}, 3)
	if len(got) == 0 {
		t.Fatal("expected candidates")
	}
	found := false
	for _, r := range got {
		if r.Owner == "h" {
			found = true
		}
	}
	if !found {
		t.Errorf("exact match h not among candidates %v", got)
	}

	m := mustMatcher(t, 3)
	res, err := m.Match(Descriptor{7, 3.5, 1}, got)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted || res.Owner != "h" {
		t.Errorf("matcher over candidates = %+v, want h accepted", res)
	}
}

func TestIndex_SkipsWrongDimension(t *testing.T) {
	x := NewIndex()
	x.Build([]Registered{
		{Owner: "ok", Descriptor: Descriptor{1, 2}},
		{Owner: "bad", Descriptor: Descriptor{1, 2, 3}},
	}, 2)
	if x.Len() != 1 {
		t.Errorf("Len = %d, want 1", x.Len())
	}
}

func TestSortByOrder(t *testing.T) {
	rs := []Registered{{Owner: "c"}, {Owner: "a"}, {Owner: "b"}}
	sortByOrder(rs, map[string]int{"a": 0, "b": 1, "c": 2})
	for i, want := range []string{"a", "b", "c"} {
		if rs[i].Owner != want {
			t.Errorf("rs[%d] = %s, want %s", i, rs[i].Owner, want)
		}
	}
}
