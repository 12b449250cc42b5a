package pool

import (
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	for _, size := range []int{0, -3} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) should fail", size)
		}
	}

	p, err := New(3)
	if err != nil {
		t.Fatalf("New(3): %v", err)
	}
	if p.Size() != 3 {
		t.Errorf("Size() = %d", p.Size())
	}
	if got := p.AllUnits(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("AllUnits() = %v", got)
	}
}

func TestIsValid(t *testing.T) {
	p, _ := New(3)
	tests := []struct {
		unit int
		want bool
	}{
		{0, false},
		{1, true},
		{3, true},
		{4, false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := p.IsValid(tt.unit); got != tt.want {
			t.Errorf("IsValid(%d) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestAllUnitsReturnsFreshSlice(t *testing.T) {
	p, _ := New(2)
	units := p.AllUnits()
	units[0] = 99
	if p.AllUnits()[0] != 1 {
		t.Error("AllUnits must not expose shared state")
	}
}
