package pool

import "fmt"

// Pool is the fixed set of exclusive units 1..N.
type Pool struct {
	size int
}

func New(size int) (Pool, error) {
	if size < 1 {
		return Pool{}, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	return Pool{size: size}, nil
}

func (p Pool) Size() int {
	return p.size
}

func (p Pool) AllUnits() []int {
	units := make([]int, p.size)
	for i := range units {
		units[i] = i + 1
	}
	return units
}

func (p Pool) IsValid(unit int) bool {
	return unit >= 1 && unit <= p.size
}
