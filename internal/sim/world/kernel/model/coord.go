package model

// Coord is an integer grid coordinate. Each coordinate holds at most one structure.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) Add(d Coord) Coord { return Coord{X: c.X + d.X, Y: c.Y + d.Y} }

func (c Coord) ToArray() [2]int { return [2]int{c.X, c.Y} }

func CoordFromArray(a [2]int) Coord { return Coord{X: a[0], Y: a[1]} }

func Manhattan(a, b Coord) int { return abs(a.X-b.X) + abs(a.Y-b.Y) }

// Chebyshev is the king-move distance, used for power link range.
func Chebyshev(a, b Coord) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// Less orders coordinates by X then Y.
func (c Coord) Less(o Coord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
