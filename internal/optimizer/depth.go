package optimizer

import "github.com/me/qhaul/pkg/model"

// computeDepth runs as-soon-as-possible layering. Each wire carries a
// "busy until" counter. A gate starts at the maximum counter of its
// wires and finishes one layer later; a global gate synchronizes every
// wire to one past the current maximum. Depth is the maximum finishing
// layer, 0 for an empty gate list.
func computeDepth(gates []model.Gate) int {
	busy := make(map[int]int)
	floor := 0 // counter for wires not yet touched, raised by global gates
	depth := 0

	counter := func(w int) int {
		if v, ok := busy[w]; ok {
			return v
		}
		return floor
	}

	for i := range gates {
		g := &gates[i]

		if g.IsGlobal() {
			m := floor
			for _, v := range busy {
				if v > m {
					m = v
				}
			}
			floor = m + 1
			for w := range busy {
				busy[w] = floor
			}
			if floor > depth {
				depth = floor
			}
			continue
		}

		start := counter(*g.Target)
		if g.Control != nil {
			if c := counter(*g.Control); c > start {
				start = c
			}
		}
		finish := start + 1
		busy[*g.Target] = finish
		if g.Control != nil {
			busy[*g.Control] = finish
		}
		if finish > depth {
			depth = finish
		}
	}
	return depth
}
