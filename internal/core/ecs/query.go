package ecs

// Each2 iterates over entities that have both component A and B.
// It iterates over the smaller store and checks the larger one.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	if sa.Len() <= sb.Len() {
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				fn(id, a, b)
			}
		}
		return
	}
	for id, b := range sb.data {
		if a, ok := sa.data[id]; ok {
			fn(id, a, b)
		}
	}
}

// Sorted2 is Each2 in ascending entity order.
func Sorted2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	for _, id := range sa.IDs() {
		if b, ok := sb.data[id]; ok {
			fn(id, sa.data[id], b)
		}
	}
}
