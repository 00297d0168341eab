package pool

// Each calls fn once for every currently in-use process slot, in
// index order.
func (p *ProcessPool) Each(fn func(idx uint32, item *Process)) {
	for idx := range p.slots {
		if p.inUse[idx] {
			fn(uint32(idx), &p.slots[idx])
		}
	}
}

// Each calls fn once for every currently in-use edge slot, in index
// order.
func (p *EdgePool) Each(fn func(idx uint32, item *Edge)) {
	for idx := range p.slots {
		if p.inUse[idx] {
			fn(uint32(idx), &p.slots[idx])
		}
	}
}
