package terminology

import fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"

// codingSet is an insertion-ordered set of codings keyed by system|code.
type codingSet struct {
	index map[string]fhirtx.Coding
	order []string
}

func newCodingSet(codes []fhirtx.Coding) *codingSet {
	s := &codingSet{index: make(map[string]fhirtx.Coding, len(codes))}
	s.addAll(codes)
	return s
}

func (s *codingSet) add(c fhirtx.Coding) {
	key := c.String()
	if _, ok := s.index[key]; ok {
		return
	}
	s.index[key] = c
	s.order = append(s.order, key)
}

func (s *codingSet) addAll(codes []fhirtx.Coding) {
	for _, c := range codes {
		s.add(c)
	}
}

func (s *codingSet) removeAll(codes []fhirtx.Coding) {
	for _, c := range codes {
		delete(s.index, c.String())
	}
}

func (s *codingSet) has(c fhirtx.Coding) bool {
	_, ok := s.index[c.String()]
	return ok
}

// intersect keeps the codings also present in o, preserving s's order.
func (s *codingSet) intersect(o *codingSet) *codingSet {
	out := &codingSet{index: make(map[string]fhirtx.Coding)}
	for _, c := range s.list() {
		if o.has(c) {
			out.add(c)
		}
	}
	return out
}

func (s *codingSet) len() int { return len(s.index) }

func (s *codingSet) list() []fhirtx.Coding {
	out := make([]fhirtx.Coding, 0, len(s.index))
	emitted := make(map[string]bool, len(s.index))
	for _, key := range s.order {
		if c, ok := s.index[key]; ok && !emitted[key] {
			emitted[key] = true
			out = append(out, c)
		}
	}
	return out
}
