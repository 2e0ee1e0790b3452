package rules

// multimap collects record indexes under string keys, preserving the order in
// which keys were first seen. Detectors depend on this ordering for
// deterministic output over identical input.
type multimap struct {
	order []string
	idx   map[string][]int
}

func newMultimap() *multimap {
	return &multimap{idx: make(map[string][]int)}
}

func (m *multimap) add(key string, i int) {
	if _, ok := m.idx[key]; !ok {
		m.order = append(m.order, key)
	}
	m.idx[key] = append(m.idx[key], i)
}

func (m *multimap) keys() []string {
	return m.order
}

func (m *multimap) get(key string) []int {
	return m.idx[key]
}

// clampScore bounds a raw risk score to the 1..10 range every failing result
// must carry.
func clampScore(raw int) int {
	if raw < 1 {
		return 1
	}
	if raw > 10 {
		return 10
	}
	return raw
}
