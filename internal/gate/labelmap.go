package gate

// LabelMap is the derived projection from classifier label to identity name
// for one retrain epoch. It is rebuilt from scratch on every retrain, in
// registry enrollment order. Label ids are only valid until the next
// retrain: callers compare identities by resolved name, never by label.
type LabelMap struct {
	epoch   uint64
	byLabel map[int]string
	byName  map[string]int
}

func newLabelMap(epoch uint64) *LabelMap {
	return &LabelMap{
		epoch:   epoch,
		byLabel: make(map[int]string),
		byName:  make(map[string]int),
	}
}

func (m *LabelMap) add(label int, name string) {
	m.byLabel[label] = name
	m.byName[name] = label
}

// Resolve returns the identity name for a classifier label.
func (m *LabelMap) Resolve(label int) (string, bool) {
	name, ok := m.byLabel[label]
	return name, ok
}

// LabelOf returns the label assigned to a name in this epoch.
func (m *LabelMap) LabelOf(name string) (int, bool) {
	label, ok := m.byName[name]
	return label, ok
}

// Len returns the number of mapped labels.
func (m *LabelMap) Len() int {
	return len(m.byLabel)
}

// Epoch returns the retrain epoch this map belongs to.
func (m *LabelMap) Epoch() uint64 {
	return m.epoch
}
