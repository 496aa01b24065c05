package sqandr

// SqANPreamble starts every packet produced by the SqAN app.
var SqANPreamble = []byte{0x66, 0x99}

// PreambleMatcher looks for a short byte sequence in the bytes decoded during a
// single receive cycle. A mismatch restarts the search at the first preamble
// byte without re-checking the mismatched byte, so overlapping prefixes such as
// {p0, p0, p1} are not recognized.
type PreambleMatcher struct {
	preamble []byte
	index    int
	found    bool
}

func NewPreambleMatcher(preamble []byte) *PreambleMatcher {
	return &PreambleMatcher{preamble: preamble}
}

// Feed compares b with the next expected preamble byte and reports whether the
// whole preamble has been seen in this cycle.
func (m *PreambleMatcher) Feed(b byte) bool {
	if m.found || len(m.preamble) == 0 {
		return m.found
	}
	if m.preamble[m.index] == b {
		m.index++
		if m.index >= len(m.preamble) {
			m.found = true
		}
	} else {
		m.index = 0
	}
	return m.found
}

func (m *PreambleMatcher) Found() bool { return m.found }

func (m *PreambleMatcher) Reset() {
	m.index = 0
	m.found = false
}
