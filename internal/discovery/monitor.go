package discovery

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Decision is the verdict returned by StreakMonitor.Observe.
type Decision int

// Observe verdicts.
const (
	DecisionContinue Decision = iota
	DecisionStop
)

// String implements fmt.Stringer for log output.
func (d Decision) String() string {
	if d == DecisionStop {
		return "stop"
	}
	return "continue"
}

// StreakMonitor watches a stream of probe status codes for an unbroken run
// of one "absence" code and signals Stop once the run reaches a configured
// threshold. It also keeps a frequency table of every code seen, which is
// handy diagnostics when first crawling a site.
//
// Streak accounting is defined over the order codes are delivered to
// Observe — under a concurrent pool that is completion order, not
// identifier order, so the exact identifier a crawl stops at is an
// approximate, not exact, bound.
type StreakMonitor struct {
	mu sync.Mutex

	watchCode      int
	maxConsecutive int

	lastCode    int
	hasObserved bool
	consecutive int
	frequency   map[int]int
}

// NewStreakMonitor builds a monitor watching watchCode for runs of
// maxConsecutive observations.
func NewStreakMonitor(watchCode, maxConsecutive int) (*StreakMonitor, error) {
	if maxConsecutive < 1 {
		return nil, fmt.Errorf("max consecutive must be >= 1, got %d", maxConsecutive)
	}
	return &StreakMonitor{
		watchCode:      watchCode,
		maxConsecutive: maxConsecutive,
		frequency:      make(map[int]int),
	}, nil
}

// Observe records one status code and reports whether the crawl should
// stop. The whole read-modify-write is performed under the monitor's lock;
// callers must not cache the returned decision across calls.
func (m *StreakMonitor) Observe(code int) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	decision := DecisionContinue
	if code == m.watchCode {
		if m.hasObserved && m.lastCode == m.watchCode {
			m.consecutive++
		} else {
			m.consecutive = 1
		}
		if m.consecutive >= m.maxConsecutive {
			decision = DecisionStop
		}
	} else {
		m.consecutive = 0
	}

	m.frequency[code]++
	m.lastCode = code
	m.hasObserved = true
	return decision
}

// Consecutive returns the current unbroken run length of the watched code.
func (m *StreakMonitor) Consecutive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive
}

// Frequencies returns a copy of the code frequency table accumulated so
// far. Counts are monotonically increasing and never reset.
func (m *StreakMonitor) Frequencies() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]int, len(m.frequency))
	for code, count := range m.frequency {
		out[code] = count
	}
	return out
}

// Report renders the frequency table as a one-line "code=count" summary,
// sorted by code for stable log output.
func (m *StreakMonitor) Report() string {
	freq := m.Frequencies()
	codes := make([]int, 0, len(freq))
	for code := range freq {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%d=%d", code, freq[code]))
	}
	return strings.Join(parts, ", ")
}
