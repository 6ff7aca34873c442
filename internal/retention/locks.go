package retention

import "sync"

// ruleLocks is the per-rule mutual-exclusion arena. A token is acquired
// when a run is admitted and released only at its terminal state, so a
// rule never has two active runs while unrelated rules stay concurrent.
type ruleLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newRuleLocks() *ruleLocks {
	return &ruleLocks{held: make(map[string]struct{})}
}

// tryAcquire takes the rule's token if free. It never blocks: a busy rule
// is rejected, not queued.
func (l *ruleLocks) tryAcquire(ruleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[ruleID]; busy {
		return false
	}
	l.held[ruleID] = struct{}{}
	return true
}

func (l *ruleLocks) release(ruleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, ruleID)
}

func (l *ruleLocks) busy(ruleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, busy := l.held[ruleID]
	return busy
}
