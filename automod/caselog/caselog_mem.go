package caselog

import (
	"context"
	"strconv"
	"sync"
)

type MemCaseLog struct {
	mu    sync.Mutex
	cases []Case
	err   error
}

var _ CaseLog = (*MemCaseLog)(nil)

func NewMemCaseLog() *MemCaseLog {
	return &MemCaseLog{}
}

func (l *MemCaseLog) CreateCase(ctx context.Context, c Case) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	c.ID = strconv.Itoa(len(l.cases) + 1)
	l.cases = append(l.cases, c)
	return c.ID, nil
}

// Returns a copy of all cases, in creation order.
func (l *MemCaseLog) Cases() []Case {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Case, len(l.cases))
	copy(out, l.cases)
	return out
}

// Causes subsequent writes to fail with err (or succeed again, if nil).
func (l *MemCaseLog) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}
