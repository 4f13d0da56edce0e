package relay

import (
	"math"
	"sync"
)

// PenaltyKind distinguishes a timed kick from a ban.
type PenaltyKind int

const (
	PenaltyKick PenaltyKind = iota
	PenaltyBan
)

func (k PenaltyKind) String() string {
	if k == PenaltyBan {
		return "ban"
	}
	return "kick"
}

// PermanentExpiry marks a penalty with no expiry.
const PermanentExpiry = int64(math.MaxInt64)

// Penalty is one active kick or ban. Subject is either a player UUID (kicks
// and bans) or an IP (bans).
type Penalty struct {
	Kind      PenaltyKind
	Subject   string
	ExpiresAt int64
}

// PenaltyLedger holds a room's active kicks and bans, indexed by subject. A
// ledger belongs to exactly one room and is never shared across rooms.
type PenaltyLedger struct {
	mu        sync.Mutex
	bySubject map[string]Penalty
}

func NewPenaltyLedger() *PenaltyLedger {
	return &PenaltyLedger{bySubject: make(map[string]Penalty)}
}

// Add records a penalty. Re-penalizing the same subject keeps a single entry
// with the later (or equal) expiry, so duplicate bans never shorten one
// already in force.
func (l *PenaltyLedger) Add(kind PenaltyKind, subject string, expiresAt int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, has := l.bySubject[subject]; has && existing.ExpiresAt > expiresAt {
		return
	}
	l.bySubject[subject] = Penalty{Kind: kind, Subject: subject, ExpiresAt: expiresAt}
}

// Active returns the penalty in force against subject at the given time.
// Expired entries are dropped on the way through.
func (l *PenaltyLedger) Active(subject string, now int64) (Penalty, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, has := l.bySubject[subject]
	if !has {
		return Penalty{}, false
	}
	if p.ExpiresAt <= now {
		delete(l.bySubject, subject)
		return Penalty{}, false
	}
	return p, true
}

func (l *PenaltyLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bySubject)
}
