package engine

import (
	"fmt"

	"github.com/solverlab/constraintstream/pkg/domain"
)

// factStore holds the current working set of facts, keyed by identity.
// Facts are identity-bearing values: the store compares them with Go
// equality on the fact value itself, which for the usual pointer facts is
// pointer identity. Each fact gets a stable insertion sequence number that
// doubles as the planning id tie-break for unique-pair ordering.
type factStore struct {
	recs    map[any]*factRec
	nextSeq uint64
}

type factRec struct {
	class *domain.Class
	seq   uint64
}

func newFactStore() *factStore {
	return &factStore{recs: make(map[any]*factRec)}
}

func (fs *factStore) has(fact any) bool {
	_, ok := fs.recs[fact]
	return ok
}

func (fs *factStore) add(fact any, class *domain.Class) (*factRec, error) {
	if _, dup := fs.recs[fact]; dup {
		return nil, fmt.Errorf("fact %v already inserted", fact)
	}
	fs.nextSeq++
	rec := &factRec{class: class, seq: fs.nextSeq}
	fs.recs[fact] = rec
	return rec, nil
}

// readd restores a removed fact with its original record, for rollback.
func (fs *factStore) readd(fact any, rec *factRec) {
	fs.recs[fact] = rec
}

func (fs *factStore) remove(fact any) (*factRec, error) {
	rec, ok := fs.recs[fact]
	if !ok {
		return nil, fmt.Errorf("fact %v is not in the working set", fact)
	}
	delete(fs.recs, fact)
	return rec, nil
}

func (fs *factStore) get(fact any) *factRec { return fs.recs[fact] }

func (fs *factStore) len() int { return len(fs.recs) }

// comparableFact reports whether the fact value can key the identity map.
func comparableFact(fact any) (ok bool) {
	if fact == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{fact: {}}
	return true
}
