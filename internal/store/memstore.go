package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/fxamacker/cbor/v2"

	"github.com/muridata/ceremony-coordinator/internal/ceremony"
)

// numShards partitions the document space so an atomic batch only locks the
// shards its writes actually touch, instead of the whole store.
const numShards = 16

type shard struct {
	mu            sync.RWMutex
	ceremonies    map[string]*ceremony.Ceremony
	circuits      map[string]*ceremony.Circuit
	participants  map[string]*ceremony.Participant
	contributions map[string]*ceremony.Contribution
}

func newShard() *shard {
	return &shard{
		ceremonies:    make(map[string]*ceremony.Ceremony),
		circuits:      make(map[string]*ceremony.Circuit),
		participants:  make(map[string]*ceremony.Participant),
		contributions: make(map[string]*ceremony.Contribution),
	}
}

// memStore is an in-memory Store implementation backed by a CBOR
// write-ahead log for crash-safety of committed batches.
type memStore struct {
	shards [numShards]*shard

	contribOrderMu sync.Mutex
	contribOrder   map[string][]string // "ceremonyID/circuitID" -> contribution ids, creation order

	wal io.Writer // optional; nil disables durability (e.g. in unit tests)

	handlersMu       sync.Mutex
	participantHooks []ParticipantUpdateHandler
	contributionHooks []ContributionCreateHandler
}

// NewMemStore constructs an in-memory Store. If wal is non-nil, every
// committed batch is CBOR-encoded and appended to it (length-prefixed)
// before being applied. The log is only appended to: nothing in the module
// reads it back, and a new MemStore always starts empty.
func NewMemStore(wal io.Writer) Store {
	s := &memStore{contribOrder: make(map[string][]string), wal: wal}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

func ceremonyPath(id string) string { return "ceremonies/" + id }
func circuitPath(ceremonyID, circuitID string) string {
	return "ceremonies/" + ceremonyID + "/circuits/" + circuitID
}
func participantPath(ceremonyID, userID string) string {
	return "ceremonies/" + ceremonyID + "/participants/" + userID
}
func contributionPath(ceremonyID, circuitID, contribID string) string {
	return "ceremonies/" + ceremonyID + "/circuits/" + circuitID + "/contributions/" + contribID
}

func (s *memStore) shardFor(path string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return s.shards[h.Sum32()%numShards]
}

func (s *memStore) shardIndex(path string) uint {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return uint(h.Sum32() % numShards)
}

func (s *memStore) GetCeremony(id string) (*ceremony.Ceremony, error) {
	sh := s.shardFor(ceremonyPath(id))
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.ceremonies[id]
	if !ok {
		return nil, ceremony.NotFoundErrorf("store.GetCeremony", "ceremony %q not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetCircuit(ceremonyID, circuitID string) (*ceremony.Circuit, error) {
	path := circuitPath(ceremonyID, circuitID)
	sh := s.shardFor(path)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.circuits[path]
	if !ok {
		return nil, ceremony.NotFoundErrorf("store.GetCircuit", "circuit %q/%q not found", ceremonyID, circuitID)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListCircuits(ceremonyID string) ([]*ceremony.Circuit, error) {
	var out []*ceremony.Circuit
	prefix := "ceremonies/" + ceremonyID + "/circuits/"
	for i := range s.shards {
		sh := s.shards[i]
		sh.mu.RLock()
		for path, c := range sh.circuits {
			if hasPrefix(path, prefix) {
				cp := *c
				out = append(out, &cp)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequencePosition < out[j].SequencePosition })
	return out, nil
}

func (s *memStore) GetParticipant(ceremonyID, userID string) (*ceremony.Participant, error) {
	path := participantPath(ceremonyID, userID)
	sh := s.shardFor(path)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	p, ok := sh.participants[path]
	if !ok {
		return nil, ceremony.NotFoundErrorf("store.GetParticipant", "participant %q/%q not found", ceremonyID, userID)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetContribution(ceremonyID, circuitID, contribID string) (*ceremony.Contribution, error) {
	path := contributionPath(ceremonyID, circuitID, contribID)
	sh := s.shardFor(path)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.contributions[path]
	if !ok {
		return nil, ceremony.NotFoundErrorf("store.GetContribution", "contribution %q/%q/%q not found", ceremonyID, circuitID, contribID)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListContributions(ceremonyID, circuitID string) ([]*ceremony.Contribution, error) {
	key := ceremonyID + "/" + circuitID
	s.contribOrderMu.Lock()
	ids := append([]string(nil), s.contribOrder[key]...)
	s.contribOrderMu.Unlock()

	out := make([]*ceremony.Contribution, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetContribution(ceremonyID, circuitID, id)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) FinalContribution(ceremonyID, circuitID string) (*ceremony.Contribution, error) {
	cs, err := s.ListContributions(ceremonyID, circuitID)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		if c.IsFinal() {
			return c, nil
		}
	}
	return nil, ceremony.NotFoundErrorf("store.FinalContribution", "no final contribution for %q/%q", ceremonyID, circuitID)
}

func (s *memStore) NewBatch() Batch { return Batch{s: s} }

func (s *memStore) WatchParticipantUpdates(h ParticipantUpdateHandler) Unsubscribe {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	idx := len(s.participantHooks)
	s.participantHooks = append(s.participantHooks, h)
	return func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		s.participantHooks[idx] = nil
	}
}

func (s *memStore) WatchContributionCreates(h ContributionCreateHandler) Unsubscribe {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	idx := len(s.contributionHooks)
	s.contributionHooks = append(s.contributionHooks, h)
	return func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		s.contributionHooks[idx] = nil
	}
}

// participantDelta pairs a participant document's pre- and post-commit
// values so trigger handlers see the same before/after shape the platform
// contract promises (spec §6).
type participantDelta struct{ before, after ceremony.Participant }

// walEntry is the CBOR-encoded unit appended to the write-ahead log.
type walEntry struct {
	Kind string
	Path string
	Doc  []byte // JSON-free: CBOR handles the Go struct directly via cbor.Marshal below
}

func (s *memStore) commit(ops []op) error {
	if len(ops) == 0 {
		return nil
	}

	// Determine every path touched, in a stable order, and which shards
	// those paths land in (bitset tracks the distinct dirty shard set so
	// we lock exactly the shards this batch needs, in ascending order, to
	// avoid deadlocking against a concurrent batch touching an overlapping
	// shard set).
	dirty := bitset.New(numShards)
	paths := make([]string, len(ops))
	for i, o := range ops {
		p, err := pathOf(o)
		if err != nil {
			return err
		}
		paths[i] = p
		dirty.Set(s.shardIndex(p))
	}

	var toLock []uint
	for i := uint(0); i < numShards; i++ {
		if dirty.Test(i) {
			toLock = append(toLock, i)
		}
	}
	for _, idx := range toLock {
		s.shards[idx].mu.Lock()
		defer s.shards[idx].mu.Unlock()
	}

	// Validate CreateContribution doesn't collide, before mutating anything.
	for i, o := range ops {
		if o.kind == opCreateContribution {
			sh := s.shards[s.shardIndex(paths[i])]
			if _, exists := sh.contributions[paths[i]]; exists {
				return ceremony.PreconditionErrorf("store.Commit", "contribution %q already exists", paths[i])
			}
		}
	}

	var participantDeltas []participantDelta
	var created []ceremony.Contribution

	if err := s.writeWAL(ops); err != nil {
		return ceremony.TransientStoreErrorf("store.Commit", "write-ahead log: %w", err)
	}

	for i, o := range ops {
		sh := s.shards[s.shardIndex(paths[i])]
		switch o.kind {
		case opPutCeremony:
			cp := *o.ceremony
			sh.ceremonies[paths[i]] = &cp
		case opPutCircuit:
			cp := *o.circuit
			sh.circuits[paths[i]] = &cp
		case opPutParticipant:
			var before ceremony.Participant
			if existing, ok := sh.participants[paths[i]]; ok {
				before = *existing
			}
			after := *o.participant
			cp := after
			sh.participants[paths[i]] = &cp
			if !reflect.DeepEqual(before, after) {
				participantDeltas = append(participantDeltas, participantDelta{before: before, after: after})
			}
		case opCreateContribution:
			cp := *o.contribution
			sh.contributions[paths[i]] = &cp
			created = append(created, cp)
			s.recordContributionOrder(cp.CeremonyID, cp.CircuitID, cp.ID)
		case opUpdateContribution:
			cp := *o.contribution
			sh.contributions[paths[i]] = &cp
		}
	}

	s.fireTriggers(participantDeltas, created)
	return nil
}

func (s *memStore) recordContributionOrder(ceremonyID, circuitID, id string) {
	key := ceremonyID + "/" + circuitID
	s.contribOrderMu.Lock()
	s.contribOrder[key] = append(s.contribOrder[key], id)
	s.contribOrderMu.Unlock()
}

func (s *memStore) fireTriggers(deltas []participantDelta, created []ceremony.Contribution) {
	s.handlersMu.Lock()
	pHooks := append([]ParticipantUpdateHandler(nil), s.participantHooks...)
	cHooks := append([]ContributionCreateHandler(nil), s.contributionHooks...)
	s.handlersMu.Unlock()

	for _, d := range deltas {
		for _, h := range pHooks {
			if h == nil {
				continue
			}
			_ = h(d.before, d.after)
		}
	}
	for _, c := range created {
		for _, h := range cHooks {
			if h == nil {
				continue
			}
			_ = h(c)
		}
	}
}

func (s *memStore) writeWAL(ops []op) error {
	if s.wal == nil {
		return nil
	}
	entries := make([]walEntry, 0, len(ops))
	for _, o := range ops {
		kind, doc, path, err := encodeOp(o)
		if err != nil {
			return err
		}
		entries = append(entries, walEntry{Kind: kind, Path: path, Doc: doc})
	}
	buf, err := cbor.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cbor marshal wal batch: %w", err)
	}
	var lenPrefix bytes.Buffer
	if err := binary.Write(&lenPrefix, binary.BigEndian, uint32(len(buf))); err != nil {
		return err
	}
	if _, err := s.wal.Write(lenPrefix.Bytes()); err != nil {
		return err
	}
	_, err = s.wal.Write(buf)
	return err
}

func encodeOp(o op) (kind string, doc []byte, path string, err error) {
	switch o.kind {
	case opPutCeremony:
		doc, err = cbor.Marshal(o.ceremony)
		return "put_ceremony", doc, ceremonyPath(o.ceremony.ID), err
	case opPutCircuit:
		doc, err = cbor.Marshal(o.circuit)
		return "put_circuit", doc, circuitPath(o.circuit.CeremonyID, o.circuit.ID), err
	case opPutParticipant:
		doc, err = cbor.Marshal(o.participant)
		return "put_participant", doc, participantPath(o.participant.CeremonyID, o.participant.UserID), err
	case opCreateContribution:
		doc, err = cbor.Marshal(o.contribution)
		return "create_contribution", doc, contributionPath(o.contribution.CeremonyID, o.contribution.CircuitID, o.contribution.ID), err
	case opUpdateContribution:
		doc, err = cbor.Marshal(o.contribution)
		return "update_contribution", doc, contributionPath(o.contribution.CeremonyID, o.contribution.CircuitID, o.contribution.ID), err
	default:
		return "", nil, "", fmt.Errorf("store: unknown op kind %d", o.kind)
	}
}

func pathOf(o op) (string, error) {
	switch o.kind {
	case opPutCeremony:
		if o.ceremony == nil {
			return "", ceremony.InputErrorf("store.Commit", "nil ceremony in PutCeremony")
		}
		return ceremonyPath(o.ceremony.ID), nil
	case opPutCircuit:
		if o.circuit == nil {
			return "", ceremony.InputErrorf("store.Commit", "nil circuit in PutCircuit")
		}
		return circuitPath(o.circuit.CeremonyID, o.circuit.ID), nil
	case opPutParticipant:
		if o.participant == nil {
			return "", ceremony.InputErrorf("store.Commit", "nil participant in PutParticipant")
		}
		return participantPath(o.participant.CeremonyID, o.participant.UserID), nil
	case opCreateContribution, opUpdateContribution:
		if o.contribution == nil {
			return "", ceremony.InputErrorf("store.Commit", "nil contribution in batch")
		}
		return contributionPath(o.contribution.CeremonyID, o.contribution.CircuitID, o.contribution.ID), nil
	default:
		return "", fmt.Errorf("store: unknown op kind %d", o.kind)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
