package fees

import (
	"encoding/binary"
	"errors"
	"math/big"
)

var errNilStore = errors.New("fee sink: state not configured")

// Storage abstracts the subset of state manager functionality required by the
// fee sink.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Entry attributes one fee charge to the position and operation that produced
// it. Collateral records the magnitude moved; Released distinguishes
// collateral leaving the position (redeem, cash) from collateral locked into
// it. Downstream revenue distribution (the collector/owner claim layer) reads
// the journal; the sink itself never splits revenue.
type Entry struct {
	PositionID uint64
	Asset      [20]byte
	Collateral *big.Int
	Released   bool
	Fee        *big.Int
	Operation  string
	Timestamp  uint64
}

// Sink is the append-only accrual journal behind the protocol fee address.
// The base-token transfer to the sink address is performed by the engine;
// recording here is bookkeeping only and never rejects a fee.
type Sink struct {
	store Storage
}

// NewSink constructs a fee sink journal backed by the supplied storage.
func NewSink(store Storage) *Sink {
	return &Sink{store: store}
}

var (
	feeTotalPrefix   = []byte("fees/total/")
	feeSeqPrefix     = []byte("fees/seq/")
	feeJournalPrefix = []byte("fees/journal/")
)

func totalKey(asset [20]byte) []byte {
	return append(append([]byte(nil), feeTotalPrefix...), asset[:]...)
}

func seqKey(asset [20]byte) []byte {
	return append(append([]byte(nil), feeSeqPrefix...), asset[:]...)
}

func journalKey(asset [20]byte, seq uint64) []byte {
	buf := make([]byte, 0, len(feeJournalPrefix)+28)
	buf = append(buf, feeJournalPrefix...)
	buf = append(buf, asset[:]...)
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], seq)
	return append(buf, enc[:]...)
}

// Record appends the entry to the asset's journal and bumps its running fee
// total.
func (s *Sink) Record(entry Entry) error {
	if s == nil || s.store == nil {
		return errNilStore
	}
	if entry.Fee == nil {
		entry.Fee = big.NewInt(0)
	}
	if entry.Collateral == nil {
		entry.Collateral = big.NewInt(0)
	}
	var seq uint64
	if _, err := s.store.KVGet(seqKey(entry.Asset), &seq); err != nil {
		return err
	}
	seq++
	if err := s.store.KVPut(seqKey(entry.Asset), seq); err != nil {
		return err
	}
	if err := s.store.KVPut(journalKey(entry.Asset, seq), &entry); err != nil {
		return err
	}
	total := new(big.Int)
	if _, err := s.store.KVGet(totalKey(entry.Asset), total); err != nil {
		return err
	}
	return s.store.KVPut(totalKey(entry.Asset), total.Add(total, entry.Fee))
}

// Totals returns the cumulative fees recorded against the asset.
func (s *Sink) Totals(asset [20]byte) (*big.Int, error) {
	if s == nil || s.store == nil {
		return nil, errNilStore
	}
	total := new(big.Int)
	if _, err := s.store.KVGet(totalKey(asset), total); err != nil {
		return nil, err
	}
	return total, nil
}

// Entries returns the asset's journal in recording order.
func (s *Sink) Entries(asset [20]byte) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, errNilStore
	}
	var seq uint64
	if _, err := s.store.KVGet(seqKey(asset), &seq); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, seq)
	for i := uint64(1); i <= seq; i++ {
		var entry Entry
		ok, err := s.store.KVGet(journalKey(asset, i), &entry)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}
