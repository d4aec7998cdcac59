package audit

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"lukechampine.com/blake3"
)

// Record is one link of the audit hash chain.
type Record struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Entity     string    `gorm:"size:128;index" json:"entity"`
	Kind       string    `gorm:"size:64;index" json:"kind"`
	Caller     string    `gorm:"size:96" json:"caller,omitempty"`
	State      string    `gorm:"type:text" json:"state"`
	At         uint64    `gorm:"index" json:"at"`
	PrevDigest string    `gorm:"size:64" json:"prevDigest"`
	Digest     string    `gorm:"size:64;uniqueIndex" json:"digest"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "audit_records" }

// ComputeDigest hashes prev || seq || entity || kind || state || at. Variable
// length fields carry a 4-byte length prefix so field boundaries cannot be
// shifted.
func ComputeDigest(prev string, seq uint64, entity, kind, state string, at uint64) string {
	h := blake3.New(32, nil)
	prevBytes, err := hex.DecodeString(prev)
	if err != nil {
		prevBytes = []byte(prev)
	}
	writeField(h, prevBytes)
	var word [8]byte
	binary.BigEndian.PutUint64(word[:], seq)
	h.Write(word[:])
	writeField(h, []byte(entity))
	writeField(h, []byte(kind))
	writeField(h, []byte(state))
	binary.BigEndian.PutUint64(word[:], at)
	h.Write(word[:])
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h *blake3.Hasher, data []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	h.Write(size[:])
	h.Write(data)
}

// expectedDigest recomputes the digest of r from its own fields.
func (r Record) expectedDigest() string {
	return ComputeDigest(r.PrevDigest, r.Seq, r.Entity, r.Kind, r.State, r.At)
}
