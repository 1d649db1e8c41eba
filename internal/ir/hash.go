package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainRoutine prefixes routine hashes. The version suffix allows a future
// change of algorithm without colliding with old hashes.
const DomainRoutine = "robotcore/routine/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data). The separator keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RoutineHash identifies a routine definition by content. Two files that
// define the same tree (in any key order or formatting) hash equal, so the
// event store can tell which revision of a routine a run used.
func RoutineHash(r Routine) (string, error) {
	canonical, err := MarshalCanonical(r.Value())
	if err != nil {
		return "", fmt.Errorf("RoutineHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRoutine, canonical), nil
}

// MustRoutineHash is like RoutineHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRoutineHash(r Routine) string {
	h, err := RoutineHash(r)
	if err != nil {
		panic(err)
	}
	return h
}
