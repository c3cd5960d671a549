package direct

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"

	"smallarea/internal/domain"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a BLAKE2b-256 digest of an estimation's inputs under
// the default estimator policy. Observations are hashed in input order; the
// frame is hashed in domain id order and only when the scenario reads it.
func Fingerprint(observations []domain.Observation, frame domain.DomainFrame, scenario domain.Scenario) (string, error) {
	return fingerprint(observations, frame, scenario, false)
}

// Fingerprint digests the inputs together with the estimator's weight
// policy, so runs computed under different policies never share a digest
func (e *Estimator) Fingerprint(observations []domain.Observation, frame domain.DomainFrame, scenario domain.Scenario) (string, error) {
	return fingerprint(observations, frame, scenario, e.rejectZeroWeights)
}

func fingerprint(observations []domain.Observation, frame domain.DomainFrame, scenario domain.Scenario, rejectZeroWeights bool) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}

	writeString(h, "smallarea/direct/v1")
	writeString(h, string(scenario))
	// the policy only matters when weights are read
	if scenario.Config().UseWeights && rejectZeroWeights {
		writeString(h, "reject_zero_weights")
	}

	writeUint(h, uint64(len(observations)))
	for _, o := range observations {
		writeString(h, o.DomainID)
		writeUint(h, math.Float64bits(o.Value))
		if o.Weight != nil {
			writeUint(h, 1)
			writeUint(h, math.Float64bits(*o.Weight))
		} else {
			writeUint(h, 0)
		}
	}

	if scenario.RequiresFrame() {
		ids := frame.DomainIDs()
		writeUint(h, uint64(len(ids)))
		for _, id := range ids {
			writeString(h, id)
			writeUint(h, uint64(frame[id]))
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeUint(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// writeString is length-prefixed so that adjacent strings cannot collide
func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}
