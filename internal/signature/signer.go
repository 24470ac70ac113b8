package signature

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

// AlgorithmSHA3_256 tags proofs produced by the current signer so audits can
// verify historical proofs after a future algorithm migration.
const AlgorithmSHA3_256 = "sha3-256"

// BallotPayload is the content a proof binds: every field that, if altered,
// must invalidate the signature.
type BallotPayload struct {
	MeetingID     id.MeetingID
	ShareholderID id.ShareholderID
	ResolutionID  id.ResolutionID
	Choice        id.VoteChoice
	Weight        int64
	CastAt        time.Time
}

// Proof is the non-repudiation record attached to exactly one vote. Digest is
// globally unique; it doubles as the replay-prevention key.
type Proof struct {
	Digest       string
	Algorithm    string
	AssertionRef string
}

// canonical serializes the payload deterministically. Length-prefixed fields
// so no two distinct payloads share an encoding.
func canonical(payload BallotPayload) []byte {
	var buf bytes.Buffer
	writeField := func(b []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(b)))
		buf.Write(length[:])
		buf.Write(b)
	}
	writeField([]byte(payload.MeetingID.String()))
	writeField([]byte(payload.ShareholderID.String()))
	writeField([]byte(payload.ResolutionID.String()))
	writeField([]byte(payload.Choice))

	var weight [8]byte
	binary.BigEndian.PutUint64(weight[:], uint64(payload.Weight))
	writeField(weight[:])

	var castAt [8]byte
	binary.BigEndian.PutUint64(castAt[:], uint64(payload.CastAt.UnixNano()))
	writeField(castAt[:])
	return buf.Bytes()
}

// Sign computes the content-binding digest over the ballot payload and the
// identity assertion's proof material.
func Sign(payload BallotPayload, assertion Assertion) Proof {
	sum := sha3.Sum256(append(canonical(payload), assertion.ProofMaterial...))
	return Proof{
		Digest:       hex.EncodeToString(sum[:]),
		Algorithm:    AlgorithmSHA3_256,
		AssertionRef: assertion.Reference,
	}
}

// Verify recomputes the digest for the expected payload and compares it to
// the proof. Used at write time and again at audit time.
func Verify(proof Proof, payload BallotPayload, assertion Assertion) error {
	if proof.Algorithm != AlgorithmSHA3_256 {
		return dErrors.Newf(dErrors.CodePayloadMismatch, "unsupported proof algorithm %q", proof.Algorithm)
	}
	expected := Sign(payload, assertion)
	if subtle.ConstantTimeCompare([]byte(expected.Digest), []byte(proof.Digest)) != 1 {
		return dErrors.New(dErrors.CodePayloadMismatch, "proof does not bind payload")
	}
	return nil
}
