package application

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"archie-core-session-layer/internal/domain"

	"github.com/oklog/ulid/v2"
)

// Provenance tags a synthesized session identifier with the layer that
// triggered generation, so operators can distinguish organic identifiers
// from synthesized ones in audits.
type Provenance string

const (
	// ProvenanceFallback marks identifiers synthesized because the OAuth
	// completion supplied no usable session identifier.
	ProvenanceFallback Provenance = "fallback"

	// ProvenanceRecovery marks identifiers synthesized by the recovery
	// coordinator when re-linking a durable shop-level token.
	ProvenanceRecovery Provenance = "recovery"

	// ProvenanceEmergency marks identifiers synthesized by the request
	// middleware when both cookies and session storage were lost.
	ProvenanceEmergency Provenance = "emergency"
)

const maxSessionIDLength = 128

// SessionIdentifierPolicy owns validation of caller-supplied session
// identifiers and generation of collision-resistant fallback identifiers.
// Generated identifiers have the shape <provenance>_<ulid>_<shopHash>, where
// the ULID carries a millisecond timestamp plus monotonic entropy and the
// shop hash is the first 8 hex characters of sha256(shop).
type SessionIdentifierPolicy struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSessionIdentifierPolicy creates a new identifier policy
func NewSessionIdentifierPolicy() *SessionIdentifierPolicy {
	seed := time.Now().UnixNano()
	return &SessionIdentifierPolicy{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Generate synthesizes a new session identifier for shop, tagged with the
// given provenance. Safe for concurrent use; two calls in the same
// millisecond never collide because the entropy source is monotonic.
func (p *SessionIdentifierPolicy) Generate(provenance Provenance, shop string) string {
	p.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy)
	p.mu.Unlock()

	return fmt.Sprintf("%s_%s_%s", provenance, id.String(), shopHash(shop))
}

// Validate checks a caller-supplied session identifier. It returns
// domain.ErrInvalidSessionID for empty, oversized, or malformed input;
// callers recover by generating a fallback identifier rather than failing.
func (p *SessionIdentifierPolicy) Validate(rawID string) error {
	if strings.TrimSpace(rawID) == "" {
		return fmt.Errorf("%w: empty identifier", domain.ErrInvalidSessionID)
	}
	if len(rawID) > maxSessionIDLength {
		return fmt.Errorf("%w: identifier exceeds %d characters", domain.ErrInvalidSessionID, maxSessionIDLength)
	}
	for _, c := range rawID {
		if !isSessionIDChar(c) {
			return fmt.Errorf("%w: illegal character %q", domain.ErrInvalidSessionID, c)
		}
	}
	return nil
}

// IsSynthesized reports whether an identifier was generated by this policy
// rather than supplied by a client.
func (p *SessionIdentifierPolicy) IsSynthesized(id string) bool {
	for _, prov := range []Provenance{ProvenanceFallback, ProvenanceRecovery, ProvenanceEmergency} {
		if strings.HasPrefix(id, string(prov)+"_") {
			return true
		}
	}
	return false
}

func isSessionIDChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '.':
		return true
	}
	return false
}

func shopHash(shop string) string {
	sum := sha256.Sum256([]byte(shop))
	return hex.EncodeToString(sum[:])[:8]
}
