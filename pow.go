// =============================================================================
// POW.GO - Proof-of-Work Engines
// =============================================================================

package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// powCancelStride bounds how many nonces are tried between cancellation checks.
const powCancelStride = 4096

// PowEngine searches for the smallest nonce whose hash satisfies the
// difficulty predicate. The search starts at nonce 0 and increments by 1;
// any two correct engines return identical results for the same input.
type PowEngine interface {
	Name() string
	Mine(ctx context.Context, base []byte, difficulty int) (nonce int64, hash string, err error)
}

// EngineFromName maps a config value to an engine, defaulting to reference.
func EngineFromName(name string) PowEngine {
	if name == "turbo" {
		return &TurboEngine{}
	}
	return &ReferenceEngine{}
}

// =============================================================================
// REFERENCE ENGINE
// =============================================================================

// ReferenceEngine is the straightforward implementation of the mining
// contract. It exists to stay readable and to cross-check TurboEngine.
type ReferenceEngine struct{}

func (e *ReferenceEngine) Name() string { return "reference" }

func (e *ReferenceEngine) Mine(ctx context.Context, base []byte, difficulty int) (int64, string, error) {
	for nonce := int64(0); ; nonce++ {
		if nonce%powCancelStride == 0 {
			select {
			case <-ctx.Done():
				return 0, "", ctx.Err()
			default:
			}
		}
		hash := PowHash(base, nonce)
		if hashMeetsDifficulty(hash, difficulty) {
			return nonce, hash, nil
		}
	}
}

// =============================================================================
// TURBO ENGINE
// =============================================================================

// TurboEngine implements the same contract with a preallocated hash input
// buffer and a raw-digest difficulty test that skips hex encoding on misses.
type TurboEngine struct{}

func (e *TurboEngine) Name() string { return "turbo" }

func (e *TurboEngine) Mine(ctx context.Context, base []byte, difficulty int) (int64, string, error) {
	buf := make([]byte, len(base), len(base)+20)
	copy(buf, base)

	for nonce := int64(0); ; nonce++ {
		if nonce%powCancelStride == 0 {
			select {
			case <-ctx.Done():
				return 0, "", ctx.Err()
			default:
			}
		}
		buf = strconv.AppendInt(buf[:len(base)], nonce, 10)
		sum := sha256.Sum256(buf)
		if digestMeetsDifficulty(sum[:], difficulty) {
			return nonce, hex.EncodeToString(sum[:]), nil
		}
	}
}

// digestMeetsDifficulty tests the leading-hex-zero predicate directly on the
// raw digest. One digest byte covers two hex characters.
func digestMeetsDifficulty(sum []byte, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(sum)*2 {
		return false
	}
	full := difficulty / 2
	for i := 0; i < full; i++ {
		if sum[i] != 0 {
			return false
		}
	}
	if difficulty%2 == 1 && sum[full]&0xf0 != 0 {
		return false
	}
	return true
}
