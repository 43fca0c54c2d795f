// Package fair supplies the randomness behind every game outcome.
//
// A Stream derives outcomes from a committed server seed, a player-chosen client
// seed and a per-bet nonce, so any result can be replayed once the server seed is
// revealed. Secure draws straight from crypto/rand.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Source is the only randomness an engine may use.
type Source interface {
	// Intn returns a uniform int in [0, n). n <= 0 returns 0.
	Intn(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

type secure struct{}

// Secure returns a Source backed by crypto/rand.
func Secure() Source { return secure{} }

func (secure) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func (secure) Float64() float64 {
	const denom = 1 << 53
	v, err := rand.Int(rand.Reader, big.NewInt(denom))
	if err != nil {
		return 0
	}
	return float64(v.Int64()) / denom
}

// Stream is a deterministic Source keyed by a seed pair and nonce.
type Stream struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	cursor     uint64
	buf        []byte
}

func NewStream(serverSeed, clientSeed string, nonce uint64) *Stream {
	return &Stream{serverSeed: serverSeed, clientSeed: clientSeed, nonce: nonce}
}

// Uint32 returns the next 32-bit word. Blocks are
// HMAC-SHA256(serverSeed, "clientSeed:nonce:cursor").
func (s *Stream) Uint32() uint32 {
	if len(s.buf) < 4 {
		mac := hmac.New(sha256.New, []byte(s.serverSeed))
		fmt.Fprintf(mac, "%s:%d:%d", s.clientSeed, s.nonce, s.cursor)
		s.cursor++
		s.buf = mac.Sum(nil)
	}
	v := binary.BigEndian.Uint32(s.buf[:4])
	s.buf = s.buf[4:]
	return v
}

func (s *Stream) Float64() float64 {
	return float64(s.Uint32()) / (1 << 32)
}

// Intn uses rejection sampling so every value in [0, n) is equally likely.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	bound := uint64(n)
	limit := (uint64(1) << 32) - (uint64(1)<<32)%bound
	for {
		v := uint64(s.Uint32())
		if v < limit {
			return int(v % bound)
		}
	}
}

// Shuffle is a Fisher-Yates shuffle of n elements driven by src.
func Shuffle(src Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, src.Intn(i+1))
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewServerSeed returns 32 random bytes, hex encoded.
func NewServerSeed() (string, error) { return randomHex(32) }

// NewClientSeed returns a default client seed for players who never picked one.
func NewClientSeed() (string, error) { return randomHex(16) }

// Hash is the published commitment for a server seed.
func Hash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether seed matches a previously published hash.
func Verify(seed, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(seed)), []byte(hash)) == 1
}
