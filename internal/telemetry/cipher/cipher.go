// Package cipher reverses the simulator's Salsa20 packet encryption.
//
// Every telemetry datagram is 296 bytes. Bytes 0x40..0x44 carry a
// little-endian seed that is sent in the clear; the rest of the packet is
// XORed with a Salsa20 keystream whose nonce is derived from that seed.
// Encryption and decryption are the same operation, and both leave the seed
// window untouched, so Decrypt(Encrypt(b)) reproduces b exactly.
package cipher

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/salsa20"
)

const (
	PACKET_SIZE = 296  // Plaintext and ciphertext length in bytes
	SEED_OFFSET = 0x40 // Offset of the unencrypted nonce seed
	SEED_SIZE   = 4

	// NONCE_MAGIC is XORed with the seed to build the first nonce word.
	NONCE_MAGIC uint32 = 0xDEADBEAF
)

// keyPhrase is truncated to the 32 bytes Salsa20 requires.
const keyPhrase = "Simulator Interface Packet GT7 ver 0.0"

var key = func() [32]byte {
	var k [32]byte
	copy(k[:], keyPhrase[:32])
	return k
}()

// ErrMalformedPacket is the sentinel matched by every MalformedPacketError.
var ErrMalformedPacket = errors.New("malformed packet")

// MalformedPacketError reports a buffer that cannot hold a full packet.
type MalformedPacketError struct {
	Length int
	Want   int
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet: got %d bytes, want %d", e.Length, e.Want)
}

// Is lets errors.Is(err, ErrMalformedPacket) match.
func (e *MalformedPacketError) Is(target error) bool {
	return target == ErrMalformedPacket
}

// CheckLength returns a MalformedPacketError when buf is shorter than a packet.
func CheckLength(buf []byte) error {
	if len(buf) < PACKET_SIZE {
		return &MalformedPacketError{Length: len(buf), Want: PACKET_SIZE}
	}
	return nil
}

// Seed returns the nonce seed embedded in a raw or decrypted packet.
func Seed(buf []byte) (uint32, error) {
	if err := CheckLength(buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[SEED_OFFSET : SEED_OFFSET+SEED_SIZE]), nil
}

// Nonce builds the 8-byte Salsa20 nonce for a seed: seed^magic then seed,
// both little-endian.
func Nonce(seed uint32) [8]byte {
	var n [8]byte
	binary.LittleEndian.PutUint32(n[0:4], seed^NONCE_MAGIC)
	binary.LittleEndian.PutUint32(n[4:8], seed)
	return n
}

// Decrypt returns the plaintext of a received packet. Trailing bytes beyond
// PACKET_SIZE are ignored. The input is not modified.
func Decrypt(raw []byte) ([]byte, error) {
	return xorPacket(raw)
}

// Encrypt is the inverse of Decrypt, using the seed already present at
// SEED_OFFSET in plain.
func Encrypt(plain []byte) ([]byte, error) {
	return xorPacket(plain)
}

// EncryptWithSeed stores seed in the packet's seed window and encrypts it.
func EncryptWithSeed(plain []byte, seed uint32) ([]byte, error) {
	if err := CheckLength(plain); err != nil {
		return nil, err
	}
	buf := make([]byte, PACKET_SIZE)
	copy(buf, plain)
	binary.LittleEndian.PutUint32(buf[SEED_OFFSET:SEED_OFFSET+SEED_SIZE], seed)
	return xorPacket(buf)
}

func xorPacket(in []byte) ([]byte, error) {
	seed, err := Seed(in)
	if err != nil {
		return nil, err
	}
	nonce := Nonce(seed)

	out := make([]byte, PACKET_SIZE)
	salsa20.XORKeyStream(out, in[:PACKET_SIZE], nonce[:], &key)

	// The seed travels unencrypted.
	copy(out[SEED_OFFSET:SEED_OFFSET+SEED_SIZE], in[SEED_OFFSET:SEED_OFFSET+SEED_SIZE])
	return out, nil
}
