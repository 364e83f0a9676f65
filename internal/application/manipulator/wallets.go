package manipulator

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletPool is a fixed set of bot addresses derived from a seed.
// It is built once at startup and never mutated.
type WalletPool struct {
	keys  []*ecdsa.PrivateKey
	addrs []common.Address
}

// NewWalletPool derives size secp256k1 keys as keccak256(seed || index).
// The same seed always yields the same pool.
func NewWalletPool(seed string, size int) (*WalletPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("manipulator.NewWalletPool: size must be positive, got %d", size)
	}
	p := &WalletPool{
		keys:  make([]*ecdsa.PrivateKey, 0, size),
		addrs: make([]common.Address, 0, size),
	}
	var idx [8]byte
	for i := 0; i < size; i++ {
		binary.BigEndian.PutUint64(idx[:], uint64(i))
		// reintenta con otro sufijo en el caso (improbable) de un escalar inválido
		for attempt := byte(0); ; attempt++ {
			raw := crypto.Keccak256([]byte(seed), idx[:], []byte{attempt})
			key, err := crypto.ToECDSA(raw)
			if err == nil {
				p.keys = append(p.keys, key)
				p.addrs = append(p.addrs, crypto.PubkeyToAddress(key.PublicKey))
				break
			}
			if attempt == 255 {
				return nil, fmt.Errorf("manipulator.NewWalletPool: derive key %d: %w", i, err)
			}
		}
	}
	return p, nil
}

// Size returns the number of wallets.
func (p *WalletPool) Size() int {
	return len(p.addrs)
}

// Address returns the i-th wallet, wrapping around the pool.
func (p *WalletPool) Address(i int) common.Address {
	if i < 0 {
		i = -i
	}
	return p.addrs[i%len(p.addrs)]
}

// Addresses returns a copy of every wallet address.
func (p *WalletPool) Addresses() []string {
	out := make([]string, len(p.addrs))
	for i, a := range p.addrs {
		out[i] = a.Hex()
	}
	return out
}

// Sign signs digest with the i-th wallet key.
func (p *WalletPool) Sign(i int, digest common.Hash) ([]byte, error) {
	if i < 0 {
		i = -i
	}
	return crypto.Sign(digest.Bytes(), p.keys[i%len(p.keys)])
}
