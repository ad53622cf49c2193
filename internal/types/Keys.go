/*

Identity types shared across the protocol: users are keyed by their EVM
address, staking happens against Bittensor validator hotkeys, and pairs are
keyed by subnet id.

*/

package types

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// PairID identifies a tradable pair by its subnet id (netuid).
type PairID uint16

// Hotkey is a 32-byte Bittensor hotkey public key.
type Hotkey [32]byte

// IsZero reports whether the hotkey is unset.
func (h Hotkey) IsZero() bool {
	return h == Hotkey{}
}

// String returns the hex encoding of the hotkey, 0x-prefixed.
func (h Hotkey) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// HotkeyFromBytes copies b into a Hotkey. Inputs shorter than 32 bytes are
// left-padded with zeroes, longer inputs keep their trailing 32 bytes.
func HotkeyFromBytes(b []byte) Hotkey {
	var h Hotkey
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// ContentHash is a 32-byte reference to off-chain liquidation evidence.
type ContentHash = common.Hash
