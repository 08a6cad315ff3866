package config

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

// Allocation is a parsed genesis entry.
type Allocation struct {
	Address  solana.PublicKey
	Lamports uint64
}

// GenesisAllocations parses the configured genesis accounts. Duplicate
// addresses are merged.
func (c *Config) GenesisAllocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(c.Genesis))
	index := make(map[solana.PublicKey]int, len(c.Genesis))
	for i, entry := range c.Genesis {
		addr, err := solana.PublicKeyFromBase58(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: invalid address %q: %w", i, entry.Address, err)
		}
		if entry.Lamports == 0 {
			return nil, fmt.Errorf("genesis[%d]: lamports must be positive", i)
		}
		if j, ok := index[addr]; ok {
			if out[j].Lamports > math.MaxUint64-entry.Lamports {
				return nil, fmt.Errorf("genesis[%d]: allocation for %s overflows", i, addr)
			}
			out[j].Lamports += entry.Lamports
			continue
		}
		index[addr] = len(out)
		out = append(out, Allocation{Address: addr, Lamports: entry.Lamports})
	}
	return out, nil
}
