package crowdsale

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"salechain/native/token"
)

// AuthoritySeed tags the seeds of a sale's signing authority.
const AuthoritySeed = "authority"

// SaleAddress returns the address of the record for sale id and its bump.
func SaleAddress(id solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{id[:]}, ProgramID)
}

// AuthorityAddress returns the program-derived signer that controls the
// reserve of sale id.
func AuthorityAddress(id solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{id[:], []byte(AuthoritySeed)}, ProgramID)
}

// ReserveAddress returns the reserve token account of sale id for mint: the
// associated token account of the sale authority.
func ReserveAddress(id, mint solana.PublicKey) (solana.PublicKey, error) {
	authority, _, err := AuthorityAddress(id)
	if err != nil {
		return solana.PublicKey{}, err
	}
	reserve, _, err := token.AssociatedAddress(authority, mint)
	return reserve, err
}

// authority is the signing capability of one sale. Only this package can
// build one; the runtime re-derives the address from its seeds under the
// calling program before granting signer status.
type authority struct {
	address solana.PublicKey
	seeds   [][]byte
}

func deriveAuthority(id solana.PublicKey) (authority, error) {
	addr, bump, err := AuthorityAddress(id)
	if err != nil {
		return authority{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return authority{
		address: addr,
		seeds:   [][]byte{id[:], []byte(AuthoritySeed), {bump}},
	}, nil
}

func (a authority) Address() solana.PublicKey { return a.address }

func (a authority) signerSeeds() [][]byte { return a.seeds }

type saleSigner struct {
	address solana.PublicKey
	seeds   [][]byte
}

func deriveSaleSigner(id solana.PublicKey) (saleSigner, error) {
	addr, bump, err := SaleAddress(id)
	if err != nil {
		return saleSigner{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return saleSigner{address: addr, seeds: [][]byte{id[:], {bump}}}, nil
}
