package types

import (
	"fmt"
	"regexp"
	"strings"
)

// ChainFamily identifies which address format a wallet address belongs to.
type ChainFamily string

const (
	ChainFamilyEthereum ChainFamily = "eth"
	ChainFamilySolana   ChainFamily = "sol"
)

var (
	ethAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	solAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// Address is a validated wallet address. Construct through ParseAddress or
// ParseAddressForNetwork; the zero value is invalid.
type Address struct {
	value  string
	family ChainFamily
}

// ParseAddress validates a wallet address against the supported chain
// families. Ethereum addresses are normalized to lowercase.
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, fmt.Errorf("wallet address is required")
	}
	if ethAddressRe.MatchString(raw) {
		return Address{value: strings.ToLower(raw), family: ChainFamilyEthereum}, nil
	}
	if solAddressRe.MatchString(raw) {
		return Address{value: raw, family: ChainFamilySolana}, nil
	}
	return Address{}, fmt.Errorf("invalid wallet address format: %s", raw)
}

// ParseAddressForNetwork validates an address and requires it to belong to
// the given network ("eth" or "sol").
func ParseAddressForNetwork(raw, network string) (Address, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return Address{}, err
	}
	switch network {
	case string(ChainFamilyEthereum):
		if addr.family != ChainFamilyEthereum {
			return Address{}, fmt.Errorf("not an Ethereum address: %s", raw)
		}
	case string(ChainFamilySolana):
		if addr.family != ChainFamilySolana {
			return Address{}, fmt.Errorf("not a Solana address: %s", raw)
		}
	default:
		return Address{}, fmt.Errorf("unknown network type: %s", network)
	}
	return addr, nil
}

// String returns the normalized address string.
func (a Address) String() string { return a.value }

// Family returns the chain family the address belongs to.
func (a Address) Family() ChainFamily { return a.family }

// IsZero reports whether the address is the invalid zero value.
func (a Address) IsZero() bool { return a.value == "" }
