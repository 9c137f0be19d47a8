package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	t.Run("Ethereum Address", func(t *testing.T) {
		addr, err := ParseAddress("0x742d35Cc6634C0532925a3b0F26750C66d78EB66")
		assert.NoError(t, err)
		assert.Equal(t, ChainFamilyEthereum, addr.Family())
		assert.Equal(t, "0x742d35cc6634c0532925a3b0f26750c66d78eb66", addr.String())
	})

	t.Run("Solana Address", func(t *testing.T) {
		addr, err := ParseAddress("4Nd1mYvK7R1fQzX8jW2pE5sT6uB9cD3gH1kL8mN2oP5q")
		assert.NoError(t, err)
		assert.Equal(t, ChainFamilySolana, addr.Family())
	})

	t.Run("Whitespace Trimmed", func(t *testing.T) {
		addr, err := ParseAddress("  0x742d35cc6634c0532925a3b0f26750c66d78eb66  ")
		assert.NoError(t, err)
		assert.False(t, addr.IsZero())
	})

	t.Run("Invalid Addresses", func(t *testing.T) {
		cases := []string{
			"",
			"0x123",                                       // too short
			"0x742d35cc6634c0532925a3b0f26750c66d78eb6z",  // bad hex
			"0x742d35cc6634c0532925a3b0f26750c66d78eb661", // too long
			"O0Il",      // base58-forbidden characters
			"not-money", // junk
		}
		for _, raw := range cases {
			_, err := ParseAddress(raw)
			assert.Error(t, err, "expected error for %q", raw)
		}
	})
}

func TestParseAddressForNetwork(t *testing.T) {
	eth := "0x742d35cc6634c0532925a3b0f26750c66d78eb66"
	sol := "4Nd1mYvK7R1fQzX8jW2pE5sT6uB9cD3gH1kL8mN2oP5q"

	_, err := ParseAddressForNetwork(eth, "eth")
	assert.NoError(t, err)

	_, err = ParseAddressForNetwork(sol, "eth")
	assert.Error(t, err)

	_, err = ParseAddressForNetwork(sol, "sol")
	assert.NoError(t, err)

	_, err = ParseAddressForNetwork(eth, "sol")
	assert.Error(t, err)

	_, err = ParseAddressForNetwork(eth, "tron")
	assert.Error(t, err)
}
