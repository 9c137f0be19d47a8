package clients

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestBuildERC20TransferData(t *testing.T) {
	to := common.HexToAddress("0x742d35cc6634c0532925a3b0f26750c66d78eb66")
	amount := big.NewInt(150_000_000)

	data := buildERC20TransferData(to, amount)
	assert.Len(t, data, 68)

	// transfer(address,uint256) selector
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))

	// recipient is left-padded into the first argument word
	assert.Equal(t, to.Bytes(), data[4+12:36])
	for _, b := range data[4 : 4+12] {
		assert.Equal(t, byte(0), b)
	}

	// amount sits right-aligned in the second word
	assert.Equal(t, amount, new(big.Int).SetBytes(data[36:68]))
}
