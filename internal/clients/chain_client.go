package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256).
var erc20TransferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// ChainClient submits settlement transactions to an EVM network and waits
// for their receipts. One client is bound to one network.
type ChainClient struct {
	client     *ethclient.Client
	chainID    *big.Int
	network    string
	privateKey *ecdsa.PrivateKey
	from       common.Address

	// tokenAddress is the settlement token contract. When zero the client
	// settles with a native value transfer instead.
	tokenAddress common.Address
	gasLimit     uint64
}

// NewChainClient dials the RPC endpoint and derives the sender address from
// the settlement private key.
func NewChainClient(rpcURL, network, privateKeyHex, tokenAddress string, gasLimit uint64) (*ChainClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint %s: %w", rpcURL, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement private key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	if gasLimit == 0 {
		gasLimit = 120000
	}

	c := &ChainClient{
		client:     client,
		chainID:    chainID,
		network:    network,
		privateKey: key,
		from:       from,
		gasLimit:   gasLimit,
	}
	if tokenAddress != "" {
		c.tokenAddress = common.HexToAddress(tokenAddress)
	}

	log.Printf("✅ [ChainClient] connected to %s (chainID=%s, sender=%s)", network, chainID.String(), from.Hex())
	return c, nil
}

// Network returns the network label this client settles on.
func (c *ChainClient) Network() string {
	return c.network
}

// SubmitSettlement sends the settlement transaction for the given recipient
// and amount (smallest token unit) and returns the transaction hash without
// waiting for confirmation.
func (c *ChainClient) SubmitSettlement(ctx context.Context, to string, amount *big.Int) (string, error) {
	recipient := common.HexToAddress(to)

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		log.Printf("⚠️ [ChainClient] failed to get suggested gas price, using default: %v", err)
		gasPrice = big.NewInt(5000000000) // 5 Gwei
	} else {
		// 120% of the suggested price to avoid sitting in the mempool
		gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(120)), big.NewInt(100))
	}

	var tx *types.Transaction
	if c.tokenAddress == (common.Address{}) {
		tx = types.NewTransaction(nonce, recipient, amount, c.gasLimit, gasPrice, nil)
	} else {
		data := buildERC20TransferData(recipient, amount)
		tx = types.NewTransaction(nonce, c.tokenAddress, big.NewInt(0), c.gasLimit, gasPrice, data)
	}

	signer := types.NewEIP155Signer(c.chainID)
	signedTx, err := types.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	log.Printf("📤 [ChainClient] settlement transaction sent: hash=%s to=%s amount=%s nonce=%d", txHash, recipient.Hex(), amount.String(), nonce)
	return txHash, nil
}

// WaitForReceipt polls for the transaction receipt until the context expires.
// A mined receipt with status 0 is returned alongside an error so callers can
// distinguish a revert from a timeout.
func (c *ChainClient) WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("transaction %s reverted in block %d", txHash, receipt.BlockNumber.Uint64())
			}
			log.Printf("✅ [ChainClient] transaction confirmed: hash=%s block=%d gasUsed=%d", txHash, receipt.BlockNumber.Uint64(), receipt.GasUsed)
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt of %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the underlying RPC connection.
func (c *ChainClient) Close() {
	c.client.Close()
}

func buildERC20TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20TransferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
