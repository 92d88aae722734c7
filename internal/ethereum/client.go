package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ErrReadOnly = errors.New("ethereum client has no signing key")

// Client is a thin JSON-RPC wrapper. Without a private key it can read
// chain state but not send transactions.
type Client struct {
	rpc        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	chainID    *big.Int
	gasLimit   uint64
	gasMul     float64
}

func NewClient(rpcURL, privateKeyHex string, chainID int64, gasLimit int, gasMultiplier float64) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}

	c := &Client{
		rpc:      rpc,
		chainID:  big.NewInt(chainID),
		gasLimit: uint64(gasLimit),
		gasMul:   gasMultiplier,
	}

	if privateKeyHex != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.privateKey = pk
		c.wallet = crypto.PubkeyToAddress(pk.PublicKey)
	}

	return c, nil
}

func (c *Client) WalletAddress() common.Address { return c.wallet }
func (c *Client) CanSign() bool                 { return c.privateKey != nil }
func (c *Client) Close()                        { c.rpc.Close() }

func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	adjusted := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(c.gasMul))
	result, _ := adjusted.Int(nil)
	return result, nil
}

// SignAndSend signs a legacy transaction and broadcasts it.
func (c *Client) SignAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if !c.CanSign() {
		return common.Hash{}, ErrReadOnly
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until it appears or ctx ends.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash, every time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, goethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CallContract performs a read-only eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.rpc.CallContract(ctx, goethereum.CallMsg{To: &to, Data: data}, nil)
}
