package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/models"
)

const (
	explorerTxPrefix = "https://etherscan.io/tx/"
	swapDeadline     = 20 * time.Minute
	receiptPoll      = 3 * time.Second
)

// WETHAddress is the mainnet wrapped ether contract, used as the hop asset
// when no direct pair exists.
const WETHAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

// UniswapV2 quotes and executes ERC-20 to ERC-20 swaps through a Uniswap V2
// Router02 deployment.
type UniswapV2 struct {
	client      *Client
	routerAddr  common.Address
	wethAddr    common.Address
	slippagePct float64
	routerABI   abi.ABI
	erc20ABI    abi.ABI
	log         *logrus.Entry

	mu       sync.Mutex
	decimals map[common.Address]int32
}

func NewUniswapV2(client *Client, routerAddr string, slippagePct float64, log *logrus.Entry) (*UniswapV2, error) {
	rABI, err := abi.JSON(routerABIJSON())
	if err != nil {
		return nil, fmt.Errorf("parse router ABI: %w", err)
	}
	eABI, err := abi.JSON(erc20ABIJSON())
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &UniswapV2{
		client:      client,
		routerAddr:  common.HexToAddress(routerAddr),
		wethAddr:    common.HexToAddress(WETHAddress),
		slippagePct: slippagePct,
		routerABI:   rABI,
		erc20ABI:    eABI,
		log:         log,
		decimals:    make(map[common.Address]int32),
	}, nil
}

func ExplorerURL(txHash string) string {
	return explorerTxPrefix + txHash
}

// GetQuote asks the router for the output of swapping amount of inputAsset.
// A direct pair is tried first, then a hop through WETH. Price impact
// compares the execution rate to the rate for a 1/1000 probe.
func (u *UniswapV2) GetQuote(ctx context.Context, inputAsset, outputAsset string, amount float64) (models.Quote, error) {
	op := "uniswap quote"
	in, out := common.HexToAddress(inputAsset), common.HexToAddress(outputAsset)

	inDec, err := u.tokenDecimals(ctx, in)
	if err != nil {
		return models.Quote{}, err
	}
	outDec, err := u.tokenDecimals(ctx, out)
	if err != nil {
		return models.Quote{}, err
	}

	amountIn := toTokenWei(amount, inDec)
	if amountIn.Sign() <= 0 {
		return models.Quote{}, apperr.Newf(apperr.KindValidation, op, "amount %v rounds to zero", amount)
	}

	var lastErr error
	for _, path := range u.candidatePaths(in, out) {
		amountOut, err := u.amountsOut(ctx, amountIn, path)
		if err != nil {
			lastErr = err
			continue
		}

		probeIn := new(big.Int).Quo(amountIn, big.NewInt(1000))
		impact := 0.0
		if probeIn.Sign() > 0 {
			if probeOut, err := u.amountsOut(ctx, probeIn, path); err == nil {
				impact = priceImpactPct(amountIn, amountOut, probeIn, probeOut)
			}
		}

		routes := make([]string, len(path))
		for i, a := range path {
			routes[i] = a.Hex()
		}
		return models.Quote{
			InputAsset:     in.Hex(),
			OutputAsset:    out.Hex(),
			InputAmount:    amount,
			ExpectedOutput: fromTokenWei(amountOut, outDec),
			PriceImpactPct: impact,
			Routes:         routes,
		}, nil
	}

	if apperr.KindOf(lastErr) == apperr.KindUnavailable {
		return models.Quote{}, lastErr
	}
	return models.Quote{}, apperr.New(apperr.KindQuoteUnavailable, op, lastErr)
}

func (u *UniswapV2) candidatePaths(in, out common.Address) [][]common.Address {
	paths := [][]common.Address{{in, out}}
	if in != u.wethAddr && out != u.wethAddr {
		paths = append(paths, []common.Address{in, u.wethAddr, out})
	}
	return paths
}

func (u *UniswapV2) amountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := u.routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "pack getAmountsOut", err)
	}
	raw, err := u.client.CallContract(ctx, u.routerAddr, data)
	if err != nil {
		return nil, classifyRPC("getAmountsOut", err)
	}
	res, err := u.routerABI.Unpack("getAmountsOut", raw)
	if err != nil || len(res) == 0 {
		return nil, apperr.Newf(apperr.KindQuoteUnavailable, "getAmountsOut", "unpack: %v", err)
	}
	amounts, ok := res[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, apperr.Newf(apperr.KindQuoteUnavailable, "getAmountsOut", "unexpected result %T", res[0])
	}
	return amounts[len(amounts)-1], nil
}

// SubmitSwap executes the quoted route with swapExactTokensForTokens and
// reports the output actually received, measured as the wallet's balance
// change of the output token.
func (u *UniswapV2) SubmitSwap(ctx context.Context, q models.Quote) (models.SwapResult, error) {
	op := "uniswap swap"
	if !u.client.CanSign() {
		return models.SwapResult{}, apperr.New(apperr.KindExecution, op, ErrReadOnly)
	}
	if len(q.Routes) < 2 {
		return models.SwapResult{}, apperr.Newf(apperr.KindValidation, op, "quote has no route")
	}

	path := make([]common.Address, len(q.Routes))
	for i, r := range q.Routes {
		path[i] = common.HexToAddress(r)
	}
	in, out := path[0], path[len(path)-1]

	inDec, err := u.tokenDecimals(ctx, in)
	if err != nil {
		return models.SwapResult{}, err
	}
	outDec, err := u.tokenDecimals(ctx, out)
	if err != nil {
		return models.SwapResult{}, err
	}
	amountIn := toTokenWei(q.InputAmount, inDec)

	balIn, err := u.balanceOf(ctx, in)
	if err != nil {
		return models.SwapResult{}, err
	}
	if balIn.Cmp(amountIn) < 0 {
		return models.SwapResult{}, apperr.Newf(apperr.KindInsufficientFunds, op,
			"balance %v below required %v", fromTokenWei(balIn, inDec), q.InputAmount)
	}

	if err := u.ensureAllowance(ctx, in, amountIn); err != nil {
		return models.SwapResult{}, err
	}

	before, err := u.balanceOf(ctx, out)
	if err != nil {
		return models.SwapResult{}, err
	}

	minOut := toTokenWei(q.ExpectedOutput*(1-u.slippagePct/100), outDec)
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	data, err := u.routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, u.client.WalletAddress(), deadline)
	if err != nil {
		return models.SwapResult{}, apperr.New(apperr.KindValidation, op, err)
	}

	hash, err := u.client.SignAndSend(ctx, u.routerAddr, big.NewInt(0), data)
	if err != nil {
		return models.SwapResult{}, apperr.New(apperr.KindExecution, op, err)
	}
	u.log.WithField("tx", ExplorerURL(hash.Hex())).Info("swap submitted")

	receipt, err := u.client.WaitMined(ctx, hash, receiptPoll)
	if err != nil {
		return models.SwapResult{TxID: hash.Hex()}, apperr.New(apperr.KindExecution, op, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return models.SwapResult{TxID: hash.Hex()}, apperr.Newf(apperr.KindExecution, op, "tx %s reverted", hash.Hex())
	}

	after, err := u.balanceOf(ctx, out)
	if err != nil {
		return models.SwapResult{TxID: hash.Hex()}, apperr.New(apperr.KindExecution, op, err)
	}
	received := new(big.Int).Sub(after, before)

	return models.SwapResult{
		TxID:         hash.Hex(),
		ActualOutput: fromTokenWei(received, outDec),
	}, nil
}

func (u *UniswapV2) ensureAllowance(ctx context.Context, token common.Address, required *big.Int) error {
	data, err := u.erc20ABI.Pack("allowance", u.client.WalletAddress(), u.routerAddr)
	if err != nil {
		return err
	}
	raw, err := u.client.CallContract(ctx, token, data)
	if err != nil {
		return classifyRPC("allowance", err)
	}
	if new(big.Int).SetBytes(raw).Cmp(required) >= 0 {
		return nil
	}

	u.log.WithField("token", token.Hex()).Info("setting router allowance")
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	approveData, err := u.erc20ABI.Pack("approve", u.routerAddr, maxUint256)
	if err != nil {
		return err
	}
	hash, err := u.client.SignAndSend(ctx, token, big.NewInt(0), approveData)
	if err != nil {
		return apperr.New(apperr.KindExecution, "approve", err)
	}
	if _, err := u.client.WaitMined(ctx, hash, receiptPoll); err != nil {
		return apperr.New(apperr.KindExecution, "approve", err)
	}
	return nil
}

func (u *UniswapV2) balanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := u.erc20ABI.Pack("balanceOf", u.client.WalletAddress())
	if err != nil {
		return nil, err
	}
	raw, err := u.client.CallContract(ctx, token, data)
	if err != nil {
		return nil, classifyRPC("balanceOf", err)
	}
	return new(big.Int).SetBytes(raw), nil
}

func (u *UniswapV2) tokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	u.mu.Lock()
	d, ok := u.decimals[token]
	u.mu.Unlock()
	if ok {
		return d, nil
	}

	data, err := u.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	raw, err := u.client.CallContract(ctx, token, data)
	if err != nil {
		return 0, classifyRPC("decimals", err)
	}
	if len(raw) == 0 {
		return 0, apperr.Newf(apperr.KindQuoteUnavailable, "decimals", "%s is not an ERC-20 contract", token.Hex())
	}
	d = int32(new(big.Int).SetBytes(raw).Int64())

	u.mu.Lock()
	u.decimals[token] = d
	u.mu.Unlock()
	return d, nil
}

// classifyRPC separates execution reverts, which mean the call itself is
// invalid, from transport failures worth retrying.
func classifyRPC(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTimeout, op, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") || strings.Contains(msg, "execution") {
		return apperr.New(apperr.KindQuoteUnavailable, op, err)
	}
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return apperr.New(apperr.KindRateLimit, op, err)
	}
	return apperr.New(apperr.KindUnavailable, op, err)
}

// --- helpers ---

// priceImpactPct is how much worse the execution rate is than the probe
// rate, in percent. Never negative.
func priceImpactPct(amountIn, amountOut, probeIn, probeOut *big.Int) float64 {
	if amountIn.Sign() == 0 || probeIn.Sign() == 0 || probeOut.Sign() == 0 {
		return 0
	}
	exec := decimal.NewFromBigInt(amountOut, 0).Div(decimal.NewFromBigInt(amountIn, 0))
	spot := decimal.NewFromBigInt(probeOut, 0).Div(decimal.NewFromBigInt(probeIn, 0))
	impact := decimal.NewFromInt(1).Sub(exec.Div(spot)).Mul(decimal.NewFromInt(100))
	if impact.IsNegative() {
		return 0
	}
	return impact.InexactFloat64()
}

func toTokenWei(amount float64, decimals int32) *big.Int {
	return decimal.NewFromFloat(amount).Shift(decimals).BigInt()
}

func fromTokenWei(v *big.Int, decimals int32) float64 {
	return decimal.NewFromBigInt(v, -decimals).InexactFloat64()
}
