package onchain

// gateway.go: On-chain payout gateway for the prediction-round contract.
//
// The betting contract holds the treasury and exposes:
//   resolveBet(betId, result)  : pays the bettor according to result
//   manualPayout(to, amount)   : admin transfer outside round resolution
//   getTreasuryStats()         : balance, daily target, daily profit
//   recordProfit(delta)        : adjusts the aggregate daily profit counter
//
// Every call is signed by one backend key. Callers serialize access through
// payout.Queue; this type does not lock around nonce allocation.

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const (
	// Gas limits (conservative upper bounds)
	resolveGasLimit = uint64(150_000)
	payoutGasLimit  = uint64(100_000)
	statsGasLimit   = uint64(80_000)

	gasPriceUpdateInterval = 5 * time.Minute
	receiptTimeout         = 60 * time.Second
	receiptPollInterval    = 3 * time.Second
)

// result codes understood by resolveBet
const (
	contractResultWin  = uint8(1)
	contractResultLose = uint8(2)
	contractResultDraw = uint8(3)
)

var roundsABI abi.ABI

func init() {
	var err error
	roundsABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "resolveBet",
			"type": "function",
			"inputs": [
				{"name": "betId", "type": "uint256"},
				{"name": "result", "type": "uint8"}
			],
			"outputs": []
		},
		{
			"name": "manualPayout",
			"type": "function",
			"inputs": [
				{"name": "recipient", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "recordProfit",
			"type": "function",
			"inputs": [
				{"name": "delta", "type": "int256"}
			],
			"outputs": []
		},
		{
			"name": "getTreasuryStats",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "balance", "type": "uint256"},
				{"name": "dailyProfitTarget", "type": "uint256"},
				{"name": "currentDailyProfit", "type": "int256"}
			]
		}
	]`))
	if err != nil {
		panic("rounds abi parse: " + err.Error())
	}
}

// Config configures the gateway.
type Config struct {
	RPCURL        string
	PrivateKeyHex string // with or without 0x prefix
	Contract      string // betting contract address
	ChainID       int64
	TokenDecimals int32 // decimals of the stake token (6 for USDC)
}

// Gateway implements ports.PayoutGateway against the betting contract.
type Gateway struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	address  common.Address
	contract common.Address
	chainID  *big.Int
	decimals int32
	poll     time.Duration

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewGateway dials the RPC endpoint and loads the signing key.
func NewGateway(cfg Config) (*Gateway, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain: decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("onchain: invalid private key: %w", err)
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("onchain: invalid contract address %q", cfg.Contract)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc %s: %w", cfg.RPCURL, err)
	}

	return &Gateway{
		client:   client,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		contract: common.HexToAddress(cfg.Contract),
		chainID:  big.NewInt(cfg.ChainID),
		decimals: cfg.TokenDecimals,
		poll:     receiptPollInterval,
	}, nil
}

// Address returns the signing account.
func (g *Gateway) Address() string {
	return g.address.Hex()
}

// ResolveBet calls resolveBet and waits for the receipt.
func (g *Gateway) ResolveBet(ctx context.Context, contractBetID string, result domain.BetResult) (domain.PayoutReceipt, error) {
	receipt := domain.PayoutReceipt{ContractBetID: contractBetID}

	betID, ok := parseBetID(contractBetID)
	if !ok {
		return receipt, fmt.Errorf("onchain.ResolveBet: bet id %q: %w", contractBetID, domain.ErrMissingContractID)
	}
	code, err := resultCode(result)
	if err != nil {
		return receipt, fmt.Errorf("onchain.ResolveBet: %w", err)
	}

	callData, err := roundsABI.Pack("resolveBet", betID, code)
	if err != nil {
		return receipt, fmt.Errorf("onchain.ResolveBet: pack: %w", err)
	}

	rcpt, txHash, err := g.transact(ctx, callData, resolveGasLimit)
	receipt.TxHash = txHash
	if err != nil {
		return receipt, fmt.Errorf("onchain.ResolveBet %s: %w", contractBetID, err)
	}

	receipt.BlockNumber = rcpt.BlockNumber.Uint64()
	receipt.GasUsed = rcpt.GasUsed
	receipt.ConfirmedAt = time.Now().UTC()
	slog.Info("onchain: bet resolved", "bet", contractBetID, "result", result.String(), "tx", txHash)
	return receipt, nil
}

// ManualPayout transfers amount of the stake token to recipient.
func (g *Gateway) ManualPayout(ctx context.Context, amount decimal.Decimal, recipient string) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("onchain.ManualPayout: invalid recipient %q", recipient)
	}
	callData, err := roundsABI.Pack("manualPayout", common.HexToAddress(recipient), g.toUnits(amount))
	if err != nil {
		return "", fmt.Errorf("onchain.ManualPayout: pack: %w", err)
	}

	_, txHash, err := g.transact(ctx, callData, payoutGasLimit)
	if err != nil {
		return txHash, fmt.Errorf("onchain.ManualPayout: %w", err)
	}
	slog.Info("onchain: manual payout sent", "recipient", recipient, "amount", amount.String(), "tx", txHash)
	return txHash, nil
}

// RecordProfit adjusts the on-chain daily profit counter.
func (g *Gateway) RecordProfit(ctx context.Context, delta decimal.Decimal) (string, error) {
	callData, err := roundsABI.Pack("recordProfit", g.toUnits(delta))
	if err != nil {
		return "", fmt.Errorf("onchain.RecordProfit: pack: %w", err)
	}
	_, txHash, err := g.transact(ctx, callData, statsGasLimit)
	if err != nil {
		return txHash, fmt.Errorf("onchain.RecordProfit: %w", err)
	}
	return txHash, nil
}

// GetTreasuryStats reads the treasury view function.
func (g *Gateway) GetTreasuryStats(ctx context.Context) (domain.TreasuryStats, error) {
	callData, err := roundsABI.Pack("getTreasuryStats")
	if err != nil {
		return domain.TreasuryStats{}, fmt.Errorf("onchain.GetTreasuryStats: pack: %w", err)
	}

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: callData}, nil)
	if err != nil {
		return domain.TreasuryStats{}, fmt.Errorf("onchain.GetTreasuryStats: call: %w", err)
	}

	vals, err := roundsABI.Unpack("getTreasuryStats", out)
	if err != nil || len(vals) != 3 {
		return domain.TreasuryStats{}, fmt.Errorf("onchain.GetTreasuryStats: unpack (%d values): %v", len(vals), err)
	}

	balance, _ := vals[0].(*big.Int)
	target, _ := vals[1].(*big.Int)
	profit, _ := vals[2].(*big.Int)
	return domain.TreasuryStats{
		Balance:            g.fromUnits(balance),
		DailyProfitTarget:  g.fromUnits(target),
		CurrentDailyProfit: g.fromUnits(profit),
	}, nil
}

// transact signs, sends and waits for a contract call.
func (g *Gateway) transact(ctx context.Context, callData []byte, fallbackGas uint64) (*types.Receipt, string, error) {
	nonce, err := g.client.PendingNonceAt(ctx, g.address)
	if err != nil {
		return nil, "", fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := g.getGasPrice(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("gas price: %w", err)
	}

	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     g.address,
		To:       &g.contract,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		// Un revert en la estimación casi siempre revierte también on-chain.
		return nil, "", fmt.Errorf("estimate gas: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = fallbackGas
	}
	// Add 20% buffer
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, g.contract, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(g.chainID), g.key)
	if err != nil {
		return nil, "", fmt.Errorf("sign tx: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return nil, "", fmt.Errorf("send tx: %w", err)
	}
	txHash := signed.Hash().Hex()

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := g.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return nil, txHash, fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, txHash, fmt.Errorf("tx reverted: %s", txHash)
	}
	return receipt, txHash, nil
}

// getGasPrice returns the current gas price, with caching to avoid excessive RPC calls.
func (g *Gateway) getGasPrice(ctx context.Context) (*big.Int, error) {
	g.mu.RLock()
	cached := g.cachedGasWei
	updatedAt := g.gasUpdatedAt
	g.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	// Add 10% buffer for faster inclusion
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	g.mu.Lock()
	g.cachedGasWei = buffered
	g.gasUpdatedAt = time.Now()
	g.mu.Unlock()

	return buffered, nil
}

// waitForReceipt polls for a transaction receipt until confirmed or timeout.
func (g *Gateway) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := g.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

func (g *Gateway) toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(g.decimals).Truncate(0).BigInt()
}

func (g *Gateway) fromUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -g.decimals)
}

// parseBetID accepts decimal or 0x-prefixed hex ids.
func parseBetID(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 0)
}

func resultCode(r domain.BetResult) (uint8, error) {
	switch r {
	case domain.ResultWin:
		return contractResultWin, nil
	case domain.ResultLose:
		return contractResultLose, nil
	case domain.ResultDraw:
		return contractResultDraw, nil
	}
	return 0, fmt.Errorf("no contract code for result %q", r.String())
}
