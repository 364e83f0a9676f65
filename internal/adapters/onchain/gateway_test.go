package onchain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChainID = 1337

// fakeNode responde el subconjunto de JSON-RPC que usa el gateway.
type fakeNode struct {
	mu     sync.Mutex
	sent   []*types.Transaction
	stats  []byte
	revert bool
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "eth_getTransactionCount":
		resp["result"] = hexutil.Uint64(len(n.sent))
	case "eth_gasPrice":
		resp["result"] = (*hexutil.Big)(big.NewInt(1_000_000_000))
	case "eth_estimateGas":
		resp["result"] = hexutil.Uint64(50_000)
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		tx := new(types.Transaction)
		if err := json.Unmarshal(req.Params[0], &raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := tx.UnmarshalBinary(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.sent = append(n.sent, tx)
		resp["result"] = tx.Hash()
	case "eth_getTransactionReceipt":
		var h common.Hash
		_ = json.Unmarshal(req.Params[0], &h)
		status := types.ReceiptStatusSuccessful
		if n.revert {
			status = types.ReceiptStatusFailed
		}
		resp["result"] = &types.Receipt{
			Status:            status,
			TxHash:            h,
			GasUsed:           42_000,
			CumulativeGasUsed: 42_000,
			BlockNumber:       big.NewInt(7),
			Logs:              []*types.Log{},
		}
	case "eth_call":
		resp["result"] = hexutil.Bytes(n.stats)
	default:
		delete(resp, "result")
		resp["error"] = map[string]any{"code": -32601, "message": "method not found: " + req.Method}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) lastTx(t *testing.T) *types.Transaction {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

func newTestGateway(t *testing.T) (*Gateway, *fakeNode) {
	t.Helper()
	node := &fakeNode{}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	g, err := NewGateway(Config{
		RPCURL:        srv.URL,
		PrivateKeyHex: "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
		Contract:      "0x00000000000000000000000000000000000000b7",
		ChainID:       testChainID,
		TokenDecimals: 6,
	})
	require.NoError(t, err)
	g.poll = time.Millisecond
	return g, node
}

// callArgs decodifica los argumentos de la llamada al contrato.
func callArgs(t *testing.T, tx *types.Transaction, method string) []any {
	t.Helper()
	m := roundsABI.Methods[method]
	require.Equal(t, m.ID, tx.Data()[:4], "selector of %s", method)
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	return args
}

func TestGateway_ResolveBet(t *testing.T) {
	g, node := newTestGateway(t)

	rcpt, err := g.ResolveBet(context.Background(), "42", domain.ResultWin)
	require.NoError(t, err)

	tx := node.lastTx(t)
	assert.Equal(t, tx.Hash().Hex(), rcpt.TxHash)
	assert.Equal(t, "42", rcpt.ContractBetID)
	assert.Equal(t, uint64(7), rcpt.BlockNumber)
	assert.Equal(t, uint64(42_000), rcpt.GasUsed)

	// estimación + 20%, gas price + 10%
	assert.Equal(t, uint64(60_000), tx.Gas())
	assert.Equal(t, int64(1_100_000_000), tx.GasPrice().Int64())
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000b7"), *tx.To())

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, g.Address(), from.Hex())

	args := callArgs(t, tx, "resolveBet")
	assert.Equal(t, int64(42), args[0].(*big.Int).Int64())
	assert.Equal(t, contractResultWin, args[1].(uint8))
}

func TestGateway_ResolveBetReverted(t *testing.T) {
	g, node := newTestGateway(t)
	node.revert = true

	rcpt, err := g.ResolveBet(context.Background(), "0x2a", domain.ResultDraw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx reverted")
	assert.NotEmpty(t, rcpt.TxHash)
}

func TestGateway_ResolveBetRejectsBadInput(t *testing.T) {
	g, node := newTestGateway(t)

	_, err := g.ResolveBet(context.Background(), "bet-1", domain.ResultWin)
	assert.ErrorIs(t, err, domain.ErrMissingContractID)
	_, err = g.ResolveBet(context.Background(), "1", domain.ResultNone)
	assert.Error(t, err)
	assert.Empty(t, node.sent)
}

func TestGateway_RecordProfitNegativeDelta(t *testing.T) {
	g, node := newTestGateway(t)

	_, err := g.RecordProfit(context.Background(), d("-12.5"))
	require.NoError(t, err)

	args := callArgs(t, node.lastTx(t), "recordProfit")
	assert.Equal(t, "-12500000", args[0].(*big.Int).String())
}

func TestGateway_ManualPayout(t *testing.T) {
	g, node := newTestGateway(t)
	ctx := context.Background()

	_, err := g.ManualPayout(ctx, d("1"), "not-an-address")
	assert.Error(t, err)

	to := "0x00000000000000000000000000000000000000c1"
	tx, err := g.ManualPayout(ctx, d("190"), to)
	require.NoError(t, err)
	assert.Equal(t, node.lastTx(t).Hash().Hex(), tx)

	args := callArgs(t, node.lastTx(t), "manualPayout")
	assert.Equal(t, common.HexToAddress(to), args[0].(common.Address))
	assert.Equal(t, "190000000", args[1].(*big.Int).String())

	// nonce sigue al número de transacciones enviadas
	assert.Equal(t, uint64(0), node.lastTx(t).Nonce())
}

func TestGateway_GetTreasuryStats(t *testing.T) {
	g, node := newTestGateway(t)

	out, err := roundsABI.Methods["getTreasuryStats"].Outputs.Pack(
		big.NewInt(1_500_000_000), big.NewInt(500_000_000), big.NewInt(-250_000_000))
	require.NoError(t, err)
	node.stats = out

	stats, err := g.GetTreasuryStats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Balance.Equal(d("1500")))
	assert.True(t, stats.DailyProfitTarget.Equal(d("500")))
	assert.True(t, stats.CurrentDailyProfit.Equal(d("-250")))
	assert.False(t, stats.TargetMet())
}
