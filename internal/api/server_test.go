package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-trader/internal/api"
	"apex-trader/internal/domain"
	"apex-trader/internal/ethereum"
	"apex-trader/internal/ethereum/stub"
	"apex-trader/internal/storage/memory"
	"apex-trader/internal/trading"
	"apex-trader/internal/treasury"
)

const (
	testKey       = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	feeRecipient  = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	otherReceiver = "0x53d284357ec70cE289D6D64134DfAc8E511c8a3D"
)

type testEnv struct {
	server *httptest.Server
	client *stub.Client
	book   *trading.Book
}

// newTestEnv wires the full API over a single stub endpoint.
func newTestEnv(t *testing.T, withCredential bool) *testEnv {
	t.Helper()

	client := stub.NewClient()
	client.GasPrice = big.NewInt(20_000_000_000)

	var cred *treasury.Credential
	if withCredential {
		var err error
		cred, err = treasury.NewCredential(testKey)
		require.NoError(t, err)
	}

	dial := func(_ context.Context, endpoint string) (ethereum.Client, error) {
		if endpoint != "test" {
			return nil, errors.New("unknown endpoint")
		}
		return client, nil
	}
	pool := ethereum.NewPool([]string{"test"}, ethereum.WithDialFunc(dial))
	session := treasury.NewSession(pool, cred, nil)

	rng := rand.New(rand.NewPCG(1, 2))
	book := trading.NewBook(trading.GenerateStrategies(100, rng), rng)

	executor := treasury.NewExecutor(treasury.ExecutorOptions{
		Session:      session,
		Ledger:       book,
		Receipts:     memory.NewReceiptStore(),
		Tracker:      treasury.NewTracker(),
		ConfirmWait:  2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	srv := api.NewServer(api.Options{
		Session:      session,
		Executor:     executor,
		Book:         book,
		FeeRecipient: feeRecipient,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, client: client, book: book}
}

// confirmLoop confirms broadcast transactions until the test finishes.
func (e *testEnv) confirmLoop(t *testing.T, block uint64) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.client.ConfirmSent(block)
			}
		}
	}()
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.05)

	var got api.StatusResponse
	code := getJSON(t, env.server.URL+"/status", &got)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "online", got.Status)
	assert.True(t, got.Trading)
	assert.Equal(t, "connected", got.Blockchain)
	assert.Equal(t, "0.050000", got.TreasuryBalance)
	assert.True(t, got.CanTrade)
	assert.Equal(t, treasury.MinGasETH, got.MinGasRequired)
	assert.Equal(t, treasury.RecommendedGasETH, got.RecommendedGas)
	assert.Equal(t, feeRecipient, got.FeeRecipient)
	assert.Equal(t, 100, got.TotalStrategies)
	assert.NotEmpty(t, got.TreasuryWallet)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.001)

	var got api.HealthResponse
	code := getJSON(t, env.server.URL+"/health", &got)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, 100, got.Strategies)
	assert.False(t, got.GasOK)
}

func TestBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(1.5)

	var got api.BalanceResponse
	code := getJSON(t, env.server.URL+"/balance", &got)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.500000", got.Balance)
	assert.Equal(t, "5175.00", got.BalanceUSD) // 1.5 * 3450
	assert.True(t, got.CanTrade)
	assert.True(t, got.CanWithdraw)
}

func TestBalanceEndpoint_NoCredential(t *testing.T) {
	env := newTestEnv(t, false)

	var got map[string]interface{}
	code := getJSON(t, env.server.URL+"/balance", &got)

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Wallet not configured", got["error"])
	assert.Contains(t, got["hint"], "TREASURY_PRIVATE_KEY")
}

func TestStrategiesEndpointAndAlias(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.05)

	for _, route := range []string{"/strategies", "/api/apex/strategies/live"} {
		var got api.StrategiesResponse
		code := getJSON(t, env.server.URL+route, &got)

		assert.Equal(t, http.StatusOK, code, route)
		assert.Len(t, got.Strategies, 50, route)
		assert.Equal(t, "APY_DESCENDING", got.SortOrder, route)
		assert.Greater(t, got.TotalPnL, 0.0, route)

		// Population is served highest APY first.
		for i := 1; i < len(got.Strategies); i++ {
			assert.GreaterOrEqual(t, got.Strategies[i-1].APY, got.Strategies[i].APY)
		}
	}
}

func TestExecuteEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.05)

	var got api.ExecuteResponse
	code := postJSON(t, env.server.URL+"/execute", map[string]interface{}{}, &got)

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, got.Success)
	assert.Equal(t, float64(domain.FlashLoanAmountETH), got.FlashLoanAmount)
	assert.Equal(t, int64(1), got.TotalFlashLoans)
	assert.NotEmpty(t, got.ProfitUSD)
}

func TestExecuteEndpoint_Underfunded(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.005)

	var got map[string]interface{}
	code := postJSON(t, env.server.URL+"/execute", map[string]interface{}{}, &got)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Treasury needs gas funding", got["error"])
	assert.Equal(t, "0.005000", got["currentBalance"])
	assert.Equal(t, treasury.MinGasETH, got["minRequired"])

	// The book is untouched by a rejected execution.
	assert.Zero(t, env.book.Stats().FlashLoansExecuted)
}

func TestWithdrawEndpoint_Confirmed(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.02)
	env.confirmLoop(t, 19_000_000)

	var got api.WithdrawResponse
	code := postJSON(t, env.server.URL+"/withdraw", map[string]interface{}{
		"to":     otherReceiver,
		"amount": 0.01,
	}, &got)

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, got.Success)
	assert.Equal(t, otherReceiver, got.To)
	assert.InDelta(t, 0.01, got.Amount, 1e-9)
	assert.Equal(t, uint64(19_000_000), got.BlockNumber)
	assert.True(t, strings.HasPrefix(got.EtherscanURL, "https://etherscan.io/tx/0x"))

	// Tracker keeps the confirmed transfer queryable.
	var status domain.TransferStatus
	code = getJSON(t, env.server.URL+"/transfers/"+got.TxHash, &status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.TransferStatusConfirmed, status.Status)
}

func TestWithdrawEndpoint_AliasesAndDefaults(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(10)
	env.confirmLoop(t, 500)

	// Alias routes run the same pipeline; a missing address falls back to
	// the configured recipient, and string amounts are accepted.
	for _, route := range []string{"/send-eth", "/transfer", "/coinbase-withdraw"} {
		var got api.WithdrawResponse
		code := postJSON(t, env.server.URL+route, map[string]interface{}{
			"amountETH": "0.1",
		}, &got)

		assert.Equal(t, http.StatusOK, code, route)
		assert.Equal(t, feeRecipient, got.To, route)
	}
}

func TestWithdrawEndpoint_Validation(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(1)

	cases := []struct {
		name    string
		body    map[string]interface{}
		wantErr string
	}{
		{"zero amount", map[string]interface{}{"to": otherReceiver, "amount": 0}, "Invalid amount"},
		{"negative amount", map[string]interface{}{"to": otherReceiver, "amount": -1}, "Invalid amount"},
		{"string garbage amount", map[string]interface{}{"to": otherReceiver, "amount": "abc"}, "Invalid amount"},
		{"bad address", map[string]interface{}{"to": "nope", "amount": 0.1}, "Invalid address"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]interface{}
			code := postJSON(t, env.server.URL+"/withdraw", tc.body, &got)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tc.wantErr, got["error"])
		})
	}
}

func TestWithdrawEndpoint_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.02)

	var got map[string]interface{}
	code := postJSON(t, env.server.URL+"/withdraw", map[string]interface{}{
		"to":     otherReceiver,
		"amount": 0.02,
	}, &got)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Insufficient treasury balance for this withdrawal", got["error"])
	assert.Equal(t, "0.020000", got["treasuryBalance"])
	assert.Equal(t, "0.017000", got["maxWithdrawable"])
	assert.InDelta(t, treasury.GasReserveETH, got["gasReserve"].(float64), 1e-9)
}

func TestWithdrawEndpoint_GasUnfunded(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(0.005)

	var got map[string]interface{}
	code := postJSON(t, env.server.URL+"/withdraw", map[string]interface{}{
		"to":     otherReceiver,
		"amount": 0.001,
	}, &got)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Treasury needs gas funding", got["error"])
	assert.Equal(t, "0.005000", got["currentBalance"])
	assert.InDelta(t, treasury.MinGasETH, got["minRequired"].(float64), 1e-9)
	assert.InDelta(t, treasury.RecommendedGasETH, got["recommendedDeposit"].(float64), 1e-9)
}

func TestWithdrawEndpoint_NoCredential(t *testing.T) {
	env := newTestEnv(t, false)

	var got map[string]interface{}
	code := postJSON(t, env.server.URL+"/withdraw", map[string]interface{}{
		"to":     otherReceiver,
		"amount": 0.01,
	}, &got)

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Backend wallet not configured", got["error"])
}

func TestWithdrawEndpoint_PendingReturns202(t *testing.T) {
	env := newTestEnv(t, true)
	env.client.Balance = treasury.EthToWei(1)
	// No confirm loop: the synchronous wait runs out.

	var got map[string]interface{}
	code := postJSON(t, env.server.URL+"/withdraw", map[string]interface{}{
		"to":     otherReceiver,
		"amount": 0.1,
	}, &got)

	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, true, got["pending"])
	txHash, _ := got["txHash"].(string)
	require.NotEmpty(t, txHash)
	assert.Equal(t, "/transfers/"+txHash, got["statusUrl"])

	var status domain.TransferStatus
	code = getJSON(t, env.server.URL+"/transfers/"+txHash, &status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.TransferStatusPending, status.Status)
}

func TestTransferStatus_Unknown(t *testing.T) {
	env := newTestEnv(t, true)

	var got map[string]interface{}
	code := getJSON(t, env.server.URL+"/transfers/0xmissing", &got)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "0xmissing", got["txHash"])
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, true)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/withdraw", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestLiveStream(t *testing.T) {
	env := newTestEnv(t, true)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var frame api.LiveUpdate
	require.NoError(t, conn.ReadJSON(&frame))

	assert.NotEmpty(t, frame.Timestamp)
	assert.True(t, frame.IsActive)
	assert.Greater(t, frame.TotalEarned, 0.0)
	assert.Equal(t, 100, frame.ActiveStrategies)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStart_ListenFailureReturns(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := api.NewServer(api.Options{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ln.Addr().String())
	}()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return on an occupied address")
	}
}

func TestStart_ShutdownUnblocks(t *testing.T) {
	srv := api.NewServer(api.Options{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start("127.0.0.1:0")
	}()

	// Shutdown must release Start with a nil error once serving. Retry
	// until the listener is up.
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		select {
		case err := <-errCh:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
}
