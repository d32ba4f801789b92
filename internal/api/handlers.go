package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"apex-trader/internal/domain"
	"apex-trader/internal/ethereum"
	"apex-trader/internal/treasury"
)

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status          string  `json:"status"`
	Trading         bool    `json:"trading"`
	Blockchain      string  `json:"blockchain"`
	TreasuryWallet  string  `json:"treasuryWallet"`
	TreasuryBalance string  `json:"treasuryBalance"`
	CanTrade        bool    `json:"canTrade"`
	MinGasRequired  float64 `json:"minGasRequired"`
	RecommendedGas  float64 `json:"recommendedGas"`
	FeeRecipient    string  `json:"feeRecipient"`
	FlashLoanAmount float64 `json:"flashLoanAmount"`
	TotalStrategies int     `json:"totalStrategies"`
	Timestamp       string  `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	balance := s.balanceBestEffort(r)

	blockchain := "disconnected"
	if s.session.Connected() {
		blockchain = "connected"
	}

	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status:          "online",
		Trading:         s.book.Stats().IsActive,
		Blockchain:      blockchain,
		TreasuryWallet:  s.treasuryWallet(),
		TreasuryBalance: eth(balance),
		CanTrade:        balance >= treasury.MinGasETH,
		MinGasRequired:  treasury.MinGasETH,
		RecommendedGas:  treasury.RecommendedGasETH,
		FeeRecipient:    s.feeRecipient,
		FlashLoanAmount: domain.FlashLoanAmountETH,
		TotalStrategies: s.book.Len(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Trading         bool   `json:"trading"`
	Strategies      int    `json:"strategies"`
	FeeRecipient    string `json:"feeRecipient"`
	TreasuryWallet  string `json:"treasuryWallet"`
	TreasuryBalance string `json:"treasuryBalance"`
	GasOK           bool   `json:"gasOK"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	balance := s.balanceBestEffort(r)

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		Trading:         s.book.Stats().IsActive,
		Strategies:      s.book.Len(),
		FeeRecipient:    s.feeRecipient,
		TreasuryWallet:  s.treasuryWallet(),
		TreasuryBalance: eth(balance),
		GasOK:           balance >= treasury.MinGasETH,
	})
}

// BalanceResponse is the JSON response for /balance.
type BalanceResponse struct {
	TreasuryWallet string  `json:"treasuryWallet"`
	Balance        string  `json:"balance"`
	BalanceUSD     string  `json:"balanceUSD"`
	FeeRecipient   string  `json:"feeRecipient"`
	CanTrade       bool    `json:"canTrade"`
	CanWithdraw    bool    `json:"canWithdraw"`
	MinGasRequired float64 `json:"minGasRequired"`
	RecommendedGas float64 `json:"recommendedGas"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !s.session.HasCredential() {
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":          "Wallet not configured",
			"treasuryWallet": s.treasuryWallet(),
			"hint":           "Set TREASURY_PRIVATE_KEY env var",
		})
		return
	}

	balance, err := s.session.BalanceETH(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, BalanceResponse{
		TreasuryWallet: s.treasuryWallet(),
		Balance:        eth(balance),
		BalanceUSD:     usd(balance * domain.EthPriceUSD),
		FeeRecipient:   s.feeRecipient,
		CanTrade:       balance >= treasury.MinGasETH,
		CanWithdraw:    balance >= treasury.MinGasETH,
		MinGasRequired: treasury.MinGasETH,
		RecommendedGas: treasury.RecommendedGasETH,
	})
}

// EarningsResponse is the JSON response for /earnings.
type EarningsResponse struct {
	TotalEarned     float64 `json:"totalEarned"`
	TotalTrades     int64   `json:"totalTrades"`
	HourlyRate      float64 `json:"hourlyRate"`
	UptimeMs        int64   `json:"uptime"`
	IsActive        bool    `json:"isActive"`
	FeeRecipient    string  `json:"feeRecipient"`
	TreasuryWallet  string  `json:"treasuryWallet"`
	TreasuryBalance string  `json:"treasuryBalance"`
	CanWithdraw     bool    `json:"canWithdraw"`
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	stats := s.book.Stats()
	balance := s.balanceBestEffort(r)

	s.writeJSON(w, http.StatusOK, EarningsResponse{
		TotalEarned:     stats.TotalEarned,
		TotalTrades:     stats.TotalTrades,
		HourlyRate:      stats.HourlyRate,
		UptimeMs:        time.Since(stats.StartTime).Milliseconds(),
		IsActive:        stats.IsActive,
		FeeRecipient:    s.feeRecipient,
		TreasuryWallet:  s.treasuryWallet(),
		TreasuryBalance: eth(balance),
		CanWithdraw:     balance >= treasury.MinGasETH,
	})
}

// StrategiesResponse is the JSON response for /strategies. The dashboard
// displays the top 50 positions of the APY-sorted population.
type StrategiesResponse struct {
	Strategies         []domain.Strategy `json:"strategies"`
	TotalPnL           float64           `json:"totalPnL"`
	AvgAPY             string            `json:"avgAPY"`
	ProjectedHourly    string            `json:"projectedHourly"`
	ProjectedDaily     string            `json:"projectedDaily"`
	TotalTrades        int64             `json:"totalTrades"`
	FlashLoansExecuted int64             `json:"flashLoansExecuted"`
	SortOrder          string            `json:"sortOrder"`
	IsActive           bool              `json:"isActive"`
	FeeRecipient       string            `json:"feeRecipient"`
	TreasuryWallet     string            `json:"treasuryWallet"`
	TreasuryBalance    string            `json:"treasuryBalance"`
	MinGasRequired     float64           `json:"minGasRequired"`
	FlashLoanAmount    float64           `json:"flashLoanAmount"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	stats := s.book.Stats()
	balance := s.balanceBestEffort(r)

	s.writeJSON(w, http.StatusOK, StrategiesResponse{
		Strategies:         s.book.Top(50),
		TotalPnL:           stats.TotalEarned,
		AvgAPY:             strconv.FormatFloat(s.book.AvgAPY(), 'f', 1, 64),
		ProjectedHourly:    usd(stats.HourlyRate),
		ProjectedDaily:     usd(stats.HourlyRate * 24),
		TotalTrades:        stats.TotalTrades,
		FlashLoansExecuted: stats.FlashLoansExecuted,
		SortOrder:          "APY_DESCENDING",
		IsActive:           stats.IsActive,
		FeeRecipient:       s.feeRecipient,
		TreasuryWallet:     s.treasuryWallet(),
		TreasuryBalance:    eth(balance),
		MinGasRequired:     treasury.MinGasETH,
		FlashLoanAmount:    domain.FlashLoanAmountETH,
	})
}

// ExecuteResponse is the JSON response for a successful /execute.
type ExecuteResponse struct {
	Success         bool    `json:"success"`
	FlashLoanAmount float64 `json:"flashLoanAmount"`
	ProfitUSD       string  `json:"profitUSD"`
	ProfitETH       string  `json:"profitETH"`
	FeeRecipient    string  `json:"feeRecipient"`
	TotalFlashLoans int64   `json:"totalFlashLoans"`
	Message         string  `json:"message"`
}

// handleExecute gates a simulated flash-loan execution on the treasury's
// operational balance, the same funding floor withdrawals use.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	balance, err := s.session.BalanceETH(r.Context())
	if err != nil {
		if errors.Is(err, treasury.ErrNoCredential) {
			s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":          "Backend wallet not configured",
				"treasuryWallet": s.treasuryWallet(),
				"hint":           "Set TREASURY_PRIVATE_KEY env var",
			})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if balance < treasury.MinGasETH {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":          "Treasury needs gas funding",
			"treasuryWallet": s.treasuryWallet(),
			"currentBalance": eth(balance),
			"minRequired":    treasury.MinGasETH,
			"hint":           "Send at least " + strconv.FormatFloat(treasury.MinGasETH, 'f', -1, 64) + " ETH to " + s.treasuryWallet(),
		})
		return
	}

	result := s.book.ExecuteFlashLoan()
	s.logf("flash loan executed: %.0f ETH, profit $%.2f", result.AmountETH, result.ProfitUSD)

	s.writeJSON(w, http.StatusOK, ExecuteResponse{
		Success:         true,
		FlashLoanAmount: result.AmountETH,
		ProfitUSD:       usd(result.ProfitUSD),
		ProfitETH:       eth(result.ProfitETH),
		FeeRecipient:    s.feeRecipient,
		TotalFlashLoans: result.TotalCount,
		Message:         "Flash loan executed successfully",
	})
}

// WithdrawRequest is the JSON body for /withdraw. Address and amount each
// accept two field spellings; amounts may arrive as number or string.
type WithdrawRequest struct {
	To        string      `json:"to"`
	ToAddress string      `json:"toAddress"`
	Amount    json.Number `json:"amount"`
	AmountETH json.Number `json:"amountETH"`
}

// WithdrawResponse is the JSON response for a confirmed withdrawal.
type WithdrawResponse struct {
	Success      bool    `json:"success"`
	TxHash       string  `json:"txHash"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Amount       float64 `json:"amount"`
	BlockNumber  uint64  `json:"blockNumber"`
	EtherscanURL string  `json:"etherscanUrl"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
		return
	}

	recipient := req.To
	if recipient == "" {
		recipient = req.ToAddress
	}
	if recipient == "" {
		recipient = s.feeRecipient
	}

	amount := parseAmount(req.AmountETH, req.Amount)

	s.logf("withdrawal request: %.6f ETH to %s", amount, recipient)

	receipt, err := s.executor.Withdraw(r.Context(), domain.TransferRequest{
		To:        recipient,
		AmountETH: amount,
	})
	if err != nil {
		s.writeWithdrawError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, WithdrawResponse{
		Success:      true,
		TxHash:       receipt.TxHash,
		From:         receipt.From,
		To:           receipt.To,
		Amount:       receipt.AmountETH,
		BlockNumber:  receipt.BlockNumber,
		EtherscanURL: "https://etherscan.io/tx/" + receipt.TxHash,
	})
}

// writeWithdrawError maps the transfer error taxonomy onto HTTP statuses:
// validation and funding problems are 400 with remediation fields, a
// bounded-wait overrun is 202 with the hash to poll, everything else is 500.
func (s *Server) writeWithdrawError(w http.ResponseWriter, err error) {
	var gasErr *treasury.GasUnfundedError
	var fundsErr *treasury.InsufficientFundsError
	var pendingErr *treasury.ConfirmationPendingError

	switch {
	case errors.Is(err, treasury.ErrInvalidAmount):
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid amount"})

	case errors.Is(err, treasury.ErrInvalidAddress):
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid address"})

	case errors.Is(err, treasury.ErrNoCredential):
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":          "Backend wallet not configured",
			"treasuryWallet": s.treasuryWallet(),
			"hint":           "Fund treasury with at least " + strconv.FormatFloat(treasury.MinGasETH, 'f', -1, 64) + " ETH for gas",
		})

	case errors.As(err, &gasErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":              "Treasury needs gas funding",
			"treasuryWallet":     s.treasuryWallet(),
			"currentBalance":     eth(gasErr.BalanceETH),
			"minRequired":        gasErr.MinRequiredETH,
			"recommendedDeposit": gasErr.RecommendedETH,
			"hint":               "Send at least " + strconv.FormatFloat(gasErr.MinRequiredETH, 'f', -1, 64) + " ETH to " + s.treasuryWallet(),
		})

	case errors.As(err, &fundsErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":           "Insufficient treasury balance for this withdrawal",
			"treasuryBalance": eth(fundsErr.BalanceETH),
			"requestedAmount": fundsErr.RequestedETH,
			"gasReserve":      fundsErr.ReserveETH,
			"maxWithdrawable": eth(fundsErr.MaxWithdrawableETH),
		})

	case errors.As(err, &pendingErr):
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"pending":   true,
			"txHash":    pendingErr.TxHash,
			"status":    domain.TransferStatusPending,
			"statusUrl": "/transfers/" + pendingErr.TxHash,
			"message":   "Transaction broadcast, confirmation still in progress",
		})

	case errors.Is(err, ethereum.ErrUnavailable):
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":          err.Error(),
			"treasuryWallet": s.treasuryWallet(),
			"hint":           "All RPC endpoints unreachable, retry later",
		})

	default:
		s.logf("withdrawal error: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":          err.Error(),
			"treasuryWallet": s.treasuryWallet(),
			"feeRecipient":   s.feeRecipient,
			"hint":           "Ensure treasury has sufficient ETH for gas",
		})
	}
}

func (s *Server) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	status, ok := s.executor.Tracker().Get(hash)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":  "Unknown transaction hash",
			"txHash": hash,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// balanceBestEffort queries the treasury balance, reporting zero on any
// failure. Status-style endpoints never fail on a balance problem.
func (s *Server) balanceBestEffort(r *http.Request) float64 {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	balance, err := s.session.BalanceETH(ctx)
	if err != nil {
		return 0
	}
	return balance
}

func (s *Server) treasuryWallet() string {
	if !s.session.HasCredential() {
		return ""
	}
	return s.session.Address().Hex()
}

// parseAmount resolves the two accepted amount fields, preferring the
// explicit ETH one. Unparseable input yields zero, which the executor
// rejects as invalid.
func parseAmount(amountETH, amount json.Number) float64 {
	for _, n := range []json.Number{amountETH, amount} {
		if n == "" {
			continue
		}
		v, err := n.Float64()
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}
