package clearing

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/liquidity"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/margin"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/symbol"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/vault"
)

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Symbol               string          `json:"symbol"` // {BASE}-{QUOTE}-PERP
	StartPrice           decimal.Decimal `json:"start_price"`
	PoolFeeRatio         decimal.Decimal `json:"pool_fee_ratio"`
	ProtocolFeeRatio     decimal.Decimal `json:"protocol_fee_ratio"` // 0 → pool fee
	MaxTickDeltaPerBlock int             `json:"max_tick_delta_per_block"`
}

// MintBurnRequest is the JSON body for POST /mint and /burn.
type MintBurnRequest struct {
	Trader      string          `json:"trader"`
	Token       string          `json:"token"` // market symbol or quote token
	Amount      decimal.Decimal `json:"amount"`
	CheckMargin bool            `json:"check_margin"`
	DeadlineMs  int64           `json:"deadline_ms"` // unix ms, 0 = none
}

// SwapRequest is the JSON body for POST /swap and /positions/open.
type SwapRequest struct {
	Trader         string          `json:"trader"`
	Market         string          `json:"market"`
	BaseToQuote    bool            `json:"base_to_quote"`
	ExactInput     bool            `json:"exact_input"`
	Amount         decimal.Decimal `json:"amount"`
	SqrtPriceLimit decimal.Decimal `json:"sqrt_price_limit"`
	DeadlineMs     int64           `json:"deadline_ms"`
}

// ClosePositionRequest is the JSON body for POST /positions/close.
type ClosePositionRequest struct {
	Trader         string          `json:"trader"`
	Market         string          `json:"market"`
	SqrtPriceLimit decimal.Decimal `json:"sqrt_price_limit"`
	DeadlineMs     int64           `json:"deadline_ms"`
}

// LiquidityRequest is the JSON body for liquidity add/remove.
type LiquidityRequest struct {
	Trader     string          `json:"trader"`
	Market     string          `json:"market"`
	Base       decimal.Decimal `json:"base"`
	Quote      decimal.Decimal `json:"quote"`
	LowerTick  int             `json:"lower_tick"`
	UpperTick  int             `json:"upper_tick"`
	Liquidity  decimal.Decimal `json:"liquidity"` // remove only; 0 = all
	MinBase    decimal.Decimal `json:"min_base"`
	MinQuote   decimal.Decimal `json:"min_quote"`
	DeadlineMs int64           `json:"deadline_ms"`
}

// LiquidateRequest is the JSON body for POST /liquidate.
type LiquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Trader     string `json:"trader"`
	Market     string `json:"market"`
}

// CollateralRequest is the JSON body for deposit/withdraw.
type CollateralRequest struct {
	Trader     string          `json:"trader"`
	Amount     decimal.Decimal `json:"amount"`
	DeadlineMs int64           `json:"deadline_ms"`
}

// FundingRequest is the JSON body for funding update/settle.
type FundingRequest struct {
	Trader string `json:"trader"` // settle only
	Market string `json:"market"`
}

func deadlineOf(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// --- HTTP Handlers ---

// HandleCreateMarket handles POST /api/v1/markets
func (s *Service) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.AddMarket(r.Context(), AddMarketParams{
		Symbol:               req.Symbol,
		StartPrice:           req.StartPrice,
		PoolFeeRatio:         req.PoolFeeRatio,
		ProtocolFeeRatio:     req.ProtocolFeeRatio,
		MaxTickDeltaPerBlock: req.MaxTickDeltaPerBlock,
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(marketView(m))
}

// HandleListMarkets handles GET /api/v1/markets
func (s *Service) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.MarketRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// HandleGetMarket handles GET /api/v1/markets/{symbol}
func (s *Service) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	sym := chi.URLParam(r, "symbol")

	if err := s.enter(); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	m, err := s.markets.Get(sym)
	s.exit()
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(marketView(m))
}

// HandleMint handles POST /api/v1/mint
func (s *Service) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req MintBurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Token == "" {
		writeError(w, "trader and token are required", http.StatusBadRequest)
		return
	}

	if err := s.Mint(r.Context(), req.Trader, req.Token, req.Amount, req.CheckMargin, deadlineOf(req.DeadlineMs)); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, map[string]string{"status": "minted"})
}

// HandleBurn handles POST /api/v1/burn
func (s *Service) HandleBurn(w http.ResponseWriter, r *http.Request) {
	var req MintBurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Token == "" {
		writeError(w, "trader and token are required", http.StatusBadRequest)
		return
	}

	if err := s.Burn(r.Context(), req.Trader, req.Token, req.Amount, deadlineOf(req.DeadlineMs)); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, map[string]string{"status": "burned"})
}

// HandleSwap handles POST /api/v1/swap
func (s *Service) HandleSwap(w http.ResponseWriter, r *http.Request) {
	s.handleSwapWith(w, r, false)
}

// HandleOpenPosition handles POST /api/v1/positions/open
func (s *Service) HandleOpenPosition(w http.ResponseWriter, r *http.Request) {
	s.handleSwapWith(w, r, true)
}

func (s *Service) handleSwapWith(w http.ResponseWriter, r *http.Request, checkMargin bool) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Market == "" {
		writeError(w, "trader and market are required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	receipt, err := s.Swap(r.Context(), SwapParams{
		Trader:         req.Trader,
		Market:         req.Market,
		BaseToQuote:    req.BaseToQuote,
		ExactInput:     req.ExactInput,
		Amount:         req.Amount,
		SqrtPriceLimit: req.SqrtPriceLimit,
		Deadline:       deadlineOf(req.DeadlineMs),
		CheckMargin:    checkMargin,
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, receipt)
}

// HandleClosePosition handles POST /api/v1/positions/close
func (s *Service) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req ClosePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Market == "" {
		writeError(w, "trader and market are required", http.StatusBadRequest)
		return
	}

	receipt, err := s.ClosePosition(r.Context(), req.Trader, req.Market, req.SqrtPriceLimit, deadlineOf(req.DeadlineMs))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, receipt)
}

// HandleAddLiquidity handles POST /api/v1/liquidity/add
func (s *Service) HandleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Market == "" {
		writeError(w, "trader and market are required", http.StatusBadRequest)
		return
	}

	res, err := s.AddLiquidity(r.Context(), AddLiquidityParams{
		Trader:    req.Trader,
		Market:    req.Market,
		Base:      req.Base,
		Quote:     req.Quote,
		LowerTick: req.LowerTick,
		UpperTick: req.UpperTick,
		Deadline:  deadlineOf(req.DeadlineMs),
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, res)
}

// HandleRemoveLiquidity handles POST /api/v1/liquidity/remove
func (s *Service) HandleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Market == "" {
		writeError(w, "trader and market are required", http.StatusBadRequest)
		return
	}

	res, err := s.RemoveLiquidity(r.Context(), RemoveLiquidityParams{
		Trader:    req.Trader,
		Market:    req.Market,
		LowerTick: req.LowerTick,
		UpperTick: req.UpperTick,
		Liquidity: req.Liquidity,
		MinBase:   req.MinBase,
		MinQuote:  req.MinQuote,
		Deadline:  deadlineOf(req.DeadlineMs),
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, res)
}

// HandleLiquidate handles POST /api/v1/liquidate
func (s *Service) HandleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Liquidator == "" || req.Trader == "" || req.Market == "" {
		writeError(w, "liquidator, trader and market are required", http.StatusBadRequest)
		return
	}

	receipt, err := s.Liquidate(r.Context(), req.Liquidator, req.Trader, req.Market)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, receipt)
}

// HandleUpdateFunding handles POST /api/v1/funding/update
func (s *Service) HandleUpdateFunding(w http.ResponseWriter, r *http.Request) {
	var req FundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Market == "" {
		writeError(w, "market is required", http.StatusBadRequest)
		return
	}

	entry, err := s.UpdateFunding(r.Context(), req.Market)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, entry)
}

// HandleSettleFunding handles POST /api/v1/funding/settle
func (s *Service) HandleSettleFunding(w http.ResponseWriter, r *http.Request) {
	var req FundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Market == "" {
		writeError(w, "trader and market are required", http.StatusBadRequest)
		return
	}

	if err := s.SettleFunding(req.Trader, req.Market); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, map[string]string{"status": "settled"})
}

// HandleCancelExcessOrders handles POST /api/v1/orders/cancel-excess
func (s *Service) HandleCancelExcessOrders(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" || req.Market == "" {
		writeError(w, "trader and market are required", http.StatusBadRequest)
		return
	}

	if err := s.CancelExcessOrders(r.Context(), req.Trader, req.Market); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, map[string]string{"status": "cancelled"})
}

// HandleDeposit handles POST /api/v1/collateral/deposit
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" {
		writeError(w, "trader is required", http.StatusBadRequest)
		return
	}

	if err := s.Deposit(req.Trader, req.Amount); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, map[string]string{"status": "deposited"})
}

// HandleWithdraw handles POST /api/v1/collateral/withdraw
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req CollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" {
		writeError(w, "trader is required", http.StatusBadRequest)
		return
	}

	if err := s.Withdraw(req.Trader, req.Amount, deadlineOf(req.DeadlineMs)); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeOK(w, map[string]string{"status": "withdrawn"})
}

// HandleAccount handles GET /api/v1/accounts/{trader}
func (s *Service) HandleAccount(w http.ResponseWriter, r *http.Request) {
	trader := chi.URLParam(r, "trader")

	value, err := s.AccountValue(trader)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	free, err := s.FreeCollateral(trader)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if err := s.enter(); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	resp := map[string]any{
		"trader":          trader,
		"account_value":   value,
		"free_collateral": free,
		"collateral":      s.vault.CollateralOf(trader),
		"owed_realized":   s.ledger.OwedRealizedPnl(trader),
		"registered":      s.ledger.RegisteredTokens(trader),
	}
	s.exit()

	writeOK(w, resp)
}

// HandlePosition handles GET /api/v1/accounts/{trader}/positions/{symbol}
func (s *Service) HandlePosition(w http.ResponseWriter, r *http.Request) {
	trader := chi.URLParam(r, "trader")
	sym := chi.URLParam(r, "symbol")

	size, err := s.PositionSize(trader, sym)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	notional, err := s.OpenNotional(trader, sym)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	pending, err := s.PendingFundingPayment(trader, sym)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	orders, err := s.OpenOrders(trader, sym)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeOK(w, map[string]any{
		"trader":          trader,
		"market":          sym,
		"position_size":   size,
		"open_notional":   notional,
		"pending_funding": pending,
		"orders":          orders,
	})
}

// HandleJournal handles GET /api/v1/journal/{trader}
func (s *Service) HandleJournal(w http.ResponseWriter, r *http.Request) {
	trader := chi.URLParam(r, "trader")

	entries, err := s.store.GetJournalByTrader(r.Context(), trader)
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeOK(w, entries)
}

// --- helpers ---

func marketView(m *registry.Market) map[string]any {
	return map[string]any{
		"symbol":             m.Symbol,
		"base_token":         m.BaseToken,
		"quote_token":        m.QuoteToken,
		"tick":               m.Pool.Tick(),
		"mark_price":         m.MarkPrice(),
		"liquidity":          m.Pool.Liquidity(),
		"pool_fee_ratio":     m.PoolFeeRatio,
		"protocol_fee_ratio": m.ProtocolFeeRatio,
		"next_funding_time":  m.Funding.NextFundingTime(),
		"created_at":         m.CreatedAt,
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, liquidity.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrActionInProgress):
		return http.StatusConflict
	case errors.Is(err, registry.ErrMarketExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotLiquidatable),
		errors.Is(err, ErrOrdersNotCancelable),
		errors.Is(err, ErrNoPosition),
		errors.Is(err, ErrDeadlineExceeded),
		errors.Is(err, liquidity.ErrSlippage):
		return http.StatusConflict
	case errors.Is(err, margin.ErrBelowInitialMargin),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, vault.ErrNotEnoughFreeCollateral):
		return http.StatusPaymentRequired
	case errors.Is(err, symbol.ErrInvalidSymbol),
		errors.Is(err, symbol.ErrInvalidFee),
		errors.Is(err, ledger.ErrNonPositiveAmount),
		errors.Is(err, vault.ErrNonPositiveAmount):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
