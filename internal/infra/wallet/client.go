package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/infra"
)

// Client talks to the wallet daemon's JSON RPC over HTTP and implements
// domain.Wallet. Every operation is one POST with a JSON body; the daemon
// answers with a success envelope around the payload. Transient transport
// failures are plain errors, the engine's loops decide whether to retry.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a wallet RPC client from configuration.
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		baseURL: cfg.Wallet.RPCURL,
		apiKey:  cfg.Wallet.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.WalletTimeout(),
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "wallet_rpc"),
	}
}

// envelope is the common response wrapper of every RPC.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// call POSTs one RPC and decodes the payload into out (may be nil).
func (c *Client) call(ctx context.Context, path string, request any, out any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("rpc "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("rpc "+path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.NewNetworkError("rpc "+path,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s envelope: %w", path, err)
	}
	if !env.Success {
		return fmt.Errorf("rpc %s failed: %s", path, env.Error)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// Synced reports whether the wallet has caught up with the chain.
func (c *Client) Synced(ctx context.Context) (bool, error) {
	var rep struct {
		Synced bool `json:"synced"`
	}
	if err := c.call(ctx, "/get_sync_status", struct{}{}, &rep); err != nil {
		return false, err
	}
	return rep.Synced, nil
}

// Fingerprint returns the selector of the active key set.
func (c *Client) Fingerprint(ctx context.Context) (int, error) {
	var rep struct {
		Fingerprint int `json:"fingerprint"`
	}
	if err := c.call(ctx, "/get_logged_in_fingerprint", struct{}{}, &rep); err != nil {
		return 0, err
	}
	return rep.Fingerprint, nil
}

// WalletForAsset resolves the wallet id tracking the asset. The native coin
// always lives in wallet 1; unknown tokens get a tracking wallet created.
func (c *Client) WalletForAsset(ctx context.Context, asset domain.Asset) (uint32, error) {
	if asset.IsNative() {
		return 1, nil
	}

	var lookup struct {
		WalletID *uint32 `json:"wallet_id"`
	}
	err := c.call(ctx, "/asset_id_to_wallet", map[string]string{"asset_id": asset.TailHash}, &lookup)
	if err != nil {
		return 0, err
	}
	if lookup.WalletID != nil {
		return *lookup.WalletID, nil
	}

	var created struct {
		WalletID uint32 `json:"wallet_id"`
	}
	err = c.call(ctx, "/create_wallet_for_asset", map[string]string{"asset_id": asset.TailHash}, &created)
	if err != nil {
		return 0, err
	}
	return created.WalletID, nil
}

// NextDerivationIndex returns the first unused address index.
func (c *Client) NextDerivationIndex(ctx context.Context) (uint32, error) {
	var rep struct {
		Index uint32 `json:"index"`
	}
	if err := c.call(ctx, "/get_current_derivation_index", struct{}{}, &rep); err != nil {
		return 0, err
	}
	return rep.Index, nil
}

// DeriveAddress derives the destination address at the given index.
func (c *Client) DeriveAddress(ctx context.Context, index uint32) (string, error) {
	var rep struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "/derive_address", map[string]uint32{"index": index}, &rep); err != nil {
		return "", err
	}
	return rep.Address, nil
}

// CreateSwapOffer requests an atomic two-asset swap offer for the given
// signed amounts per wallet id.
func (c *Client) CreateSwapOffer(ctx context.Context, deltas map[uint32]int64) (*domain.SwapOffer, error) {
	offer := make(map[string]int64, len(deltas))
	for walletID, amount := range deltas {
		offer[fmt.Sprintf("%d", walletID)] = amount
	}

	var rep struct {
		Offer       string `json:"offer"`
		TradeRecord struct {
			TradeID       string `json:"trade_id"`
			CreatedAtTime int64  `json:"created_at_time"`
		} `json:"trade_record"`
	}
	err := c.call(ctx, "/create_offer_for_ids", map[string]any{"offer": offer}, &rep)
	if err != nil {
		return nil, err
	}

	return &domain.SwapOffer{
		TradeID:   rep.TradeRecord.TradeID,
		Blob:      rep.Offer,
		CreatedAt: time.Unix(rep.TradeRecord.CreatedAtTime, 0),
	}, nil
}

// TradeStatus queries the on-ledger status of an offer.
func (c *Client) TradeStatus(ctx context.Context, tradeID string) (domain.TradeStatus, error) {
	var rep struct {
		TradeRecord struct {
			Status string `json:"status"`
		} `json:"trade_record"`
	}
	err := c.call(ctx, "/get_offer", map[string]string{"trade_id": tradeID}, &rep)
	if err != nil {
		return "", err
	}

	switch rep.TradeRecord.Status {
	case "PENDING_ACCEPT", "PENDING_CONFIRM", "PENDING_CANCEL":
		return domain.TradeStatusPending, nil
	case "CONFIRMED":
		return domain.TradeStatusConfirmed, nil
	case "CANCELLED", "FAILED":
		return domain.TradeStatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown trade status %q for %s", rep.TradeRecord.Status, tradeID)
	}
}

// SplitFunds spends the wallet's holdings into one coin per addition.
func (c *Client) SplitFunds(ctx context.Context, walletID uint32, asset domain.Asset, additions []domain.Addition) (string, error) {
	type additionReq struct {
		Amount  int64  `json:"amount"`
		Address string `json:"address"`
	}
	reqAdditions := make([]additionReq, 0, len(additions))
	for _, a := range additions {
		reqAdditions = append(reqAdditions, additionReq{Amount: a.Amount, Address: a.Address})
	}

	var rep struct {
		TransactionID string `json:"transaction_id"`
	}
	err := c.call(ctx, "/split_funds", map[string]any{
		"wallet_id": walletID,
		"asset_id":  asset.TailHash,
		"additions": reqAdditions,
	}, &rep)
	if err != nil {
		return "", err
	}
	return rep.TransactionID, nil
}

const settleMaxAttempts = 60

// AwaitSettled polls the transaction until it is confirmed on-chain.
func (c *Client) AwaitSettled(ctx context.Context, walletID uint32, txID string) error {
	for attempt := 0; ; attempt++ {
		var rep struct {
			Confirmed bool `json:"confirmed"`
		}
		err := c.call(ctx, "/get_transaction", map[string]any{
			"wallet_id":      walletID,
			"transaction_id": txID,
		}, &rep)
		if err != nil {
			return err
		}
		if rep.Confirmed {
			return nil
		}
		if attempt >= settleMaxAttempts {
			return fmt.Errorf("transaction %s not settled after %d checks", txID, attempt)
		}

		c.logger.Debug("waiting for settlement", slog.String("transaction_id", txID), slog.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(infra.CalculateBackoff(attempt)):
		}
	}
}
