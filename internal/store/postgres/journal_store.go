package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// JournalStore implements domain.JournalStore.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore on pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// RecordExecution inserts one row per intent. Re-recording an intent
// overwrites the outcome columns.
func (s *JournalStore) RecordExecution(ctx context.Context, intent domain.TradeIntent, rc domain.ExecutionReceipt) error {
	const query = `
		INSERT INTO executions (
			intent_id, side, token, symbol, position_id, reason,
			amount_in, reference_price, slippage_bps,
			success, failure, detail, tx_hash, block_number,
			native_amount, token_amount, token_decimals, realized_price,
			gas_used, gas_price_wei, attempts, confirmed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21, $22
		)
		ON CONFLICT (intent_id) DO UPDATE SET
			success = EXCLUDED.success,
			failure = EXCLUDED.failure,
			detail = EXCLUDED.detail,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			native_amount = EXCLUDED.native_amount,
			token_amount = EXCLUDED.token_amount,
			token_decimals = EXCLUDED.token_decimals,
			realized_price = EXCLUDED.realized_price,
			gas_used = EXCLUDED.gas_used,
			gas_price_wei = EXCLUDED.gas_price_wei,
			attempts = EXCLUDED.attempts,
			confirmed_at = EXCLUDED.confirmed_at,
			recorded_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		intent.ID, string(intent.Side), intent.Token, intent.Symbol, intent.PositionID, string(intent.Reason),
		intent.AmountIn, intent.ReferencePrice, intent.SlippageBps,
		rc.Success, string(rc.Failure), rc.Detail, rc.TxHash, int64(rc.BlockNumber),
		rc.NativeAmount, rc.TokenAmount, int16(rc.TokenDecimals), rc.RealizedPrice,
		int64(rc.GasUsed), rc.GasPriceWei, rc.Attempts, nullTime(rc.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: record execution %s: %w", intent.ID, err)
	}
	return nil
}

// UpsertPosition writes the latest state of pos.
func (s *JournalStore) UpsertPosition(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, token, base_token, pair, symbol, token_decimals, status,
			entry_price, entry_native, token_amount, entry_at, entry_tx, entry_native_usd,
			take_profit_price, stop_loss_price, last_price, last_price_at,
			exit_price, exit_native, exit_at, exit_tx, realized_pnl, close_reason
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			last_price = EXCLUDED.last_price,
			last_price_at = EXCLUDED.last_price_at,
			exit_price = EXCLUDED.exit_price,
			exit_native = EXCLUDED.exit_native,
			exit_at = EXCLUDED.exit_at,
			exit_tx = EXCLUDED.exit_tx,
			realized_pnl = EXCLUDED.realized_pnl,
			close_reason = EXCLUDED.close_reason,
			updated_at = NOW()`

	var exitAt *time.Time
	if p.ExitAt != nil {
		exitAt = nullTime(*p.ExitAt)
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Token, p.BaseToken, p.Pair, p.Symbol, int16(p.TokenDecimals), string(p.Status),
		p.EntryPrice, p.EntryNative, p.TokenAmount, p.EntryAt, p.EntryTx, p.EntryNativeUSD,
		p.TakeProfitPrice, p.StopLossPrice, p.LastPrice, nullTime(p.LastPriceAt),
		p.ExitPrice, p.ExitNative, exitAt, p.ExitTx, p.RealizedPnL, string(p.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.JournalStore = (*JournalStore)(nil)
