package pgrecon

import (
	"context"
	"time"

	"github.com/govalues/decimal"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/pkg/errors"
)

// GatewayOutcome — терминальный вердикт шлюза для одной транзакции.
type GatewayOutcome struct {
	// Status — канонический статус: COMPLETED или FAILED.
	Status        string
	RawStatus     string
	BankRefNo     string
	PaymentMethod string
	ErrorMessage  string
}

type SettleResult struct {
	Credited bool
	// AlreadyTerminal — транзакция уже была завершена; мутаций не было.
	AlreadyTerminal bool
	OpeningBalance  decimal.Decimal
	ClosingBalance  decimal.Decimal
}

const transactionColumns = `
  id, transaction_id, gateway_order_ref, user_id,
  amount, status, payment_status_raw, payment_method, bank_ref_no,
  error_message, opening_balance, closing_balance,
  created_at, settled_at
`

func (s *Storage) CreateTransaction(ctx context.Context, in models.TransactionCreateInput) (*models.Transaction, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO wallets (user_id, balance, updated_at)
VALUES ($1, 0, $2)
ON CONFLICT (user_id) DO NOTHING
`, in.UserID, now)
	if err != nil {
		return nil, errors.Wrap(err, "ensure wallet")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO transactions (
  transaction_id, gateway_order_ref, user_id, amount, status, created_at
)
VALUES ($1,$2,$3,$4,$5,$6)
`, in.TransactionID, in.GatewayOrderRef, in.UserID, in.Amount, models.PaymentStatusPending, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, models.ErrConflict
		}
		return nil, errors.Wrap(err, "insert transaction")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetTransaction(ctx, in.TransactionID)
}

func (s *Storage) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE transaction_id = $1
`, transactionID)
	if err != nil {
		return nil, errors.Wrap(err, "select transaction")
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, errors.Wrap(rows.Err(), "rows")
		}
		return nil, models.ErrNotFound
	}
	return scanTransaction(rows)
}

func (s *Storage) ListPendingTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 10_000 {
		limit = 1000
	}

	rows, err := s.db.Query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2
`, models.PaymentStatusPending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select pending transactions")
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetWalletBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRow(ctx, `
SELECT balance FROM wallets WHERE user_id = $1
`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return decimal.Decimal{}, models.ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "select wallet balance")
	}
	return balance, nil
}

// SettleTransaction переводит транзакцию в терминальный статус и, для
// COMPLETED, зачисляет кошелёк — ровно один раз. Защита от двойного
// зачисления двухслойная: FOR UPDATE по строке транзакции плюс условный
// апдейт "status = PENDING"; повторный прогон упирается в AlreadyTerminal.
func (s *Storage) SettleTransaction(ctx context.Context, transactionID string, out GatewayOutcome) (SettleResult, error) {
	if !models.PaymentStatusTerminal(out.Status) {
		return SettleResult{}, errors.Errorf("settle with non-terminal status %q", out.Status)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SettleResult{}, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id     uint64
		userID uint64
		amount decimal.Decimal
		status string
	)
	err = tx.QueryRow(ctx, `
SELECT id, user_id, amount, status
FROM transactions
WHERE transaction_id = $1
FOR UPDATE
`, transactionID).Scan(&id, &userID, &amount, &status)
	if err == pgx.ErrNoRows {
		return SettleResult{}, models.ErrNotFound
	}
	if err != nil {
		return SettleResult{}, errors.Wrap(err, "select transaction for update")
	}

	if models.PaymentStatusTerminal(status) {
		return SettleResult{AlreadyTerminal: true}, nil
	}

	if out.Status == models.PaymentStatusFailed {
		ct, err := tx.Exec(ctx, `
UPDATE transactions
SET
  status = $2,
  payment_status_raw = $3,
  error_message = $4,
  settled_at = $5
WHERE id = $1 AND status = $6
`, id, models.PaymentStatusFailed, out.RawStatus, out.ErrorMessage, now, models.PaymentStatusPending)
		if err != nil {
			return SettleResult{}, errors.Wrap(err, "mark transaction failed")
		}
		if ct.RowsAffected() == 0 {
			return SettleResult{AlreadyTerminal: true}, nil
		}
		if err := tx.Commit(ctx); err != nil {
			return SettleResult{}, errors.Wrap(err, "commit tx")
		}
		return SettleResult{}, nil
	}

	var opening decimal.Decimal
	err = tx.QueryRow(ctx, `
SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE
`, userID).Scan(&opening)
	if err == pgx.ErrNoRows {
		return SettleResult{}, errors.Errorf("wallet missing for user %d", userID)
	}
	if err != nil {
		return SettleResult{}, errors.Wrap(err, "select wallet for update")
	}

	closing, err := opening.Add(amount)
	if err != nil {
		return SettleResult{}, errors.Wrap(err, "add amount")
	}
	closing = closing.Round(2)

	_, err = tx.Exec(ctx, `
UPDATE wallets SET balance = $2, updated_at = now() WHERE user_id = $1
`, userID, closing)
	if err != nil {
		return SettleResult{}, errors.Wrap(err, "credit wallet")
	}

	ct, err := tx.Exec(ctx, `
UPDATE transactions
SET
  status = $2,
  payment_status_raw = $3,
  payment_method = $4,
  bank_ref_no = $5,
  opening_balance = $6,
  closing_balance = $7,
  settled_at = $8
WHERE id = $1 AND status = $9
`, id, models.PaymentStatusCompleted, out.RawStatus, out.PaymentMethod, out.BankRefNo,
		opening, closing, now, models.PaymentStatusPending)
	if err != nil {
		return SettleResult{}, errors.Wrap(err, "mark transaction completed")
	}
	if ct.RowsAffected() == 0 {
		// Условие не сработало — значит, кто-то успел раньше.
		// Rollback в defer откатит и зачисление.
		return SettleResult{AlreadyTerminal: true}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return SettleResult{}, errors.Wrap(err, "commit tx")
	}
	return SettleResult{Credited: true, OpeningBalance: opening, ClosingBalance: closing}, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		errorMessage     *string
		opening, closing decimal.NullDecimal
	)
	var tr models.Transaction
	if err := row.Scan(
		&tr.ID, &tr.TransactionID, &tr.GatewayOrderRef, &tr.UserID,
		&tr.Amount, &tr.Status, &tr.PaymentStatusRaw, &tr.PaymentMethod, &tr.BankRefNo,
		&errorMessage, &opening, &closing,
		&tr.CreatedAt, &tr.SettledAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan transaction")
	}
	tr.ErrorMessage = errorMessage
	if opening.Valid {
		v := opening.Decimal
		tr.OpeningBalance = &v
	}
	if closing.Valid {
		v := closing.Decimal
		tr.ClosingBalance = &v
	}
	return &tr, nil
}
