// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "boursicotor/internal/errors"
	"boursicotor/internal/models"
)

// SQLiteStore implements OrderStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based order store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Orders table: one row per order, never deleted
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		remote_id TEXT UNIQUE,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		limit_price REAL NOT NULL DEFAULT 0,
		stop_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		filled_qty INTEGER NOT NULL DEFAULT 0,
		avg_fill_price REAL NOT NULL DEFAULT 0,
		commission REAL NOT NULL DEFAULT 0,
		is_paper INTEGER NOT NULL DEFAULT 0,
		strategy TEXT,
		annotation TEXT,
		status_message TEXT,
		anomaly TEXT,
		created_at DATETIME NOT NULL,
		submitted_at DATETIME,
		filled_at DATETIME
	);

	-- Executions table: one row per broker execution id, for dedup
	CREATE TABLE IF NOT EXISTS executions (
		exec_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		remote_id TEXT,
		filled_qty INTEGER NOT NULL,
		fill_price REAL NOT NULL,
		commission REAL NOT NULL DEFAULT 0,
		event_time DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (order_id) REFERENCES orders(id)
	);

	-- Anomalies table: data-integrity red flags awaiting manual review
	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (order_id) REFERENCES orders(id)
	);

	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
	CREATE INDEX IF NOT EXISTS idx_executions_order ON executions(order_id);
	CREATE INDEX IF NOT EXISTS idx_anomalies_order ON anomalies(order_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const orderColumns = `id, remote_id, symbol, side, type, quantity, limit_price, stop_price,
	status, filled_qty, avg_fill_price, commission, is_paper, strategy, annotation,
	status_message, anomaly, created_at, submitted_at, filled_at`

// SaveOrder inserts a new order.
func (s *SQLiteStore) SaveOrder(ctx context.Context, order *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, order.RemoteID, order.Symbol, order.Side, order.Type, order.Quantity,
		order.LimitPrice, order.StopPrice, order.Status, order.FilledQty,
		order.AvgFillPrice, order.Commission, boolToInt(order.Paper), order.Strategy,
		order.Annotation, order.StatusMessage, order.Anomaly, order.CreatedAt,
		nullTime(order.SubmittedAt), nullTime(order.FilledAt))
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by its local id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = ?
	`, id)
	return scanOrder(row)
}

// GetOrderByRemoteID retrieves an order by its broker-assigned id.
func (s *SQLiteStore) GetOrderByRemoteID(ctx context.Context, remoteID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE remote_id = ?
	`, remoteID)
	return scanOrder(row)
}

// ListOrders retrieves orders matching the filter, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if filter.Paper != nil {
		query += " AND is_paper = ?"
		args = append(args, boolToInt(*filter.Paper))
	}
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// ListReconcilable retrieves non-terminal orders that have a remote id.
// PENDING orders without a remote id have nothing to reconcile against.
func (s *SQLiteStore) ListReconcilable(ctx context.Context) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status IN (?, ?) AND (anomaly IS NULL OR anomaly = '')
		ORDER BY created_at ASC
	`, models.StatusSubmitted, models.StatusPartiallyFilled)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcilable orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// UpdateOrderIfStatus persists the order's mutable fields conditional on the
// stored status still matching expect.
func (s *SQLiteStore) UpdateOrderIfStatus(ctx context.Context, order *models.Order, expect models.OrderStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET remote_id = NULLIF(?, ''), status = ?, filled_qty = ?, avg_fill_price = ?,
			commission = ?, annotation = ?, status_message = ?, anomaly = ?,
			submitted_at = ?, filled_at = ?
		WHERE id = ? AND status = ?
	`, order.RemoteID, order.Status, order.FilledQty, order.AvgFillPrice,
		order.Commission, order.Annotation, order.StatusMessage, order.Anomaly,
		nullTime(order.SubmittedAt), nullTime(order.FilledAt), order.ID, expect)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Wrapf(apperrors.ErrConflict, "order %s no longer in status %s", order.ID, expect)
	}
	return nil
}

// ApplyExecution records an execution event and persists the updated order
// in a single transaction. Returns false when exec_id was already applied.
func (s *SQLiteStore) ApplyExecution(ctx context.Context, exec models.ExecutionEvent, order *models.Order, expect models.OrderStatus) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO executions (exec_id, order_id, remote_id, filled_qty, fill_price, commission, event_time)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)
	`, exec.ExecID, order.ID, exec.RemoteID, exec.FilledQty, exec.FillPrice,
		exec.Commission, nullTime(exec.Timestamp))
	if err != nil {
		return false, fmt.Errorf("failed to record execution: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if inserted == 0 {
		// Duplicate delivery: already applied, nothing to do.
		return false, nil
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, filled_qty = ?, avg_fill_price = ?, commission = ?,
			anomaly = ?, filled_at = ?
		WHERE id = ? AND status = ?
	`, order.Status, order.FilledQty, order.AvgFillPrice, order.Commission,
		order.Anomaly, nullTime(order.FilledAt), order.ID, expect)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return false, apperrors.Wrapf(apperrors.ErrConflict, "order %s no longer in status %s", order.ID, expect)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ListExecutionIDs returns the execution ids recorded for an order, oldest
// first.
func (s *SQLiteStore) ListExecutionIDs(ctx context.Context, orderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exec_id FROM executions WHERE order_id = ? ORDER BY created_at ASC, exec_id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan execution id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordAnomaly inserts an anomaly row and marks the order as frozen.
func (s *SQLiteStore) RecordAnomaly(ctx context.Context, orderID, kind, detail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO anomalies (order_id, kind, detail) VALUES (?, ?, ?)
	`, orderID, kind, detail); err != nil {
		return fmt.Errorf("failed to record anomaly: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET anomaly = ? WHERE id = ?
	`, kind, orderID); err != nil {
		return fmt.Errorf("failed to flag order anomaly: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetAnomalies retrieves anomalies, optionally filtered by order id.
func (s *SQLiteStore) GetAnomalies(ctx context.Context, orderID string) ([]models.Anomaly, error) {
	query := "SELECT id, order_id, kind, detail, created_at FROM anomalies"
	args := []interface{}{}
	if orderID != "" {
		query += " WHERE order_id = ?"
		args = append(args, orderID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		var detail sql.NullString
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Kind, &detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Detail = detail.String
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// GetStats computes aggregate statistics over the order store.
func (s *SQLiteStore) GetStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{BySymbol: make(map[string]models.SymbolStats)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN (?, ?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN anomaly IS NOT NULL AND anomaly != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(filled_qty), 0),
			COALESCE(SUM(commission), 0)
		FROM orders
	`, models.StatusFilled,
		models.StatusPending, models.StatusSubmitted, models.StatusPartiallyFilled,
		models.StatusCancelled, models.StatusRejected, models.StatusError).Scan(
		&stats.TotalOrders, &stats.FilledCount, &stats.OpenCount,
		&stats.CancelledCount, &stats.RejectedCount, &stats.ErrorCount,
		&stats.AnomalyCount, &stats.TotalVolume, &stats.TotalCommission)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	if stats.TotalOrders > 0 {
		stats.FillRate = float64(stats.FilledCount) / float64(stats.TotalOrders) * 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(filled_qty), 0),
			COALESCE(SUM(commission), 0)
		FROM orders GROUP BY symbol
	`, models.StatusFilled)
	if err != nil {
		return nil, fmt.Errorf("failed to compute per-symbol stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ss models.SymbolStats
		if err := rows.Scan(&ss.Symbol, &ss.TotalOrders, &ss.FilledCount, &ss.TotalVolume, &ss.TotalCommission); err != nil {
			return nil, fmt.Errorf("failed to scan symbol stats: %w", err)
		}
		stats.BySymbol[ss.Symbol] = ss
	}
	return stats, rows.Err()
}

// scanTarget abstracts *sql.Row and *sql.Rows.
type scanTarget interface {
	Scan(dest ...interface{}) error
}

func scanOrderInto(target scanTarget, o *models.Order) error {
	var remoteID, strategy, annotation, statusMessage, anomaly sql.NullString
	var submittedAt, filledAt sql.NullTime
	var isPaper int

	err := target.Scan(&o.ID, &remoteID, &o.Symbol, &o.Side, &o.Type, &o.Quantity,
		&o.LimitPrice, &o.StopPrice, &o.Status, &o.FilledQty, &o.AvgFillPrice,
		&o.Commission, &isPaper, &strategy, &annotation, &statusMessage, &anomaly,
		&o.CreatedAt, &submittedAt, &filledAt)
	if err != nil {
		return err
	}

	o.RemoteID = remoteID.String
	o.Strategy = strategy.String
	o.Annotation = annotation.String
	o.StatusMessage = statusMessage.String
	o.Anomaly = anomaly.String
	o.Paper = isPaper == 1
	if submittedAt.Valid {
		o.SubmittedAt = submittedAt.Time
	}
	if filledAt.Valid {
		o.FilledAt = filledAt.Time
	}
	return nil
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	if err := scanOrderInto(row, &o); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := scanOrderInto(rows, &o); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// Ensure SQLiteStore implements OrderStore
var _ OrderStore = (*SQLiteStore)(nil)
