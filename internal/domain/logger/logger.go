package logger

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// QueryLogger times one repository call and reports it under type=db.
type QueryLogger struct {
	Operation string
	Table     string
	Args      []any
	StartTime time.Time
}

func NewQueryLogger(operation, table string, args ...any) *QueryLogger {
	return &QueryLogger{
		Operation: operation,
		Table:     table,
		Args:      args,
		StartTime: time.Now(),
	}
}

func (l *QueryLogger) attrs() []any {
	return []any{
		slog.String("type", "db"),
		slog.String("operation", l.Operation),
		slog.String("table", l.Table),
		slog.Any("args", l.Args),
		slog.Duration("took", time.Since(l.StartTime)),
	}
}

// Log records the outcome. A missing row is not a query failure and is
// logged at debug level.
func (l *QueryLogger) Log(err error, rowsAffected int64) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		slog.Debug("Query found no rows", l.attrs()...)
	case err != nil:
		slog.Error("Query failed", append(l.attrs(), slog.Any("error", err))...)
	default:
		slog.Debug("Query executed", append(l.attrs(), slog.Int64("affected_rows", rowsAffected))...)
	}
}

// Done is Log for statements whose sql.Result is at hand.
func (l *QueryLogger) Done(res sql.Result, err error) {
	var n int64
	if err == nil && res != nil {
		n, _ = res.RowsAffected()
	}
	l.Log(err, n)
}
