package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/crmbilling/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig tunes statement reporting for request and sweep traffic.
type QueryLogConfig struct {
	Level gormlogger.LogLevel
	// SlowThreshold applies to statements issued on the request path.
	SlowThreshold time.Duration
	// SweepSlowThreshold applies to statements issued by scheduler jobs.
	SweepSlowThreshold time.Duration
}

func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		Level:              gormlogger.Warn,
		SlowThreshold:      200 * time.Millisecond,
		SweepSlowThreshold: time.Second,
	}
}

// tableAreas groups tables by the part of the billing engine that owns them.
var tableAreas = map[string]string{
	"invoices":              "ledger",
	"invoice_sequences":     "ledger",
	"payments":              "ledger",
	"companies":             "subscription",
	"subscription_packages": "subscription",
	"invoice_reminders":     "reminders",
	"billing_settings":      "settings",
	"system_logs":           "activity",
	"casbin_rule":           "authorization",
}

// QueryLogger reports failed and slow statements. Each line names the table,
// its billing area and, for scheduler traffic, the sweep job that issued it.
type QueryLogger struct {
	cfg QueryLogConfig
}

func NewQueryLogger(cfg QueryLogConfig) *QueryLogger {
	return &QueryLogger{cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(zap.String("component", "db"), zap.Any("data", data))
	}
}

// Trace reports one executed statement. Not-found results are skipped since
// repositories turn them into domain errors.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	job := obscontext.JobFromContext(ctx)
	threshold := l.thresholdFor(job)

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.cfg.Level >= gormlogger.Error:
		l.report(ctx, zapcore.ErrorLevel, "query_failed", job, threshold, fc, elapsed, err)
	case threshold > 0 && elapsed > threshold && l.cfg.Level >= gormlogger.Warn:
		l.report(ctx, zapcore.WarnLevel, "slow_query", job, threshold, fc, elapsed, nil)
	case l.cfg.Level >= gormlogger.Info:
		l.report(ctx, zapcore.DebugLevel, "query", job, threshold, fc, elapsed, nil)
	}
}

// ParamsFilter drops bound values; amounts and contact details stay out of logs.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) thresholdFor(job string) time.Duration {
	if job != "" && l.cfg.SweepSlowThreshold > 0 {
		return l.cfg.SweepSlowThreshold
	}
	return l.cfg.SlowThreshold
}

func (l *QueryLogger) report(ctx context.Context, level zapcore.Level, event, job string, threshold time.Duration, fc func() (string, int64), elapsed time.Duration, err error) {
	log := FromContext(ctx)
	sql, rows := fc()
	table := tableFromSQL(sql)
	area := queryArea(table)

	scope := area
	if job != "" {
		scope = "sweeper"
	}
	ce := log.Check(level, scope+"."+event)
	if ce == nil {
		return
	}

	fields := []zap.Field{
		zap.String("component", "db"),
		zap.String("area", area),
		zap.String("table", table),
		zap.String("operation", operationFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if job != "" {
		fields = append(fields, zap.String("job", job))
	}
	if level == zapcore.WarnLevel {
		fields = append(fields, zap.Int64("threshold_ms", threshold.Milliseconds()))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func queryArea(table string) string {
	if area, ok := tableAreas[table]; ok {
		return area
	}
	return "db"
}

// tableFromSQL returns the first table named after FROM, INTO, UPDATE or JOIN.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE", "JOIN":
			name := strings.Trim(tokens[i+1], "\"`();,")
			if name == "" || strings.EqualFold(name, "SELECT") {
				continue
			}
			if _, after, ok := strings.Cut(name, "."); ok {
				name = strings.Trim(after, "\"`")
			}
			return strings.ToLower(name)
		}
	}
	return "unknown"
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
			return token
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
