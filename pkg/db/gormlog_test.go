package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/stockledger/pkg/logger"
)

func newBufferedQueryLogger(slow time.Duration) (gormlogger.Interface, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf})
	return newQueryLogger(logg, slow), buf
}

func TestQueryLoggerReportsSlowStatements(t *testing.T) {
	ql, buf := newBufferedQueryLogger(10 * time.Millisecond)
	sql := func() (string, int64) { return "SELECT * FROM balances", 3 }

	ql.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should be silent, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	out := buf.String()
	if !strings.Contains(out, "slow query") || !strings.Contains(out, "SELECT * FROM balances") {
		t.Fatalf("expected slow query entry, got %s", out)
	}
}

func TestQueryLoggerIgnoresRecordNotFound(t *testing.T) {
	ql, buf := newBufferedQueryLogger(0)
	sql := func() (string, int64) { return "SELECT 1", 0 }

	ql.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("not found should be silent, got %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now(), sql, errors.New("deadlock detected"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Fatalf("expected failure entry, got %s", buf.String())
	}
}

func TestQueryLoggerSilentMode(t *testing.T) {
	ql, buf := newBufferedQueryLogger(time.Nanosecond)
	ql = ql.LogMode(gormlogger.Silent)
	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should not log, got %s", buf.String())
	}
}

func TestNewQueryLoggerWithoutLogger(t *testing.T) {
	if newQueryLogger(nil, time.Second) != gormlogger.Discard {
		t.Fatal("expected discard logger")
	}
}
