package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

/************ fake pgx ************/
type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr   error
	qrCount int
	qrLast  time.Time

	execSQL  []string
	execArgs [][]any
	execErr  error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if !strings.Contains(sql, "SELECT fail_count, last_failure") {
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
	return fakeRow{scan: func(dest ...any) error {
		if f.qrErr != nil {
			return f.qrErr
		}
		*(dest[0].(*int)) = f.qrCount
		*(dest[1].(*time.Time)) = f.qrLast
		return nil
	}}
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPG_Allow_NoRow(t *testing.T) {
	fp := &fakePool{qrErr: pgx.ErrNoRows}
	l := NewPGWithQuerier(fp, DefaultPolicy(), nil)
	ok, err := l.Allow(context.Background(), "a@b.io")
	if err != nil || !ok {
		t.Fatalf("Allow: ok=%v err=%v, want true,nil", ok, err)
	}
}

func TestPG_Allow_Locked(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{qrCount: 5, qrLast: now.Add(-time.Minute)}
	l := NewPGWithQuerier(fp, DefaultPolicy(), fixedClock(now))
	ok, err := l.Allow(context.Background(), "a@b.io")
	if err != nil || ok {
		t.Fatalf("Allow: ok=%v err=%v, want false,nil", ok, err)
	}
	if len(fp.execSQL) != 0 {
		t.Fatalf("locked record must not be deleted")
	}
}

func TestPG_Allow_WindowElapsedClears(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{qrCount: 9, qrLast: now.Add(-301 * time.Second)}
	l := NewPGWithQuerier(fp, DefaultPolicy(), fixedClock(now))
	ok, err := l.Allow(context.Background(), "a@b.io")
	if err != nil || !ok {
		t.Fatalf("Allow: ok=%v err=%v, want true,nil", ok, err)
	}
	if len(fp.execSQL) != 1 || !strings.Contains(fp.execSQL[0], "DELETE FROM auth_limiter") {
		t.Fatalf("expected delete, got %v", fp.execSQL)
	}
}

func TestPG_Allow_BelowThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{qrCount: 4, qrLast: now}
	l := NewPGWithQuerier(fp, DefaultPolicy(), fixedClock(now))
	ok, err := l.Allow(context.Background(), "a@b.io")
	if err != nil || !ok {
		t.Fatalf("Allow: ok=%v err=%v, want true,nil", ok, err)
	}
}

func TestPG_Allow_QueryError(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("boom")}
	l := NewPGWithQuerier(fp, DefaultPolicy(), nil)
	if _, err := l.Allow(context.Background(), "a@b.io"); err == nil {
		t.Fatalf("want error")
	}
}

func TestPG_Failure_UpsertArgs(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{}
	l := NewPGWithQuerier(fp, Policy{MaxFailures: 3, Window: time.Minute}, fixedClock(now))
	if err := l.Failure(context.Background(), "a@b.io"); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if !strings.Contains(fp.execSQL[0], "ON CONFLICT (identifier)") {
		t.Fatalf("unexpected sql: %s", fp.execSQL[0])
	}
	args := fp.execArgs[0]
	if args[0] != "a@b.io" || args[1] != now || args[2] != time.Minute {
		t.Fatalf("unexpected args: %v", args)
	}

	fp.execErr = errors.New("down")
	if err := l.Failure(context.Background(), "a@b.io"); err == nil {
		t.Fatalf("want exec error")
	}
}
