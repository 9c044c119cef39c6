package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"testing"

	"github.com/hitoshi/snowpulse/internal/model"
)

// stubDriver は発行されたSQL文を記録し、指定した文だけを失敗させる
// database/sqlドライバ。マージのトランザクション境界の検証に使う。
type stubDriver struct {
	executed   []string
	failOn     string
	committed  int
	rolledBack int
}

func (d *stubDriver) Open(name string) (driver.Conn, error) { return &stubConn{d: d}, nil }

type stubConn struct{ d *stubDriver }

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return &stubStmt{d: c.d, query: query}, nil
}

func (c *stubConn) Close() error              { return nil }
func (c *stubConn) Begin() (driver.Tx, error) { return &stubTx{d: c.d}, nil }

type stubTx struct{ d *stubDriver }

func (t *stubTx) Commit() error   { t.d.committed++; return nil }
func (t *stubTx) Rollback() error { t.d.rolledBack++; return nil }

type stubStmt struct {
	d     *stubDriver
	query string
}

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) Exec(args []driver.Value) (driver.Result, error) {
	if s.d.failOn != "" && strings.Contains(s.query, s.d.failOn) {
		return nil, fmt.Errorf("接続が切断されました")
	}
	s.d.executed = append(s.d.executed, s.query)
	return driver.RowsAffected(1), nil
}

func (s *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, fmt.Errorf("クエリは想定していません: %s", s.query)
}

// newStubDB はstubDriverを使う*sql.DBを開く。ドライバ名はテストごとに一意。
func newStubDB(t *testing.T, failOn string) (*sql.DB, *stubDriver) {
	t.Helper()
	d := &stubDriver{failOn: failOn}
	name := "stub_" + t.Name()
	sql.Register(name, d)
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, d
}

func mergeFixture() *MergeApplication {
	return &MergeApplication{
		TargetID:         "p-1",
		SourceID:         "p-2",
		SourceNameChosen: true,
		Target: &model.Participant{
			ID:      "p-1",
			Name:    "Bill Mc Dermott",
			Title:   "CEO",
			Aliases: []string{"Bill McDermott", "Bill Mc Dermott"},
		},
	}
}

func TestApplyMergeStatementOrder(t *testing.T) {
	db, d := newStubDB(t, "")
	repo := NewPostgresParticipantRepo(db)

	if err := repo.ApplyMerge(context.Background(), mergeFixture()); err != nil {
		t.Fatalf("ApplyMerge() error = %v", err)
	}

	wantOrder := []string{
		"SET name = NULL",
		"UPDATE participants",
		"UPDATE item_participants",
		"DELETE FROM item_participants",
		"UPDATE session_participants",
		"DELETE FROM session_participants",
		"DELETE FROM participants",
	}
	if len(d.executed) != len(wantOrder) {
		t.Fatalf("executed = %d statements, want %d:\n%s",
			len(d.executed), len(wantOrder), strings.Join(d.executed, "\n"))
	}
	for i, want := range wantOrder {
		if !strings.Contains(d.executed[i], want) {
			t.Errorf("statement[%d] = %q, want it to contain %q", i, d.executed[i], want)
		}
	}

	// 両者が同じコンテンツ・セッションに紐づく場合、付け替えはターゲット側に
	// 既存行が無いものに限定され、残ったソース側の行は削除される。
	// 結果として自然キーごとに1行だけが残る。
	if !strings.Contains(d.executed[2], "item_id NOT IN") {
		t.Errorf("item re-parent = %q, should exclude items already linked to the target", d.executed[2])
	}
	if !strings.Contains(d.executed[4], "session_id NOT IN") {
		t.Errorf("session re-parent = %q, should exclude sessions already linked to the target", d.executed[4])
	}

	if d.committed != 1 {
		t.Errorf("committed = %d, want 1", d.committed)
	}
	if d.rolledBack != 0 {
		t.Errorf("rolledBack = %d, want 0", d.rolledBack)
	}
}

func TestApplyMergeRollsBackOnFailure(t *testing.T) {
	db, d := newStubDB(t, "UPDATE session_participants")
	repo := NewPostgresParticipantRepo(db)

	if err := repo.ApplyMerge(context.Background(), mergeFixture()); err == nil {
		t.Fatal("ApplyMerge() error = nil, want error")
	}

	if d.committed != 0 {
		t.Errorf("committed = %d, want 0", d.committed)
	}
	if d.rolledBack != 1 {
		t.Errorf("rolledBack = %d, want 1", d.rolledBack)
	}
	// 途中失敗時はソースの削除まで到達しない
	for _, q := range d.executed {
		if strings.Contains(q, "DELETE FROM participants") {
			t.Errorf("source delete executed after failure: %q", q)
		}
	}
}

func TestApplyMergeKeepsTargetName(t *testing.T) {
	db, d := newStubDB(t, "")
	repo := NewPostgresParticipantRepo(db)

	m := mergeFixture()
	m.SourceNameChosen = false
	if err := repo.ApplyMerge(context.Background(), m); err != nil {
		t.Fatalf("ApplyMerge() error = %v", err)
	}

	// ターゲットの名前を残す場合、ソース名のクリアは発行されない
	for _, q := range d.executed {
		if strings.Contains(q, "SET name = NULL") {
			t.Errorf("source name cleared unexpectedly: %q", q)
		}
	}
	if len(d.executed) != 6 {
		t.Errorf("executed = %d statements, want 6", len(d.executed))
	}
}
