package migrate

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	script := `create table a (id text);
insert into a values ('x;y');
`
	stmts := splitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "'x;y'") {
		t.Fatalf("semicolon inside string literal split the statement: %q", stmts[1])
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL("does/not/exist", ".up.sql")
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if files != nil {
		t.Fatalf("expected no files, got %v", files)
	}
}
