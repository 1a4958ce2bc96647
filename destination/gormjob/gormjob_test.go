package gormjob

import "testing"

func TestSQLType(t *testing.T) {
	cases := map[string]string{
		"int":       "INTEGER",
		"integer":   "INTEGER",
		"bigint":    "BIGINT",
		"float":     "DOUBLE PRECISION",
		"bool":      "BOOLEAN",
		"timestamp": "TIMESTAMP",
		"unknown":   "TEXT",
	}
	for in, want := range cases {
		if got := sqlType(in); got != want {
			t.Errorf("sqlType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestColumnDef(t *testing.T) {
	col := Column{Name: "total", DataType: "float", Nullable: false}
	want := `"total" DOUBLE PRECISION NOT NULL`
	if got := columnDef(col); got != want {
		t.Errorf("columnDef = %q, want %q", got, want)
	}
}

func TestColumnDefNullable(t *testing.T) {
	col := Column{Name: "note", DataType: "text", Nullable: true}
	want := `"note" TEXT`
	if got := columnDef(col); got != want {
		t.Errorf("columnDef = %q, want %q", got, want)
	}
}

func TestColumnDefs(t *testing.T) {
	cols := []Column{
		{Name: "id", DataType: "bigint"},
		{Name: "name", DataType: "text", Nullable: true},
	}
	want := `"id" BIGINT NOT NULL, "name" TEXT`
	if got := columnDefs(cols); got != want {
		t.Errorf("columnDefs = %q, want %q", got, want)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent("orders"); got != `"orders"` {
		t.Errorf("quoteIdent = %q", got)
	}
}
