package mssql

import (
	"errors"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"

	"ingest/internal/storage"
)

func TestBuildCreateTableSQL(t *testing.T) {
	got, err := BuildCreateTableSQL("funding.usa_names", []string{"hash_code"})
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'funding.usa_names', N'U') IS NULL CREATE TABLE [funding].[usa_names] (\n  [hash_code] NVARCHAR(MAX)\n);"
	if got != want {
		t.Fatalf("sql mismatch:\n got  %s\n want %s", got, want)
	}
}

func TestClassify(t *testing.T) {
	if !storage.IsSchemaMismatch(classify(mssql.Error{Number: 207})) {
		t.Fatal("invalid column number not classified as mismatch")
	}
	if !storage.IsTransient(classify(mssql.Error{Number: 1205})) {
		t.Fatal("deadlock not classified as transient")
	}
	plain := errors.New("boom")
	if got := classify(plain); got != plain {
		t.Fatalf("unclassified error rewritten: %v", got)
	}
}
