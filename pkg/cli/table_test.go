package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTableTo(&buf, "VLAN", "NAME").Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "VLAN", "NAME")
	tbl.Row("10", "engineering")
	tbl.Row("200", "lab")
	tbl.Flush()

	want := []string{
		"VLAN  NAME",
		"----  ----",
		"10    engineering",
		"200   lab",
	}
	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines: %q", len(got), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTable_Prefix(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "PORT").WithPrefix("  ")
	tbl.Row("Gi0/1")
	tbl.Flush()

	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "  ") {
			t.Errorf("line %q missing prefix", line)
		}
	}
}
