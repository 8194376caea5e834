package store

import (
	"reflect"
	"testing"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []CredentialSummary
	}{
		{
			name: "header and two rows",
			raw:  "NAME  TYPE  CREATED\nfoo  api-key  2024-01-01\nbar  oauth  2024-02-02",
			want: []CredentialSummary{
				{Name: "foo", Kind: "api-key", Created: "2024-01-01"},
				{Name: "bar", Kind: "oauth", Created: "2024-02-02"},
			},
		},
		{name: "empty", raw: "", want: []CredentialSummary{}},
		{name: "whitespace only", raw: "  \n\t\n", want: []CredentialSummary{}},
		{name: "header only", raw: "NAME  TYPE  CREATED\n", want: []CredentialSummary{}},
		{
			name: "short row skipped",
			raw:  "NAME  TYPE  CREATED\nbaz  onlytype\nfoo  api-key  2024-01-01",
			want: []CredentialSummary{{Name: "foo", Kind: "api-key", Created: "2024-01-01"}},
		},
		{
			name: "extra columns ignored",
			raw:  "NAME  TYPE  CREATED  NOTE\nfoo  api-key  2024-01-01  spare",
			want: []CredentialSummary{{Name: "foo", Kind: "api-key", Created: "2024-01-01"}},
		},
		{
			name: "single spaces stay inside a column",
			raw:  "NAME    TYPE    CREATED\nmy key    api key    2024-01-01",
			want: []CredentialSummary{{Name: "my key", Kind: "api key", Created: "2024-01-01"}},
		},
		{
			name: "tabwriter padding and trailing newline",
			raw:  "NAME     TYPE     CREATED\nopenai   openai   2024-03-04\n\n",
			want: []CredentialSummary{{Name: "openai", Kind: "openai", Created: "2024-03-04"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseList(tc.raw)
			if got == nil {
				t.Fatal("ParseList returned nil, want non-nil slice")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseList() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseList_SkippedCount(t *testing.T) {
	raw := "NAME  TYPE  CREATED\nopenai  api_key  2024-01-01\nbroken\nstripe  secret  2024-02-02\n"
	rows, skipped := parseList(raw)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}
