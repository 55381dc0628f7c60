package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type table [][]string

func (t table) Header() []string { return t[0] }
func (t table) Rows() [][]string { return t[1:] }

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"plain", "3 rules loaded", "3 rules loaded\n"},
		{
			"table",
			table{{"ID", "PRIORITY"}, {"deny-bulk-delete", "900"}, {"log", "100"}},
			"ID                PRIORITY\ndeny-bulk-delete  900\nlog               100\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (TextFormatter{}).Write(&buf, tt.data); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int{"pending": 2}
	if err := (JSONFormatter{}).Write(&buf, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got["pending"] != 2 {
		t.Errorf("Expected pending 2, got %v", got)
	}
	if !strings.Contains(buf.String(), "\n  \"pending\"") {
		t.Errorf("Expected indented output, got %q", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := struct {
		InSync  bool `yaml:"in_sync"`
		Pending int  `yaml:"pending"`
	}{true, 0}
	if err := (YAMLFormatter{}).Write(&buf, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.String() != "in_sync: true\npending: 0\n" {
		t.Errorf("Unexpected YAML %q", buf.String())
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    Formatter
		wantErr bool
	}{
		{"", TextFormatter{}, false},
		{FormatText, TextFormatter{}, false},
		{FormatJSON, JSONFormatter{}, false},
		{FormatYAML, YAMLFormatter{}, false},
		{"xml", nil, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			got, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %T, got %T", tt.want, got)
			}
		})
	}
}
