package parsers

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names the character set of an input file
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingLatin1      Encoding = "iso-8859-1"
)

// ParseEncoding accepts the canonical names and their common spellings
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "windows-1252", "cp1252":
		return EncodingWindows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return EncodingLatin1, nil
	default:
		return "", fmt.Errorf("unsupported encoding '%s' (use utf-8, windows-1252 or iso-8859-1)", s)
	}
}

// transformer returns the decoder that turns the source bytes into UTF-8.
// UTF-8 input is validated and a leading byte order mark is dropped.
func (e Encoding) transformer() transform.Transformer {
	switch e {
	case EncodingWindows1252:
		return charmap.Windows1252.NewDecoder()
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder()
	default:
		return transform.Chain(encoding.UTF8Validator, unicode.UTF8BOM.NewDecoder())
	}
}

// Column describes one canonical field of an input file
type Column struct {
	Name     string
	Required bool
	Synonyms []string
}

// LedgerColumns are the fields read from a ledger export
var LedgerColumns = []Column{
	{Name: "id", Required: true, Synonyms: []string{"trxID", "transaction_id", "txn_id"}},
	{Name: "type", Required: true, Synonyms: []string{"transaction_type", "kind"}},
	{Name: "status", Required: true, Synonyms: []string{"state"}},
	{Name: "currency", Required: true, Synonyms: []string{"ccy"}},
	{Name: "amount", Required: true, Synonyms: []string{"value"}},
	{Name: "vendor", Synonyms: []string{"merchant", "supplier"}},
	{Name: "module"},
	{Name: "marketplace"},
	{Name: "group"},
	{Name: "costCenter"},
	{Name: "taxCode"},
	{Name: "occurredAt", Required: true, Synonyms: []string{"transactionTime", "date", "timestamp"}},
	{Name: "reference", Synonyms: []string{"ref"}},
	{Name: "note", Synonyms: []string{"notes", "memo"}},
}

// InvoiceColumns are the fields read from an invoice-line export
var InvoiceColumns = []Column{
	{Name: "id", Required: true, Synonyms: []string{"lineId", "line_id"}},
	{Name: "invoiceNumber", Synonyms: []string{"invoice_no"}},
	{Name: "invoiceId"},
	{Name: "entity"},
	{Name: "currency", Required: true, Synonyms: []string{"ccy"}},
	{Name: "serviceDate", Required: true, Synonyms: []string{"date"}},
	{Name: "description"},
	{Name: "vendor", Synonyms: []string{"supplier"}},
	{Name: "module"},
	{Name: "marketplace"},
	{Name: "group"},
	{Name: "costCenter"},
	{Name: "projectTag", Synonyms: []string{"project"}},
	{Name: "taxCode"},
	{Name: "amount", Required: true, Synonyms: []string{"value"}},
}

// FileConfig holds configuration for reading one kind of input file
type FileConfig struct {
	HasHeader     bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter     rune              `json:"delimiter" mapstructure:"-"`
	Encoding      Encoding          `json:"encoding" mapstructure:"encoding"`
	MaxErrors     int               `json:"max_errors" mapstructure:"max_errors"`
	ColumnAliases map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultFileConfig returns a configuration with standard defaults
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		HasHeader:     true,
		Delimiter:     ',',
		Encoding:      EncodingUTF8,
		MaxErrors:     100,
		ColumnAliases: make(map[string]string),
	}
}

// Validate checks if the file configuration is valid
func (fc *FileConfig) Validate() error {
	switch fc.Delimiter {
	case 0, '\r', '\n', '"':
		return fmt.Errorf("invalid delimiter %q", fc.Delimiter)
	}

	if _, err := ParseEncoding(string(fc.Encoding)); err != nil {
		return err
	}

	if fc.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", fc.MaxErrors)
	}

	return nil
}

// GetColumnName returns the header configured for a canonical column, or the
// canonical name itself
func (fc *FileConfig) GetColumnName(standardName string) string {
	if alias, exists := fc.ColumnAliases[standardName]; exists && alias != "" {
		return alias
	}
	return standardName
}

// ParseDelimiter turns a config value such as "," ";" or "\t" into a rune
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",":
		return ',', nil
	case `\t`, "\t", "tab":
		return '\t', nil
	}

	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got '%s'", s)
	}
	return runes[0], nil
}
