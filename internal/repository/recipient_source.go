package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// DefaultAddressColumn is the header used when none is configured.
const DefaultAddressColumn = "email"

// ErrMissingAddressColumn is returned when the header lacks the address column.
var ErrMissingAddressColumn = errors.New("recipient list is missing the address column")

// RecipientSource produces recipients in list order.
type RecipientSource interface {
	Recipients(ctx context.Context) ([]model.Recipient, error)
}

// CSVRecipientSource reads recipients from CSV. The first row is the header;
// every column other than the address becomes a template field.
type CSVRecipientSource struct {
	Open          func() (io.ReadCloser, error)
	AddressColumn string
}

// NewCSVFileSource reads recipients from the CSV file at path.
func NewCSVFileSource(path, addressColumn string) *CSVRecipientSource {
	return &CSVRecipientSource{
		Open:          func() (io.ReadCloser, error) { return os.Open(path) },
		AddressColumn: addressColumn,
	}
}

// NewCSVReaderSource reads recipients from an already opened stream.
func NewCSVReaderSource(r io.Reader, addressColumn string) *CSVRecipientSource {
	return &CSVRecipientSource{
		Open:          func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		AddressColumn: addressColumn,
	}
}

// Recipients parses the whole list. Any read or parse problem makes the
// list unusable and is returned as-is.
func (s *CSVRecipientSource) Recipients(ctx context.Context) ([]model.Recipient, error) {
	rc, err := s.Open()
	if err != nil {
		return nil, fmt.Errorf("open recipient list: %w", err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("recipient list is empty: %w", err)
		}
		return nil, fmt.Errorf("read recipient header: %w", err)
	}

	column := s.AddressColumn
	if column == "" {
		column = DefaultAddressColumn
	}

	names := make([]string, len(header))
	addrIdx := -1
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		if names[i] == strings.ToLower(column) {
			addrIdx = i
		}
	}
	if addrIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingAddressColumn, column)
	}

	recipients := []model.Recipient{}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read recipient row %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}

		r := model.Recipient{
			Address: strings.TrimSpace(row[addrIdx]),
			Fields:  make(map[string]string, len(row)-1),
		}
		for i, v := range row {
			if i == addrIdx || names[i] == "" {
				continue
			}
			r.Fields[names[i]] = strings.TrimSpace(v)
		}
		recipients = append(recipients, r)
	}

	return recipients, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var _ RecipientSource = (*CSVRecipientSource)(nil)
