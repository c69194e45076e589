package indexing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// URLColumn is the header shared by uploaded CSV files and the hand-off file.
const URLColumn = "URL"

// ReadURLList parses a CSV document whose header row contains a URL column.
// Blank cells are skipped and duplicates are kept in file order.
func ReadURLList(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv file is empty", ErrValidation)
		}
		return nil, fmt.Errorf("%w: read csv header: %v", ErrValidation, err)
	}
	col := -1
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(name), URLColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: csv must have a %q column header", ErrValidation, URLColumn)
	}

	var urls []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv: %v", ErrValidation, err)
		}
		if col >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[col]); v != "" {
			urls = append(urls, v)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: csv contains no urls", ErrValidation)
	}
	return urls, nil
}

// WriteURLList writes the hand-off file read by the indexing program: a URL
// header followed by one URL per line.
func WriteURLList(w io.Writer, urls []string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{URLColumn}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, u := range urls {
		if err := writer.Write([]string{u}); err != nil {
			return fmt.Errorf("write url: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush url list: %w", err)
	}
	return nil
}
