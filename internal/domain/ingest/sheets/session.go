// Package sheets reads financial tables from Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/ingest/parser"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// DefaultWorksheet is read when no worksheet name is given
const DefaultWorksheet = "Sheet1"

var (
	// ErrEmptySheet is returned when a worksheet has a header row at most
	ErrEmptySheet = errors.New("no data found in the sheet or sheet is empty")
	// ErrSessionClosed is returned by Fetch after Close
	ErrSessionClosed = errors.New("sheets session is closed")
)

// ValuesReader returns the raw cell values of a range.
type ValuesReader interface {
	ReadValues(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

// apiReader is the ValuesReader backed by the Sheets v4 API
type apiReader struct {
	srv *sheetsapi.Service
}

func (r *apiReader) ReadValues(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := r.srv.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Session owns one authenticated Sheets client. Create it once at startup and pass it
// to the components that read spreadsheets.
type Session struct {
	reader ValuesReader
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSession authenticates with a service-account credentials file.
func NewSession(ctx context.Context, credentialsFile string, logger *slog.Logger) (*Session, error) {
	srv, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewSessionWithReader(&apiReader{srv: srv}, logger), nil
}

// NewSessionFromJSON authenticates with service-account credentials supplied in memory.
func NewSessionFromJSON(ctx context.Context, credentialsJSON []byte, logger *slog.Logger) (*Session, error) {
	srv, err := sheetsapi.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewSessionWithReader(&apiReader{srv: srv}, logger), nil
}

// NewSessionWithReader wraps an existing reader.
func NewSessionWithReader(reader ValuesReader, logger *slog.Logger) *Session {
	return &Session{reader: reader, logger: logger}
}

// Fetch reads every value of worksheet and normalizes it into a table.
func (s *Session) Fetch(ctx context.Context, spreadsheetID, worksheet string) (*metrics.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	if strings.TrimSpace(worksheet) == "" {
		worksheet = DefaultWorksheet
	}

	values, err := s.reader.ReadValues(ctx, spreadsheetID, quoteSheet(worksheet))
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s/%s: %w", spreadsheetID, worksheet, err)
	}
	if len(values) <= 1 {
		return nil, fmt.Errorf("sheet %s/%s: %w", spreadsheetID, worksheet, ErrEmptySheet)
	}

	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = cellString(v)
		}
	}

	table := parser.Normalize(rows[0], rows[1:])

	s.logger.Debug("fetched sheet",
		slog.String("spreadsheet_id", spreadsheetID),
		slog.String("worksheet", worksheet),
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumColumns()),
	)

	return table, nil
}

// Close releases the session. Later fetches fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// quoteSheet turns a worksheet name into an A1 range covering the whole sheet.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
