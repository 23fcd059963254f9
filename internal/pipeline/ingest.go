package pipeline

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/transport"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
	"enrollment-sync/pkg/utils"
)

// ------------------- Fetching -------------------

// Fetcher retrieves raw CSV text from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches CSV content over HTTP.
type HTTPFetcher struct {
	client *transport.Client
}

// NewHTTPFetcher creates a fetcher on top of client.
func NewHTTPFetcher(client *transport.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch GETs url and returns the decoded body. Any failure is a NetworkError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	log := logging.FromContext(ctx)
	log.Debug().Str("csv_url", url).Msg("Fetching CSV")

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		var netErr *errors.NetworkError
		if errors.As(err, &netErr) {
			return "", netErr
		}
		return "", errors.NewNetworkError(url, 0, err)
	}

	text := DecodeText(resp.Body)
	log.Debug().Str("csv_url", url).Int("bytes", len(text)).Msg("Fetched CSV")
	return text, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText converts fetched bytes to a string. UTF-8 is used as is (minus
// a byte order mark); anything else is decoded as Windows-1252, the usual
// encoding of spreadsheet exports.
func DecodeText(b []byte) string {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}

// ------------------- CSV Parsing -------------------

// ParseCSV splits text into rows keyed by the header line. The split is
// naive: commas inside quoted fields are not supported. Blank lines are
// skipped, values are trimmed, missing trailing fields become "" and extra
// fields are dropped.
func ParseCSV(text string) []model.SourceRow {
	var headers []string
	var rows []model.SourceRow

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if utils.IsBlank(line) {
			continue
		}

		fields := strings.Split(line, ",")
		if headers == nil {
			headers = make([]string, len(fields))
			for i, h := range fields {
				headers[i] = strings.TrimSpace(h)
			}
			continue
		}

		row := make(model.SourceRow, len(headers))
		for i, h := range headers {
			if i < len(fields) {
				row[h] = strings.TrimSpace(fields[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows
}

// ExtractIMO returns the first column of the first data row, which carries
// the agency (IMO) name in the course provider's export.
func ExtractIMO(text string) string {
	seenHeader := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if utils.IsBlank(line) {
			continue
		}
		if !seenHeader {
			seenHeader = true
			continue
		}
		first, _, _ := strings.Cut(line, ",")
		return strings.TrimSpace(first)
	}
	return ""
}
