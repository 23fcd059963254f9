package pipeline

import (
	"net/url"
	"strings"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

// DefaultFilename names submissions that arrive without one.
const DefaultFilename = "unknown.csv"

// ValidateSubmitRequest checks the boundary input of a CSV submission.
func ValidateSubmitRequest(req model.SubmitRequest) error {
	raw := strings.TrimSpace(req.CSVURL)
	if raw == "" {
		return errors.NewValidationError("csv_url", "csv_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.NewValidationError("csv_url", "csv_url is not a valid URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errors.NewValidationError("csv_url", "csv_url must use http or https")
	}
	if u.Host == "" {
		return errors.NewValidationError("csv_url", "csv_url must include a host")
	}

	if req.Priority < 0 {
		return errors.NewValidationError("priority", "priority must not be negative")
	}
	return nil
}

// normalizeSubmitRequest trims input and fills defaults.
func normalizeSubmitRequest(req model.SubmitRequest, defaultPriority int) model.SubmitRequest {
	req.CSVURL = strings.TrimSpace(req.CSVURL)
	req.CSVFilename = strings.TrimSpace(req.CSVFilename)
	if req.CSVFilename == "" {
		req.CSVFilename = DefaultFilename
	}
	if req.Priority == 0 {
		req.Priority = defaultPriority
	}
	if req.SourceEmail == "" {
		req.SourceEmail = "api"
	}
	return req
}
