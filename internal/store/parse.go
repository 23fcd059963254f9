package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/transport"
	"enrollment-sync/pkg/errors"
)

// Parse Server defaults for the hosted Back4App application.
const (
	DefaultParseBaseURL     = "https://parseapi.back4app.com"
	DefaultParseRecordClass = "API_Connector_Users"
	DefaultParseQueueClass  = "Prelicensingcsv"

	parseObjectNotFound = 101
)

// ParseConfig configures the Parse Server REST backend.
type ParseConfig struct {
	BaseURL     string                `mapstructure:"base_url"`
	AppID       string                `mapstructure:"app_id"`
	MasterKey   string                `mapstructure:"master_key"`
	RecordClass string                `mapstructure:"record_class"`
	QueueClass  string                `mapstructure:"queue_class"`
	RateLimit   float64               `mapstructure:"rate_limit"`
	Timeout     time.Duration         `mapstructure:"timeout"`
	Retry       transport.RetryConfig `mapstructure:"retry"`
}

// ParseStore talks to a Parse Server through its REST API.
type ParseStore struct {
	client      *transport.Client
	baseURL     string
	recordClass string
	queueClass  string
}

// NewParseStore creates a Parse REST backend.
func NewParseStore(cfg ParseConfig) (*ParseStore, error) {
	if cfg.AppID == "" || cfg.MasterKey == "" {
		return nil, errors.NewValidationError("store.parse", "app_id and master_key are required")
	}
	return newParseStore(cfg, transport.New(transport.Options{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Retry:     cfg.Retry,
		Headers: map[string]string{
			"X-Parse-Application-Id": cfg.AppID,
			"X-Parse-Master-Key":     cfg.MasterKey,
			"Accept":                 "application/json",
		},
	})), nil
}

func newParseStore(cfg ParseConfig, client *transport.Client) *ParseStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultParseBaseURL
	}
	if cfg.RecordClass == "" {
		cfg.RecordClass = DefaultParseRecordClass
	}
	if cfg.QueueClass == "" {
		cfg.QueueClass = DefaultParseQueueClass
	}
	return &ParseStore{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		recordClass: cfg.RecordClass,
		queueClass:  cfg.QueueClass,
	}
}

// parseDate is the Parse wire form of a date.
type parseDate struct {
	Type string `json:"__type"`
	ISO  string `json:"iso"`
}

func toParseDate(t *time.Time) *parseDate {
	if t == nil {
		return nil
	}
	return &parseDate{Type: "Date", ISO: t.UTC().Format("2006-01-02T15:04:05.000Z")}
}

func (d *parseDate) asTime() *time.Time {
	if d == nil || d.ISO == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, d.ISO)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

type parseRecord struct {
	ObjectID        string     `json:"objectId,omitempty"`
	FirstName       string     `json:"first_name_text"`
	LastName        string     `json:"last_name_text"`
	Email           string     `json:"pre_licensing_email_text"`
	Phone           string     `json:"phone_text"`
	Department      string     `json:"imo_custom_imo"`
	HiringManager   string     `json:"hiring_manager_text"`
	CourseName      string     `json:"pre_licensing_course_text"`
	PreparedToPass  string     `json:"prepared_to_pass_text"`
	TimeSpent       string     `json:"time_spent_text"`
	DateEnrolled    *parseDate `json:"date_enrolled_date"`
	LastLogin       *parseDate `json:"pre_licensing_course_last_login_date"`
	DateCompleted   *parseDate `json:"ple_date_completed_date"`
	PercentComplete *float64   `json:"ple_complete_number"`
	PercentPrep     *float64   `json:"percentage_prep_complete_number"`
	PercentSim      *float64   `json:"percentage_sim_complete_number"`
	CreatedAt       string     `json:"createdAt,omitempty"`
	UpdatedAt       string     `json:"updatedAt,omitempty"`
}

func toParseRecord(rec model.CanonicalRecord) parseRecord {
	return parseRecord{
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		Email:           strings.ToLower(strings.TrimSpace(rec.Email)),
		Phone:           rec.Phone,
		Department:      rec.Department,
		HiringManager:   rec.HiringManager,
		CourseName:      rec.CourseName,
		PreparedToPass:  rec.PreparedToPass,
		TimeSpent:       rec.TimeSpent,
		DateEnrolled:    toParseDate(rec.DateEnrolled),
		LastLogin:       toParseDate(rec.LastLogin),
		DateCompleted:   toParseDate(rec.DateCompleted),
		PercentComplete: rec.PercentComplete,
		PercentPrep:     rec.PercentPrep,
		PercentSim:      rec.PercentSim,
	}
}

func (p parseRecord) stored() model.StoredRecord {
	return model.StoredRecord{
		ID: p.ObjectID,
		Record: model.CanonicalRecord{
			FirstName:       p.FirstName,
			LastName:        p.LastName,
			Email:           p.Email,
			Phone:           p.Phone,
			Department:      p.Department,
			HiringManager:   p.HiringManager,
			CourseName:      p.CourseName,
			PreparedToPass:  p.PreparedToPass,
			TimeSpent:       p.TimeSpent,
			DateEnrolled:    p.DateEnrolled.asTime(),
			LastLogin:       p.LastLogin.asTime(),
			DateCompleted:   p.DateCompleted.asTime(),
			PercentComplete: p.PercentComplete,
			PercentPrep:     p.PercentPrep,
			PercentSim:      p.PercentSim,
		},
		CreatedAt: parseTimestamp(p.CreatedAt),
		UpdatedAt: parseTimestamp(p.UpdatedAt),
	}
}

type parseQueueItem struct {
	ObjectID         string     `json:"objectId,omitempty"`
	Filename         string     `json:"filename"`
	CSVURL           string     `json:"csv_url"`
	Content          string     `json:"csv_content"`
	FileSize         int        `json:"file_size"`
	TotalRecords     int        `json:"total_records"`
	IMO              string     `json:"imo"`
	SourceEmail      string     `json:"source_email"`
	Status           string     `json:"processing_status"`
	Priority         int        `json:"queue_priority"`
	ProcessedRecords int        `json:"processed_records"`
	NewRecords       int        `json:"new_records"`
	UpdatedRecords   int        `json:"updated_records"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ClaimCount       int        `json:"claim_count"`
	Failed           bool       `json:"failed,omitempty"`
	StartedAt        *parseDate `json:"started_at,omitempty"`
	ProcessedAt      *parseDate `json:"processed_at,omitempty"`
	CreatedAt        string     `json:"createdAt,omitempty"`
}

func (p parseQueueItem) item() *model.QueueItem {
	return &model.QueueItem{
		ID:               p.ObjectID,
		Filename:         p.Filename,
		CSVURL:           p.CSVURL,
		Content:          p.Content,
		FileSize:         p.FileSize,
		TotalRecords:     p.TotalRecords,
		IMO:              p.IMO,
		SourceEmail:      p.SourceEmail,
		Status:           model.QueueStatus(p.Status),
		Priority:         p.Priority,
		ProcessedRecords: p.ProcessedRecords,
		NewRecords:       p.NewRecords,
		UpdatedRecords:   p.UpdatedRecords,
		ErrorMessage:     p.ErrorMessage,
		CreatedAt:        parseTimestamp(p.CreatedAt),
		StartedAt:        p.StartedAt.asTime(),
		ProcessedAt:      p.ProcessedAt.asTime(),
	}
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type parseError struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func (s *ParseStore) classURL(class string) string {
	return s.baseURL + "/classes/" + url.PathEscape(class)
}

func (s *ParseStore) objectURL(class, id string) string {
	return s.classURL(class) + "/" + url.PathEscape(id)
}

// call performs a Parse request and decodes the response into out.
func (s *ParseStore) call(ctx context.Context, op, method, u string, body, out any) error {
	resp, err := s.client.Do(ctx, method, u, body)
	return s.decode(op, resp, err, out)
}

// callOnce is call without retries, for atomic operations a replay would
// apply twice.
func (s *ParseStore) callOnce(ctx context.Context, op, method, u string, body, out any) error {
	resp, err := s.client.DoOnce(ctx, method, u, body)
	return s.decode(op, resp, err, out)
}

func (s *ParseStore) decode(op string, resp *transport.Response, err error, out any) error {
	if err != nil {
		if resp != nil {
			var pe parseError
			_ = json.Unmarshal(resp.Body, &pe)
			if resp.StatusCode == http.StatusNotFound || pe.Code == parseObjectNotFound {
				return errors.ErrNotFound
			}
			msg := pe.Error
			if msg == "" {
				msg = strings.TrimSpace(string(resp.Body))
			}
			return &errors.StoreError{Backend: "parse", Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
		}
		return errors.NewStoreError("parse", op, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.NewStoreError("parse", op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (s *ParseStore) query(ctx context.Context, op, class string, params url.Values, out any) error {
	return s.call(ctx, op, http.MethodGet, s.classURL(class)+"?"+params.Encode(), nil, out)
}

// Close implements Store.
func (s *ParseStore) Close() error { return nil }

// FindByEmails implements RecordStore with a single $or query.
func (s *ParseStore) FindByEmails(ctx context.Context, emails []string, limit int) ([]model.ExistingRecord, error) {
	emails = normalizeEmails(emails)
	if len(emails) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLookupLimit
	}

	or := make([]map[string]string, len(emails))
	for i, e := range emails {
		or[i] = map[string]string{"pre_licensing_email_text": e}
	}
	where, err := json.Marshal(map[string]any{"$or": or})
	if err != nil {
		return nil, errors.NewStoreError("parse", "find records", err)
	}

	params := url.Values{}
	params.Set("where", string(where))
	params.Set("limit", fmt.Sprint(limit))
	params.Set("keys", "objectId,pre_licensing_email_text")

	var res struct {
		Results []parseRecord `json:"results"`
	}
	if err := s.query(ctx, "find records", s.recordClass, params, &res); err != nil {
		return nil, err
	}

	out := make([]model.ExistingRecord, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, model.ExistingRecord{ID: r.ObjectID, Email: strings.ToLower(r.Email)})
	}
	return out, nil
}

// CreateRecord implements RecordStore.
func (s *ParseStore) CreateRecord(ctx context.Context, rec model.CanonicalRecord) (string, error) {
	var res struct {
		ObjectID string `json:"objectId"`
	}
	if err := s.call(ctx, "create record", http.MethodPost, s.classURL(s.recordClass), toParseRecord(rec), &res); err != nil {
		return "", err
	}
	return res.ObjectID, nil
}

// UpdateRecord implements RecordStore.
func (s *ParseStore) UpdateRecord(ctx context.Context, id string, rec model.CanonicalRecord) error {
	err := s.call(ctx, "update record", http.MethodPut, s.objectURL(s.recordClass, id), toParseRecord(rec), nil)
	if errors.Is(err, errors.ErrNotFound) {
		return errors.NewNotFoundError("record", id)
	}
	return err
}

// GetRecord implements RecordStore.
func (s *ParseStore) GetRecord(ctx context.Context, id string) (*model.StoredRecord, error) {
	var rec parseRecord
	err := s.call(ctx, "get record", http.MethodGet, s.objectURL(s.recordClass, id), nil, &rec)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.NewNotFoundError("record", id)
	}
	if err != nil {
		return nil, err
	}
	stored := rec.stored()
	return &stored, nil
}

// ListRecords implements RecordStore.
func (s *ParseStore) ListRecords(ctx context.Context, limit int) ([]model.StoredRecord, error) {
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	params := url.Values{}
	params.Set("order", "createdAt")
	params.Set("limit", fmt.Sprint(limit))

	var res struct {
		Results []parseRecord `json:"results"`
	}
	if err := s.query(ctx, "list records", s.recordClass, params, &res); err != nil {
		return nil, err
	}
	out := make([]model.StoredRecord, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, r.stored())
	}
	return out, nil
}

// CreateQueueItem implements QueueStore.
func (s *ParseStore) CreateQueueItem(ctx context.Context, item *model.QueueItem) (string, error) {
	status := item.Status
	if status == "" {
		status = model.StatusQueued
	}
	body := parseQueueItem{
		Filename:     item.Filename,
		CSVURL:       item.CSVURL,
		Content:      item.Content,
		FileSize:     item.FileSize,
		TotalRecords: item.TotalRecords,
		IMO:          item.IMO,
		SourceEmail:  item.SourceEmail,
		Status:       string(status),
		Priority:     item.Priority,
	}
	var res struct {
		ObjectID string `json:"objectId"`
	}
	if err := s.call(ctx, "create queue item", http.MethodPost, s.classURL(s.queueClass), body, &res); err != nil {
		return "", err
	}
	return res.ObjectID, nil
}

// GetQueueItem implements QueueStore.
func (s *ParseStore) GetQueueItem(ctx context.Context, id string) (*model.QueueItem, error) {
	raw, err := s.getQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return raw.item(), nil
}

func (s *ParseStore) getQueueItem(ctx context.Context, id string) (*parseQueueItem, error) {
	var raw parseQueueItem
	err := s.call(ctx, "get queue item", http.MethodGet, s.objectURL(s.queueClass, id), nil, &raw)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.NewNotFoundError("queue item", id)
	}
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

func (s *ParseStore) listQueue(ctx context.Context, op string, params url.Values) ([]model.QueueItem, error) {
	var res struct {
		Results []parseQueueItem `json:"results"`
	}
	if err := s.query(ctx, op, s.queueClass, params, &res); err != nil {
		return nil, err
	}
	out := make([]model.QueueItem, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, *r.item())
	}
	return out, nil
}

// ListQueueItems implements QueueStore.
func (s *ParseStore) ListQueueItems(ctx context.Context, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	params := url.Values{}
	params.Set("order", "-createdAt")
	params.Set("limit", fmt.Sprint(limit))
	params.Set("excludeKeys", "csv_content")
	return s.listQueue(ctx, "list queue items", params)
}

// NextQueueItem implements QueueStore.
func (s *ParseStore) NextQueueItem(ctx context.Context) (*model.QueueItem, error) {
	params := url.Values{}
	params.Set("where", fmt.Sprintf(`{"processing_status":%q}`, model.StatusQueued))
	params.Set("order", "-queue_priority,createdAt")
	params.Set("limit", "1")
	items, err := s.listQueue(ctx, "next queue item", params)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.ErrQueueEmpty
	}
	return &items[0], nil
}

// ClaimQueueItem implements QueueStore. Parse has no conditional update,
// so one PUT moves the item to processing and atomically increments
// claim_count. The caller whose increment lands directly on the count it
// read while the item was queued owns the item. A failed PUT changes
// nothing, so the item stays claimable.
func (s *ParseStore) ClaimQueueItem(ctx context.Context, id string) (bool, error) {
	raw, err := s.getQueueItem(ctx, id)
	if err != nil {
		return false, err
	}
	if raw.Status != string(model.StatusQueued) {
		return false, nil
	}

	now := time.Now().UTC()
	body := map[string]any{
		"claim_count":       map[string]any{"__op": "Increment", "amount": 1},
		"processing_status": string(model.StatusProcessing),
		"started_at":        toParseDate(&now),
	}
	var inc struct {
		ClaimCount int `json:"claim_count"`
	}
	if err := s.callOnce(ctx, "claim queue item", http.MethodPut, s.objectURL(s.queueClass, id), body, &inc); err != nil {
		return false, err
	}
	if inc.ClaimCount == raw.ClaimCount+1 {
		return true, nil
	}

	// Lost the race. Our PUT may have landed after the winner finished.
	if err := s.restoreFinished(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// restoreFinished puts back the terminal status of an item whose finish
// was overwritten by a losing claim.
func (s *ParseStore) restoreFinished(ctx context.Context, id string) error {
	raw, err := s.getQueueItem(ctx, id)
	if err != nil {
		return err
	}
	if raw.Status != string(model.StatusProcessing) || raw.ProcessedAt == nil {
		return nil
	}
	status := model.StatusCompleted
	if raw.Failed {
		status = model.StatusError
	}
	return s.call(ctx, "restore queue item", http.MethodPut, s.objectURL(s.queueClass, id),
		map[string]any{"processing_status": string(status)}, nil)
}

// CompleteQueueItem implements QueueStore.
func (s *ParseStore) CompleteQueueItem(ctx context.Context, id string, result model.ReconcileResult) error {
	now := time.Now().UTC()
	return s.finish(ctx, id, "complete queue item", map[string]any{
		"processing_status": string(model.StatusCompleted),
		"processed_records": result.Processed,
		"new_records":       result.New,
		"updated_records":   result.Updated,
		"error_message":     result.Summary(),
		"failed":            false,
		"processed_at":      toParseDate(&now),
	})
}

// FailQueueItem implements QueueStore.
func (s *ParseStore) FailQueueItem(ctx context.Context, id string, message string) error {
	now := time.Now().UTC()
	return s.finish(ctx, id, "fail queue item", map[string]any{
		"processing_status": string(model.StatusError),
		"error_message":     message,
		"failed":            true,
		"processed_at":      toParseDate(&now),
	})
}

func (s *ParseStore) finish(ctx context.Context, id, op string, update map[string]any) error {
	raw, err := s.getQueueItem(ctx, id)
	if err != nil {
		return err
	}
	if raw.Status != string(model.StatusProcessing) {
		return conflictError(id)
	}
	return s.call(ctx, op, http.MethodPut, s.objectURL(s.queueClass, id), update, nil)
}
