package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	domaincrm "github.com/formbridge/backend/internal/domain/crm"
)

// maxResponseSize limits response bodies to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// TokenFunc supplies a valid access token for each call
type TokenFunc func(ctx context.Context) (string, error)

// RESTClient implements the record-keeping system port over its REST API
type RESTClient struct {
	instanceURL string
	apiVersion  string
	token       TokenFunc
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewRESTClient creates a REST client bound to one instance and token source
func NewRESTClient(instanceURL, apiVersion string, token TokenFunc, timeout time.Duration, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		apiVersion:  apiVersion,
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Describe returns the field metadata for an object type
func (c *RESTClient) Describe(ctx context.Context, objectType string) ([]domaincrm.Field, error) {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/describe", c.apiVersion, url.PathEscape(objectType))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Fields []struct {
			Name     string `json:"name"`
			Label    string `json:"label"`
			Type     string `json:"type"`
			Nillable bool   `json:"nillable"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantConnection,
			"", fmt.Sprintf("unparseable describe response: %v", err), 0)
	}

	fields := make([]domaincrm.Field, 0, len(payload.Fields))
	for _, f := range payload.Fields {
		fields = append(fields, domaincrm.Field{
			Name:     f.Name,
			Label:    f.Label,
			Type:     f.Type,
			Required: !f.Nillable,
		})
	}
	return fields, nil
}

// Query runs a query and returns the matching records
func (c *RESTClient) Query(ctx context.Context, query string) ([]domaincrm.Record, error) {
	path := fmt.Sprintf("/services/data/%s/query?q=%s", c.apiVersion, url.QueryEscape(query))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Records []domaincrm.Record `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantQuery,
			"", fmt.Sprintf("unparseable query response: %v", err), 0)
	}
	return payload.Records, nil
}

// Create creates a record of the given object type
func (c *RESTClient) Create(ctx context.Context, objectType string, fields map[string]any) (*domaincrm.CreateResult, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantCreate,
			"", fmt.Sprintf("unencodable record: %v", err), 0)
	}

	path := fmt.Sprintf("/services/data/%s/sobjects/%s", c.apiVersion, url.PathEscape(objectType))
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var result domaincrm.CreateResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantCreate,
			"", fmt.Sprintf("unparseable create response: %v", err), 0)
	}
	return &result, nil
}

// do executes one authenticated call and returns the response body. Non-2xx
// responses are classified into API error variants; transport failures and
// timeouts are connection errors, always retryable and never data errors.
func (c *RESTClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.instanceURL+path, reader)
	if err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantConnection, "", err.Error(), 0)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		variant := domaincrm.ErrorVariantConnection
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			message = "request timed out: " + message
		}
		return nil, domaincrm.NewAPIError(variant, "", message, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantConnection, "", err.Error(), resp.StatusCode)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, c.classifyError(resp.StatusCode, data)
}

// apiErrorBody is the error envelope returned by the REST API
type apiErrorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func (c *RESTClient) classifyError(statusCode int, body []byte) error {
	var entries []apiErrorBody
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
		variant := domaincrm.ErrorVariantConnection
		if statusCode == http.StatusUnauthorized {
			variant = domaincrm.ErrorVariantAuth
		}
		return domaincrm.NewAPIError(variant, "",
			fmt.Sprintf("unexpected status %d: %s", statusCode, truncate(string(body), 200)), statusCode)
	}

	first := entries[0]
	variant := domaincrm.ClassifyErrorCode(first.ErrorCode)
	if c.logger != nil {
		c.logger.Debug("upstream API error",
			zap.String("code", first.ErrorCode),
			zap.String("variant", string(variant)),
			zap.Int("status", statusCode),
		)
	}
	return domaincrm.NewAPIError(variant, first.ErrorCode, first.Message, statusCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// QuoteLiteral escapes a string for inclusion in a query literal
func QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

// Ensure RESTClient implements the domain port
var _ domaincrm.Client = (*RESTClient)(nil)
