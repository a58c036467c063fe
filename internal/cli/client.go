package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/transport/rest/handler"
)

// remoteClient calls a running querylens server.
type remoteClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRemoteClient(baseURL, token string) *remoteClient {
	return &remoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// Query posts req to /v1/query. A policy rejection returns the partial
// response together with an ExitRejected error.
func (c *remoteClient) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, queryFailed("request failed", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, queryFailed("read response", err)
	}

	if res.StatusCode == http.StatusOK {
		var resp model.QueryResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, queryFailed("decode response", err)
		}
		return &resp, nil
	}

	var errBody handler.ErrorResponse
	if err := json.Unmarshal(data, &errBody); err != nil || errBody.Error == "" {
		return nil, queryFailed(fmt.Sprintf("server returned %d", res.StatusCode), nil)
	}

	switch res.StatusCode {
	case http.StatusUnprocessableEntity:
		return errBody.Response, rejected(fmt.Sprintf("policy rejected SQL (%s): %s", errBody.Reason, errBody.Error))
	case http.StatusUnauthorized:
		return nil, configError(errors.New(errBody.Error))
	default:
		return errBody.Response, queryFailed(fmt.Sprintf("server returned %d", res.StatusCode), errors.New(errBody.Error))
	}
}
