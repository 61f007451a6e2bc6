package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/avenca/flowline/pkg/models"
	"github.com/pkg/errors"
)

// RegisterBuiltins installs the primitives every deployment gets out of the
// box. Applications register their own domain primitives on top.
func RegisterBuiltins(r *Registry, logger Logger) error {
	builtins := []PrimitiveDefinition{
		{
			Name: "log.message",
			Schema: InputSchema{
				{Name: "message", Type: StringField, Required: true},
				{Name: "level", Type: StringField},
			},
			Invoke: func(ctx context.Context, input map[string]interface{}, meta RunMeta) (interface{}, error) {
				msg, _ := input["message"].(string)
				if level, _ := input["level"].(string); level == "error" {
					logger.Errorf("[%s/%s] %s", meta.WorkflowID, meta.NodeID, msg)
				} else {
					logger.Infof("[%s/%s] %s", meta.WorkflowID, meta.NodeID, msg)
				}
				return map[string]interface{}{"logged": true}, nil
			},
		},
		{
			Name: "http.request",
			Schema: InputSchema{
				{Name: "url", Type: StringField, Required: true},
				{Name: "method", Type: StringField},
				{Name: "body", Type: ObjectField},
			},
			Timeout: 15 * time.Second,
			Retry:   &models.RetryPolicy{MaxAttempts: 3, BackoffMS: 500},
			Invoke:  invokeHTTPRequest,
		},
	}
	for _, def := range builtins {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func invokeHTTPRequest(ctx context.Context, input map[string]interface{}, meta RunMeta) (interface{}, error) {
	url, _ := input["url"].(string)
	method, _ := input["method"].(string)
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if b, ok := input["body"].(map[string]interface{}); ok {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling request body")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}
	if resp.StatusCode >= 500 {
		return nil, &RetryableError{Err: errors.Errorf("upstream returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("upstream returned %d", resp.StatusCode)
	}
	out := map[string]interface{}{"status": resp.StatusCode}
	var decoded interface{}
	if json.Unmarshal(raw, &decoded) == nil {
		out["body"] = decoded
	} else {
		out["body"] = string(raw)
	}
	return out, nil
}
