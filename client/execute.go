// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atelier-dev/atelier/protocol"
)

// ExecuteCode runs code on the hub's execution endpoint. It needs no
// session; the hub executes whatever it is handed, subject to its own
// configuration.
func ExecuteCode(ctx context.Context, httpClient *http.Client, hubURL string, request protocol.ExecuteRequest) (protocol.ExecuteResponse, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	body, err := json.Marshal(request)
	if err != nil {
		return protocol.ExecuteResponse{}, fmt.Errorf("encode execute request: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(hubURL, "/")+"/api/execute", bytes.NewReader(body))
	if err != nil {
		return protocol.ExecuteResponse{}, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return protocol.ExecuteResponse{}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer httpResponse.Body.Close()
	if httpResponse.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 512))
		return protocol.ExecuteResponse{}, fmt.Errorf("execute: hub returned %s: %s",
			httpResponse.Status, strings.TrimSpace(string(detail)))
	}

	var response protocol.ExecuteResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&response); err != nil {
		return protocol.ExecuteResponse{}, fmt.Errorf("decode execute response: %w", err)
	}
	return response, nil
}
