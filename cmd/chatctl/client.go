package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/chatwidget-gateway/internal/chat"
	"github.com/tjfontaine/chatwidget-gateway/internal/stream"
	"github.com/tjfontaine/chatwidget-gateway/internal/turns"
)

// apiClient talks to the chatrelay turns API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &apiClient{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (c *apiClient) open(ctx context.Context, id string) (*chat.Session, error) {
	var sess chat.Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", turns.OpenRequest{SessionID: id}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *apiClient) get(ctx context.Context, id string) (*chat.Session, error) {
	var sess chat.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *apiClient) close(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil)
}

// send submits text and calls onUpdate for every streamed update.
func (c *apiClient) send(ctx context.Context, sessionID, text string, onUpdate func(stream.Update)) error {
	resp, err := c.request(ctx, http.MethodPost, "/api/turns", turns.TurnRequest{SessionID: sessionID, Text: text})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var u stream.Update
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return fmt.Errorf("decode update: %w", err)
		}
		onUpdate(u)
	}
	return sc.Err()
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return fmt.Errorf("%s (%d): %s", body.Error.Type, resp.StatusCode, body.Error.Message)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
