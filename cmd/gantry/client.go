package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gantryhq/gantry"
)

// defaultAPIUrl matches the daemon's default [server] listen address.
const defaultAPIUrl = "http://127.0.0.1:9180/api"

// APIClient talks to the control API of a running gantry daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIUrl
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Status fetches the supervisor snapshot.
func (c *APIClient) Status() (gantry.Status, error) {
	var st gantry.Status
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return st, fmt.Errorf("daemon not reachable at %s - start it first with 'gantry run': %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status request failed: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, err
	}
	return st, nil
}

// Start asks the daemon to start the backend and returns the effective port.
func (c *APIClient) Start() (int, error) {
	resp, err := c.client.Post(c.baseURL+"/start", "application/json", nil)
	if err != nil {
		return 0, fmt.Errorf("daemon not reachable at %s - start it first with 'gantry run': %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			return 0, fmt.Errorf("start request failed: %s", resp.Status)
		}
		return 0, fmt.Errorf("API error: %s", errorResp.Error)
	}

	var result struct {
		OK   bool `json:"ok"`
		Port int  `json:"port"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.Port, nil
}

// Stop asks the daemon to terminate the backend process tree.
func (c *APIClient) Stop() error {
	resp, err := c.client.Post(c.baseURL+"/stop", "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s - start it first with 'gantry run': %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stop request failed: %s", resp.Status)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
