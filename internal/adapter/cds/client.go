// Package cds is the retrieval client for the Copernicus Climate Data
// Store. One extraction issues a single bulk request covering every
// variable, date component and hour, then downloads the resulting NetCDF.
package cds

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/logger"
)

// DefaultURL is the public CDS API endpoint.
const DefaultURL = "https://cds.climate.copernicus.eu/api"

// ERA5LandDataset is the provider-side dataset identifier.
const ERA5LandDataset = "reanalysis-era5-land"

// Request is one bulk historical-data request.
type Request struct {
	Dataset   string
	Variables []string
	Years     []string
	Months    []string
	Days      []string
	Hours     []string
	Area      [4]float64 // N, W, S, E
}

// Client talks to the CDS retrieve API: submit, poll, download. There is
// no retry logic; a failed request fails the run and the caller re-invokes.
type Client struct {
	url  string
	key  string
	http *http.Client

	// PollInterval is how often job status is checked.
	PollInterval time.Duration
}

// NewClient builds a client from explicit credentials.
func NewClient(url, key string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:          strings.TrimRight(url, "/"),
		key:          key,
		http:         &http.Client{Timeout: 10 * time.Minute},
		PollInterval: 2 * time.Second,
	}
}

// NewClientFromEnv builds a client from CDSAPI_URL/CDSAPI_KEY, falling
// back to ~/.cdsapirc.
func NewClientFromEnv() (*Client, error) {
	url := os.Getenv("CDSAPI_URL")
	key := os.Getenv("CDSAPI_KEY")
	if key == "" {
		var err error
		url, key, err = readRCFile()
		if err != nil {
			return nil, &domain.RetrievalError{Err: fmt.Errorf(
				"no CDS credentials: set CDSAPI_KEY or create ~/.cdsapirc: %w", err)}
		}
	}
	return NewClient(url, key), nil
}

func readRCFile() (url, key string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", err
	}
	f, err := os.Open(filepath.Join(home, ".cdsapirc"))
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(k) {
		case "url":
			url = strings.TrimSpace(v)
		case "key":
			key = strings.TrimSpace(v)
		}
	}
	if key == "" {
		return "", "", fmt.Errorf("no key entry in .cdsapirc")
	}
	return url, key, scanner.Err()
}

type jobStatus struct {
	JobID   string `json:"jobID"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
		} `json:"value"`
	} `json:"asset"`
}

// Retrieve submits the request, waits for the job to finish and downloads
// the resulting file to dest.
func (c *Client) Retrieve(ctx context.Context, req Request, dest string) error {
	if req.Dataset == "" {
		req.Dataset = ERA5LandDataset
	}

	body := map[string]interface{}{
		"inputs": map[string]interface{}{
			"variable":        req.Variables,
			"year":            req.Years,
			"month":           req.Months,
			"day":             req.Days,
			"time":            req.Hours,
			"area":            req.Area[:],
			"data_format":     "netcdf",
			"download_format": "unarchived",
		},
	}

	logger.Infof("submitting CDS request: dataset=%s vars=%d area=[N=%.2f W=%.2f S=%.2f E=%.2f]",
		req.Dataset, len(req.Variables), req.Area[0], req.Area[1], req.Area[2], req.Area[3])

	var job jobStatus
	submitURL := fmt.Sprintf("%s/retrieve/v1/processes/%s/execution", c.url, req.Dataset)
	if err := c.doJSON(ctx, http.MethodPost, submitURL, body, &job); err != nil {
		return &domain.RetrievalError{Err: fmt.Errorf("submitting request: %w", err)}
	}
	if job.JobID == "" {
		return &domain.RetrievalError{Err: fmt.Errorf("provider returned no job id")}
	}

	status, err := c.waitForJob(ctx, job)
	if err != nil {
		return err
	}

	var results jobResults
	resultsURL := fmt.Sprintf("%s/retrieve/v1/jobs/%s/results", c.url, status.JobID)
	if err := c.doJSON(ctx, http.MethodGet, resultsURL, nil, &results); err != nil {
		return &domain.RetrievalError{Err: fmt.Errorf("fetching job results: %w", err)}
	}
	href := results.Asset.Value.Href
	if href == "" {
		return &domain.RetrievalError{Err: fmt.Errorf("job %s finished without a result asset", status.JobID)}
	}

	return c.download(ctx, href, dest)
}

func (c *Client) waitForJob(ctx context.Context, job jobStatus) (jobStatus, error) {
	statusURL := fmt.Sprintf("%s/retrieve/v1/jobs/%s", c.url, job.JobID)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		switch job.Status {
		case "successful":
			return job, nil
		case "failed":
			return job, &domain.RetrievalError{Err: fmt.Errorf("provider job %s failed: %s", job.JobID, job.Message)}
		}
		select {
		case <-ctx.Done():
			return job, &domain.RetrievalError{Err: ctx.Err()}
		case <-ticker.C:
		}
		if err := c.doJSON(ctx, http.MethodGet, statusURL, nil, &job); err != nil {
			return job, &domain.RetrievalError{Err: fmt.Errorf("polling job: %w", err)}
		}
	}
}

func (c *Client) download(ctx context.Context, href, dest string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return &domain.RetrievalError{Err: err}
	}
	c.authorize(httpReq)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &domain.RetrievalError{Err: fmt.Errorf("downloading result: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &domain.RetrievalError{Err: fmt.Errorf("downloading result: status %s", resp.Status)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &domain.RetrievalError{Err: fmt.Errorf("creating %s: %w", dest, err)}
	}
	defer out.Close()
	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return &domain.RetrievalError{Err: fmt.Errorf("writing %s: %w", dest, err)}
	}
	logger.Infof("downloaded %d bytes to %s", n, dest)
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %s: %s", method, url, resp.Status, strings.TrimSpace(string(payload)))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", url, err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.key != "" {
		req.Header.Set("PRIVATE-TOKEN", c.key)
	}
}
