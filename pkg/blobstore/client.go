// Package blobstore is a gateway to the platform object store. Objects are
// addressed by bucket+key and transferred through short-lived signed URLs
// issued by the project API.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/carelink-health/wellness-import/pkg/common/auth"
)

type Client struct {
	control  *resty.Client
	transfer *http.Client
}

type signedURLResponse struct {
	SignedURL string `json:"signedUrl"`
}

type object struct {
	Key string `json:"key"`
}

func NewClient(projectAPIURL, projectID string, hc *http.Client, tokens auth.TokenProvider) *Client {
	control := resty.NewWithClient(hc).
		SetBaseURL(projectAPIURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if projectID != "" {
		control.SetHeader("x-project-id", projectID)
	}

	control.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token, err := tokens.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
		return nil
	})

	return &Client{control: control, transfer: hc}
}

func (c *Client) signedURL(ctx context.Context, bucket, key, action string) (string, error) {
	var result signedURLResponse
	resp, err := c.control.R().
		SetContext(ctx).
		SetBody(map[string]string{"action": action}).
		SetResult(&result).
		Post(fmt.Sprintf("/z3/%s/%s", bucket, key))
	if err != nil {
		return "", fmt.Errorf("requesting %s url for %s/%s: %w", action, bucket, key, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("requesting %s url for %s/%s: object store returned %s", action, bucket, key, resp.Status())
	}
	return result.SignedURL, nil
}

func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	url, err := c.signedURL(ctx, bucket, key, "download")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.transfer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s/%s: signed url returned %s", bucket, key, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Upload(ctx context.Context, bucket, key, contentType string, body []byte) error {
	url, err := c.signedURL(ctx, bucket, key, "upload")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("uploading %s/%s: signed url returned %s", bucket, key, resp.Status)
	}
	return nil
}

func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var objects []object
	resp, err := c.control.R().
		SetContext(ctx).
		SetQueryParam("prefix", prefix).
		SetResult(&objects).
		Get("/z3/" + bucket)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing %s: object store returned %s", bucket, resp.Status())
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
