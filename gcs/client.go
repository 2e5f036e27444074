// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs mirrors generated images into Google Cloud Storage.
//
// # Description
//
// Image providers serve results from short-lived URLs. The mirror
// downloads each image and re-hosts it under a stable bucket path so
// the execution history keeps working after the provider links expire.
// Mirroring is best-effort: a failed upload falls back to the original
// URL rather than failing the execution.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// downloadTimeout bounds the fetch of a single source image.
const downloadTimeout = 60 * time.Second

// Client uploads images fetched from URLs into a bucket.
type Client struct {
	storageClient *storage.Client
	httpClient    *http.Client
	bucket        string
	prefix        string
	logger        *slog.Logger
}

// NewClient creates a mirror over a bucket using a service account key.
func NewClient(ctx context.Context, bucket, prefix, saKeyPath string, logger *slog.Logger) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
	}
	if logger == nil {
		logger = slog.Default()
	}

	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		httpClient:    &http.Client{Timeout: downloadTimeout},
		bucket:        bucket,
		prefix:        prefix,
		logger:        logger,
	}, nil
}

// UploadURL downloads sourceURL and writes it to objectPath in the
// bucket, returning the public object URL.
func (c *Client) UploadURL(ctx context.Context, sourceURL, objectPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", sourceURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if ext := extFromContentType(contentType); ext != "" && path.Ext(objectPath) == "" {
		objectPath += ext
	}

	obj := c.storageClient.Bucket(c.bucket).Object(objectPath)
	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(writer, resp.Body); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to copy %s to GCS object %s: %w", sourceURL, objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}

	return publicURL(c.bucket, objectPath), nil
}

// MirrorImages re-hosts each URL under <prefix>/<executionID>/ and
// returns the mirrored URLs. Per-URL failures keep the source URL, so
// the result always has the same length and order as the input.
func (c *Client) MirrorImages(ctx context.Context, executionID string, urls []string) []string {
	if len(urls) == 0 {
		return urls
	}
	mirrored := make([]string, len(urls))
	for i, src := range urls {
		objectPath := path.Join(c.prefix, executionID, uuid.New().String())
		dst, err := c.UploadURL(ctx, src, objectPath)
		if err != nil {
			c.logger.Warn("image mirror failed, keeping source URL",
				slog.String("execution_id", executionID),
				slog.String("source_url", src),
				slog.String("error", err.Error()),
			)
			mirrored[i] = src
			continue
		}
		mirrored[i] = dst
	}
	return mirrored
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

// extFromContentType maps the image content types the generation
// providers actually serve; unknown types get no extension.
func extFromContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}

func publicURL(bucket, objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectPath)
}
