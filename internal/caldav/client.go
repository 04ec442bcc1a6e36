// Package caldav speaks the subset of CalDAV the sync needs: PROPFIND
// enumeration of a collection plus PUT/GET/DELETE of single events.
package caldav

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidResponse  = errors.New("invalid server response")
)

const (
	defaultTimeout = 30 * time.Second
	minTLSVersion  = tls.VersionTLS12

	defaultRetryWait = 5 * time.Second
	userAgent        = "outlooksync/1.0"

	contentTypeCalendar = "text/calendar; charset=utf-8"
	contentTypeXML      = "application/xml; charset=utf-8"
)

// propfindBody asks for etag and ctag only; the ctag is carried for a future
// conditional-upsert path and is otherwise unused.
const propfindBody = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/">
  <d:prop><d:getetag/><cs:getctag/></d:prop>
</d:propfind>`

// Client performs CalDAV operations against one calendar collection.
type Client struct {
	hc          webdav.HTTPClient
	calendarURL string
	retryWait   time.Duration
	log         *slog.Logger
}

// NewClient builds a client for the given collection URL. The URL is
// normalised to end in a slash so event URLs can be appended directly.
func NewClient(calendarURL, username, password string, log *slog.Logger) (*Client, error) {
	if calendarURL == "" {
		return nil, fmt.Errorf("%w: calendar URL is required", ErrConnectionFailed)
	}
	if log == nil {
		log = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: defaultTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: minTLSVersion,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return &Client{
		hc:          webdav.HTTPClientWithBasicAuth(httpClient, username, password),
		calendarURL: strings.TrimSuffix(calendarURL, "/") + "/",
		retryWait:   defaultRetryWait,
		log:         log,
	}, nil
}

// EventURL returns the destination URL for a managed UID.
func (c *Client) EventURL(uid string) string {
	return c.calendarURL + uid + ".ics"
}

// Enumerate lists the collection with a Depth:1 PROPFIND and returns a
// UID → etag snapshot. Entries whose href does not end in .ics are ignored;
// when managed is non-nil, UIDs it rejects are skipped too.
func (c *Client) Enumerate(ctx context.Context, managed func(string) bool) (map[string]string, error) {
	resp, err := c.do(ctx, "PROPFIND", c.calendarURL, contentTypeXML, "1", []byte(propfindBody))
	if err != nil {
		return nil, err
	}

	entries, err := parseMultistatus(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		uid, ok := uidFromHref(e.Href)
		if !ok {
			continue
		}
		if managed != nil && !managed(uid) {
			continue
		}
		out[uid] = e.ETag
	}
	return out, nil
}

// Upsert writes an event document, creating or replacing it.
func (c *Client) Upsert(ctx context.Context, uid string, body []byte) error {
	_, err := c.do(ctx, http.MethodPut, c.EventURL(uid), contentTypeCalendar, "", body)
	return err
}

// Fetch returns the stored document for a managed UID.
func (c *Client) Fetch(ctx context.Context, uid string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.EventURL(uid), "", "", nil)
}

// Delete removes an event. A missing event is not an error; the goal state
// is already reached.
func (c *Client) Delete(ctx context.Context, uid string) error {
	_, err := c.do(ctx, http.MethodDelete, c.EventURL(uid), "", "", nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// do issues the request with one delayed retry on any non-authentication
// failure. Auth failures are raised immediately and never retried.
func (c *Client) do(ctx context.Context, method, rawURL, contentType, depth string, body []byte) ([]byte, error) {
	data, err := c.doOnce(ctx, method, rawURL, contentType, depth, body)
	if err == nil || errors.Is(err, ErrAuthFailed) || ctx.Err() != nil {
		return data, err
	}

	c.log.Warn("request failed, retrying once", "method", method, "url", rawURL, "error", err)
	if werr := sleep(ctx, c.retryWait); werr != nil {
		return nil, werr
	}
	return c.doOnce(ctx, method, rawURL, contentType, depth, body)
}

func (c *Client) doOnce(ctx context.Context, method, rawURL, contentType, depth string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if depth != "" {
		req.Header.Set("Depth", depth)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrConnectionFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrAuthFailed, method, rawURL, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrConnectionFailed, method, rawURL, resp.StatusCode)
	}
	return data, nil
}

// uidFromHref extracts the UID from a collection member href: the last path
// segment minus the .ics suffix.
func uidFromHref(href string) (string, bool) {
	if !strings.HasSuffix(href, ".ics") {
		return "", false
	}
	seg := href[strings.LastIndex(href, "/")+1:]
	seg = strings.TrimSuffix(seg, ".ics")
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	return seg, seg != ""
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
