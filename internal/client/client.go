// Package client is a thin REST client over a running ncached instance,
// adapted from the teacher's webdav/proxy.go proxyServer: a struct
// wrapping a base URL, with one method per server-side verb, used by
// cmd/ncachectl.
package client

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/ncache/ncache/internal/listing"
	"github.com/ncache/ncache/internal/stats"
)

// json matches the encoder internal/engine's admin handlers use, so a
// client decoding their output exercises the same codec.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps a base URL and a shared fasthttp.Client, matching the
// teacher's proxyServer{url string} plus a lazily-built API client.
type Client struct {
	baseURL string
	hc      *fasthttp.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, hc: &fasthttp.Client{}}
}

func (c *Client) do(method, path string, body []byte) (*fasthttp.Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if body != nil {
		req.SetBody(body)
	}
	if err := c.hc.DoTimeout(req, resp, 10*time.Second); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// Get fetches a cached value by path, returning its raw body.
func (c *Client) Get(path string) ([]byte, int, error) {
	resp, err := c.do(fasthttp.MethodGet, path, nil)
	if err != nil {
		return nil, 0, err
	}
	defer fasthttp.ReleaseResponse(resp)
	body := append([]byte(nil), resp.Body()...)
	return body, resp.StatusCode(), nil
}

// Put stores a value at path.
func (c *Client) Put(path string, body []byte) (int, error) {
	resp, err := c.do(fasthttp.MethodPut, path, body)
	if err != nil {
		return 0, err
	}
	defer fasthttp.ReleaseResponse(resp)
	return resp.StatusCode(), nil
}

// Delete evicts the value at path.
func (c *Client) Delete(path string) (int, error) {
	resp, err := c.do(fasthttp.MethodDelete, path, nil)
	if err != nil {
		return 0, err
	}
	defer fasthttp.ReleaseResponse(resp)
	return resp.StatusCode(), nil
}

// Status retrieves /_ncache/status.
func (c *Client) Status() (map[string]interface{}, error) {
	body, _, err := c.Get("/_ncache/status")
	if err != nil {
		return nil, err
	}
	var v map[string]interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("client: decode status: %w", err)
	}
	return v, nil
}

// Stats retrieves /_ncache/stats.
func (c *Client) Stats() (*stats.Snapshot, error) {
	body, _, err := c.Get("/_ncache/stats")
	if err != nil {
		return nil, err
	}
	var v stats.Snapshot
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("client: decode stats: %w", err)
	}
	return &v, nil
}

// Keys retrieves /_ncache/keys?prefix=... and decodes the msgpack listing.
func (c *Client) Keys(prefix string) ([]listing.Entry, error) {
	body, _, err := c.Get("/_ncache/keys?prefix=" + prefix)
	if err != nil {
		return nil, err
	}
	var list listing.EntryList
	if _, err := list.UnmarshalMsg(body); err != nil {
		return nil, fmt.Errorf("client: decode keys: %w", err)
	}
	return list.Entries, nil
}

// Warmup triggers /_ncache/warmup?key=...
func (c *Client) Warmup(key string) (int, error) {
	resp, err := c.do(fasthttp.MethodPost, "/_ncache/warmup?key="+key, nil)
	if err != nil {
		return 0, err
	}
	defer fasthttp.ReleaseResponse(resp)
	return resp.StatusCode(), nil
}

// Flush deletes a key via DELETE / with an explicit key query param,
// matching the admin ActFlush verb (internal/cmn.ActFlush).
func (c *Client) Flush(key string) (int, error) {
	return c.Delete("/?key=" + key)
}
