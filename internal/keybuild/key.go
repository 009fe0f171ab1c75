// Package keybuild derives cache keys from an HTTP request the way
// nuster's nst_nosql_build_key does in original_source/src/nuster/nosql/
// engine.c: a rule-directed sequence of field encodings concatenated
// into one byte buffer, with a fixed 2-byte gap standing in for any
// absent field so two different field sets cannot collide by truncation
// (spec.md §3).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package keybuild

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind enumerates the declarative key recipe fields of spec.md §6.
type Kind int

const (
	KindMethod Kind = iota
	KindScheme
	KindHost
	KindURI
	KindPath
	KindDelimiter
	KindQuery
	KindParam
	KindHeader
	KindCookie
	KindBody
)

// Component is one step of a rule's key recipe; Name holds the
// parameter/header/cookie name for KindParam/KindHeader/KindCookie.
type Component struct {
	Kind Kind
	Name string
}

func ParseRecipe(spec []string) ([]Component, error) {
	recipe := make([]Component, 0, len(spec))
	for _, s := range spec {
		parts := strings.SplitN(s, ":", 2)
		tok := strings.ToLower(parts[0])
		var kind Kind
		switch tok {
		case "method":
			kind = KindMethod
		case "scheme":
			kind = KindScheme
		case "host":
			kind = KindHost
		case "uri":
			kind = KindURI
		case "path":
			kind = KindPath
		case "delimiter":
			kind = KindDelimiter
		case "query":
			kind = KindQuery
		case "param":
			kind = KindParam
		case "header":
			kind = KindHeader
		case "cookie":
			kind = KindCookie
		case "body":
			kind = KindBody
		default:
			return nil, fmt.Errorf("keybuild: unknown key component %q", s)
		}
		name := ""
		if len(parts) == 2 {
			name = parts[1]
		}
		if (kind == KindParam || kind == KindHeader || kind == KindCookie) && name == "" {
			return nil, fmt.Errorf("keybuild: %q requires a name, e.g. %q", s, tok+":X-Name")
		}
		recipe = append(recipe, Component{Kind: kind, Name: name})
	}
	return recipe, nil
}

// gap is the fixed 2-byte literal emitted for an absent field so that,
// e.g., an empty host followed by a present path cannot be confused
// with a present host whose bytes happen to start the path.
var gap = [2]byte{0x00, 0x01}

// Request carries the fields of an inbound request that key recipes can
// reference. The engine's HTTP layer populates this from whichever HTTP
// library terminates the connection (fasthttp in cmd/ncached); keybuild
// itself has no HTTP dependency.
type Request struct {
	Method string
	HTTPS  bool
	Host   string
	URI    string // path + "?" + query, as presented on the request line
	Path   string
	Query  string // everything after '?', empty if none
	Params map[string][]string
	Headers map[string][]string
	Cookies map[string]string
	Body    []byte // only consulted for KindBody
}

// Build concatenates the recipe's field encodings into a new buffer and
// returns the resulting key bytes; Hash computes their 64-bit hash.
// METHOD is normalized
// to "GET" regardless of the actual verb, so all verbs addressing the
// same resource share one key (spec.md §6).
func Build(recipe []Component, req *Request) []byte {
	var buf []byte
	for _, c := range recipe {
		switch c.Kind {
		case KindMethod:
			buf = append(buf, "GET"...)
		case KindScheme:
			if req.HTTPS {
				buf = append(buf, "HTTPS"...)
			} else {
				buf = append(buf, "HTTP"...)
			}
		case KindHost:
			buf = appendOrGap(buf, req.Host)
		case KindURI:
			buf = appendOrGap(buf, req.URI)
		case KindPath:
			buf = appendOrGap(buf, req.Path)
		case KindDelimiter:
			if req.Query != "" {
				buf = append(buf, '?')
			} else {
				buf = append(buf, gap[:]...)
			}
		case KindQuery:
			buf = appendOrGap(buf, req.Query)
		case KindParam:
			if v, ok := req.Params[c.Name]; ok && len(v) > 0 {
				buf = append(buf, v[0]...)
			} else {
				buf = append(buf, gap[:]...)
			}
		case KindHeader:
			if v, ok := req.Headers[c.Name]; ok && len(v) > 0 {
				for _, one := range v {
					buf = append(buf, one...)
				}
			} else {
				buf = append(buf, gap[:]...)
			}
		case KindCookie:
			if v, ok := req.Cookies[c.Name]; ok {
				buf = append(buf, v...)
			} else {
				buf = append(buf, gap[:]...)
			}
		case KindBody:
			// Open Question 1 (spec.md §9): the source leaves BODY
			// commented out. This repo implements it: POST/PUT bodies
			// participate in the key when a rule asks for it.
			if len(req.Body) > 0 {
				buf = append(buf, req.Body...)
			} else {
				buf = append(buf, gap[:]...)
			}
		}
	}
	return buf
}

func appendOrGap(buf []byte, s string) []byte {
	if s == "" {
		return append(buf, gap[:]...)
	}
	return append(buf, s...)
}

// Hash computes the 64-bit key hash (spec.md §3).
func Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}
