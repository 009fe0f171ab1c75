package engine

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/ncache/ncache/internal/cmn"
	"github.com/ncache/ncache/internal/config"
	"github.com/ncache/ncache/internal/data"
	"github.com/ncache/ncache/internal/keybuild"
	"github.com/ncache/ncache/internal/listing"
	"github.com/ncache/ncache/internal/mes"
)

// json is the admin-surface encoder, matching the teacher's own
// preference for jsoniter over encoding/json on the request path.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server terminates HTTP via fasthttp and drives Engine's state machine
// per request (SPEC_FULL.md §6.1: "no host HAProxy process exists in
// this corpus").
type Server struct {
	Eng *Engine

	metricsHandler fasthttp.RequestHandler
}

func NewServer(e *Engine) *Server {
	return &Server{
		Eng:            e,
		metricsHandler: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
}

const adminPrefix = "/_ncache/"

// Handler returns the fasthttp request handler to pass to
// fasthttp.Server.Handler.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if strings.HasPrefix(path, adminPrefix) {
		s.handleAdmin(ctx, path[len(adminPrefix):])
		return
	}
	s.handleCache(ctx)
}

func ruleNameFor(ctx *fasthttp.RequestCtx) string {
	if v := ctx.QueryArgs().Peek("rule"); len(v) > 0 {
		return string(v)
	}
	return "default"
}

func requestFrom(ctx *fasthttp.RequestCtx) *keybuild.Request {
	req := &keybuild.Request{
		Method:  string(ctx.Method()),
		HTTPS:   ctx.IsTLS(),
		Host:    string(ctx.Host()),
		URI:     string(ctx.RequestURI()),
		Path:    string(ctx.Path()),
		Query:   string(ctx.QueryArgs().QueryString()),
		Params:  map[string][]string{},
		Headers: map[string][]string{},
		Cookies: map[string]string{},
	}
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		req.Params[string(k)] = append(req.Params[string(k)], string(v))
	})
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		req.Headers[string(k)] = append(req.Headers[string(k)], string(v))
	})
	ctx.Request.Header.VisitAllCookie(func(k, v []byte) {
		req.Cookies[string(k)] = string(v)
	})
	if ctx.IsPost() || ctx.IsPut() {
		req.Body = ctx.PostBody()
	}
	return req
}

// handleCache implements the GET/HEAD read path and the PUT/POST write
// path of spec.md §4.4 against the engine's state machine.
func (s *Server) handleCache(ctx *fasthttp.RequestCtx) {
	rule := s.Eng.Cfg.RuleFor(ruleNameFor(ctx))
	req := requestFrom(ctx)

	switch {
	case ctx.IsDelete():
		if k := ctx.QueryArgs().Peek(cmn.URLParamKey); len(k) > 0 && string(ctx.Path()) == "/" {
			// Flush (client.Flush): k is a derived dict key, not a URL.
			key := append([]byte(nil), k...)
			hash := keybuild.Hash(key)
			s.Eng.Dict.Delete(key, hash)
			if s.Eng.Index != nil {
				_ = s.Eng.Index.Delete(hash)
			}
			s.Eng.Stats.IncEviction()
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		s.Eng.Delete(rule, req)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return

	case ctx.IsPost() || ctx.IsPut():
		s.handleStore(ctx, rule, req)
		return
	}

	res, err := s.Eng.Lookup(rule, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	switch res.State {
	case StateHit, StateHitDisk:
		writeElements(ctx, res.Info, res.Elements)
		if res.Entry != nil && res.Entry.Data != nil {
			res.Entry.Data.RemoveClient()
		}
	case StateWait:
		ctx.SetStatusCode(fasthttp.StatusAccepted)
	case StateNotAllowed:
		writeError(ctx, cmn.ErrNotAllowed)
	default:
		s.Eng.Stats.IncMiss()
		writeError(ctx, cmn.ErrNotFound)
	}
}

// handleStore runs the CREATE path of spec.md §4.4: admit the key,
// build a status-line/header/data/EOM element chain from the request,
// and finish or abort the entry.
func (s *Server) handleStore(ctx *fasthttp.RequestCtx, rule *config.Rule, req *keybuild.Request) {
	key := keybuild.Build(rule.KeyRecipe, req)
	hash := keybuild.Hash(key)

	entry, state, err := s.Eng.BeginCreate(rule, key, hash)
	if err != nil {
		writeError(ctx, err)
		return
	}
	switch state {
	case StateWait:
		ctx.SetStatusCode(fasthttp.StatusAccepted)
		return
	case StateFull:
		writeError(ctx, cmn.ErrResourceExhausted)
		return
	}

	elems := []*mes.Element{mes.NewStatusLine([]byte("200"))}
	contentType := string(ctx.Request.Header.ContentType())
	if contentType != "" {
		elems = append(elems, mes.NewHeader(cmn.HeaderContentType, contentType))
	}
	elems = append(elems, mes.NewEndOfHeaders())
	body := ctx.PostBody()
	if len(body) > 0 {
		elems = append(elems, mes.NewData(s.Eng.Arena.Alloc(body)))
	}
	elems = append(elems, mes.NewEndOfMessage())

	info := data.Info{ContentType: contentType, ContentLength: int64(len(body))}
	if err := s.Eng.FinishCreate(entry, rule, elems, info); err != nil {
		s.Eng.AbortCreate(entry)
		writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusCreated)
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	ctx.SetStatusCode(cmn.StatusFor(err))
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	ctx.SetBody(body)
}

func writeElements(ctx *fasthttp.RequestCtx, info data.Info, elems []*mes.Element) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	contentType := info.ContentType
	for _, e := range elems {
		switch e.Type() {
		case mes.TypeHeader:
			name, value := e.HeaderParts()
			if name == cmn.HeaderContentType {
				contentType = value
			}
		case mes.TypeData:
			buf.Write(e.Data)
		}
	}
	if contentType != "" {
		ctx.SetContentType(contentType)
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(buf.Bytes())
}

// handleAdmin serves SPEC_FULL.md §6.3's admin/diagnostic surface.
func (s *Server) handleAdmin(ctx *fasthttp.RequestCtx, sub string) {
	switch sub {
	case "stats":
		writeJSON(ctx, s.Eng.Stats.Snapshot())
	case "status":
		writeJSON(ctx, map[string]interface{}{
			"dict_used": s.Eng.Dict.Used(),
			"dict_size": s.Eng.Dict.Size(),
			"ring_size": s.Eng.Ring.Size(),
		})
	case "metrics":
		s.metricsHandler(ctx)
	case "keys":
		s.handleKeys(ctx)
	case "warmup":
		s.handleWarmup(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// handleKeys lists dict keys matching an optional prefix, msgpack-
// encoded via internal/listing (SPEC_FULL.md §6.3).
func (s *Server) handleKeys(ctx *fasthttp.RequestCtx) {
	prefix := string(ctx.QueryArgs().Peek(cmn.URLParamPrefix))
	entries := s.Eng.Dict.ListPrefix([]byte(prefix))
	list := listing.EntryList{Entries: make([]listing.Entry, 0, len(entries))}
	for _, e := range entries {
		list.Entries = append(list.Entries, listing.Entry{
			Key:      string(e.Key),
			State:    e.State.String(),
			ExpireMS: e.ExpireMS,
			OnDisk:   e.File != "",
		})
	}
	body, err := list.MarshalMsg(nil)
	if err != nil {
		writeError(ctx, cmn.Errorf(cmn.ErrInternal, "%v", err))
		return
	}
	ctx.SetContentType("application/msgpack")
	ctx.SetBody(body)
}

// handleWarmup promotes one disk-resident key into memory on demand.
func (s *Server) handleWarmup(ctx *fasthttp.RequestCtx) {
	key := ctx.QueryArgs().Peek(cmn.URLParamKey)
	if len(key) == 0 {
		writeError(ctx, cmn.Errorf(cmn.ErrMalformedRequest, "missing %s", cmn.URLParamKey))
		return
	}
	rule := s.Eng.Cfg.RuleFor(ruleNameFor(ctx))
	hash := keybuild.Hash(key)
	entry := s.Eng.Dict.Get(key, hash)
	if entry == nil {
		writeError(ctx, cmn.ErrNotFound)
		return
	}
	if err := s.Eng.Warmup(rule, entry); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func writeJSON(ctx *fasthttp.RequestCtx, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
