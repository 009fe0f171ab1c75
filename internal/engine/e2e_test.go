package engine

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/ncache/ncache/internal/config"
)

// harness drives a Server over an in-memory listener, the fasthttp
// idiom for exercising a handler without binding a real socket.
type harness struct {
	ln  *fasthttputil.InmemoryListener
	eng *Engine
}

func newHarness(cfg *config.Config) *harness {
	eng, err := New(cfg)
	Expect(err).NotTo(HaveOccurred())
	srv := NewServer(eng)
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, srv.Handler)
	}()
	return &harness{ln: ln, eng: eng}
}

func (h *harness) do(method, path, body string) (*http.Response, error) {
	return h.doCT(method, path, body, "")
}

func (h *harness) doCT(method, path, body, contentType string) (*http.Response, error) {
	conn, err := h.ln.Dial()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, "http://ncache"+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := req.Write(conn); err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(conn), req)
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

var _ = Describe("cache engine HTTP surface", func() {
	var (
		h   *harness
		cfg *config.Config
	)

	BeforeEach(func() {
		cfg = config.Default()
		cfg.Root = GinkgoT().TempDir()
		Expect(cfg.Validate()).To(Succeed())
		h = newHarness(cfg)
	})

	It("S1: stores and fetches a value from memory", func() {
		resp, err := h.doCT("POST", "/a?x=1", "hello", "text/plain")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(201))

		resp, err = h.do("GET", "/a?x=1", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain"))
		Expect(readBody(resp)).To(Equal("hello"))
	})

	It("S2: a GET with no prior store misses", func() {
		resp, err := h.do("GET", "/nope", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))
	})

	It("S3: a second POST to the same key overwrites the first", func() {
		_, err := h.do("POST", "/k", "v1")
		Expect(err).NotTo(HaveOccurred())
		_, err = h.do("POST", "/k", "v2")
		Expect(err).NotTo(HaveOccurred())

		resp, err := h.do("GET", "/k", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(readBody(resp)).To(Equal("v2"))
	})

	It("S4: DELETE evicts a stored key", func() {
		_, err := h.do("POST", "/k", "x")
		Expect(err).NotTo(HaveOccurred())
		resp, err := h.do("DELETE", "/k", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(204))

		resp, err = h.do("GET", "/k", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))
	})

	It("S6: a full data budget rejects further creates with 507", func() {
		cfg.DataSize = 1
		h = newHarness(cfg)
		h.eng.Stats.AddUsedMem(10)

		resp, err := h.do("POST", "/new-key", "payload")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(507))
	})
})
