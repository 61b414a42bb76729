package web

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net"
	"os"
	"path"

	pkgerrors "github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/tcp"
)

// StaticHandler answers one HTTP/1.1 request per connection from a fixed
// route table. Only GET is served; every response closes the connection.
type StaticHandler struct {
	router *Router
	assets fs.FS
	logger core.Logger
}

// NewStaticHandler serves files from assets according to router.
// A nil router means DefaultRouter().
func NewStaticHandler(assets fs.FS, router *Router, logger core.Logger) *StaticHandler {
	if router == nil {
		router = DefaultRouter()
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &StaticHandler{router: router, assets: assets, logger: logger}
}

// NewDirHandler serves files from the directory root.
func NewDirHandler(root string, router *Router, logger core.Logger) *StaticHandler {
	return NewStaticHandler(os.DirFS(root), router, logger)
}

// Handle implements tcp.ConnectionHandler.
//
// A client that sends nothing before the read deadline gets no response and
// is not an error. A request that cannot be parsed gets 400. Write failures
// and unexpected read failures are returned.
func (h *StaticHandler) Handle(ctx *tcp.ConnContext) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	if err := req.Read(bufio.NewReader(ctx.Conn)); err != nil {
		if nothingRead(err) {
			h.logger.Debugf("conn %s: no request before deadline", ctx.ID)
			return nil
		}
		h.logger.Debugf("conn %s: malformed request: %v", ctx.ID, err)
		return WriteStatus(ctx.Conn, fasthttp.StatusBadRequest)
	}

	method := string(req.Header.Method())
	urlPath := string(req.URI().Path())
	status, err := h.serve(ctx.Conn, method, urlPath)
	h.logger.Debugf("conn %s: %s %s %d", ctx.ID, method, urlPath, status)
	return err
}

// serve writes the response for one request and returns its status code.
func (h *StaticHandler) serve(conn net.Conn, method, urlPath string) (int, error) {
	if method != fasthttp.MethodGet {
		return fasthttp.StatusMethodNotAllowed, writeMethodNotAllowed(conn)
	}

	file, ok := h.router.Lookup(urlPath)
	if !ok {
		return fasthttp.StatusNotFound, WriteStatus(conn, fasthttp.StatusNotFound)
	}

	body, err := fs.ReadFile(h.assets, file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fasthttp.StatusNotFound, WriteStatus(conn, fasthttp.StatusNotFound)
	case err != nil:
		if werr := WriteStatus(conn, fasthttp.StatusInternalServerError); werr != nil {
			return fasthttp.StatusInternalServerError, werr
		}
		return fasthttp.StatusInternalServerError, pkgerrors.Wrapf(err, "read asset %s", file)
	}

	return fasthttp.StatusOK, writeFile(conn, file, body)
}

// nothingRead reports whether the request failed before a single byte
// arrived, because the peer closed the connection or the deadline passed.
func nothingRead(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var nr fasthttp.ErrNothingRead
	return errors.As(err, &nr)
}

// Handler returns h as a tcp.ConnectionHandler.
func (h *StaticHandler) Handler() tcp.ConnectionHandler {
	return h.Handle
}

// RejectHandler answers connections the server will not handle with 503.
func RejectHandler(logger core.Logger) tcp.RejectHandler {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return func(conn net.Conn, err error) {
		logger.Warnf("rejecting connection from %s: %v", conn.RemoteAddr(), err)
		if werr := WriteStatus(conn, fasthttp.StatusServiceUnavailable); werr != nil {
			logger.Debugf("writing 503 to %s: %v", conn.RemoteAddr(), werr)
		}
	}
}

// WriteStatus writes an empty response with the given status and
// Connection: close.
func WriteStatus(w io.Writer, status int) error {
	return writeResponse(w, func(resp *fasthttp.Response) {
		resp.SetStatusCode(status)
	})
}

func writeMethodNotAllowed(w io.Writer) error {
	return writeResponse(w, func(resp *fasthttp.Response) {
		resp.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		resp.Header.Set(fasthttp.HeaderAllow, fasthttp.MethodGet)
	})
}

func writeFile(w io.Writer, file string, body []byte) error {
	return writeResponse(w, func(resp *fasthttp.Response) {
		resp.SetStatusCode(fasthttp.StatusOK)
		if ct := mime.TypeByExtension(path.Ext(file)); ct != "" {
			resp.Header.SetContentType(ct)
		}
		resp.SetBody(body)
	})
}

func writeResponse(w io.Writer, build func(resp *fasthttp.Response)) error {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	build(resp)
	resp.SetConnectionClose()

	bw := bufio.NewWriter(w)
	if err := resp.Write(bw); err != nil {
		return pkgerrors.Wrap(err, "write response")
	}
	return pkgerrors.Wrap(bw.Flush(), "flush response")
}
