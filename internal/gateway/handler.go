package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/httpx"
)

// APIPrefix is the public path prefix stripped before forwarding upstream.
const APIPrefix = "/api/v1"

type Handler struct {
	ordersProxy   *ServiceProxy
	catalogProxy  *ServiceProxy
	trustIdentity bool
	logger        *slog.Logger
}

type HandlerOption func(*Handler)

// TrustIdentityHeader forwards the caller's X-User-Email as received. Use it only when
// an authenticating proxy in front of the gateway sets the header and drops any value
// the client sent.
func TrustIdentityHeader() HandlerOption {
	return func(h *Handler) {
		h.trustIdentity = true
	}
}

// NewHandler builds a gateway that removes client-supplied identity before forwarding
// unless TrustIdentityHeader is given.
func NewHandler(ordersProxy, catalogProxy *ServiceProxy, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		ordersProxy:  ordersProxy,
		catalogProxy: catalogProxy,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleOrders forwards cart, order and payment calls to the orders service.
func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy, upstreamPath(r.URL.Path))
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.catalogProxy, upstreamPath(r.URL.Path))
}

func upstreamPath(path string) string {
	trimmed := strings.TrimPrefix(path, APIPrefix)
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	if !h.trustIdentity && r.Header.Get(customers.EmailHeader) != "" {
		h.logger.Warn("dropping untrusted identity header", "path", path)
		r = r.Clone(r.Context())
		r.Header.Del(customers.EmailHeader)
	}

	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
