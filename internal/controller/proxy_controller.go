package controller

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"portfolio-chat/internal/dto"
	"portfolio-chat/internal/pkg/serverutils"
	"portfolio-chat/internal/service"

	"github.com/gofiber/fiber/v2"
)

const streamChunkSize = 4096

// Response headers owned by this server, never copied from upstream.
var skippedResponseHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
	"Vary":              true,
}

type IProxyController interface {
	RegisterRoutes(r fiber.Router)
	Forward(ctx *fiber.Ctx) error
	Preflight(ctx *fiber.Ctx) error
	MethodNotAllowed(ctx *fiber.Ctx) error
}

type proxyController struct {
	service service.IProxyService
}

func NewProxyController(service service.IProxyService) IProxyController {
	return &proxyController{service: service}
}

func (c *proxyController) RegisterRoutes(r fiber.Router) {
	r.Options("/*", c.Preflight)
	// Get also registers HEAD; only GET and POST are forwarded.
	r.Head("/*", c.MethodNotAllowed)
	r.Get("/*", c.Forward)
	r.Post("/*", c.Forward)
	r.All("/*", c.MethodNotAllowed)
}

func (c *proxyController) Preflight(ctx *fiber.Ctx) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *proxyController) MethodNotAllowed(ctx *fiber.Ctx) error {
	ctx.Set(fiber.HeaderAllow, "GET, POST, OPTIONS")
	return ctx.Status(fiber.StatusMethodNotAllowed).JSON(serverutils.ErrorResponse(fiber.StatusMethodNotAllowed, "Method not allowed"))
}

func (c *proxyController) Forward(ctx *fiber.Ctx) error {
	path := "/" + strings.TrimLeft(ctx.Params("*"), "/")

	if ctx.Method() == fiber.MethodPost {
		if err := validateBody(ctx, path); err != nil {
			return err
		}
	}

	headers := http.Header{}
	for _, name := range []string{fiber.HeaderAuthorization, "Idempotency-Key", "Last-Event-ID"} {
		if v := ctx.Get(name); v != "" {
			headers.Set(name, v)
		}
	}

	res, err := c.service.Forward(ctx.UserContext(), &dto.ProxyRequest{
		Method:      ctx.Method(),
		Path:        path,
		RawQuery:    string(ctx.Request().URI().QueryString()),
		Body:        bytes.Clone(ctx.Body()),
		ContentType: ctx.Get(fiber.HeaderContentType),
		Accept:      ctx.Get(fiber.HeaderAccept),
		Origin:      ctx.Get(fiber.HeaderOrigin),
		Headers:     headers,
	})
	if err != nil {
		if errors.Is(err, service.ErrUpstreamUnavailable) {
			return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.ErrorResponse(fiber.StatusBadGateway, "Upstream service unavailable"))
		}
		return err
	}

	copyHeaders(ctx, res.Header)
	ctx.Status(res.StatusCode)

	if res.IsEventStream() {
		ctx.Set(fiber.HeaderCacheControl, "no-cache")
		ctx.Set("X-Accel-Buffering", "no")
		ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer res.Body.Close()
			pipeStream(w, res.Body)
		})
		return nil
	}

	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.ErrorResponse(fiber.StatusBadGateway, "Upstream response interrupted"))
	}
	return ctx.Send(body)
}

// validateBody rejects malformed chat and feedback bodies before they cost an
// upstream round trip.
func validateBody(ctx *fiber.Ctx, path string) error {
	switch path {
	case "/chat", "/chat/stream":
		var req dto.ChatStreamRequest
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		req.Question = strings.TrimSpace(req.Question)
		return serverutils.ValidateRequest(req)
	case "/feedback":
		var req dto.FeedbackRequest
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		return serverutils.ValidateRequest(req)
	}
	return nil
}

func copyHeaders(ctx *fiber.Ctx, header http.Header) {
	for name, values := range header {
		if skippedResponseHeaders[name] || strings.HasPrefix(name, "Access-Control-") {
			continue
		}
		for i, v := range values {
			if i == 0 {
				ctx.Set(name, v)
			} else {
				ctx.Append(name, v)
			}
		}
	}
}

// pipeStream flushes every upstream chunk so SSE frames reach the browser as
// they arrive. It returns when either side goes away.
func pipeStream(w *bufio.Writer, r io.Reader) {
	buf := make([]byte, streamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if ferr := w.Flush(); ferr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
