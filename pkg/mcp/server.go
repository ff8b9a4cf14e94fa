// Package mcp serves docqa operations as Model Context Protocol tools over
// stdio using newline-delimited JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/models"
)

// Answerer is the question answering surface exposed as tools.
type Answerer interface {
	Ask(ctx context.Context, docRef, query string) (models.AskResult, error)
	Summarize(ctx context.Context, filename string) (models.SummaryResult, error)
	ExtractFields(ctx context.Context, filename string) (models.FieldsResult, error)
}

// CacheStatter provides cache statistics.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// LookupCounter reports cache hit and miss counts.
type LookupCounter interface {
	Hits() int64
	Misses() int64
}

// Server is an MCP server.
type Server struct {
	answers Answerer
	cache   CacheStatter
	lookups LookupCounter
	version string
	log     *zap.Logger
}

// New creates a Server. cache and lookups may be nil.
func New(answers Answerer, cache CacheStatter, lookups LookupCounter, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		answers: answers,
		cache:   cache,
		lookups: lookups,
		version: version,
		log:     log,
	}
}

// Run reads requests from r line by line and writes responses to w until r
// is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

// dispatch returns nil for notifications.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "docqa", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.callTool(ctx, req)
	}
	return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.log.Debug("tool call", zap.String("tool", params.Name))
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal mcp response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error("write mcp response", zap.Error(err))
	}
}
