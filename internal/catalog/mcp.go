package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ServerSpec describes a stdio MCP server to list tools from.
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Dialer opens a transport to a server. The default spawns the command.
type Dialer func(ctx context.Context, spec ServerSpec) (mcp.Transport, error)

// MCPSource lists tools directly from MCP servers over stdio, bypassing any
// aggregator. A server that fails to start or list is skipped with a
// warning; the remaining servers still contribute.
type MCPSource struct {
	servers     []ServerSpec
	concurrency int
	timeout     time.Duration
	dial        Dialer
	client      *mcp.Client
	logger      *zap.Logger
}

// MCPSourceOption configures an MCPSource.
type MCPSourceOption func(*MCPSource)

// WithDialer replaces the process-spawning dialer.
func WithDialer(d Dialer) MCPSourceOption {
	return func(s *MCPSource) { s.dial = d }
}

// WithConcurrency bounds how many servers are listed at once.
func WithConcurrency(n int) MCPSourceOption {
	return func(s *MCPSource) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTimeout bounds each server's connect and list.
func WithTimeout(d time.Duration) MCPSourceOption {
	return func(s *MCPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewMCPSource creates a source over servers.
func NewMCPSource(servers []ServerSpec, version string, logger *zap.Logger, opts ...MCPSourceOption) *MCPSource {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &MCPSource{
		servers:     servers,
		concurrency: 3,
		timeout:     30 * time.Second,
		dial:        commandDialer,
		client:      mcp.NewClient(&mcp.Implementation{Name: "tool-hub-search", Version: version}, nil),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func commandDialer(ctx context.Context, spec ServerSpec) (mcp.Transport, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("server %s has no command", spec.Name)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// ListTools lists every server concurrently and returns the tools sorted
// by qualified name. Servers that fail are reported in a *PartialError
// returned alongside the tools of the others.
func (s *MCPSource) ListTools(ctx context.Context) ([]Tool, error) {
	var (
		mu     sync.Mutex
		tools  []Tool
		failed = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, spec := range s.servers {
		spec := spec
		g.Go(func() error {
			serverTools, err := s.listServer(gctx, spec)
			if err != nil {
				s.logger.Warn("failed to list tools", zap.String("server", spec.Name), zap.Error(err))
				mu.Lock()
				failed[spec.Name] = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			tools = append(tools, serverTools...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	if tools == nil {
		tools = []Tool{}
	}
	if len(failed) > 0 {
		return tools, &PartialError{Failed: failed}
	}
	return tools, nil
}

func (s *MCPSource) listServer(ctx context.Context, spec ServerSpec) ([]Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	transport, err := s.dial(ctx, spec)
	if err != nil {
		return nil, err
	}

	session, err := s.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	var tools []Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}

		for _, t := range res.Tools {
			tool := Tool{
				Name:        QualifiedName(spec.Name, t.Name),
				Server:      spec.Name,
				Description: t.Description,
			}
			if t.InputSchema != nil {
				schema, err := json.Marshal(t.InputSchema)
				if err != nil {
					s.logger.Warn("failed to encode input schema", zap.String("tool", tool.Name), zap.Error(err))
				} else {
					tool.InputSchema = schema
				}
			}
			tools = append(tools, tool)
		}

		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}

	return tools, nil
}
