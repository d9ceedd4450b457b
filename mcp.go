package parammap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func withKeyArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("deviceId", mcp.Required(), mcp.Description("The device id (1-32).")),
		mcp.WithNumber("type", mcp.Required(), mcp.Description("The message type number (0 virtual, 1 cc7, 2 cc14, 3 nrpn, 4 rpn, 5 note on, 6 note off, 7 program, 9 poly aftertouch, 10 channel aftertouch, 11 pitch bend).")),
		mcp.WithNumber("parameterNumber", mcp.Required(), mcp.Description("The parameter number (0-16383).")),
	}
}

func keyArgs(request mcp.CallToolRequest) ([]int, error) {
	r := make([]int, 0, 4)
	for _, n := range []string{"deviceId", "type", "parameterNumber"} {
		v, err := request.RequireInt(n)
		if err != nil {
			return nil, err
		}
		r = append(r, v)
	}
	return r, nil
}

// mcpTools returns the parameterMap primitives of s as MCP tools.
func mcpTools(s *Server) []server.ServerTool {
	var tools []server.ServerTool

	// write adds a tool taking a key and a midi value.
	write := func(name, desc string, fn func(d, t, p, v int) error) {
		opts := append([]mcp.ToolOption{mcp.WithDescription(desc)}, withKeyArgs()...)
		opts = append(opts, mcp.WithNumber("midiValue", mcp.Required(), mcp.Description("The wire value (0-16383).")))
		tools = append(tools, server.ServerTool{
			Tool: mcp.NewTool(name, opts...),
			Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				a, err := keyArgs(request)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				v, err := request.RequireInt("midiValue")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return s.mcpDo(ctx, func() (string, error) {
					return "ok", fn(a[0], a[1], a[2], v)
				})
			},
		})
	}
	write("parametermap_set", "Stores a value and notifies bound controls. Unchanged values are ignored.", s.surface.Set)
	write("parametermap_apply", "Stores a value, notifies bound controls and sends it, even if unchanged.", s.surface.Apply)

	// read adds a tool taking a key.
	read := func(name, desc string, fn func(d, t, p int) (string, error)) {
		opts := append([]mcp.ToolOption{mcp.WithDescription(desc)}, withKeyArgs()...)
		tools = append(tools, server.ServerTool{
			Tool: mcp.NewTool(name, opts...),
			Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				a, err := keyArgs(request)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return s.mcpDo(ctx, func() (string, error) {
					return fn(a[0], a[1], a[2])
				})
			},
		})
	}
	read("parametermap_send", "Sends the stored value of a parameter to its device.", func(d, t, p int) (string, error) {
		return "ok", s.surface.Send(d, t, p)
	})
	read("parametermap_get", "Returns the stored wire value of a parameter, 0 if unknown.", func(d, t, p int) (string, error) {
		v, err := s.surface.Get(d, t, p)
		return fmt.Sprint(v), err
	})
	read("parametermap_get-values", "Lists the control values bound to a parameter with their display values.", func(d, t, p int) (string, error) {
		values, err := s.surface.GetValues(d, t, p)
		if err != nil {
			return "", err
		}
		asJson, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal values to JSON: %v", err)
		}
		return string(asJson), nil
	})

	tools = append(tools, server.ServerTool{
		Tool: mcp.NewTool("parametermap_reset-all",
			mcp.WithDescription("Discards every stored value."),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.mcpDo(ctx, func() (string, error) {
				s.surface.ResetAll()
				return "ok", nil
			})
		},
	})

	tools = append(tools, server.ServerTool{
		Tool: mcp.NewTool("parametermap_reset-device",
			mcp.WithDescription("Discards the stored values of one device."),
			mcp.WithNumber("deviceId", mcp.Required(), mcp.Description("The device id (1-32).")),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			d, err := request.RequireInt("deviceId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return s.mcpDo(ctx, func() (string, error) {
				return "ok", s.surface.ResetDevice(d)
			})
		},
	})

	return tools
}

// NewMCPServer exposes the parameterMap primitives of s as MCP tools.
func NewMCPServer(s *Server) *server.MCPServer {
	ms := server.NewMCPServer(
		"parameterMap",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	ms.AddTools(mcpTools(s)...)
	return ms
}

// mcpDo runs fn on the owner goroutine and turns its outcome into a tool
// result.
func (s *Server) mcpDo(ctx context.Context, fn func() (string, error)) (*mcp.CallToolResult, error) {
	var text string
	var err error
	if doErr := s.Do(ctx, func() { text, err = fn() }); doErr != nil {
		return nil, doErr
	}
	if err != nil {
		glog.Warningf("mcp: %v", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// ServeMCP serves the MCP tools of s on stdin and stdout.
func ServeMCP(s *Server) error {
	glog.Info("Starting parameterMap MCP server")
	return server.ServeStdio(NewMCPServer(s))
}
