package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// FakeReply is one scripted outcome for FakeClient.
type FakeReply struct {
	Resp *Response
	Err  error
}

// FakeClient replays scripted replies in order, then falls back to a
// deterministic offline answer. It records every request it receives.
type FakeClient struct {
	mu    sync.Mutex
	queue []FakeReply
	calls []Request
}

func NewFakeClient(replies ...FakeReply) *FakeClient {
	return &FakeClient{queue: replies}
}

func (f *FakeClient) Name() string { return "fake" }
func (f *FakeClient) Close() error { return nil }

// Push appends scripted replies.
func (f *FakeClient) Push(replies ...FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, replies...)
}

// Calls returns the requests seen so far.
func (f *FakeClient) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *FakeClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	req.Messages = append([]Message(nil), req.Messages...)
	f.calls = append(f.calls, req)
	if len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return next.Resp, next.Err
	}
	f.mu.Unlock()
	return offlineReply(req), nil
}

var (
	reAppName  = regexp.MustCompile(`(?m)^Application Name: (.+)$`)
	reAppType  = regexp.MustCompile(`(?m)^Installer Type: (.+)$`)
	reSilent   = regexp.MustCompile(`(?m)^Silent Install Arguments: (.+)$`)
	reInstPath = regexp.MustCompile(`(?m)^Installer Path: (.+)$`)
)

// offlineReply answers a forced tool call with a minimal installation phase
// derived from the installer fields in the prompt. Without a forced tool it
// returns an empty text reply.
func offlineReply(req Request) *Response {
	resp := &Response{Model: "fake", Usage: &Usage{}}
	if req.ToolChoice == "" {
		return resp
	}
	var prompt string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			prompt = m.Content
			break
		}
	}
	field := func(re *regexp.Regexp, def string) string {
		if m := re.FindStringSubmatch(prompt); m != nil {
			return strings.TrimSpace(m[1])
		}
		return def
	}
	name := field(reAppName, "Application")
	path := field(reInstPath, "")

	var cmd map[string]any
	if strings.EqualFold(field(reAppType, ""), "MSI") {
		if path == "" {
			path = name + ".msi"
		}
		cmd = map[string]any{
			"name":       "Execute-MSI",
			"parameters": map[string]any{"Action": "Install", "Path": path},
		}
	} else {
		if path == "" {
			path = name + ".exe"
		}
		cmd = map[string]any{
			"name":       "Execute-Process",
			"parameters": map[string]any{"Path": path, "Parameters": field(reSilent, "/S")},
		}
	}
	args, _ := json.Marshal(map[string]any{
		"installation": map[string]any{
			"name":     "Installation",
			"commands": []any{cmd},
		},
	})
	resp.ToolCalls = []ToolCall{{ID: "fake-call", Name: req.ToolChoice, Arguments: string(args)}}
	return resp
}
