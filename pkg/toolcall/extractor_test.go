package toolcall

import (
	"context"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jcanyelles/weft/pkg/mcp"
)

type recordedCall struct {
	Name string
	Args map[string]any
}

type fakeRunner struct {
	schemas map[string]mcp.ToolSchema
	results map[string]string
	fail    map[string]error
	calls   []recordedCall
}

func (f *fakeRunner) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, recordedCall{Name: name, Args: args})
	if err, ok := f.fail[name]; ok {
		return "", err
	}
	return f.results[name], nil
}

func (f *fakeRunner) Schema(name string) (mcp.ToolSchema, bool) {
	schema, ok := f.schemas[name]
	return schema, ok
}

func fsRunner() *fakeRunner {
	return &fakeRunner{
		schemas: map[string]mcp.ToolSchema{
			"read_file": {
				Tool:       mcpgo.Tool{Name: "read_file"},
				Category:   "fs",
				ParamOrder: []string{"path"},
			},
			"write_file": {
				Tool:       mcpgo.Tool{Name: "write_file"},
				Category:   "fs",
				ParamOrder: []string{"path", "content"},
			},
		},
		results: map[string]string{
			"read_file":  "hello from a.txt",
			"write_file": "ok",
		},
	}
}

func TestProcess_ReadFileRoundTrip(t *testing.T) {
	runner := fsRunner()
	e := New(runner)

	text := "Reading the file now.\n```tool_code\nfs.read_file(\"a.txt\")\n```\nDone."
	out := e.Process(context.Background(), text, []string{"fs"})

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 executed call, got %d", len(runner.calls))
	}
	call := runner.calls[0]
	if call.Name != "read_file" || call.Args["path"] != "a.txt" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if !strings.HasPrefix(out, text) {
		t.Fatalf("original text not preserved:\n%s", out)
	}
	if !strings.Contains(out, "```tool_outputs") || !strings.Contains(out, "fs.read_file: hello from a.txt") {
		t.Fatalf("missing results block:\n%s", out)
	}
}

func TestProcess_TripleQuotedBodySurvives(t *testing.T) {
	runner := fsRunner()
	e := New(runner)

	text := "```tool_code\nfs.write_file(\"x.py\", \"\"\"line1\nline2\"\"\")\n```"
	e.Process(context.Background(), text, []string{"fs"})

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 executed call, got %d", len(runner.calls))
	}
	content, _ := runner.calls[0].Args["content"].(string)
	if content != "line1\nline2" {
		t.Fatalf("content truncated or mangled: %q", content)
	}
}

func TestProcess_NonPermittedCategorySilentlySkipped(t *testing.T) {
	runner := fsRunner()
	e := New(runner)

	text := "```tool_code\nnet.fetch(\"http://example.com\")\nfs.read_file(\"a.txt\")\n```"
	out := e.Process(context.Background(), text, []string{"fs"})

	if len(runner.calls) != 1 || runner.calls[0].Name != "read_file" {
		t.Fatalf("expected only the fs call, got %+v", runner.calls)
	}
	if strings.Contains(out, "net.fetch") && strings.Contains(out, "tool_outputs\nnet") {
		t.Fatalf("skipped call leaked into results:\n%s", out)
	}
}

func TestProcess_NoBlocksLeavesTextUnchanged(t *testing.T) {
	e := New(fsRunner())
	text := "Just prose mentioning fs.read_file(\"a.txt\") outside any fence."
	if out := e.Process(context.Background(), text, []string{"fs"}); out != text {
		t.Fatalf("text changed without a tool_code block:\n%s", out)
	}
}

func TestProcess_ExecutionErrorReportedInline(t *testing.T) {
	runner := fsRunner()
	runner.fail = map[string]error{"read_file": context.DeadlineExceeded}
	e := New(runner)

	text := "```tool_code\nfs.read_file(\"a.txt\")\n```"
	out := e.Process(context.Background(), text, []string{"fs"})
	if !strings.Contains(out, "fs.read_file: [error:") {
		t.Fatalf("expected inline error line:\n%s", out)
	}
}

func TestProcess_UnterminatedCallSkipped(t *testing.T) {
	runner := fsRunner()
	e := New(runner)

	text := "```tool_code\nfs.read_file(\"a.txt\n```"
	out := e.Process(context.Background(), text, []string{"fs"})
	if len(runner.calls) != 0 {
		t.Fatalf("unterminated call executed: %+v", runner.calls)
	}
	if out != text {
		t.Fatalf("expected unchanged text, got:\n%s", out)
	}
}

func TestProcess_NestedParensInsideString(t *testing.T) {
	runner := fsRunner()
	e := New(runner)

	text := "```tool_code\nfs.write_file(\"x.py\", \"print(add(1, 2))\")\n```"
	e.Process(context.Background(), text, []string{"fs"})

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.calls))
	}
	if got := runner.calls[0].Args["content"]; got != "print(add(1, 2))" {
		t.Fatalf("nested parens broke the span: %q", got)
	}
}

func TestProcess_KeywordArguments(t *testing.T) {
	runner := fsRunner()
	e := New(runner)

	text := "```tool_code\nfs.write_file(path=\"x.py\", content=\"body\")\n```"
	e.Process(context.Background(), text, []string{"fs"})

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.calls))
	}
	args := runner.calls[0].Args
	if args["path"] != "x.py" || args["content"] != "body" {
		t.Fatalf("keyword arguments misbound: %+v", args)
	}
}

func TestArgSpan(t *testing.T) {
	cases := []struct {
		src  string
		want string
		ok   bool
	}{
		{`fs.f("a.txt")`, `("a.txt")`, true},
		{`fs.f("a)b")`, `("a)b")`, true},
		{`fs.f('''a)b''')`, `('''a)b''')`, true},
		{`fs.f(g(1), 2)`, `(g(1), 2)`, true},
		{`fs.f("\")")`, `("\")")`, true},
		{`fs.f("open`, "", false},
	}
	for _, tc := range cases {
		open := strings.IndexByte(tc.src, '(')
		end, ok := argSpan(tc.src, open)
		if ok != tc.ok {
			t.Fatalf("%q: ok=%v, want %v", tc.src, ok, tc.ok)
		}
		if ok && tc.src[open:end] != tc.want {
			t.Fatalf("%q: span %q, want %q", tc.src, tc.src[open:end], tc.want)
		}
	}
}

func TestTopLevelComma(t *testing.T) {
	if i := topLevelComma(`"a,b", "c"`); i != 5 {
		t.Fatalf("comma inside string not skipped, got %d", i)
	}
	if i := topLevelComma(`[1, 2], 3`); i != 6 {
		t.Fatalf("comma inside list not skipped, got %d", i)
	}
	if i := topLevelComma(`"a.txt"`); i != -1 {
		t.Fatalf("expected -1, got %d", i)
	}
}

func TestParseArguments(t *testing.T) {
	args, kwargs, err := parseArguments(`"a", 1, 2.5, True, None, [1, "x"], {"k": False}, mode="w"`)
	if err != nil {
		t.Fatalf("parseArguments: %v", err)
	}
	if len(args) != 7 {
		t.Fatalf("expected 7 positional args, got %d: %+v", len(args), args)
	}
	if args[0] != "a" || args[1] != 1 || args[2] != 2.5 || args[3] != true || args[4] != nil {
		t.Fatalf("unexpected scalars: %+v", args)
	}
	list, ok := args[5].([]any)
	if !ok || len(list) != 2 || list[1] != "x" {
		t.Fatalf("unexpected list: %+v", args[5])
	}
	dict, ok := args[6].(map[string]any)
	if !ok || dict["k"] != false {
		t.Fatalf("unexpected dict: %+v", args[6])
	}
	if kwargs["mode"] != "w" {
		t.Fatalf("unexpected kwargs: %+v", kwargs)
	}
}

func TestParseArguments_Escapes(t *testing.T) {
	args, _, err := parseArguments(`"a\nb\t\"c\""`)
	if err != nil {
		t.Fatalf("parseArguments: %v", err)
	}
	if args[0] != "a\nb\t\"c\"" {
		t.Fatalf("escapes mishandled: %q", args[0])
	}
}

func TestSplitPathAndBodyFallback(t *testing.T) {
	// A trailing backslash eats one closing quote and defeats the literal
	// parser; the manual split recovers the body verbatim.
	raw := `"x.py", """a\"""`
	if _, _, err := parseArguments(raw); err == nil {
		t.Fatalf("expected literal parse to fail for %q", raw)
	}
	args, _, err := splitPathAndBody(raw)
	if err != nil {
		t.Fatalf("splitPathAndBody: %v", err)
	}
	if args[0] != "x.py" || args[1] != `a\` {
		t.Fatalf("unexpected fallback args: %+v", args)
	}
}
