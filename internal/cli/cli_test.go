package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/devya-app/devya"
	"gopkg.in/yaml.v3"
)

// stubBackend answers backend commands with canned JSON.
type stubBackend struct {
	mu      sync.Mutex
	answers map[string]string
	bodies  map[string]string
	server  *httptest.Server
}

func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	s := &stubBackend{answers: make(map[string]string), bodies: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke/{command}", func(w http.ResponseWriter, r *http.Request) {
		command := r.PathValue("command")
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)

		s.mu.Lock()
		s.bodies[command] = body.String()
		answer, ok := s.answers[command]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"unknown command ` + command + `"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(answer))
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubBackend) answer(command, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[command] = body
}

func (s *stubBackend) body(command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[command]
}

// execute runs the command tree against configDir and returns stdout.
func execute(t *testing.T, configDir string, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config-dir", configDir}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestProxyCmd(t *testing.T) {
	t.Run("should render the proxy status as json", func(t *testing.T) {
		backend := newStubBackend(t)
		backend.answer("check_proxy_running", `{"port":8080,"running_count":1}`)

		out, err := execute(t, t.TempDir(), "", "--backend", backend.server.URL, "-o", "json", "proxy", "status")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var got proxyStatus
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("\nwanted:\njson\ngot:\n%v", out)
		}
		port := uint16(8080)
		want := proxyStatus{Running: true, Port: &port, RunningCount: 1}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", want, got)
		}
	})

	t.Run("should report a stopped proxy as text", func(t *testing.T) {
		backend := newStubBackend(t)
		backend.answer("check_proxy_running", `{"running_count":0}`)

		out, err := execute(t, t.TempDir(), "", "--backend", backend.server.URL, "proxy", "status")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		want := "proxy is not running\n"
		if out != want {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", want, out)
		}
	})

	t.Run("should refuse a port the backend reports as busy", func(t *testing.T) {
		backend := newStubBackend(t)
		backend.answer("check_proxy_running", `{"running_count":0}`)
		backend.answer("check_port", `false`)

		_, err := execute(t, t.TempDir(), "", "--backend", backend.server.URL, "proxy", "start", "-p", "9000")
		if err == nil || !strings.Contains(err.Error(), "port 9000 is already in use") {
			t.Fatalf("\nwanted:\nport 9000 is already in use\ngot:\n%v", err)
		}
		if backend.body("start_proxy") != "" {
			t.Fatalf("\nwanted:\nno start_proxy call\ngot:\n%v", backend.body("start_proxy"))
		}
	})

	t.Run("should surface the backend error message", func(t *testing.T) {
		backend := newStubBackend(t)

		_, err := execute(t, t.TempDir(), "", "--backend", backend.server.URL, "proxy", "status")
		if err == nil || !strings.Contains(err.Error(), "unknown command check_proxy_running") {
			t.Fatalf("\nwanted:\nunknown command check_proxy_running\ngot:\n%v", err)
		}
	})
}

func TestCACmd(t *testing.T) {
	t.Run("should tell the user how to install a missing authority", func(t *testing.T) {
		backend := newStubBackend(t)
		backend.answer("check_ca_installed", `false`)

		out, err := execute(t, t.TempDir(), "", "--backend", backend.server.URL, "ca", "check")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !strings.Contains(out, "devya ca install") {
			t.Fatalf("\nwanted:\ninstall hint\ngot:\n%v", out)
		}
	})
}

func TestRulesCmd(t *testing.T) {
	t.Run("should print the content of a rule file", func(t *testing.T) {
		backend := newStubBackend(t)
		backend.answer("get_rule_file_content", `"rules:\n  - block"`)

		out, err := execute(t, t.TempDir(), "", "--backend", backend.server.URL, "rules", "cat", "3")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		want := "rules:\n  - block"
		if out != want {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", want, out)
		}
		if got := backend.body("get_rule_file_content"); got != `{"id":3}` {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", `{"id":3}`, got)
		}
	})

	t.Run("should write stdin as the rule content", func(t *testing.T) {
		backend := newStubBackend(t)
		backend.answer("update_rule_file_content", ``)

		_, err := execute(t, t.TempDir(), "new content", "--backend", backend.server.URL, "rules", "write", "7")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		want := `{"id":7,"content":"new content"}`
		if got := backend.body("update_rule_file_content"); got != want {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should reject an id that is not a number", func(t *testing.T) {
		_, err := execute(t, t.TempDir(), "", "rules", "cat", "abc")
		if err == nil || !strings.Contains(err.Error(), `invalid id "abc"`) {
			t.Fatalf("\nwanted:\ninvalid id\ngot:\n%v", err)
		}
	})
}

func TestScopeCmd(t *testing.T) {
	t.Run("should persist rules across invocations", func(t *testing.T) {
		dir := t.TempDir()

		out, err := execute(t, dir, "", "scope", "list")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !strings.Contains(out, "no scope rules") {
			t.Fatalf("\nwanted:\nno scope rules\ngot:\n%v", out)
		}

		if _, err := execute(t, dir, "", "scope", "add", `example\.com`); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if _, err := execute(t, dir, "", "scope", "add", "--exclude", "--match", "url", `\.png$`); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		out, err = execute(t, dir, "", "-o", "json", "scope", "list")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		var got []string
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("\nwanted:\njson\ngot:\n%v", out)
		}
		want := []string{`-url:\.png$`, `host:example\.com`}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}

		if _, err := execute(t, dir, "", "scope", "remove", `example\.com`); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		out, err = execute(t, dir, "", "scope", "list")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if strings.Contains(out, "example") {
			t.Fatalf("\nwanted:\nrule removed\ngot:\n%v", out)
		}
	})

	t.Run("should reject an invalid pattern", func(t *testing.T) {
		_, err := execute(t, t.TempDir(), "", "scope", "add", "(")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestStatsCmd(t *testing.T) {
	t.Run("should render empty stats as yaml", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "", "-o", "yaml", "stats")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		got := map[string]int{}
		if err := yaml.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("\nwanted:\nyaml\ngot:\n%v", out)
		}
		want := map[string]int{"sessions": 0, "records": 0, "fragments": 0, "logs": 0}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should reject an unknown output format", func(t *testing.T) {
		_, err := execute(t, t.TempDir(), "", "-o", "xml", "stats")
		if err == nil || !strings.Contains(err.Error(), `unknown output format "xml"`) {
			t.Fatalf("\nwanted:\nunknown output format\ngot:\n%v", err)
		}
	})
}

func TestHistoryCmd(t *testing.T) {
	t.Run("should list no sessions on a fresh database", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "", "-o", "json", "history")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if strings.TrimSpace(out) != "[]" {
			t.Fatalf("\nwanted:\n[]\ngot:\n%v", out)
		}
	})

	t.Run("should reject a malformed session id", func(t *testing.T) {
		_, err := execute(t, t.TempDir(), "", "history", "not-a-uuid")
		if err == nil || !strings.Contains(err.Error(), "invalid session id") {
			t.Fatalf("\nwanted:\ninvalid session id\ngot:\n%v", err)
		}
	})
}

func TestLogsCmd(t *testing.T) {
	t.Run("should filter stored logs by level", func(t *testing.T) {
		dir := t.TempDir()
		app, err := devya.New(
			devya.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			devya.WithConfigDir(dir),
			devya.WithDatabase(),
		)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		for _, entry := range []struct{ level, message string }{
			{"INFO", "proxy started"},
			{"WARN", "duplicate request"},
			{"INFO", "proxy stopped"},
		} {
			if err := app.WriteLog(entry.level, entry.message); err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
		}
		if err := app.Close(); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		out, err := execute(t, dir, "", "-o", "json", "logs", "--level", "warn")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		var got []logEntry
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("\nwanted:\njson\ngot:\n%v", out)
		}
		if len(got) != 1 || got[0].Message != "duplicate request" {
			t.Fatalf("\nwanted:\n[duplicate request]\ngot:\n%+v", got)
		}

		out, err = execute(t, dir, "", "logs", "-n", "1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !strings.Contains(out, "proxy stopped") || strings.Contains(out, "proxy started") {
			t.Fatalf("\nwanted:\nlast entry only\ngot:\n%v", out)
		}
	})
}
