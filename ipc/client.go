package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devya-app/devya/domain"
	"github.com/gorilla/websocket"
)

const defaultQueueSize = 1024

// Client talks to the native backend. Commands are JSON requests posted to
// {base}/invoke/{command}, push channels and lifecycle events are websockets.
type Client struct {
	base       *url.URL
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
	QueueSize  int // Capacity of the queue between a channel reader and its handler
}

var _ domain.Backend = (*Client)(nil)

// NewClient creates a client for the backend listening at baseURL.
func NewClient(baseURL string, options ...func(*Client) error) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url %s : %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %s : unsupported scheme %q", baseURL, base.Scheme)
	}

	client := &Client{
		base:       base,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Dialer:     websocket.DefaultDialer,
		Logger:     slog.Default(),
		QueueSize:  defaultQueueSize,
	}
	for _, option := range options {
		if err := option(client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// WithHTTPClient replaces the HTTP client used for commands.
func WithHTTPClient(httpClient *http.Client) func(*Client) error {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.New("http client is nil")
		}
		c.HTTPClient = httpClient
		return nil
	}
}

// WithLogger sets the logger, a nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) func(*Client) error {
	return func(c *Client) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

// WithQueueSize sets the capacity of each push channel queue.
func WithQueueSize(size int) func(*Client) error {
	return func(c *Client) error {
		if size < 1 {
			return fmt.Errorf("queue size %d : must be positive", size)
		}
		c.QueueSize = size
		return nil
	}
}

// BaseURL returns the backend url the client was created with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(elem ...string) string {
	return c.base.JoinPath(elem...).String()
}

func (c *Client) wsEndpoint(elem ...string) string {
	u := c.base.JoinPath(elem...)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// invoke posts args to the command endpoint and decodes the answer into result when it is not nil.
func (c *Client) invoke(ctx context.Context, command string, args any, result any) error {
	body := []byte("{}")
	if args != nil {
		var err error
		body, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshalling %s args : %w", command, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("invoke", command), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request : %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoking %s : %w", command, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading %s response : %w", command, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		message := strings.TrimSpace(string(data))
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			message = eb.Error
		}
		if message == "" {
			message = res.Status
		}
		return &CommandError{Command: command, Status: res.StatusCode, Message: message}
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding %s response : %w", command, err)
	}
	return nil
}

func (c *Client) CheckCAInstalled(ctx context.Context) (bool, error) {
	var installed bool
	if err := c.invoke(ctx, cmdCheckCAInstalled, nil, &installed); err != nil {
		return false, err
	}
	return installed, nil
}

func (c *Client) InstallCA(ctx context.Context) error {
	if err := c.invoke(ctx, cmdInstallCA, nil, nil); err != nil {
		return fmt.Errorf("%w : %w", ErrCertificateInstall, err)
	}
	return nil
}

func (c *Client) StartProxy(ctx context.Context, port uint16, channelID string) error {
	return c.invoke(ctx, cmdStartProxy, startProxyArgs{Port: port, Channel: channelID}, nil)
}

func (c *Client) StopProxy(ctx context.Context) error {
	return c.invoke(ctx, cmdStopProxy, nil, nil)
}

func (c *Client) CheckProxyRunning(ctx context.Context) (domain.ProxyStatus, error) {
	var status proxyStatus
	if err := c.invoke(ctx, cmdCheckProxyRunning, nil, &status); err != nil {
		return domain.ProxyStatus{}, err
	}
	return status.toDomain(), nil
}

func (c *Client) CheckPort(ctx context.Context, port uint16) (bool, error) {
	var free bool
	if err := c.invoke(ctx, cmdCheckPort, portArgs{Port: port}, &free); err != nil {
		return false, err
	}
	return free, nil
}

func (c *Client) GetRuleDirs(ctx context.Context) ([]*domain.RuleDir, error) {
	var dirs []*ruleDir
	if err := c.invoke(ctx, cmdGetRuleDirs, nil, &dirs); err != nil {
		return nil, err
	}
	result := make([]*domain.RuleDir, 0, len(dirs))
	for _, dir := range dirs {
		result = append(result, dir.toDomain())
	}
	return result, nil
}

func (c *Client) UpsertRuleDir(ctx context.Context, dir domain.RuleDirInput) (int, error) {
	var id int
	args := ruleDirInput{ID: dir.ID, Name: dir.Name, ParentID: dir.ParentID}
	if err := c.invoke(ctx, cmdUpsertRuleDir, args, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) GetRuleFiles(ctx context.Context) ([]*domain.RuleFile, error) {
	var files []*ruleFile
	if err := c.invoke(ctx, cmdGetRuleFiles, nil, &files); err != nil {
		return nil, err
	}
	result := make([]*domain.RuleFile, 0, len(files))
	for _, file := range files {
		result = append(result, file.toDomain())
	}
	return result, nil
}

func (c *Client) UpsertRuleFile(ctx context.Context, file domain.RuleFileInput) (int, error) {
	var id int
	args := ruleFileInput{ID: file.ID, Name: file.Name, IsDir: file.IsDir, ParentID: file.ParentID}
	if err := c.invoke(ctx, cmdUpsertRuleFile, args, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) DeleteRuleFile(ctx context.Context, id int) error {
	return c.invoke(ctx, cmdDeleteRuleFile, idArgs{ID: id}, nil)
}

func (c *Client) GetRuleFileContent(ctx context.Context, id int) (string, error) {
	var content string
	if err := c.invoke(ctx, cmdGetRuleFileContent, idArgs{ID: id}, &content); err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) UpdateRuleFileContent(ctx context.Context, id int, content string) error {
	return c.invoke(ctx, cmdUpdateRuleFileContent, ruleFileContentArgs{ID: id, Content: content}, nil)
}
