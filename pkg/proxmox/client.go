package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

const (
	DefaultAPIPort = 8006

	defaultRealm       = "pam"
	defaultHTTPTimeout = 30 * time.Second
)

var errNotFound = errors.New("resource does not exist")

type Version struct {
	Version string `json:"version"`
	Release string `json:"release"`
	RepoID  string `json:"repoid"`
}

type Node struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

type Storage struct {
	Storage string `json:"storage"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Active  int    `json:"active"`
}

type VMStatus struct {
	VMID   json.Number `json:"vmid"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
}

// Client talks to the management API at https://host:port/api2/json using
// ticket authentication.
type Client struct {
	baseURL    string
	host       string
	httpClient *http.Client

	mu       sync.RWMutex
	user     string
	password string
	ticket   string
	csrf     string
}

func NewClient(host string, port int) *Client {
	hostport := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return &Client{
		baseURL: "https://" + hostport + "/api2/json",
		host:    host,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}
}

// APIUser adds the default realm to users that do not name one.
func APIUser(user string) string {
	if strings.Contains(user, "@") {
		return user
	}
	return user + "@" + defaultRealm
}

// Login obtains a ticket and CSRF token
// POST /access/ticket
func (c *Client) Login(ctx context.Context, user, password string) error {
	form := url.Values{}
	form.Set("username", APIUser(user))
	form.Set("password", password)

	var out struct {
		Ticket string `json:"ticket"`
		CSRF   string `json:"CSRFPreventionToken"`
	}
	if err := c.send(ctx, http.MethodPost, "/access/ticket", form, &out); err != nil {
		return err
	}
	if out.Ticket == "" {
		return c.protocolError(errors.New("login returned no ticket"))
	}

	c.mu.Lock()
	c.user, c.password = user, password
	c.ticket, c.csrf = out.Ticket, out.CSRF
	c.mu.Unlock()
	return nil
}

// Version GET /version
func (c *Client) Version(ctx context.Context) (Version, error) {
	var v Version
	err := c.do(ctx, http.MethodGet, "/version", nil, &v)
	return v, err
}

// Nodes GET /nodes
func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	err := c.do(ctx, http.MethodGet, "/nodes", nil, &nodes)
	return nodes, err
}

// Storages GET /nodes/{node}/storage
func (c *Client) Storages(ctx context.Context, node string) ([]Storage, error) {
	var storages []Storage
	err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(node)+"/storage", nil, &storages)
	return storages, err
}

// NextID returns the lowest free VM id. The id is not reserved.
// GET /cluster/nextid
func (c *Client) NextID(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/cluster/nextid", nil, &raw); err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(strings.Trim(string(raw), `"`))
	if err != nil {
		return 0, c.protocolError(fmt.Errorf("unexpected vmid %s: %w", raw, err))
	}
	return id, nil
}

// VMStatus GET /nodes/{node}/qemu/{vmid}/status/current
func (c *Client) VMStatus(ctx context.Context, node string, vmid int) (VMStatus, error) {
	var status VMStatus
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/nodes/%s/qemu/%d/status/current", url.PathEscape(node), vmid), nil, &status)
	return status, err
}

// do sends an authenticated request. Tickets expire after two hours, so an
// unauthorized answer triggers one fresh login before giving up.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	err := c.send(ctx, method, path, form, out)
	if kind, ok := srvErrors.ConnectionErrorKindOf(err); !ok || kind != srvErrors.Unauthorized {
		return err
	}

	c.mu.RLock()
	user, password := c.user, c.password
	c.mu.RUnlock()
	if user == "" {
		return err
	}

	zap.S().Named("proxmox").Debugw("ticket rejected, logging in again", "host", c.host)
	if loginErr := c.Login(ctx, user, password); loginErr != nil {
		return loginErr
	}
	return c.send(ctx, method, path, form, out)
}

func (c *Client) send(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.protocolError(err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.mu.RLock()
	ticket, csrf := c.ticket, c.csrf
	c.mu.RUnlock()
	if ticket != "" && path != "/access/ticket" {
		req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: ticket})
		if method != http.MethodGet {
			req.Header.Set("CSRFPreventionToken", csrf)
		}
	}

	zap.S().Named("proxmox").Debugw("api request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connector.Classify(err, models.PlatformProxmox, c.host)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// the API puts the reason in the status line, some versions in the body
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reason := resp.Status + " " + string(detail)

		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return srvErrors.NewConnectionError(srvErrors.Unauthorized, string(models.PlatformProxmox), c.host,
				fmt.Errorf("%s %s: %s", method, path, resp.Status))
		case resp.StatusCode == http.StatusNotFound, strings.Contains(reason, "does not exist"):
			return fmt.Errorf("%s %s: %w", method, path, errNotFound)
		default:
			return c.protocolError(fmt.Errorf("%s %s: %s", method, path, resp.Status))
		}
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return c.protocolError(fmt.Errorf("failed to decode %s response: %w", path, err))
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = envelope.Data
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return c.protocolError(fmt.Errorf("failed to decode %s data: %w", path, err))
	}
	return nil
}

func (c *Client) protocolError(err error) error {
	return srvErrors.NewConnectionError(srvErrors.ProtocolError, string(models.PlatformProxmox), c.host, err)
}
