package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ManagementClientFromAMQPURI derives a management-API client from an AMQP
// URI, using the conventional management port (15672) on the same host.
// managementPort lets callers override the port when the broker exposes
// management on a non-default port; pass 0 to use 15672.
func ManagementClientFromAMQPURI(amqpURI string, managementPort int) (*managementClient, error) {
	u, err := url.Parse(amqpURI)
	if err != nil {
		return nil, fmt.Errorf("parsing amqp uri: %w", err)
	}
	if managementPort == 0 {
		managementPort = 15672
	}
	password, _ := u.User.Password()
	vhost := strings.TrimPrefix(u.Path, "/")
	if vhost == "" {
		vhost = "/"
	}
	baseURL := fmt.Sprintf("http://%s:%d", u.Hostname(), managementPort)
	return NewManagementClient(baseURL, vhost, u.User.Username(), password), nil
}

// managementClient is a thin wrapper over RabbitMQ's HTTP management API,
// used only to enumerate queues: AMQP 0-9-1 has no "list all queues on the
// broker" operation, which is why every AMQP-based system (including the
// retrieved midaz/narwhal stacks) that needs to enumerate queues reaches for
// this API or an equivalent broker-side catalog.
type managementClient struct {
	baseURL  string
	vhost    string
	username string
	password string
	http     *http.Client
}

// NewManagementClient builds a managementClient from the management API's
// base URL (e.g. "http://localhost:15672"), vhost, and credentials.
func NewManagementClient(baseURL, vhost, username, password string) *managementClient {
	return &managementClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		vhost:    vhost,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

type managementQueue struct {
	Name string `json:"name"`
}

func (m *managementClient) listQueueNames(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/queues/%s", m.baseURL, url.PathEscape(m.vhost))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(m.username, m.password)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("management api returned status %d", resp.StatusCode)
	}

	var queues []managementQueue
	if err := json.NewDecoder(resp.Body).Decode(&queues); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(queues))
	for _, q := range queues {
		names = append(names, q.Name)
	}
	return names, nil
}
