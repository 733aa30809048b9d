// Package devicecfg reads the identity a Dwarf device publishes on its HTTP
// configuration endpoint.
package devicecfg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
)

const (
	DefaultPort = 8082
	ParamsPath  = "/getDefaultParamsConfig"
)

var ErrNoData = errors.New("no data in device config response")

// Identity is the device type reported by the device.
type Identity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	port int
	http *http.Client
}

func New(port int, timeout time.Duration) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{port: port, http: &http.Client{Timeout: timeout}}
}

// URL returns the config endpoint of the device at ip.
func (c *Client) URL(ip string) string {
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(c.port)) + ParamsPath
}

// Fetch queries the device at ip for its identity.
func (c *Client) Fetch(ctx context.Context, ip string) (Identity, error) {
	if ip == "" {
		return Identity{}, fmt.Errorf("device address cannot be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(ip), nil)
	if err != nil {
		return Identity{}, errors.Wrap(err, "failed to build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Identity{}, errors.Wrap(err, "failed to fetch device config")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("device config returned status %d", resp.StatusCode)
	}

	var body struct {
		Data *Identity `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, errors.Wrap(err, "failed to decode device config")
	}
	if body.Data == nil {
		return Identity{}, ErrNoData
	}

	slog.Info("device_config_fetched", "ip", ip, "device_id", body.Data.ID, "device_name", body.Data.Name)
	return *body.Data, nil
}
