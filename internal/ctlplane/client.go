// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"net"
	"os"
	"sync"

	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/install"
	"grimm.is/tundra/internal/netcfg"
)

// Client is the session-process side of the control protocol. One Client
// serializes its requests over a single connection.
type Client struct {
	mu   sync.Mutex
	conn *net.UnixConn
}

// Dial connects to the daemon's control socket. An empty path uses the
// installed default.
func Dial(path string) (*Client, error) {
	if path == "" {
		path = install.GetSocketPath()
	}
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "resolving socket address")
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "connecting to %s (is the daemon running?)", path)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one request and decodes the reply. Wire errors come back as
// typed errors.
func (c *Client) Do(req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(req)
}

func (c *Client) do(req Request) (*Response, error) {
	if err := WriteFrame(c.conn, req); err != nil {
		return nil, err
	}
	var resp Response
	if err := ReadFrame(c.conn, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		if resp.Error != nil {
			return nil, resp.Error.Err()
		}
		return nil, errors.New(errors.KindInternal, "request failed without error detail")
	}
	return &resp, nil
}

// CreateDevice creates a device and returns its handle.
func (c *Client) CreateDevice(name, kind string, logLevel int) (string, error) {
	resp, err := c.Do(Request{Op: OpCreateDevice, Name: name, Kind: kind, LogLevel: &logLevel})
	if err != nil {
		return "", err
	}
	return resp.Handle, nil
}

// ListDevices returns property snapshots of every live device.
func (c *Client) ListDevices() ([]netcfg.Properties, error) {
	resp, err := c.Do(Request{Op: OpListDevices})
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// GetDevice returns one device's properties.
func (c *Client) GetDevice(handle string) (*netcfg.Properties, error) {
	resp, err := c.Do(Request{Op: OpGetDevice, Handle: handle})
	if err != nil {
		return nil, err
	}
	return resp.Device, nil
}

// Establish activates the device. On success the interface name and the
// live descriptor (received out-of-band) are returned; the caller owns
// the file.
func (c *Client) Establish(handle string) (string, *os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.do(Request{Op: OpEstablish, Handle: handle})
	if err != nil {
		return "", nil, err
	}
	if !resp.FDFollows {
		return resp.Interface, nil, nil
	}
	file, err := recvFD(c.conn, resp.Interface)
	if err != nil {
		return "", nil, err
	}
	return resp.Interface, file, nil
}

// Status returns the daemon summary.
func (c *Client) Status() (*Status, error) {
	resp, err := c.Do(Request{Op: OpStatus})
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}
