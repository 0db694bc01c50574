package control

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/ocserv/sessiond/session"
)

// Client is a `dbus.Conn` with methods that call the Service exported
// by this package — the occtl-equivalent operator's view of spec.md §6.

type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the system bus and binds to the running Service.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("control: connect to system bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(BusName, ObjectPath)}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) call(method string, args ...interface{}) *dbus.Call {
	return c.obj.Call(InterfaceName+"."+method, 0, args...)
}

// Status is the reply to the status request: whether the engine is
// online, its main pid, its auth-helper pid (always 0, see
// control.Service.Status), and the live session count.
type Status struct {
	Online        bool
	MainPid       uint32
	AuthHelperPid uint32
	ClientCount   uint32
}

// Status calls the status request.
func (c *Client) Status() (Status, error) {
	var st Status
	if err := c.call("Status").Store(&st.Online, &st.MainPid, &st.AuthHelperPid, &st.ClientCount); err != nil {
		return Status{}, err
	}
	return st, nil
}

// ListUsers calls the list request.
func (c *Client) ListUsers() ([]session.Tuple, error) {
	var out []session.Tuple
	if err := c.call("ListUsers").Store(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserInfo calls the user_info request.
func (c *Client) UserInfo(username string) ([]session.Tuple, error) {
	var out []session.Tuple
	if err := c.call("UserInfo", username).Store(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// IDInfo calls the id_info request.
func (c *Client) IDInfo(id uint32) (session.Tuple, error) {
	var out session.Tuple
	if err := c.call("IDInfo", id).Store(&out); err != nil {
		return session.Tuple{}, err
	}
	return out, nil
}

// DisconnectUser calls the disconnect_name request.
func (c *Client) DisconnectUser(username string) (bool, error) {
	var ok bool
	if err := c.call("DisconnectUser", username).Store(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// DisconnectID calls the disconnect_id request.
func (c *Client) DisconnectID(id uint32) (bool, error) {
	var ok bool
	if err := c.call("DisconnectID", id).Store(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Reload calls the reload request.
func (c *Client) Reload() (bool, error) {
	var ok bool
	if err := c.call("Reload").Store(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Stop calls the stop request.
func (c *Client) Stop() (bool, error) {
	var ok bool
	if err := c.call("Stop").Store(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
