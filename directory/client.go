// Package directory provides the LDAP boundary used to read and write the
// nTSecurityDescriptor attribute on Active Directory objects. It never
// interprets the descriptor bytes; that is the ntsd package's job. The core
// codec returns whole descriptors, and this package writes them back
// unchanged.
package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// ErrDirectory wraps every error this package returns, so callers can use
// errors.Is(err, directory.ErrDirectory) without caring which LDAP call
// failed underneath.
var ErrDirectory = errors.New("directory")

// nTSecurityDescriptor is the AD attribute holding the self-relative binary
// security descriptor.
const ntSecurityDescriptorAttr = "nTSecurityDescriptor"

// sdFlagsControlOID identifies the LDAP_SERVER_SD_FLAGS control. sdFlagsControl
// sends it with the value 0x7, requesting the owner, group and DACL; the SACL
// is not requested.
const sdFlagsControlOID = "1.2.840.113556.1.4.801"

// SecurityType selects how the connection is secured, mirroring the
// encrypted/plaintext/StartTLS choices an AD deployment actually exposes.
type SecurityType int

const (
	SecurityInsecure SecurityType = iota
	SecurityTLS
	SecurityStartTLS
)

// Config describes how to reach and authenticate against a directory server.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	Security SecurityType
	Timeout  time.Duration

	// InsecureSkipVerify disables certificate verification. Only meant for
	// lab/test directories; never set this against production AD.
	InsecureSkipVerify bool
}

// Client is a narrow LDAP boundary: fetch and replace one attribute on one
// object. It does not expose search, paging, or schema discovery — those
// belong to a general-purpose AD client, not this module.
type Client struct {
	conn *ldap.Conn
	log  *zap.Logger
}

// Dial connects and binds using cfg, returning a ready Client.
func Dial(cfg *Config, log *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrDirectory)
	}
	if log == nil {
		log = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := dial(cfg, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", ErrDirectory, cfg.Server, cfg.Port, err)
	}

	if err := conn.Bind(cfg.Username, cfg.Password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: bind as %s: %v", ErrDirectory, cfg.Username, err)
	}

	log.Debug("directory connection established",
		zap.String("server", cfg.Server),
		zap.Int("port", cfg.Port),
		zap.String("username", cfg.Username),
	)

	return &Client{conn: conn, log: log}, nil
}

func dial(cfg *Config, timeout time.Duration) (*ldap.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)
	dialer := &net.Dialer{Timeout: timeout}

	switch cfg.Security {
	case SecurityTLS:
		tlsCfg := &tls.Config{ServerName: cfg.Server, InsecureSkipVerify: cfg.InsecureSkipVerify}
		return ldap.DialURL(fmt.Sprintf("ldaps://%s", addr),
			ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(tlsCfg))
	case SecurityStartTLS:
		conn, err := ldap.DialURL(fmt.Sprintf("ldap://%s", addr), ldap.DialWithDialer(dialer))
		if err != nil {
			return nil, err
		}
		tlsCfg := &tls.Config{ServerName: cfg.Server, InsecureSkipVerify: cfg.InsecureSkipVerify}
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	default:
		return ldap.DialURL(fmt.Sprintf("ldap://%s", addr), ldap.DialWithDialer(dialer))
	}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// GetSecurityDescriptor fetches the raw nTSecurityDescriptor bytes for dn.
// The bytes are returned exactly as the server sent them; parsing is the
// caller's responsibility via the ntsd package.
func (c *Client) GetSecurityDescriptor(ctx context.Context, dn string) ([]byte, error) {
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		[]string{ntSecurityDescriptorAttr},
		[]ldap.Control{sdFlagsControl()},
	)

	result, err := c.searchWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrDirectory, dn, err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s not found", ErrDirectory, dn)
	}

	raw := result.Entries[0].GetRawAttributeValue(ntSecurityDescriptorAttr)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no %s", ErrDirectory, dn, ntSecurityDescriptorAttr)
	}
	c.log.Debug("read security descriptor", zap.String("dn", dn), zap.Int("bytes", len(raw)))
	return raw, nil
}

// SetSecurityDescriptor replaces the nTSecurityDescriptor attribute on dn
// with sd, using an LDAP modify-replace. Replace is the correct modlist
// operation here: a security descriptor has exactly one value, never a
// set to add to or delete from.
func (c *Client) SetSecurityDescriptor(ctx context.Context, dn string, sd []byte) error {
	if len(sd) == 0 {
		return fmt.Errorf("%w: refusing to write an empty security descriptor to %s", ErrDirectory, dn)
	}

	req := ldap.NewModifyRequest(dn, nil)
	req.Replace(ntSecurityDescriptorAttr, []string{string(sd)})

	if err := c.modifyWithContext(ctx, req); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrDirectory, dn, err)
	}
	c.log.Debug("wrote security descriptor", zap.String("dn", dn), zap.Int("bytes", len(sd)))
	return nil
}

// GetAttribute fetches the string values of a single attribute on dn. It is
// a narrow escape hatch for callers, like pwdpolicy, that need a fact about
// the object (its objectClass, say) beyond the security descriptor itself.
func (c *Client) GetAttribute(ctx context.Context, dn, attr string) ([]string, error) {
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		[]string{attr},
		nil,
	)
	result, err := c.searchWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s on %s: %v", ErrDirectory, attr, dn, err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s not found", ErrDirectory, dn)
	}
	return result.Entries[0].GetAttributeValues(attr), nil
}

// searchWithContext and modifyWithContext bound the underlying blocking
// go-ldap calls to ctx's deadline/cancellation, since the library itself
// predates context support.
func (c *Client) searchWithContext(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	type result struct {
		res *ldap.SearchResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := c.conn.Search(req)
		done <- result{res, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.res, r.err
	}
}

func (c *Client) modifyWithContext(ctx context.Context, req *ldap.ModifyRequest) error {
	done := make(chan error, 1)
	go func() {
		done <- c.conn.Modify(req)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func sdFlagsControl() ldap.Control {
	return ldap.NewControlString(sdFlagsControlOID, true, "\x07\x00\x00\x00")
}
