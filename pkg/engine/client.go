package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Database selects the engine database (branch) to talk to.
	Database string

	// CAFile, CertFile and KeyFile enable mTLS when all are set.
	CAFile   string
	CertFile string
	KeyFile  string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 5 * time.Minute

// Client is a Conn over the engine's HTTP query endpoint
// (POST <base>/db/<database>/edgeql with a JSON body).
//
// Example usage:
//
//	conn, err := engine.NewClient("http://localhost:5656", engine.ClientOptions{Database: "main"})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
type Client struct {
	endpoint string
	hc       *http.Client
}

var _ Conn = (*Client)(nil)

// NewClient creates a Client for the engine at base (scheme://host:port).
func NewClient(base string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid engine URL %q", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid engine URL %q: scheme must be http or https", base)
	}

	database := opts.Database
	if database == "" {
		database = "main"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.CAFile != "" || opts.CertFile != "" || opts.KeyFile != "" {
		tlsConfig, err := tlsConfig(opts)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		endpoint: u.JoinPath("db", database, "edgeql").String(),
		hc:       &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Execute implements Conn.
func (c *Client) Execute(ctx context.Context, query string) error {
	_, err := c.roundTrip(ctx, query)
	return err
}

// QueryJSON implements Conn. The engine returns a data array: a pointer to a
// slice receives the whole array, anything else receives the single element.
// Queries rendered "AS JSON" return their element as a JSON-encoded string,
// which is unwrapped first.
func (c *Client) QueryJSON(ctx context.Context, query string, out any) error {
	data, err := c.roundTrip(ctx, query)
	if err != nil {
		return err
	}

	if rv := reflect.ValueOf(out); rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Slice {
		full, err := json.Marshal(data)
		if err != nil {
			return errors.Wrap(err, "failed to re-encode engine response")
		}
		if err := json.Unmarshal(full, out); err != nil {
			return &Error{Kind: KindProtocol, Message: "malformed engine response: " + err.Error()}
		}

		return nil
	}

	if len(data) == 0 {
		return &Error{Kind: KindProtocol, Message: "engine returned no data for query"}
	}

	raw := data[0]
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return &Error{Kind: KindProtocol, Message: "malformed JSON string in engine response: " + err.Error()}
		}
		raw = json.RawMessage(inner)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindProtocol, Message: "malformed engine response: " + err.Error()}
	}

	return nil
}

// Close implements Conn.
func (c *Client) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

type queryResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) roundTrip(ctx context.Context, query string) ([]json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "engine request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read engine response")
	}

	var qr queryResponse
	if err := json.Unmarshal(payload, &qr); err != nil {
		return nil, &Error{
			Kind:    KindProtocol,
			Message: errors.Wrapf(err, "unexpected engine response (HTTP %d)", resp.StatusCode).Error(),
		}
	}

	if qr.Error != nil {
		return nil, &Error{
			Kind:    classify(qr.Error.Type),
			Name:    qr.Error.Type,
			Message: qr.Error.Message,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindProtocol, Message: errors.Errorf("engine returned HTTP %d", resp.StatusCode).Error()}
	}

	return qr.Data, nil
}

// tlsConfig builds an mTLS config from the configured cert/key/CA files.
func tlsConfig(opts ClientOptions) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load certfile/keyfile")
	}

	caCert, err := os.ReadFile(opts.CAFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load cafile")
	}

	caCertPool := x509.NewCertPool()
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
