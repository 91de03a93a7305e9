// Package micro wraps the NATS connection shared by replication, snapshot storage and peer requests.
package micro

import (
	"context"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/tabletop/codec"
)

// Client is a NATS connection with logging on connection events.
type Client struct {
	*nats.Conn
	log        zerolog.Logger
	natsConfig NATSConfig
}

type NATSConfig struct {
	Name            string `env:"NATS_NAME" envDefault:"tabletop"`
	URL             string `env:"NATS_URL" envDefault:"nats://nats:4222"`
	CredentialsFile string `env:"NATS_CREDENTIALS_FILE"`
}

func (cfg NATSConfig) Validate() error {
	if cfg.URL == "" {
		return eris.New("NATS URL is required")
	}
	return nil
}

// NewClient connects using the NATS_* environment, overridden by opts.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{log: zerolog.Nop()}

	var err error
	c.natsConfig, err = env.ParseAs[NATSConfig]()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse NATS config")
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.natsConfig.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid NATS config")
	}

	natsOpts := []nats.Option{
		nats.Name(c.natsConfig.Name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second * 5),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.natsConfig.CredentialsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(c.natsConfig.CredentialsFile))
	}

	conn, err := nats.Connect(c.natsConfig.URL, natsOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to NATS server")
	}
	c.Conn = conn

	c.log.Info().
		Str("url", c.ConnectedUrl()).
		Str("name", c.natsConfig.Name).
		Msg("Connected to NATS server")
	return c, nil
}

// Subject joins the world id and parts into a NATS subject under the tabletop prefix.
func Subject(worldID string, parts ...string) string {
	return strings.Join(append([]string{"tabletop", worldID}, parts...), ".")
}

// Reply is the envelope of every request-reply exchange.
type Reply struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Request sends payload as JSON to subject and decodes the reply data into out. The timeout comes from ctx.
func (c *Client) Request(ctx context.Context, subject string, payload any, out any) error {
	req, err := codec.Encode(payload)
	if err != nil {
		return eris.Wrap(err, "failed to marshal request")
	}

	msg, err := c.RequestWithContext(ctx, subject, req)
	if err != nil {
		return eris.Wrapf(err, "failed to send request to %s", subject)
	}

	reply, err := codec.Decode[Reply](msg.Data)
	if err != nil {
		return eris.Wrap(err, "failed to unmarshal reply")
	}
	if reply.Error != "" {
		return eris.New(reply.Error)
	}
	if out == nil {
		return nil
	}
	return eris.Wrap(json.Unmarshal(reply.Data, out), "failed to unmarshal reply data")
}

// Handle answers requests on subject with the JSON encoding of whatever fn returns.
func (c *Client) Handle(subject string, fn func(data []byte) (any, error)) (*nats.Subscription, error) {
	sub, err := c.Subscribe(subject, func(msg *nats.Msg) {
		var reply Reply
		result, err := fn(msg.Data)
		if err == nil {
			reply.Data, err = codec.Encode(result)
		}
		if err != nil {
			reply = Reply{Error: err.Error()}
		}

		bz, err := codec.Encode(reply)
		if err != nil {
			c.log.Error().Err(err).Str("subject", subject).Msg("failed to marshal reply")
			return
		}
		if err := msg.Respond(bz); err != nil {
			c.log.Warn().Err(err).Str("subject", subject).Msg("failed to respond")
		}
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to subscribe to %s", subject)
	}
	return sub, nil
}

// Close closes the NATS connection. It is safe on a client that never connected.
func (c *Client) Close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

func (c *Client) handleDisconnect(nc *nats.Conn, err error) {
	log := c.log.With().
		Str("nats_url", nc.ConnectedUrl()).
		Uint64("reconnect_attempts", nc.Reconnects).
		Logger()
	if err != nil {
		log.Error().Err(err).Msg("Disconnected from NATS with error")
	} else {
		log.Warn().Msg("Disconnected from NATS")
	}
}

func (c *Client) handleReconnect(nc *nats.Conn) {
	c.log.Info().
		Str("nats_url", nc.ConnectedUrl()).
		Uint64("reconnect_attempts", nc.Reconnects).
		Msg("Reconnected to NATS")
}

func (c *Client) handleClosed(nc *nats.Conn) {
	if err := nc.LastError(); err != nil {
		c.log.Warn().Err(err).Msg("NATS connection closed with error")
		return
	}
	c.log.Info().Msg("NATS connection closed")
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	event := c.log.Error().Err(err)
	if sub != nil {
		event = event.Str("subject", sub.Subject)
	}
	event.Msg("NATS subscription error occurred")
}

// ClientOption defines a function that can modify a Client.
type ClientOption func(*Client)

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

func WithNATSConfig(cfg NATSConfig) ClientOption {
	return func(c *Client) {
		c.natsConfig = cfg
	}
}
