package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds the parameters needed to reach the broker. Values are
// supplied by the embedding application as a value object; this package
// never reads the environment.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	VirtualHost string
}

// withDefaults fills in the standard AMQP defaults for unset fields.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5672
	}
	if c.Username == "" {
		c.Username = "guest"
	}
	if c.Password == "" {
		c.Password = "guest"
	}
	if c.VirtualHost == "" {
		c.VirtualHost = "/"
	}
	return c
}

// URL renders the config as an AMQP connection URL.
func (c Config) URL() string {
	u := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    c.VirtualHost,
	}
	return u.String()
}
