package xmpp

import (
	"crypto/tls"
	"errors"
	"strings"

	"github.com/mattn/go-xmpp"
	log "github.com/sirupsen/logrus"
)

var ErrMissingConfig = errors.New("missing xmpp config")

type (
	// Config of the chat account used to send notifications.
	Config struct {
		Host     string
		Jid      string
		Password string
		To       string
	}

	Xmpp struct {
		Config Config
	}
)

// Enabled tells whether enough is configured to send a message.
func (c Config) Enabled() bool {
	return len(c.Jid) > 0 && len(c.Password) > 0 && len(c.To) > 0
}

func serverName(jid string) string {
	if i := strings.LastIndex(jid, "@"); i >= 0 {
		return jid[i+1:]
	}
	return jid
}

func (c Config) options() xmpp.Options {
	host := c.Host
	if len(host) == 0 {
		host = serverName(c.Jid)
	}
	return xmpp.Options{
		Host:          host,
		User:          c.Jid,
		Password:      c.Password,
		NoTLS:         true,
		StartTLS:      true,
		Debug:         false,
		Session:       false,
		Status:        "xa",
		StatusMessage: "Sailing the course",
	}
}

// Send opens a session, sends message as a chat to Config.To and closes the
// session.
func (x Xmpp) Send(message string) error {
	if !x.Config.Enabled() {
		log.Debug("Missing xmpp config, message dropped")
		return ErrMissingConfig
	}

	xmpp.DefaultConfig = tls.Config{
		InsecureSkipVerify: true,
	}

	options := x.Config.options()
	log.WithField("host", options.Host).Debug("Create xmpp client")
	talk, err := options.NewClient()
	if err != nil {
		log.WithError(err).Error("Error creating xmpp client")
		return err
	}
	defer talk.Close()

	if _, err := talk.Send(xmpp.Chat{Remote: x.Config.To, Type: "chat", Text: message}); err != nil {
		log.WithError(err).Error("Error sending xmpp message")
		return err
	}
	return nil
}
