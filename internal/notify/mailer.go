package notify

import (
	"errors"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/domodwyer/mailyak/v3"
)

// SMTPMailer sends HTML email through an SMTP relay. It implements common.EmailSender.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	ReplyTo  string
}

// Send delivers one message.
func (m SMTPMailer) Send(to, subject, html string) error {
	msg, err := m.compose(to, subject, html)
	if err != nil {
		return err
	}
	return msg.Send()
}

func (m SMTPMailer) compose(to, subject, html string) (*mailyak.MailYak, error) {
	if strings.TrimSpace(m.Host) == "" || strings.TrimSpace(m.From) == "" {
		return nil, errors.New("notify: smtp host and from address are required")
	}
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("notify: recipient is required")
	}
	port := m.Port
	if port <= 0 {
		port = 587
	}
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	msg := mailyak.New(net.JoinHostPort(m.Host, strconv.Itoa(port)), auth)
	msg.To(to)
	msg.From(m.From)
	if m.FromName != "" {
		msg.FromName(m.FromName)
	}
	if m.ReplyTo != "" {
		msg.ReplyTo(m.ReplyTo)
	}
	msg.Subject(subject)
	msg.HTML().Set(html)
	return msg, nil
}
