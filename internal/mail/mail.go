package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/teris-io/shortid"
)

// Notifier is the outbound mail boundary. Failure to deliver is never
// fatal for the operation that requested the notification; callers log
// and move on.
type Notifier interface {
	Send(to []string, subject, body string) error
}

// LogNotifier writes notifications to the log instead of delivering
// them. Used when no SMTP server is configured.
type LogNotifier struct {
	log *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Send(to []string, subject, body string) error {
	n.log.Printf("mail %s to=%s subject=%q\n%s", dispatchId(), strings.Join(to, ","), subject, body)
	return nil
}

// SMTPNotifier delivers notifications through a plain SMTP server.
type SMTPNotifier struct {
	addr string
	from string
	log  *log.Logger
}

func NewSMTPNotifier(addr, from string, logger *log.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr: addr,
		from: from,
		log:  logger,
	}
}

func (n *SMTPNotifier) Send(to []string, subject, body string) error {
	sid := dispatchId()

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.from, strings.Join(to, ", "), subject, body)

	if err := smtp.SendMail(n.addr, nil, n.from, to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail %s: %w", sid, err)
	}

	n.log.Printf("mail %s sent to %s", sid, strings.Join(to, ","))
	return nil
}

// dispatchId tags each outbound notification for log correlation.
func dispatchId() string {
	sid, err := shortid.Generate()
	if err != nil {
		return "unknown"
	}
	return sid
}
