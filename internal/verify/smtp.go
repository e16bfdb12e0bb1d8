package verify

import (
	"context"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"time"
)

// DialProber checks recipients by speaking just enough SMTP: HELO, MAIL
// FROM, RCPT TO, then QUIT. No message is ever sent.
type DialProber struct {
	helloDomain string
	mailFrom    string
	timeout     time.Duration
}

// NewDialProber creates a prober. helloDomain identifies us in the HELO
// and mailFrom is the probe envelope sender. A zero timeout defaults to
// 10s.
func NewDialProber(helloDomain, mailFrom string, timeout time.Duration) *DialProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DialProber{helloDomain: helloDomain, mailFrom: mailFrom, timeout: timeout}
}

// Probe connects to the exchanger on port 25 and issues RCPT TO for the
// recipient. Only definitive 5xx recipient rejections (550/551/553) come
// back as ProbeRejected; connection trouble, greeting or envelope
// refusals, and 4xx responses are ProbeAmbiguous.
func (p *DialProber) Probe(ctx context.Context, mxHost, recipient string) (ProbeOutcome, error) {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(mxHost, "25"))
	if err != nil {
		return ProbeAmbiguous, err
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return ProbeAmbiguous, err
	}

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		return ProbeAmbiguous, err
	}
	defer client.Close()

	if err := client.Hello(p.helloDomain); err != nil {
		return ProbeAmbiguous, err
	}
	if err := client.Mail(p.mailFrom); err != nil {
		return ProbeAmbiguous, err
	}

	err = client.Rcpt(recipient)
	_ = client.Quit()

	if err == nil {
		return ProbeAccepted, nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 550, 551, 553:
			return ProbeRejected, nil
		}
	}
	return ProbeAmbiguous, err
}
