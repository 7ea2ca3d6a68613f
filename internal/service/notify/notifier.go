package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config содержит параметры SMTP-отправки писем-подтверждений.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Notifier отправляет письмо-подтверждение заказа. Ошибка отправки
// фиксируется на заказе вызывающей стороной и не ретраится синхронно.
type Notifier struct {
	cfg    Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *log.Entry
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создает SMTP-notifier.
func NewNotifier(cfg Config) *Notifier {
	return &Notifier{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: log.WithField("component", "notifier"),
	}
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(
	`From: {{.From}}
To: {{.To}}
Subject: Order {{.OrderID}} confirmed

Hi {{.Name}},

Your order {{.OrderID}} is confirmed. Amount paid: {{.Total}} {{.Currency}}.

Items:
{{range .Items}}  - {{.DisplayName}} x{{.Qty}}
{{end}}
We will email you the tracking number once the order ships.
`))

// SendOrderConfirmation отправляет письмо-подтверждение на адрес recipient.
func (n *Notifier) SendOrderConfirmation(ctx context.Context, order domain.Order, recipient string) error {
	if recipient == "" {
		return fmt.Errorf("send confirmation: empty recipient")
	}

	var buf bytes.Buffer
	err := confirmationTemplate.Execute(&buf, struct {
		From, To, OrderID, Name, Currency string
		Total                             string
		Items                             []domain.OrderItem
	}{
		From:     n.cfg.From,
		To:       recipient,
		OrderID:  order.ID,
		Name:     order.Customer.Name,
		Currency: order.Currency,
		Total:    fmt.Sprintf("%d.%02d", order.Totals.TotalMinor/100, order.Totals.TotalMinor%100),
		Items:    order.Items,
	})
	if err != nil {
		return fmt.Errorf("send confirmation: render template: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := n.send(addr, auth, n.cfg.From, []string{recipient}, buf.Bytes()); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	n.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"recipient": recipient,
	}).Info("order confirmation sent")
	return nil
}
