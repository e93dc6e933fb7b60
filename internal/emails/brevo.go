package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Notifier sends transactional emails. All sends are best-effort from the
// caller's point of view: a failing notification must never fail a purchase.
// Nil or unconfigured client = no-op.
type Notifier interface {
	SendPurchaseConfirmation(ctx context.Context, toEmail, fullname, unitName string, percentageBP int, amount, currency string) error
	SendMOAReady(ctx context.Context, toEmail, fullname, unitName string) error
	SendGuestWelcome(ctx context.Context, toEmail, fullname string) error
	SendInvestorWelcome(ctx context.Context, toEmail, fullname string) error
	SendCommissionEarned(ctx context.Context, toEmail, fullname, amount string) error
}

// BrevoClient sends emails via the Brevo (Sendinblue) API.
// Env: SENDINBLUE_API_KEY, MAIL_FROM.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@stayvest.app"
}

// send sends one email via Brevo API.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "StayVest"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoReplyTo{Email: "support@stayvest.app", Name: "StayVest Support"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPI, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendPurchaseConfirmation confirms a completed fractional purchase.
func (c *BrevoClient) SendPurchaseConfirmation(ctx context.Context, toEmail, fullname, unitName string, percentageBP int, amount, currency string) error {
	if c.APIKey == "" {
		return nil
	}
	if fullname == "" {
		fullname = "there"
	}
	content := purchaseConfirmationContent(fullname, unitName, percentageBP, amount, currency)
	return c.send(ctx, toEmail, "Your StayVest Purchase Is Confirmed", EmailLayout(content))
}

// SendMOAReady tells the buyer their Memorandum of Agreement is ready to sign.
func (c *BrevoClient) SendMOAReady(ctx context.Context, toEmail, fullname, unitName string) error {
	if c.APIKey == "" {
		return nil
	}
	if fullname == "" {
		fullname = "there"
	}
	content := moaReadyContent(fullname, unitName)
	return c.send(ctx, toEmail, "Your MOA Is Ready to Sign", EmailLayout(content))
}

// SendGuestWelcome welcomes a user whose account was created during a guest checkout.
func (c *BrevoClient) SendGuestWelcome(ctx context.Context, toEmail, fullname string) error {
	if c.APIKey == "" {
		return nil
	}
	if fullname == "" {
		fullname = "there"
	}
	return c.send(ctx, toEmail, "Welcome to StayVest", EmailLayout(guestWelcomeContent(fullname)))
}

// SendInvestorWelcome welcomes an existing account on its first purchase.
func (c *BrevoClient) SendInvestorWelcome(ctx context.Context, toEmail, fullname string) error {
	if c.APIKey == "" {
		return nil
	}
	if fullname == "" {
		fullname = "there"
	}
	return c.send(ctx, toEmail, "Welcome to the StayVest Investor Community", EmailLayout(investorWelcomeContent(fullname)))
}

// SendCommissionEarned notifies an affiliate of a new commission.
func (c *BrevoClient) SendCommissionEarned(ctx context.Context, toEmail, fullname, amount string) error {
	if c.APIKey == "" {
		return nil
	}
	if fullname == "" {
		fullname = "there"
	}
	return c.send(ctx, toEmail, "You Earned a Referral Commission", EmailLayout(commissionEarnedContent(fullname, amount)))
}

func purchaseConfirmationContent(fullname, unitName string, percentageBP int, amount, currency string) string {
	return fmt.Sprintf(`
    <h1>Purchase Confirmed</h1>
    <p>Hi %s,</p>
    <p>Your purchase of <strong>%.2f%%</strong> of <strong>%s</strong> is confirmed. We received your payment of <strong>%s %s</strong>.</p>
    <p>You can review your ownership and documents in your dashboard at any time.</p>
    <center>
      <a href="https://stayvest.app/dashboard" class="sv-button">View Your Portfolio</a>
    </center>
    <p>The StayVest Team</p>
`, EscapeHTML(fullname), float64(percentageBP)/100, EscapeHTML(unitName), EscapeHTML(amount), EscapeHTML(currency))
}

func moaReadyContent(fullname, unitName string) string {
	return fmt.Sprintf(`
    <h1>Your MOA Is Ready</h1>
    <p>Hi %s,</p>
    <p>The Memorandum of Agreement for your share of <strong>%s</strong> has been generated and is ready for your signature.</p>
    <center>
      <a href="https://stayvest.app/documents" class="sv-button">Review and Sign</a>
    </center>
    <p>The StayVest Team</p>
`, EscapeHTML(fullname), EscapeHTML(unitName))
}

func guestWelcomeContent(fullname string) string {
	return fmt.Sprintf(`
    <h1>Welcome to StayVest, %s!</h1>
    <p>An account was created for you as part of your purchase. Set a password to access your dashboard, track your ownership, and book stays at your properties.</p>
    <center>
      <a href="https://stayvest.app/set-password" class="sv-button">Set Your Password</a>
    </center>
    <p style="margin-top: 20px; font-size: 14px; color: #666;">
      If you did not make this purchase, please contact our support team immediately.
    </p>
    <p>The StayVest Team</p>
`, EscapeHTML(fullname))
}

func investorWelcomeContent(fullname string) string {
	return fmt.Sprintf(`
    <h1>Welcome to the Investor Community, %s!</h1>
    <p>Congratulations on your first fractional purchase with <strong>StayVest</strong>. Your investor dashboard now shows your ownership, documents, and upcoming revenue reports.</p>
    <center>
      <a href="https://stayvest.app/dashboard" class="sv-button">Open Your Dashboard</a>
    </center>
    <p>The StayVest Team</p>
`, EscapeHTML(fullname))
}

func commissionEarnedContent(fullname, amount string) string {
	return fmt.Sprintf(`
    <h1>You Earned a Commission</h1>
    <p>Hi %s,</p>
    <p>A purchase was just completed through your referral link. Your commission of <strong>$%s</strong> has been added to your affiliate balance.</p>
    <center>
      <a href="https://stayvest.app/affiliate" class="sv-button">View Your Earnings</a>
    </center>
    <p>The StayVest Team</p>
`, EscapeHTML(fullname), EscapeHTML(amount))
}
