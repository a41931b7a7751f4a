package usecase

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

const defaultSiteName = "Alumni Network"

// MessageComposer renders the code emails. Layout beyond a minimal HTML body is
// left to the mail provider templates.
type MessageComposer struct {
	SiteName string
}

func (c MessageComposer) site() string {
	if strings.TrimSpace(c.SiteName) == "" {
		return defaultSiteName
	}
	return c.SiteName
}

// CodeMessage builds the email carrying a code for purpose.
func (c MessageComposer) CodeMessage(purpose domain.CodePurpose, to, name, code string, ttl time.Duration, resend bool) port.Message {
	greeting := "Hello!"
	if name = strings.TrimSpace(name); name != "" {
		greeting = fmt.Sprintf("Hello %s!", name)
	}
	minutes := ceilMinutes(ttl)

	var subject, intro, label, outro string
	switch purpose {
	case domain.CodePurposePasswordReset:
		subject = "Password Reset Code"
		if resend {
			subject = "New Password Reset Code"
		}
		intro = fmt.Sprintf("You have requested to reset your password for the %s. Please use the following code to reset your password:", c.site())
		label = "Reset Code"
		outro = "If you didn't request this password reset, please ignore this email and your password will remain unchanged."
	case domain.CodePurposeMentorReactivation:
		subject = "Mentor Reactivation Code"
		intro = "Use the following code to reactivate your mentor profile:"
		label = "Reactivation Code"
		outro = "If you didn't request this code, please ignore this email."
	default:
		subject = "Email Verification Code"
		if resend {
			subject = "New Verification Code"
		}
		intro = fmt.Sprintf("Thank you for signing up for the %s. To complete your registration, please use the following verification code:", c.site())
		label = "Verification Code"
		outro = "If you didn't request this code, please ignore this email."
	}

	plain := fmt.Sprintf("%s\n\n%s\n\n%s: %s\n\nThis code will expire in %d minutes.\n\n%s\n\nBest regards,\n%s Team\n",
		greeting, intro, label, code, minutes, outro, c.site())

	htmlBody := fmt.Sprintf(
		"<p>%s</p><p>%s</p><p><strong>%s:</strong> <code>%s</code></p><p>This code will expire in %d minutes.</p><p>%s</p><p>Best regards,<br>%s Team</p>",
		html.EscapeString(greeting), html.EscapeString(intro), html.EscapeString(label), html.EscapeString(code),
		minutes, html.EscapeString(outro), html.EscapeString(c.site()),
	)

	return port.Message{
		To:        to,
		ToName:    name,
		Subject:   fmt.Sprintf("%s - %s", c.site(), subject),
		PlainBody: plain,
		HTMLBody:  htmlBody,
	}
}
