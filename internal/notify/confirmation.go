package notify

import (
	"fmt"
	"html"
	"time"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
)

// BuildConfirmation renders the booking confirmation for appt in loc.
func BuildConfirmation(appt *appointments.Appointment, loc *time.Location) EmailMessage {
	if loc == nil {
		loc = time.UTC
	}
	at := appt.ScheduledFor.In(loc)
	area := appt.PracticeArea.DisplayName()
	date := at.Format("Monday, January 2, 2006")
	clock := at.Format("3:04 PM MST")

	body := fmt.Sprintf(`Dear %s,

Thank you for contacting us regarding your %s case.

Your consultation is confirmed:

Date: %s
Time: %s
Practice Area: %s

What to expect next:
- Please arrive 10 minutes early for your consultation.
- Bring any relevant documents, receipts, or records related to your case.
- If you need to reschedule, please give us at least 24 hours notice.

We look forward to speaking with you.

Best regards,
Legal Intake Team`, appt.Caller.Name, area, date, clock, area)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Appointment Confirmation</h2>
<p>Dear %s,</p>
<p>Thank you for contacting us regarding your <strong>%s</strong> case.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
<tr><td style="padding: 4px 12px 4px 0;"><strong>Date</strong></td><td>%s</td></tr>
<tr><td style="padding: 4px 12px 4px 0;"><strong>Time</strong></td><td>%s</td></tr>
<tr><td style="padding: 4px 12px 4px 0;"><strong>Practice Area</strong></td><td>%s</td></tr>
</table>
<h3>What to expect next</h3>
<ul>
<li>Please arrive 10 minutes early for your consultation.</li>
<li>Bring any relevant documents, receipts, or records related to your case.</li>
<li>If you need to reschedule, please give us at least 24 hours notice.</li>
</ul>
<p>Best regards,<br>Legal Intake Team</p>
</div>`, html.EscapeString(appt.Caller.Name), area, date, clock, area)

	return EmailMessage{
		To:      appt.Caller.Email,
		ToName:  appt.Caller.Name,
		Subject: fmt.Sprintf("Appointment Confirmation - %s", area),
		Body:    body,
		HTML:    htmlBody,

		AppointmentID: appt.ID,
	}
}
