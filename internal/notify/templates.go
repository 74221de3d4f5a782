package notify

import (
	"fmt"

	"nextslot/internal/models"
)

const timeLayout = "Mon, 02 Jan 2006 15:04"

// RenderMessage builds the push title/body for a lifecycle event.
func RenderMessage(event models.NotificationEvent, appt *models.Appointment) (title, body string) {
	when := appt.Start.Format(timeLayout)

	switch event {
	case models.EventNewBooking:
		return "New booking",
			fmt.Sprintf("%s booked an appointment for %s.", clientName(appt), when)
	case models.EventConfirmed:
		return "Appointment confirmed",
			fmt.Sprintf("Your appointment on %s is confirmed.", when)
	case models.EventCancelledByClient:
		return "Booking cancelled",
			fmt.Sprintf("%s cancelled the appointment on %s.", clientName(appt), when)
	case models.EventCancelledByProvider:
		return "Appointment cancelled",
			fmt.Sprintf("Your appointment on %s was cancelled by the provider.", when)
	case models.EventRescheduled:
		return "Appointment rescheduled",
			fmt.Sprintf("Your appointment was moved to %s.", when)
	case models.EventReminder:
		return "Upcoming appointment",
			fmt.Sprintf("You have an appointment on %s.", when)
	}
	return "Appointment update", fmt.Sprintf("Your appointment on %s was updated.", when)
}

// RenderEmail builds the subject and the plain-text body for the email
// channel. HTML rendering is owned by the mail template service; the
// engine only emits a text fallback.
func RenderEmail(event models.NotificationEvent, appt *models.Appointment) (subject, text string) {
	title, body := RenderMessage(event, appt)
	greeting := "Hello"
	if appt.ClientContact.Name != "" {
		greeting = "Hello " + appt.ClientContact.Name
	}
	return title, fmt.Sprintf("%s,\n\n%s\n", greeting, body)
}

func clientName(appt *models.Appointment) string {
	if appt.ClientContact.Name != "" {
		return appt.ClientContact.Name
	}
	return "A client"
}
