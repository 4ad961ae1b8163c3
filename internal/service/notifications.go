package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/outbox"
)

const (
	templateOfferEmail        = "OFFER_EMAIL"
	templateWhatsAppOfferPing = "WHATSAPP_OFFER_PING"
	templateAutoReplyMissing  = "EMAIL_AUTO_REPLY_MISSING_DATA"

	entityCallRequest = "call_request"

	icsTimeLayout   = "20060102T150405Z"
	localTimeLayout = "2006-01-02 15:04"
)

// Вопросы по недостающим полям анкеты в порядке вывода.
var missingFieldQuestions = []struct {
	field    string
	question string
}{
	{model.FieldPhone, "telefono numeris, kad galėtume su jumis susisiekti"},
	{model.FieldAddress, "paslaugos vietos adresas (gatvė, miestas)"},
	{model.FieldServiceType, "kokios paslaugos jums reikia (pvz. vejos pjovimas, aeracija, tręšimas)"},
	{model.FieldAreaM2, "apytikslis vejos plotas (kvadratiniais metrais)"},
}

// buildICS собирает приглашение text/calendar (METHOD:REQUEST) для визита.
// Строки разделяются CRLF.
func buildICS(appointmentID uuid.UUID, summary string, start, end time.Time, location string) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//visit-scheduler//offer//LT",
		"CALSCALE:GREGORIAN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + appointmentID.String() + "@visit-scheduler",
		"DTSTAMP:" + start.UTC().Format(icsTimeLayout),
		"DTSTART:" + start.UTC().Format(icsTimeLayout),
		"DTEND:" + end.UTC().Format(icsTimeLayout),
		"SUMMARY:" + icsEscape(summary),
		"LOCATION:" + icsEscape(location),
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func icsEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)
	return r.Replace(s)
}

// offerLinks: ссылки подтверждения и отказа для письма с оффером.
func offerLinks(baseURL, token string) (accept, reject string) {
	base := fmt.Sprintf("%s/api/v1/public/offer/%s/respond", strings.TrimRight(baseURL, "/"), url.PathEscape(token))
	return base + "?action=accept", base + "?action=reject"
}

func offerEmail(to, address, token, baseURL string, offer *model.ActiveOffer, loc *time.Location) outbox.EmailPayload {
	accept, reject := offerLinks(baseURL, token)
	start := offer.Slot.Start.In(loc).Format(localTimeLayout)

	var b strings.Builder
	b.WriteString("Sveiki,\n\n")
	b.WriteString("Siulome apziuros laika:\n")
	fmt.Fprintf(&b, "  Data/laikas: %s\n", start)
	fmt.Fprintf(&b, "  Adresas: %s\n\n", address)
	fmt.Fprintf(&b, "Patvirtinti: %s\n", accept)
	fmt.Fprintf(&b, "Atsisakyti: %s\n\n", reject)
	b.WriteString("Pagarbiai,\nKomanda")

	return outbox.EmailPayload{
		To:       to,
		Subject:  "Apziuros pasiulymas",
		BodyText: b.String(),
		ICS:      buildICS(offer.AppointmentID, "Apziura: "+address, offer.Slot.Start, offer.Slot.End, address),
	}
}

// maskEmail скрывает локальную часть адреса: j***@example.lt.
func maskEmail(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	switch len([]rune(local)) {
	case 0:
		return "*@" + domain
	case 1:
		return local + "*@" + domain
	default:
		return string([]rune(local)[:1]) + "***@" + domain
	}
}

func whatsAppOfferPing(phone, email string) outbox.WhatsAppPayload {
	return outbox.WhatsAppPayload{To: phone, Body: fmt.Sprintf("Jums issiustas apziuros pasiulymas el. pastu (%s). Patikrinkite pasta.", maskEmail(email))}
}

func rescheduledBody(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("Jusu vizito laikas pakeistas. Naujas laikas: %s.", start.In(loc).Format(localTimeLayout))
}

// missingDataFields: поля, о которых спрашивает автоответ.
func missingDataFields(q *model.Questionnaire) []string {
	var out []string
	for _, m := range missingFieldQuestions {
		if !q.Field(m.field).Present() {
			out = append(out, m.field)
		}
	}
	return out
}

func missingDataReply(to, replyTo string, missing []string, inbound *model.InboundEmail) outbox.EmailPayload {
	var b strings.Builder
	b.WriteString("Sveiki,\n\nAčiū už jūsų užklausą. Kad galėtume pasiūlyti apžiūros laiką, atsakykite į šį laišką ir nurodykite:\n")
	for _, m := range missingFieldQuestions {
		for _, f := range missing {
			if f == m.field {
				fmt.Fprintf(&b, "- %s\n", m.question)
			}
		}
	}
	b.WriteString("\nPagarbiai,\nKomanda")

	subject := "Jūsų užklausa"
	headers := map[string]string{}
	if inbound != nil {
		if s := strings.TrimSpace(inbound.Subject); s != "" {
			if strings.HasPrefix(strings.ToLower(s), "re:") {
				subject = s
			} else {
				subject = "Re: " + s
			}
		}
		if inbound.MessageID != "" {
			headers["In-Reply-To"] = inbound.MessageID
			headers["References"] = inbound.MessageID
		}
	}
	if replyTo != "" {
		headers["Reply-To"] = replyTo
	}
	if len(headers) == 0 {
		headers = nil
	}

	return outbox.EmailPayload{
		To:       to,
		Subject:  subject,
		BodyText: b.String(),
		ReplyTo:  replyTo,
		Headers:  headers,
	}
}
