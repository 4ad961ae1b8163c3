package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

func TestBuildICS_CRLFAndEscaping(t *testing.T) {
	id := uuid.MustParse("7f1c2a9e-0000-4000-8000-000000000001")
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ics := buildICS(id, "Apziura: Pilies g. 2, Vilnius", start, start.Add(time.Hour), "Pilies g. 2; Vilnius")

	if !strings.HasSuffix(ics, "\r\n") || strings.Contains(strings.ReplaceAll(ics, "\r\n", ""), "\n") {
		t.Fatalf("expected CRLF-only line endings")
	}
	for _, want := range []string{
		"METHOD:REQUEST",
		"UID:" + id.String() + "@visit-scheduler",
		"DTSTART:20260302T100000Z",
		"DTEND:20260302T110000Z",
		`SUMMARY:Apziura: Pilies g. 2\, Vilnius`,
		`LOCATION:Pilies g. 2\; Vilnius`,
	} {
		if !strings.Contains(ics, want+"\r\n") {
			t.Fatalf("missing line %q in:\n%s", want, ics)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"jonas@example.lt": "j***@example.lt",
		"j@example.lt":     "j*@example.lt",
		"@example.lt":      "*@example.lt",
		"not-an-email":     "not-an-email",
	}
	for in, want := range cases {
		if got := maskEmail(in); got != want {
			t.Fatalf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOfferLinks(t *testing.T) {
	accept, reject := offerLinks("https://book.example.lt/", "tok")
	if accept != "https://book.example.lt/api/v1/public/offer/tok/respond?action=accept" {
		t.Fatalf("unexpected accept link %q", accept)
	}
	if !strings.HasSuffix(reject, "?action=reject") {
		t.Fatalf("unexpected reject link %q", reject)
	}
}

func TestMissingDataReply_OrderAndThreading(t *testing.T) {
	q := &model.Questionnaire{Phone: &model.AnswerField{Value: "370600"}}
	missing := missingDataFields(q)
	if strings.Join(missing, ",") != "address,service_type,area_m2" {
		t.Fatalf("unexpected missing fields %v", missing)
	}

	p := missingDataReply("a@example.lt", "", missing, &model.InboundEmail{Subject: "RE: Klausimas", MessageID: "<x@y>"})
	if p.Subject != "RE: Klausimas" {
		t.Fatalf("existing reply prefix must be kept, got %q", p.Subject)
	}
	if p.Headers["References"] != "<x@y>" || p.Headers["Reply-To"] != "" {
		t.Fatalf("unexpected headers %v", p.Headers)
	}
	if strings.Index(p.BodyText, "adresas") > strings.Index(p.BodyText, "plotas") {
		t.Fatalf("questions must follow field order")
	}

	bare := missingDataReply("a@example.lt", "", missing, nil)
	if bare.Subject != "Jūsų užklausa" || bare.Headers != nil {
		t.Fatalf("unexpected bare reply: %+v", bare)
	}
}

func TestIsAutomatedSender(t *testing.T) {
	for addr, want := range map[string]bool{
		"noreply@shop.lt":       true,
		"No-Reply@shop.lt":      true,
		"postmaster@example.lt": true,
		"jonas@example.lt":      false,
		"broken":                true,
	} {
		if got := isAutomatedSender(addr); got != want {
			t.Fatalf("isAutomatedSender(%q) = %v, want %v", addr, got, want)
		}
	}
}
