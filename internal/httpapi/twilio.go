package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/service"
)

const (
	headerTwilioSignature = "X-Twilio-Signature"
	voiceLanguage         = "lt-LT"
	voiceFailure          = "Atsiprasome, ivyko klaida. Pabandykite veliau."
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name `xml:"Gather"`
	Input     string   `xml:"input,attr"`
	NumDigits int      `xml:"numDigits,attr"`
	Timeout   int      `xml:"timeout,attr"`
	Language  string   `xml:"language,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	Say       twimlSay
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// renderTwiML переводит ответ голосового сервиса в TwiML. action: адрес
// следующего хода; при тишине Twilio возвращается туда же через Redirect.
func renderTwiML(reply service.VoiceReply, action string) ([]byte, error) {
	var r twimlResponse
	say := twimlSay{Language: voiceLanguage, Text: reply.Say}
	switch {
	case reply.Gather:
		r.Verbs = append(r.Verbs,
			twimlGather{
				Input:     "dtmf speech",
				NumDigits: 1,
				Timeout:   5,
				Language:  voiceLanguage,
				Action:    action,
				Method:    http.MethodPost,
				Say:       say,
			},
			twimlRedirect{Method: http.MethodPost, URL: action},
		)
	default:
		r.Verbs = append(r.Verbs, say)
		if reply.Hangup {
			r.Verbs = append(r.Verbs, twimlHangup{})
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// twilioSignature: base64(HMAC-SHA1(token, url + отсортированные key+value формы)).
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Server) webhookURL(c *gin.Context) string {
	if s.Twilio.PublicWebhookURL != "" {
		return s.Twilio.PublicWebhookURL
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func (s *Server) twilioVoice(c *gin.Context) {
	log := logging.FromGin(c)
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	form := c.Request.PostForm
	action := s.webhookURL(c)

	if s.Twilio.AuthToken != "" {
		want := twilioSignature(s.Twilio.AuthToken, action, form)
		got := c.GetHeader(headerTwilioSignature)
		if !hmac.Equal([]byte(want), []byte(got)) {
			log.Warn("twilio signature mismatch", "call_sid", form.Get("CallSid"))
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
	}

	reply, err := s.Voice.HandleTurn(c.Request.Context(), service.VoiceInput{
		CallSid: form.Get("CallSid"),
		From:    form.Get("From"),
		Digits:  form.Get("Digits"),
		Speech:  form.Get("SpeechResult"),
	})
	if err != nil {
		// Twilio ждёт TwiML даже при сбое: проговариваем ошибку и кладём трубку.
		log.Error("voice turn failed", "call_sid", form.Get("CallSid"), "error", err)
		_ = c.Error(err)
		reply = service.VoiceReply{Say: voiceFailure, Hangup: true}
	}

	out, err := renderTwiML(reply, action)
	if err != nil {
		log.Error("twiml render failed", "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml", out)
}
