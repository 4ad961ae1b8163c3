package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/service"
)

type inboundEmailRequest struct {
	MessageID string            `json:"message_id" validate:"max=998"`
	Subject   string            `json:"subject" validate:"max=998"`
	From      string            `json:"from" validate:"required,max=320"`
	Name      string            `json:"name" validate:"max=255"`
	Fields    map[string]string `json:"fields"`
}

// inboundEmail принимает разобранное письмо от почтового шлюза и сразу решает об автоответе.
func (s *Server) inboundEmail(c *gin.Context) {
	var req inboundEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	cr, err := s.Intake.RecordInboundEmail(ctx, service.InboundEmailInput{
		MessageID: req.MessageID,
		Subject:   req.Subject,
		From:      req.From,
		Name:      req.Name,
		Fields:    req.Fields,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := s.Intake.MaybeSendAutoReply(ctx, cr.ID)
	if err != nil {
		// Письмо уже записано; сбой автоответа не повод для повтора вебхука.
		logging.FromGin(c).Error("auto reply failed", "call_request_id", cr.ID, "error", err)
		result = service.AutoReplyNone
	}
	c.JSON(http.StatusAccepted, gin.H{"call_request_id": cr.ID, "auto_reply": result})
}
