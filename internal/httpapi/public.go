package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/visit-scheduler/internal/audit"
)

func (s *Server) viewOffer(c *gin.Context) {
	view, err := s.Intake.PublicOfferView(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// respondOffer принимает и переход по ссылке из письма (GET), и отправку формы (POST).
func (s *Server) respondOffer(c *gin.Context) {
	action := c.Query("action")
	if v := c.PostForm("action"); v != "" {
		action = v
	}
	suggestion := c.PostForm("suggestion")
	if suggestion == "" {
		suggestion = c.Query("suggestion")
	}

	res, err := s.Intake.HandlePublicOfferResponse(
		c.Request.Context(),
		c.Param("token"),
		action,
		suggestion,
		audit.Public(c.ClientIP(), c.Request.UserAgent()),
	)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{
		"action":          res.Action,
		"next_offer_sent": res.NextToken != "",
		"no_slots":        res.NoSlots,
	}
	if res.Appointment != nil {
		body["appointment_id"] = res.Appointment.ID
		body["starts_at"] = res.Appointment.StartsAt
		body["ends_at"] = res.Appointment.EndsAt
	}
	c.JSON(http.StatusOK, body)
}
