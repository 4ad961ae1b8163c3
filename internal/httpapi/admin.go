package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/auth"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/repository"
	"github.com/Leganyst/visit-scheduler/internal/service"
)

func actorOf(c *gin.Context) audit.Actor {
	if a, ok := auth.ActorFrom(c.Request.Context()); ok {
		return a
	}
	return audit.Public(c.ClientIP(), c.Request.UserAgent())
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// --- Слоты и удержания ---

func (s *Server) findSlots(c *gin.Context) {
	ctx := c.Request.Context()
	q := service.SlotQuery{}

	if raw := c.Query("resource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "resource_id must be a UUID")
			return
		}
		q.ResourceID = id
	} else {
		id, err := s.Finder.PickResource(ctx, s.DB)
		if err != nil {
			writeError(c, err)
			return
		}
		q.ResourceID = id
	}
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "count must be a positive integer")
			return
		}
		q.Count = n
	}
	if raw := c.Query("horizon_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "horizon_days must be a positive integer")
			return
		}
		q.HorizonDays = n
	}
	if raw := c.Query("not_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "not_before must be RFC3339")
			return
		}
		q.NotBefore = &t
	}

	slots, err := s.Finder.FindAvailableSlots(ctx, s.DB, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource_id": q.ResourceID, "slots": slots})
}

type holdRequest struct {
	ResourceID    string    `json:"resource_id" validate:"required,uuid"`
	Start         time.Time `json:"start" validate:"required"`
	End           time.Time `json:"end" validate:"required,gtfield=Start"`
	VisitType     string    `json:"visit_type" validate:"omitempty,oneof=PRIMARY INSTALLATION MAINTENANCE OTHER"`
	WeatherClass  string    `json:"weather_class" validate:"omitempty,oneof=ANY WEATHER_SENSITIVE"`
	ProjectID     *string   `json:"project_id" validate:"omitempty,uuid"`
	CallRequestID *string   `json:"call_request_id" validate:"omitempty,uuid"`
	TTLMinutes    int       `json:"ttl_minutes" validate:"omitempty,min=1,max=1440"`
	Notes         string    `json:"notes" validate:"max=2000"`
}

func (s *Server) createHold(c *gin.Context) {
	var req holdRequest
	if !bindJSON(c, &req) {
		return
	}
	project, _ := optionalUUID(req.ProjectID)
	callRequest, _ := optionalUUID(req.CallRequestID)

	a, err := s.Appts.CreateHold(c.Request.Context(), service.HoldRequest{
		ResourceID:    uuid.MustParse(req.ResourceID),
		Start:         req.Start,
		End:           req.End,
		ProjectID:     project,
		CallRequestID: callRequest,
		VisitType:     model.VisitType(req.VisitType),
		WeatherClass:  model.WeatherClass(req.WeatherClass),
		TTL:           time.Duration(req.TTLMinutes) * time.Minute,
		Notes:         req.Notes,
		Actor:         actorOf(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) listAppointments(c *gin.Context) {
	var f repository.AppointmentFilter
	if raw := c.Query("resource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "resource_id must be a UUID")
			return
		}
		f.ResourceID = &id
	}
	for _, st := range c.QueryArray("status") {
		switch model.AppointmentStatus(st) {
		case model.AppointmentStatusHeld, model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled:
			f.Statuses = append(f.Statuses, model.AppointmentStatus(st))
		default:
			badRequest(c, "unknown status "+st)
			return
		}
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if raw := c.Query(key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				badRequest(c, key+" must be RFC3339")
				return
			}
			*dst = &t
		}
	}
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))

	res, err := s.Appts.List(c.Request.Context(), f, page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getAppointment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	a, err := s.Appts.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type confirmRequest struct {
	ExpectedVersion *int `json:"expected_version" validate:"required,min=0"`
}

func (s *Server) confirmAppointment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := s.Appts.Confirm(c.Request.Context(), id, *req.ExpectedVersion, service.ConfirmOptions{
		Actor:      actorOf(c),
		LockReason: model.LockReasonAdminConfirm,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type cancelRequest struct {
	Reason          string `json:"reason" validate:"max=255"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,min=0"`
}

func (s *Server) cancelAppointment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = model.CancelReasonAdmin
	}
	a, err := s.Appts.Cancel(c.Request.Context(), id, req.Reason, req.ExpectedVersion, actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// --- День и перенос ---

type dailyApproveRequest struct {
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	ResourceID *string `json:"resource_id" validate:"omitempty,uuid"`
	Comment    string  `json:"comment" validate:"max=1000"`
}

func (s *Server) dailyApprove(c *gin.Context) {
	var req dailyApproveRequest
	if !bindJSON(c, &req) {
		return
	}
	date, _ := time.ParseInLocation(time.DateOnly, req.Date, s.Finder.Location())
	resource, _ := optionalUUID(req.ResourceID)

	res, err := s.Appts.DailyApprove(c.Request.Context(), date, resource, req.Comment, actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type previewRequest struct {
	RouteDate            string `json:"route_date" validate:"required,datetime=2006-01-02"`
	ResourceID           string `json:"resource_id" validate:"required,uuid"`
	Reason               string `json:"reason" validate:"omitempty,oneof=WEATHER TECHNICAL_ISSUE RESOURCE_UNAVAILABLE TIME_OVERFLOW OTHER"`
	Scope                string `json:"scope" validate:"omitempty,oneof=DAY WEEK"`
	PreserveLockedLevel  *int   `json:"preserve_locked_level" validate:"omitempty,min=0,max=3"`
	WeatherResistantOnly bool   `json:"weather_resistant_only"`
}

func (s *Server) reschedulePreview(c *gin.Context) {
	var req previewRequest
	if !bindJSON(c, &req) {
		return
	}
	date, _ := time.ParseInLocation(time.DateOnly, req.RouteDate, s.Finder.Location())

	res, err := s.Reschedule.Preview(c.Request.Context(), service.PreviewRequest{
		RouteDate:  date,
		ResourceID: uuid.MustParse(req.ResourceID),
		Reason:     service.RescheduleReason(req.Reason),
		Scope:      service.RescheduleScope(req.Scope),
		Rules: service.RescheduleRules{
			PreserveLockedLevel:  req.PreserveLockedLevel,
			WeatherResistantOnly: req.WeatherResistantOnly,
		},
		Actor: actorOf(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rescheduleConfirmRequest struct {
	PreviewID        string         `json:"preview_id" validate:"required,uuid"`
	PreviewHash      string         `json:"preview_hash" validate:"required,hexadecimal"`
	ExpectedVersions map[string]int `json:"expected_versions" validate:"required"`
	Reason           string         `json:"reason" validate:"omitempty,oneof=WEATHER TECHNICAL_ISSUE RESOURCE_UNAVAILABLE TIME_OVERFLOW OTHER"`
	Comment          string         `json:"comment" validate:"max=1000"`
	NotifyWhatsApp   bool           `json:"notify_whatsapp"`
}

func (s *Server) rescheduleConfirm(c *gin.Context) {
	var req rescheduleConfirmRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Reschedule.Confirm(c.Request.Context(), service.ConfirmPlanRequest{
		PreviewID:        uuid.MustParse(req.PreviewID),
		PreviewHash:      req.PreviewHash,
		ExpectedVersions: req.ExpectedVersions,
		Reason:           service.RescheduleReason(req.Reason),
		Comment:          req.Comment,
		NotifyWhatsApp:   req.NotifyWhatsApp,
		Actor:            actorOf(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) sweep(c *gin.Context) {
	res, err := s.Appts.ExpireStaleHolds(c.Request.Context(), s.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Заявки и офферы ---

type callRequestBody struct {
	Name   string `json:"name" validate:"required,max=255"`
	Phone  string `json:"phone" validate:"omitempty,max=32"`
	Email  string `json:"email" validate:"omitempty,email"`
	Source string `json:"source" validate:"omitempty,oneof=VOICE EMAIL WEB ADMIN"`
}

func (s *Server) createCallRequest(c *gin.Context) {
	var req callRequestBody
	if !bindJSON(c, &req) {
		return
	}
	if req.Phone == "" && req.Email == "" {
		badRequest(c, "phone or email is required")
		return
	}
	source := model.CallRequestSource(req.Source)
	if source == "" {
		source = model.CallRequestSourceAdmin
	}
	cr, err := s.Intake.CreateCallRequest(c.Request.Context(), service.CallRequestInput{
		Name:   req.Name,
		Phone:  req.Phone,
		Email:  req.Email,
		Source: source,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cr)
}

func (s *Server) getCallRequest(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	cr, err := s.Intake.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

type intakePatchRequest struct {
	ExpectedVersion *int              `json:"expected_row_version" validate:"omitempty,min=0"`
	Fields          map[string]string `json:"fields"`
	Source          string            `json:"source" validate:"max=32"`
	WhatsAppConsent *bool             `json:"whatsapp_consent"`
	Notes           *string           `json:"notes" validate:"omitempty,max=4000"`
}

func (s *Server) updateIntake(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req intakePatchRequest
	if !bindJSON(c, &req) {
		return
	}
	cr, err := s.Intake.UpdateIntake(c.Request.Context(), id, req.ExpectedVersion, service.IntakePatch{
		Fields:          req.Fields,
		Source:          req.Source,
		WhatsAppConsent: req.WhatsAppConsent,
		Notes:           req.Notes,
	}, actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

type prepareOfferRequest struct {
	Kind            string `json:"kind" validate:"omitempty,oneof=INSPECTION SERVICE_VISIT"`
	ExpectedVersion *int   `json:"expected_row_version" validate:"omitempty,min=0"`
}

func (s *Server) prepareOffer(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req prepareOfferRequest
	if !bindJSON(c, &req) {
		return
	}
	cr, err := s.Intake.PrepareOffer(c.Request.Context(), id, model.OfferKind(req.Kind), req.ExpectedVersion, actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

type sendOfferRequest struct {
	ExpectedVersion *int `json:"expected_row_version" validate:"omitempty,min=0"`
}

func (s *Server) sendOffer(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req sendOfferRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Intake.SendOfferOneClick(c.Request.Context(), id, req.ExpectedVersion, actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	// Сырой токен отдаётся только в этом ответе.
	c.JSON(http.StatusOK, gin.H{"call_request": res.CallRequest, "offer_token": res.Token})
}
