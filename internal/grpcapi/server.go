package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/auth"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/service"
)

// Scheduler: реализация scheduler.v1.Scheduler поверх сервисного слоя.
type Scheduler struct {
	db     *gorm.DB
	appts  *service.AppointmentService
	intake *service.IntakeService
	finder *service.SlotFinder
	now    func() time.Time
}

func NewScheduler(
	db *gorm.DB,
	appts *service.AppointmentService,
	intake *service.IntakeService,
	finder *service.SlotFinder,
	now func() time.Time,
) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{db: db, appts: appts, intake: intake, finder: finder, now: now}
}

// NewServer собирает gRPC-сервер с планировщиком, health и reflection.
// Без менеджера токенов методы планировщика отвечают Unauthenticated.
func NewServer(sched *Scheduler, m *auth.Manager) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(), AuthInterceptor(m)))
	RegisterSchedulerServer(srv, sched)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

func actor(ctx context.Context) audit.Actor {
	if a, ok := auth.ActorFrom(ctx); ok {
		return a
	}
	return audit.System()
}

func (s *Scheduler) fail(ctx context.Context, method string, err error) error {
	if apperr.KindOf(err) == "" {
		logging.From(ctx).Error("grpc call failed", "method", method, "error", err)
	}
	return toStatus(err)
}

func invalid(msg string) error {
	return toStatus(apperr.Validation(apperr.CodeInvalidArgument, msg))
}

// toStruct сериализует ответ через JSON, чтобы поля совпадали с HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return structpb.NewStruct(m)
}

func str(in *structpb.Struct, key string) string {
	if v, ok := in.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func optUUID(in *structpb.Struct, key string) (*uuid.UUID, error) {
	raw := str(in, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a UUID", key)
	}
	return &id, nil
}

func optTime(in *structpb.Struct, key string) (*time.Time, error) {
	raw := str(in, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339", key)
	}
	return &t, nil
}

func (s *Scheduler) FindSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resource, err := optUUID(in, "resource_id")
	if err != nil {
		return nil, invalid(err.Error())
	}
	notBefore, err := optTime(in, "not_before")
	if err != nil {
		return nil, invalid(err.Error())
	}
	q := service.SlotQuery{
		Count:       int(in.GetFields()["count"].GetNumberValue()),
		HorizonDays: int(in.GetFields()["horizon_days"].GetNumberValue()),
		NotBefore:   notBefore,
	}
	if resource != nil {
		q.ResourceID = *resource
	} else {
		id, err := s.finder.PickResource(ctx, s.db)
		if err != nil {
			return nil, s.fail(ctx, "FindSlots", err)
		}
		q.ResourceID = id
	}

	slots, err := s.finder.FindAvailableSlots(ctx, s.db, q)
	if err != nil {
		return nil, s.fail(ctx, "FindSlots", err)
	}
	return toStruct(map[string]any{"resource_id": q.ResourceID, "slots": slots})
}

func (s *Scheduler) CreateHold(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	resource, err := optUUID(in, "resource_id")
	if err != nil || resource == nil {
		return nil, invalid("resource_id must be a UUID")
	}
	start, err := optTime(in, "start")
	if err != nil || start == nil {
		return nil, invalid("start must be RFC3339")
	}
	end, err := optTime(in, "end")
	if err != nil || end == nil {
		return nil, invalid("end must be RFC3339")
	}
	callRequest, err := optUUID(in, "call_request_id")
	if err != nil {
		return nil, invalid(err.Error())
	}
	project, err := optUUID(in, "project_id")
	if err != nil {
		return nil, invalid(err.Error())
	}

	a, err := s.appts.CreateHold(ctx, service.HoldRequest{
		ResourceID:    *resource,
		Start:         *start,
		End:           *end,
		ProjectID:     project,
		CallRequestID: callRequest,
		VisitType:     model.VisitType(str(in, "visit_type")),
		TTL:           time.Duration(in.GetFields()["ttl_minutes"].GetNumberValue()) * time.Minute,
		Notes:         str(in, "notes"),
		Actor:         actor(ctx),
	})
	if err != nil {
		return nil, s.fail(ctx, "CreateHold", err)
	}
	return toStruct(a)
}

func (s *Scheduler) respond(ctx context.Context, method string, in *structpb.Struct, action string) (*structpb.Struct, error) {
	token := str(in, "token")
	if token == "" {
		return nil, invalid("token is required")
	}
	res, err := s.intake.HandlePublicOfferResponse(ctx, token, action, str(in, "suggestion"), actor(ctx))
	if err != nil {
		return nil, s.fail(ctx, method, err)
	}
	out := map[string]any{
		"action":          res.Action,
		"next_offer_sent": res.NextToken != "",
		"no_slots":        res.NoSlots,
	}
	if res.Appointment != nil {
		out["appointment"] = res.Appointment
	}
	return toStruct(out)
}

func (s *Scheduler) ConfirmOffer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.respond(ctx, "ConfirmOffer", in, service.OfferActionAccept)
}

func (s *Scheduler) RejectOffer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.respond(ctx, "RejectOffer", in, service.OfferActionReject)
}

// ExpireSweepTick выполняет один проход сборщика просроченных удержаний вне расписания.
func (s *Scheduler) ExpireSweepTick(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.appts.ExpireStaleHolds(ctx, s.now().UTC())
	if err != nil {
		return nil, s.fail(ctx, "ExpireSweepTick", err)
	}
	return toStruct(res)
}
