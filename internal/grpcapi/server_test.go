package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/auth"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/repository"
	"github.com/Leganyst/visit-scheduler/internal/service"
	"github.com/Leganyst/visit-scheduler/internal/testutil"
)

type grpcEnv struct {
	conn     *grpc.ClientConn
	manager  *auth.Manager
	resource uuid.UUID
}

func newGRPCEnv(t *testing.T) *grpcEnv {
	t.Helper()

	db := testutil.NewSQLite(t)
	clock := testutil.NewClock(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC))
	resource := &model.User{DisplayName: "Tomas", Role: model.UserRoleAdmin, IsActive: true}
	if err := repository.NewGormUserRepository(db).Create(context.Background(), resource); err != nil {
		t.Fatalf("create resource: %v", err)
	}

	sched := config.SchedulingConfig{
		Timezone:       "UTC",
		CandidateHours: []int{10, 13, 16},
		OpenHour:       9,
		CloseHour:      18,
		LeadTime:       30 * time.Minute,
		HorizonDays:    14,
		VisitDuration:  time.Hour,
		HoldMinutes:    5,
		DayNamespace:   "cd487f5c-baca-4d84-b0e8-97f7bfef7248",
	}
	deps := service.Deps{DB: db, Audit: audit.NewMemorySink(), Now: clock.Now}
	finder := service.NewSlotFinder(sched, clock.Now)
	appts := service.NewAppointmentService(deps, sched)
	intake := service.NewIntakeService(deps, appts, finder, config.IntakeConfig{OfferMaxAttempts: 5}, sched, "https://book.example.lt")

	manager, err := auth.NewManager(config.AuthConfig{JWTSecret: "grpc-test-secret"})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	srv, _ := NewServer(NewScheduler(db, appts, intake, finder, clock.Now), manager)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &grpcEnv{conn: conn, manager: manager, resource: resource.ID}
}

func (e *grpcEnv) call(t *testing.T, method string, in map[string]any, authorized bool) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if authorized {
		tok, err := e.manager.Issue(time.Now(), uuid.New(), auth.RoleAdmin, time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}
	out := new(structpb.Struct)
	err = e.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out)
	return out, err
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{apperr.Validation(apperr.CodeInvalidWindow, "x"), codes.InvalidArgument},
		{apperr.Forbidden(apperr.CodeForbiddenLockLevel, "x"), codes.PermissionDenied},
		{apperr.NotFound(apperr.CodeOfferNotFound, "x"), codes.NotFound},
		{apperr.Conflict(apperr.CodeSlotTaken, "x"), codes.FailedPrecondition},
		{apperr.VersionConflict("appointment"), codes.Aborted},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		if got := codeOf(tc.err); got != tc.want {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestScheduler_RequiresToken(t *testing.T) {
	e := newGRPCEnv(t)
	if _, err := e.call(t, "FindSlots", map[string]any{}, false); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestScheduler_HealthIsOpen(t *testing.T) {
	e := newGRPCEnv(t)
	resp, err := healthpb.NewHealthClient(e.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}

func TestScheduler_FindSlotsAndHold(t *testing.T) {
	e := newGRPCEnv(t)

	out, err := e.call(t, "FindSlots", map[string]any{"count": 3}, true)
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	slots := out.GetFields()["slots"].GetListValue().GetValues()
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	first := slots[0].GetStructValue().GetFields()

	hold := map[string]any{
		"resource_id": e.resource.String(),
		"start":       first["start"].GetStringValue(),
		"end":         first["end"].GetStringValue(),
		"project_id":  uuid.New().String(),
	}
	out, err = e.call(t, "CreateHold", hold, true)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if got := out.GetFields()["status"].GetStringValue(); got != string(model.AppointmentStatusHeld) {
		t.Fatalf("expected HELD, got %q", got)
	}

	if _, err := e.call(t, "CreateHold", hold, true); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition for taken slot, got %v", err)
	}
	if _, err := e.call(t, "CreateHold", map[string]any{"resource_id": "x"}, true); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestScheduler_OfferAndSweep(t *testing.T) {
	e := newGRPCEnv(t)

	if _, err := e.call(t, "ConfirmOffer", map[string]any{"token": "garbage"}, true); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound for unknown token, got %v", err)
	}
	if _, err := e.call(t, "RejectOffer", map[string]any{}, true); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without token, got %v", err)
	}

	out, err := e.call(t, "ExpireSweepTick", map[string]any{}, true)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n := out.GetFields()["appointments"].GetNumberValue(); n != 0 {
		t.Fatalf("expected nothing to expire, got %v", n)
	}
}
