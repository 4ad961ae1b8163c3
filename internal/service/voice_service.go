package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

// Фразы голосового меню.
const (
	voiceRateLimited   = "Per daug uzklausu. Pabandykite veliau."
	voiceConfirmed     = "Aciu. Laikas patvirtintas. Iki pasimatymo."
	voiceCancelled     = "Gerai. Laikas atsauktas. Aciu uz skambuti."
	voiceHoldExpired   = "Rezervacija nebegalioja. Pasiulysiu kita laika."
	voiceNoSlots       = "Laisvu laiku neradau. Uzklausa uzregistruota. Susisieksime del laiko."
	voiceNotConfigured = "Sistema nesukonfiguruota planavimui. Uzklausa uzregistruota. Susisieksime."
	voiceOfferFormat   = "Galiu rezervuoti laika %s. Jei tinka, spauskite 1 arba sakykite tinka. Jei netinka, spauskite 2 arba sakykite netinka."

	voiceCallerName = "Skambutis"
)

var (
	cancelWords  = map[string]struct{}{"netinka": {}, "ne": {}, "atsisakau": {}}
	confirmWords = map[string]struct{}{"tinka": {}, "taip": {}, "gerai": {}, "sutinku": {}, "ok": {}}
)

// Limiter ограничивает частоту запросов по ключу.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// VoiceInput описывает один ход звонка: DTMF-цифры и/или распознанная речь.
type VoiceInput struct {
	CallSid string
	From    string
	Digits  string
	Speech  string
}

// VoiceReply описывает, что сказать и ждать ли следующего ввода.
type VoiceReply struct {
	Say    string
	Gather bool
	Hangup bool
}

type voiceIntent int

const (
	intentNone voiceIntent = iota
	intentConfirm
	intentCancel
)

// parseIntent разбирает ввод по словам; отказ проверяется раньше согласия,
// иначе "netinka" распознавалось бы как "tinka".
func parseIntent(digits, speech string) voiceIntent {
	switch strings.TrimSpace(digits) {
	case "1":
		return intentConfirm
	case "2":
		return intentCancel
	}
	words := strings.FieldsFunc(strings.ToLower(speech), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := cancelWords[w]; ok {
			return intentCancel
		}
	}
	for _, w := range words {
		if _, ok := confirmWords[w]; ok {
			return intentConfirm
		}
	}
	return intentNone
}

// VoiceService ведёт IVR-диалог поверх разговорного лока канала VOICE.
type VoiceService struct {
	deps    Deps
	conv    *ConversationService
	finder  *SlotFinder
	limiter Limiter
}

func NewVoiceService(deps Deps, conv *ConversationService, finder *SlotFinder, limiter Limiter) *VoiceService {
	return &VoiceService{deps: deps.withDefaults(), conv: conv, finder: finder, limiter: limiter}
}

// HandleTurn обрабатывает один вебхук звонка.
func (s *VoiceService) HandleTurn(ctx context.Context, in VoiceInput) (VoiceReply, error) {
	if in.CallSid == "" {
		return VoiceReply{}, apperr.Validation(apperr.CodeInvalidArgument, "CallSid is required")
	}
	log := logging.From(ctx).With("call_sid", in.CallSid)

	if s.limiter != nil {
		key := "voice:" + repository.NormalizePhone(in.From)
		ok, err := s.limiter.Allow(ctx, key)
		if err != nil {
			// Недоступный лимитер не роняет звонок.
			log.Warn("rate limiter unavailable", "error", err)
		} else if !ok {
			return VoiceReply{Say: voiceRateLimited, Hangup: true}, nil
		}
	}

	cr, err := s.callRequest(ctx, in)
	if err != nil {
		return VoiceReply{}, err
	}

	actor := audit.SystemVoice()
	intent := parseIntent(in.Digits, in.Speech)
	prefix := ""

	held, err := s.conv.ActiveHold(ctx, model.ChannelVoice, in.CallSid)
	switch {
	case err == nil:
		switch intent {
		case intentConfirm:
			if _, err := s.conv.ConfirmConversation(ctx, model.ChannelVoice, in.CallSid, actor); err != nil {
				if apperr.CodeOf(err) != apperr.CodeHoldExpired {
					return VoiceReply{}, err
				}
				prefix = voiceHoldExpired + " "
				break
			}
			log.Info("voice hold confirmed", "appointment_id", held.ID)
			return VoiceReply{Say: voiceConfirmed, Hangup: true}, nil
		case intentCancel:
			if _, err := s.conv.CancelConversation(ctx, model.ChannelVoice, in.CallSid, actor); err != nil {
				return VoiceReply{}, err
			}
			log.Info("voice hold cancelled", "appointment_id", held.ID)
			return VoiceReply{Say: voiceCancelled, Hangup: true}, nil
		}
	case apperr.CodeOf(err) == apperr.CodeHoldExpired:
		if intent != intentNone {
			prefix = voiceHoldExpired + " "
		}
	case apperr.IsNotFound(err):
	default:
		return VoiceReply{}, err
	}

	res, err := s.conv.AcquireOrReprompt(ctx, AcquireRequest{
		Channel:        model.ChannelVoice,
		ConversationID: in.CallSid,
		IdentityKey:    IdentityKey(in.From, ""),
		VisitType:      model.VisitTypePrimary,
		CallRequestID:  &cr.ID,
		Actor:          actor,
	})
	switch {
	case err == nil:
	case apperr.CodeOf(err) == apperr.CodeNoSlots:
		return VoiceReply{Say: prefix + voiceNoSlots, Hangup: true}, nil
	case apperr.IsNotFound(err):
		log.Warn("voice scheduling unavailable", "error", err)
		return VoiceReply{Say: prefix + voiceNotConfigured, Hangup: true}, nil
	default:
		return VoiceReply{}, err
	}

	slot := res.Appointment.StartsAt.In(s.finder.Location()).Format(localTimeLayout)
	return VoiceReply{Say: prefix + fmt.Sprintf(voiceOfferFormat, slot), Gather: true}, nil
}

// callRequest находит заявку звонка по CallSid либо создаёт её.
func (s *VoiceService) callRequest(ctx context.Context, in VoiceInput) (*model.CallRequest, error) {
	repo := repository.NewGormCallRequestRepository(s.deps.DB)
	cr, err := repo.FindByExternalRef(ctx, in.CallSid)
	if err == nil {
		return cr, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find call request: %w", err)
	}
	cr = newCallRequest(CallRequestInput{Name: voiceCallerName, Phone: in.From, Source: model.CallRequestSourceVoice})
	cr.ExternalRef = in.CallSid
	if err := repo.Create(ctx, cr); err != nil {
		return nil, fmt.Errorf("create call request: %w", err)
	}
	return cr, nil
}
