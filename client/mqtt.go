package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/flclient/pkg/crypto"
	"github.com/absmach/flclient/pkg/fl"
	pkgmqtt "github.com/absmach/flclient/pkg/mqtt"
	"github.com/absmach/flclient/pkg/params"
	"github.com/absmach/flclient/pkg/round"
)

const (
	instructionTopicTemplate = "m/%s/c/%s/fl/clients/%s/ins"
	replyTopicTemplate       = "m/%s/c/%s/fl/clients/%s/res"
	aliveTopicTemplate       = "m/%s/c/%s/control/proplet/alive"
	discoveryTopicTemplate   = "m/%s/c/%s/control/proplet/create"

	defaultLiveliness = 10 * time.Second
	queueSize         = 16
)

var (
	ErrQueueFull          = errors.New("instruction queue is full")
	errInvalidInstruction = errors.New("invalid instruction")
)

type SessionConfig struct {
	DomainID           string
	ChannelID          string
	ClientID           string
	Namespace          string
	LivelinessInterval time.Duration
	// PayloadKey, when set, seals parameter payloads in both directions
	// with AES-GCM.
	PayloadKey []byte
}

// Topics returns the instruction and reply topics for cfg.
func (cfg SessionConfig) Topics() (instructions, replies string) {
	return fmt.Sprintf(instructionTopicTemplate, cfg.DomainID, cfg.ChannelID, cfg.ClientID),
		fmt.Sprintf(replyTopicTemplate, cfg.DomainID, cfg.ChannelID, cfg.ClientID)
}

func (cfg SessionConfig) AliveTopic() string {
	return fmt.Sprintf(aliveTopicTemplate, cfg.DomainID, cfg.ChannelID)
}

// Session connects a Service to the coordinator over MQTT. Instructions
// are queued by the subscription handler and executed one at a time, in
// arrival order, by Run.
type Session struct {
	svc    Service
	pubsub pkgmqtt.PubSub
	cfg    SessionConfig
	queue  chan fl.Instruction
	logger *slog.Logger
}

func NewSession(svc Service, pubsub pkgmqtt.PubSub, cfg SessionConfig, logger *slog.Logger) *Session {
	if cfg.LivelinessInterval <= 0 {
		cfg.LivelinessInterval = defaultLiveliness
	}

	return &Session{
		svc:    svc,
		pubsub: pubsub,
		cfg:    cfg,
		queue:  make(chan fl.Instruction, queueSize),
		logger: logger,
	}
}

// Run announces the client, subscribes to its instruction topic and serves
// instructions until ctx is done. Liveliness messages are published from a
// separate goroutine so long rounds do not delay them.
func (s *Session) Run(ctx context.Context) error {
	discovery := fmt.Sprintf(discoveryTopicTemplate, s.cfg.DomainID, s.cfg.ChannelID)
	if err := s.pubsub.Publish(ctx, discovery, s.announcement("created")); err != nil {
		return errors.Join(errors.New("failed to publish discovery"), err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	insTopic, replyTopic := s.cfg.Topics()
	if err := s.pubsub.Subscribe(ctx, insTopic, s.instructionHandler(ctx, &wg, replyTopic)); err != nil {
		return fmt.Errorf("failed to subscribe to instruction topic: %w", err)
	}
	defer func() {
		if err := s.pubsub.Unsubscribe(context.WithoutCancel(ctx), insTopic); err != nil {
			s.logger.Warn("failed to unsubscribe from instruction topic", slog.Any("error", err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.startLivelinessUpdates(ctx)
	}()

	s.logger.Info("federated client session is running",
		slog.String("cid", s.cfg.ClientID),
		slog.String("instructions", insTopic),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping federated client session")

			return nil
		case ins := <-s.queue:
			s.publishReply(ctx, replyTopic, s.Handle(ctx, ins))
		}
	}
}

func (s *Session) startLivelinessUpdates(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LivelinessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pubsub.Publish(ctx, s.cfg.AliveTopic(), s.announcement("alive")); err != nil {
				s.logger.Error("failed to publish liveliness message", slog.Any("error", err))
			}
		}
	}
}

// instructionHandler queues valid instructions for Run. A rejected
// instruction whose ID is known is answered with an error reply. The broker
// callback never publishes itself; the reply goes out on its own goroutine.
func (s *Session) instructionHandler(ctx context.Context, wg *sync.WaitGroup, replyTopic string) pkgmqtt.Handler {
	return func(_ string, msg map[string]any) error {
		ins, err := decodeInstruction(msg)
		if err == nil {
			select {
			case s.queue <- ins:
				return nil
			default:
				err = ErrQueueFull
			}
		}

		if id, ok := msg["id"].(string); ok && id != "" && ctx.Err() == nil {
			t, _ := msg["type"].(string)
			reply := s.errorReply(fl.Instruction{ID: id, Type: fl.InstructionType(t)}, err)
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.publishReply(ctx, replyTopic, reply)
			}()
		}

		return err
	}
}

func decodeInstruction(msg map[string]any) (fl.Instruction, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return fl.Instruction{}, fmt.Errorf("%w: %w", errInvalidInstruction, err)
	}

	var ins fl.Instruction
	if err := json.Unmarshal(data, &ins); err != nil {
		return fl.Instruction{}, fmt.Errorf("%w: %w", errInvalidInstruction, err)
	}
	if !ins.Type.Valid() {
		return fl.Instruction{}, fmt.Errorf("%w: unknown type %q", errInvalidInstruction, ins.Type)
	}

	return ins, nil
}

// publishReply falls back to an error reply when reply cannot be encoded,
// e.g. for non-finite metrics.
func (s *Session) publishReply(ctx context.Context, topic string, reply fl.Reply) {
	if _, err := json.Marshal(reply); err != nil {
		reply = s.errorReply(fl.Instruction{ID: reply.InstructionID, Type: reply.Type}, fmt.Errorf("failed to encode reply: %w", err))
	}

	if err := s.pubsub.Publish(ctx, topic, reply); err != nil {
		s.logger.Error("failed to publish reply",
			slog.String("instruction_id", reply.InstructionID),
			slog.Any("error", err),
		)
	}
}

// Handle executes one instruction and builds its reply. A failed
// instruction yields a reply carrying only the error.
func (s *Session) Handle(ctx context.Context, ins fl.Instruction) fl.Reply {
	reply, err := s.dispatch(ctx, ins)
	if err != nil {
		return s.errorReply(ins, err)
	}
	reply.InstructionID = ins.ID
	reply.ClientID = s.cfg.ClientID
	reply.Type = ins.Type
	reply.SentAt = time.Now()

	return reply
}

func (s *Session) errorReply(ins fl.Instruction, err error) fl.Reply {
	return fl.Reply{
		InstructionID: ins.ID,
		ClientID:      s.cfg.ClientID,
		Type:          ins.Type,
		Error:         err.Error(),
		SentAt:        time.Now(),
	}
}

func (s *Session) dispatch(ctx context.Context, ins fl.Instruction) (fl.Reply, error) {
	cfg := round.Config(ins.Config).Clone()
	if _, ok := cfg[round.KeyServerRound]; !ok && ins.ServerRound > 0 {
		cfg[round.KeyServerRound] = ins.ServerRound
	}

	switch ins.Type {
	case fl.InstructionFit:
		ps, err := s.decodeParameters(ins.ParametersB64)
		if err != nil {
			return fl.Reply{}, err
		}
		res, err := s.svc.Fit(ctx, ps, cfg)
		if err != nil {
			return fl.Reply{}, err
		}
		encoded, err := s.encodeParameters(res.Parameters)
		if err != nil {
			return fl.Reply{}, err
		}

		return fl.Reply{
			ParametersB64: encoded,
			NumExamples:   res.NumExamples,
			Metrics:       res.Metrics.Map(),
		}, nil

	case fl.InstructionEvaluate:
		ps, err := s.decodeParameters(ins.ParametersB64)
		if err != nil {
			return fl.Reply{}, err
		}
		res, err := s.svc.Evaluate(ctx, ps, cfg)
		if err != nil {
			return fl.Reply{}, err
		}
		loss := res.Loss

		return fl.Reply{
			Loss:        &loss,
			NumExamples: res.NumExamples,
			Metrics:     res.Metrics.Map(),
		}, nil

	case fl.InstructionGetParameters:
		ps, err := s.svc.GetParameters(ctx, cfg)
		if err != nil {
			return fl.Reply{}, err
		}
		encoded, err := s.encodeParameters(ps)
		if err != nil {
			return fl.Reply{}, err
		}

		return fl.Reply{ParametersB64: encoded}, nil

	case fl.InstructionGetProperties:
		props, err := s.svc.GetProperties(ctx, cfg)
		if err != nil {
			return fl.Reply{}, err
		}

		return fl.Reply{Properties: props.Map()}, nil

	default:
		return fl.Reply{}, fmt.Errorf("%w: unknown type %q", errInvalidInstruction, ins.Type)
	}
}

func (s *Session) decodeParameters(payload string) (params.ParameterSet, error) {
	if s.cfg.PayloadKey == nil {
		return params.DecodeB64(payload)
	}

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", params.ErrInvalidEncoding, err)
	}
	data, err := crypto.Open(sealed, s.cfg.PayloadKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter payload: %w", err)
	}

	return params.Unmarshal(data)
}

func (s *Session) encodeParameters(ps params.ParameterSet) (string, error) {
	if s.cfg.PayloadKey == nil {
		return params.EncodeB64(ps)
	}

	data, err := params.Marshal(ps)
	if err != nil {
		return "", err
	}
	sealed, err := crypto.Seal(data, s.cfg.PayloadKey)
	if err != nil {
		return "", fmt.Errorf("failed to seal parameter payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Session) announcement(status string) fl.Announcement {
	return fl.Announcement{
		ClientID:  s.cfg.ClientID,
		Status:    status,
		Namespace: s.cfg.Namespace,
		Timestamp: time.Now(),
	}
}
