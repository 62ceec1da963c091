package dialog

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/assistant"
	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
	"github.com/ValentinKim531/Em-Guide-backend/internal/session"
	"github.com/ValentinKim531/Em-Guide-backend/internal/speech"
	"github.com/ValentinKim531/Em-Guide-backend/internal/store"
	"github.com/google/uuid"
)

// workingLanguage is the language the assistant personas are scripted in.
// Other user languages are translated at the pipeline edges.
const workingLanguage = "ru"

// greetingText bootstraps every new dialogue thread. The persona's scripted
// first question is driven by this turn, not by the user's own words.
const greetingText = "Здравствуйте"

// apologyText is persisted when speech recognition yields nothing.
const apologyText = "К сожалению, я не смог распознать ваш голос. Пожалуйста, повторите свой запрос."

const lockRetryInterval = 200 * time.Millisecond

// errEmptyReply marks an engine turn that completed without reply text.
var errEmptyReply = errors.New("engine returned empty reply")

// Options collapses the behavioral deltas of the bot's historical pipeline
// variants into configuration.
type Options struct {
	// OnboardingPersona handles first-contact registration dialogues.
	OnboardingPersona string
	// SurveyPersona handles returning-user daily survey dialogues.
	SurveyPersona string
	// SynthesizeReplies stores an audio rendering alongside every bot reply.
	SynthesizeReplies bool
	// DuplicateAudioReply persists an extra audio-bearing reply when the
	// inbound message was audio.
	DuplicateAudioReply bool
	// ReturnMessageID echoes the delivery message id back in reply data.
	ReturnMessageID bool
	// LockWait bounds how long a turn waits for the per-user lease.
	LockWait time.Duration
	// LockTTL bounds how long a crashed turn can hold the lease.
	LockTTL time.Duration
}

// Orchestrator drives the full per-message workflow. It owns no state of
// its own; it coordinates the entity store, the session store and the
// speech/engine adapters.
type Orchestrator struct {
	repo      store.Repository
	sessions  session.Store
	engine    assistant.Engine
	speech    speech.Provider
	extractor *Extractor
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator wires the conversation pipeline.
func NewOrchestrator(
	repo store.Repository,
	sessions session.Store,
	engine assistant.Engine,
	provider speech.Provider,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	return &Orchestrator{
		repo:      repo,
		sessions:  sessions,
		engine:    engine,
		speech:    provider,
		extractor: NewExtractor(repo, opts.OnboardingPersona, logger),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes one inbound record and always returns a well-formed
// reply; no failure propagates to the delivery boundary.
func (o *Orchestrator) Handle(ctx context.Context, record domain.InboundRecord) (reply domain.OutboundReply) {
	if record.UserID == "" || record.MessageID == "" ||
		(record.Content.Text == "" && !record.Content.HasAudio()) {
		return domain.ErrorReply(domain.ErrInvalidRequest, "malformed message payload")
	}

	log := o.logger.With("user_id", record.UserID, "message_id", record.MessageID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing message", "panic", r)
			reply = domain.ErrorReply(domain.ErrServerError, "internal error")
		}
	}()

	// At most one turn in flight per user key.
	acquired, err := o.acquireLease(ctx, record.UserID)
	if err != nil {
		log.Error("failed to acquire turn lease", "error", err)
		return domain.ErrorReply(domain.ErrServerError, "internal error")
	}
	if !acquired {
		log.Warn("turn lease busy")
		return domain.ErrorReply(domain.ErrServerError, "another message is being processed")
	}
	defer func() {
		if err := o.sessions.ReleaseLock(ctx, record.UserID); err != nil {
			log.Warn("failed to release turn lease", "error", err)
		}
	}()

	// Duplicate delivery is a no-op before any side effect.
	processed, err := o.sessions.IsProcessed(ctx, record.UserID, record.MessageID)
	if err != nil {
		log.Error("failed to check processed set", "error", err)
		return domain.ErrorReply(domain.ErrServerError, "internal error")
	}
	if processed {
		log.Info("duplicate delivery skipped")
		return domain.SuccessReply("duplicate", nil)
	}

	reply, err = o.handleTurn(ctx, record, log)
	if err != nil {
		log.Error("message processing failed", "error", err)
		if errors.Is(err, errEmptyReply) {
			return domain.ErrorReply(domain.ErrProcessingError, "no reply was produced")
		}
		return domain.ErrorReply(domain.ErrServerError, "internal error")
	}
	return reply
}

func (o *Orchestrator) acquireLease(ctx context.Context, userID string) (bool, error) {
	deadline := o.now().Add(o.opts.LockWait)
	for {
		ok, err := o.sessions.AcquireLock(ctx, userID, o.opts.LockTTL)
		if err != nil || ok {
			return ok, err
		}
		if o.now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

//nolint:gocognit // The turn pipeline is intentionally one sequential state machine.
func (o *Orchestrator) handleTurn(ctx context.Context, record domain.InboundRecord, log *slog.Logger) (domain.OutboundReply, error) {
	lang, err := o.resolveLanguage(ctx, record)
	if err != nil {
		return domain.OutboundReply{}, fmt.Errorf("resolve language: %w", err)
	}
	log = log.With("lang", lang)

	// Speech leg: decode and transcribe audio before any state transition.
	text := record.Content.Text
	if record.Content.HasAudio() {
		audio, err := base64.StdEncoding.DecodeString(record.Content.Audio)
		if err != nil {
			log.Warn("audio payload is not valid base64", "error", err)
			return domain.ErrorReply(domain.ErrInvalidRequest, "malformed audio payload"), nil
		}

		text, err = o.speech.Recognize(ctx, audio, lang)
		if err != nil {
			return domain.OutboundReply{}, fmt.Errorf("recognize speech: %w", err)
		}
		if text == "" {
			// Short-circuit without touching conversation state.
			log.Info("speech recognition yielded no text")
			if err := o.saveReply(ctx, record.UserID, apologyText, lang, o.opts.SynthesizeReplies); err != nil {
				return domain.OutboundReply{}, fmt.Errorf("save apology reply: %w", err)
			}
			return domain.ErrorReply(domain.ErrProcessingError, apologyText), nil
		}
	}

	if lang != workingLanguage {
		text, err = o.speech.Translate(ctx, text, lang, workingLanguage)
		if err != nil {
			return domain.OutboundReply{}, fmt.Errorf("translate inbound text: %w", err)
		}
	}

	state, err := o.sessions.GetState(ctx, record.UserID)
	if err != nil {
		return domain.OutboundReply{}, fmt.Errorf("read conversation state: %w", err)
	}

	var result *assistant.Result
	var persona string
	if state == domain.StateNone {
		result, persona, err = o.coldStart(ctx, record, lang, log)
	} else {
		result, persona, err = o.continueDialogue(ctx, record, text, lang, log)
	}
	if err != nil {
		return domain.OutboundReply{}, err
	}

	if err := o.sessions.MarkProcessed(ctx, record.UserID, record.MessageID); err != nil {
		log.Warn("failed to mark message processed", "error", err)
	}

	// A reply carrying a fenced data block ends the session; the next
	// message restarts at the cold-start state.
	if TerminalReached(result.Transcript) {
		if err := o.sessions.Clear(ctx, record.UserID); err != nil {
			log.Warn("failed to clear session state", "error", err)
		} else {
			log.Info("terminal turn, session cleared")
		}
	}

	log.Info("turn completed", "persona", persona)

	data := map[string]any{"text": result.ReplyText}
	if o.opts.ReturnMessageID {
		data["message_id"] = record.MessageID
	}
	return domain.SuccessReply("message", data), nil
}

// coldStart registers unknown users, opens a new dialogue thread and plays
// the bootstrap greeting turn.
func (o *Orchestrator) coldStart(ctx context.Context, record domain.InboundRecord, lang string, log *slog.Logger) (*assistant.Result, string, error) {
	user, err := o.repo.GetUser(ctx, record.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("look up user: %w", err)
	}

	persona := o.opts.SurveyPersona
	if user == nil {
		now := o.now()
		newUser := &domain.User{
			UserID:    record.UserID,
			Language:  lang,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := o.repo.CreateUser(ctx, newUser); err != nil {
			return nil, "", fmt.Errorf("register user: %w", err)
		}
		persona = o.opts.OnboardingPersona
		log.Info("new user registered")
	}

	threadID, err := o.engine.CreateThread(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("open dialogue thread: %w", err)
	}
	if err := o.sessions.SetThread(ctx, record.UserID, threadID); err != nil {
		return nil, "", fmt.Errorf("store thread handle: %w", err)
	}
	if err := o.sessions.SetAssistant(ctx, record.UserID, persona); err != nil {
		return nil, "", fmt.Errorf("store persona handle: %w", err)
	}
	log.Info("dialogue thread opened", "thread_id", threadID)

	result, err := o.engine.Converse(ctx, greetingText, threadID, persona)
	if err != nil {
		return nil, "", fmt.Errorf("bootstrap turn: %w", err)
	}
	if result.ReplyText == "" {
		return nil, "", fmt.Errorf("bootstrap turn: %w", errEmptyReply)
	}

	replyText := result.ReplyText
	if lang != workingLanguage {
		if translated, err := o.speech.Translate(ctx, replyText, workingLanguage, lang); err == nil {
			replyText = translated
		} else {
			log.Error("failed to translate bootstrap reply", "error", err)
		}
	}
	if err := o.saveReply(ctx, record.UserID, replyText, lang, o.opts.SynthesizeReplies); err != nil {
		return nil, "", fmt.Errorf("save bootstrap reply: %w", err)
	}

	if err := o.sessions.SetState(ctx, record.UserID, domain.StateAwaitingResponse); err != nil {
		return nil, "", fmt.Errorf("advance conversation state: %w", err)
	}

	result.ReplyText = replyText
	return result, persona, nil
}

// continueDialogue forwards the user's text as the next turn of the stored
// thread and commits any structured fields the transcript carries.
func (o *Orchestrator) continueDialogue(ctx context.Context, record domain.InboundRecord, text, lang string, log *slog.Logger) (*assistant.Result, string, error) {
	threadID, err := o.sessions.GetThread(ctx, record.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("load thread handle: %w", err)
	}
	persona, err := o.sessions.GetAssistant(ctx, record.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("load persona handle: %w", err)
	}

	result, err := o.engine.Converse(ctx, text, threadID, persona)
	if err != nil {
		return nil, "", fmt.Errorf("conversation turn: %w", err)
	}
	if result.ReplyText == "" {
		return nil, "", errEmptyReply
	}
	if err := o.sessions.SetThread(ctx, record.UserID, result.ThreadID); err != nil {
		return nil, "", fmt.Errorf("store thread handle: %w", err)
	}

	replyText := result.ReplyText
	if lang != workingLanguage {
		if translated, err := o.speech.Translate(ctx, replyText, workingLanguage, lang); err == nil {
			replyText = translated
		} else {
			log.Error("failed to translate reply", "error", err)
		}
	}
	if err := o.saveReply(ctx, record.UserID, replyText, lang, o.opts.SynthesizeReplies); err != nil {
		return nil, "", fmt.Errorf("save reply: %w", err)
	}

	if err := o.sessions.SetState(ctx, record.UserID, domain.StateResponseReceived); err != nil {
		return nil, "", fmt.Errorf("advance conversation state: %w", err)
	}

	// Voice conversations additionally get an audio-bearing copy of the reply.
	if record.Content.HasAudio() && o.opts.DuplicateAudioReply {
		if err := o.saveReply(ctx, record.UserID, replyText, lang, true); err != nil {
			log.Error("failed to save audio duplicate reply", "error", err)
		}
	}

	update, err := o.extractor.Extract(result.Transcript)
	if err != nil {
		// Recoverable: a malformed data block never fails the turn.
		log.Error("failed to extract structured data", "error", err)
	} else if err := o.extractor.Commit(ctx, update, persona, record.UserID); err != nil {
		log.Error("failed to commit structured data", "error", err)
	}

	result.ReplyText = replyText
	return result, persona, nil
}

// resolveLanguage persists a declared language onto the user row and falls
// back to the stored preference otherwise. Runs before any speech step.
func (o *Orchestrator) resolveLanguage(ctx context.Context, record domain.InboundRecord) (string, error) {
	if lang := record.Content.Language; lang != "" {
		if err := o.repo.UpdateUserField(ctx, record.UserID, "language", lang); err != nil {
			// Cold-start users have no row yet; registration stores it.
			o.logger.Warn("failed to persist language", "user_id", record.UserID, "error", err)
		}
		return lang, nil
	}

	user, err := o.repo.GetUser(ctx, record.UserID)
	if err != nil {
		return "", err
	}
	return user.EffectiveLanguage(), nil
}

// saveReply persists a bot reply as a JSON payload, with an audio rendering
// when synthesis is requested and succeeds. Synthesis failure degrades to a
// text-only reply.
func (o *Orchestrator) saveReply(ctx context.Context, userID, text, lang string, withAudio bool) error {
	content := domain.BotContent{Text: text}
	if withAudio {
		audio, err := o.speech.Synthesize(ctx, text, lang)
		if err != nil {
			o.logger.Error("speech synthesis failed, saving text-only reply", "user_id", userID, "error", err)
		} else if len(audio) > 0 {
			content.Audio = base64.StdEncoding.EncodeToString(audio)
		}
	}

	msg := &domain.Message{
		ID:              uuid.NewString(),
		UserID:          userID,
		Content:         content.Encode(),
		IsCreatedByUser: false,
		CreatedAt:       o.now(),
	}
	return o.repo.CreateMessage(ctx, msg)
}
