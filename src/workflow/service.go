// Package workflow drives one financial query from submission through the
// council's evaluation, the user's decision and any appeal rounds.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fincil-server/src/council"
	"fincil-server/src/db"
	"fincil-server/src/models"
	"fincil-server/src/telemetry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRecentTransactionLimit = 5
	purchaseCategory              = "purchase"
)

type Service struct {
	store       Store
	profiles    ProfileCache
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
	log         zerolog.Logger
	recentLimit int
	now         func() time.Time
	newID       func() string
}

type Option func(*Service)

func WithProfileCache(c ProfileCache) Option {
	return func(s *Service) { s.profiles = c }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithRecentTransactionLimit sets how many recent transactions the council
// sees. Values below 1 are ignored.
func WithRecentTransactionLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tracer:      otel.Tracer("fincil-server/workflow"),
		log:         zerolog.Nop(),
		recentLimit: DefaultRecentTransactionLimit,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitQueryRequest struct {
	UserID int64
	Query  string
	Amount *float64
}

type SubmitQueryResult struct {
	ConversationID string               `json:"conversation_id"`
	Opinions       models.Opinions      `json:"opinions"`
	Verdict        models.Verdict       `json:"verdict"`
	Outcome        models.Outcome       `json:"outcome"`
	State          models.WorkflowState `json:"state"`
}

type SubmitAppealRequest struct {
	ConversationID string
	UserID         int64
	OriginalQuery  string
	Amount         *float64
	Justification  string
	AppealRound    int
}

type SubmitAppealResult struct {
	ConversationID string               `json:"conversation_id"`
	Opinions       models.Opinions      `json:"opinions"`
	Verdict        models.Verdict       `json:"verdict"`
	Outcome        models.Outcome       `json:"outcome"`
	AppealRound    int                  `json:"appeal_round"`
	State          models.WorkflowState `json:"state"`
	IncomeNote     string               `json:"income_note,omitempty"`
}

type BuyResult struct {
	Transaction models.Transaction `json:"transaction"`
	Profile     models.Profile     `json:"profile"`
}

type ConversationDetail struct {
	models.Conversation
	Rounds []models.AppealRound `json:"appeal_rounds"`
}

// evaluationContext is stored with every conversation and round so the
// evaluation can be replayed.
type evaluationContext struct {
	Input      council.Input        `json:"input"`
	Derived    council.Derived      `json:"derived"`
	Windfall   *council.IncomeClaim `json:"windfall,omitempty"`
	IncomeNote string               `json:"income_note,omitempty"`
}

// SubmitQuery evaluates a new query and stores it as a conversation awaiting
// the user's decision. Nothing is written if evaluation fails.
func (s *Service) SubmitQuery(ctx context.Context, req SubmitQueryRequest) (res SubmitQueryResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.SubmitQuery", trace.WithAttributes(attribute.Int64("user_id", req.UserID)))
	defer s.finish("submit_query", span, s.now(), &err)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return res, ErrEmptyQuery
	}
	if err := council.ValidateAmount(req.Amount); err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	in, err := s.snapshot(ctx, req.UserID)
	if err != nil {
		return res, err
	}
	in.Query = query
	in.Amount = req.Amount

	m := NewMachine()
	ev, err := council.Evaluate(in)
	if err != nil {
		return res, fmt.Errorf("evaluate query: %w", err)
	}
	if err := m.Evaluate(ev.Verdict); err != nil {
		return res, err
	}
	if err := m.Present(); err != nil {
		return res, err
	}

	evalCtx, err := json.Marshal(evaluationContext{Input: ev.Input, Derived: ev.Derived})
	if err != nil {
		return res, fmt.Errorf("encode evaluation context: %w", err)
	}
	now := s.now()
	conv := &models.Conversation{
		ID:          s.newID(),
		UserID:      req.UserID,
		Query:       query,
		Amount:      req.Amount,
		Opinions:    ev.Opinions,
		Verdict:     ev.Verdict,
		Outcome:     ev.Outcome,
		LastVerdict: ev.Verdict,
		State:       m.State,
		Context:     evalCtx,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	span.SetAttributes(attribute.String("conversation_id", conv.ID), attribute.String("verdict", string(ev.Verdict)))
	s.metrics.ObserveEvaluation("query", string(ev.Verdict), string(ev.Outcome))
	s.log.Info().
		Int64("user_id", req.UserID).
		Str("conversation_id", conv.ID).
		Str("verdict", string(ev.Verdict)).
		Str("outcome", string(ev.Outcome)).
		Msg("query evaluated")

	return SubmitQueryResult{
		ConversationID: conv.ID,
		Opinions:       ev.Opinions,
		Verdict:        ev.Verdict,
		Outcome:        ev.Outcome,
		State:          conv.State,
	}, nil
}

// SubmitAppeal runs another evaluation round on a rejected conversation.
// The stored query and amount are used; a client-supplied original query or
// amount that disagrees with them is ignored.
func (s *Service) SubmitAppeal(ctx context.Context, req SubmitAppealRequest) (res SubmitAppealResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.SubmitAppeal", trace.WithAttributes(
		attribute.Int64("user_id", req.UserID),
		attribute.String("conversation_id", req.ConversationID),
	))
	defer s.finish("submit_appeal", span, s.now(), &err)

	justification := strings.TrimSpace(req.Justification)
	if justification == "" {
		return res, ErrEmptyJustification
	}

	conv, err := s.conversation(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return res, err
	}
	if req.AppealRound != 0 && req.AppealRound != conv.AppealCount+1 {
		return res, fmt.Errorf("%w: round %d requested, next is %d",
			ErrConcurrentAppealConflict, req.AppealRound, conv.AppealCount+1)
	}
	m := Resume(conv)
	if err := m.Appeal(); err != nil {
		return res, err
	}
	s.checkClientEcho(conv, req)

	rounds, err := s.store.ListAppealRounds(ctx, conv.ID)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	prior := priorTranscript(conv, rounds)

	in, err := s.snapshot(ctx, req.UserID)
	if err != nil {
		return res, err
	}
	in.Query = conv.Query
	in.Amount = conv.Amount
	windfall := council.ExtractIncome(justification)
	in.Appeal = &council.AppealContext{
		Round:           m.Round,
		Justification:   justification,
		PriorTranscript: prior,
		Windfall:        windfall,
	}

	ev, err := council.Evaluate(in)
	if err != nil {
		return res, fmt.Errorf("evaluate appeal: %w", err)
	}
	if err := m.Evaluate(ev.Verdict); err != nil {
		return res, err
	}
	if err := m.Present(); err != nil {
		return res, err
	}

	note := windfall.Note()
	evalCtx, err := json.Marshal(evaluationContext{Input: ev.Input, Derived: ev.Derived, Windfall: windfall, IncomeNote: note})
	if err != nil {
		return res, fmt.Errorf("encode evaluation context: %w", err)
	}
	round := &models.AppealRound{
		ID:              s.newID(),
		ConversationID:  conv.ID,
		UserID:          req.UserID,
		Round:           m.Round,
		Justification:   justification,
		PriorTranscript: prior,
		NewTranscript:   ev.Transcript(m.Round),
		Verdict:         ev.Verdict,
		Outcome:         ev.Outcome,
		Context:         evalCtx,
		CreatedAt:       s.now(),
	}
	if err := s.store.RecordAppeal(ctx, round, m.State); err != nil {
		switch {
		case errors.Is(err, db.ErrRoundConflict):
			return res, fmt.Errorf("%w: %w", ErrConcurrentAppealConflict, err)
		case errors.Is(err, db.ErrStaleState):
			return res, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		case errors.Is(err, db.ErrNotFound):
			return res, ErrConversationNotFound
		}
		return res, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	span.SetAttributes(attribute.Int("round", round.Round), attribute.String("verdict", string(ev.Verdict)))
	s.metrics.ObserveEvaluation("appeal", string(ev.Verdict), string(ev.Outcome))
	logEvent := s.log.Info().
		Int64("user_id", req.UserID).
		Str("conversation_id", conv.ID).
		Int("round", round.Round).
		Str("verdict", string(ev.Verdict))
	if windfall != nil {
		logEvent = logEvent.Float64("windfall", windfall.Amount).Str("confidence", string(windfall.Confidence))
	}
	logEvent.Msg("appeal evaluated")

	return SubmitAppealResult{
		ConversationID: conv.ID,
		Opinions:       ev.Opinions,
		Verdict:        ev.Verdict,
		Outcome:        ev.Outcome,
		AppealRound:    round.Round,
		State:          m.State,
		IncomeNote:     note,
	}, nil
}

// Buy logs the proposed amount as an expense and closes the conversation.
func (s *Service) Buy(ctx context.Context, conversationID string, userID int64) (res BuyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Buy", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("conversation_id", conversationID),
	))
	defer s.finish("buy", span, s.now(), &err)

	conv, err := s.conversation(ctx, conversationID, userID)
	if err != nil {
		return res, err
	}
	if err := Resume(conv).Buy(); err != nil {
		return res, err
	}
	if conv.Amount == nil {
		return res, fmt.Errorf("%w: conversation has no amount to buy", ErrInvalidAmount)
	}

	now := s.now()
	txn := &models.Transaction{
		ID:          s.newID(),
		UserID:      userID,
		Amount:      -*conv.Amount,
		Description: conv.Query,
		Category:    purchaseCategory,
		Source:      models.SourceLogged,
		Date:        now,
		CreatedAt:   now,
	}
	profile, err := s.store.RecordPurchase(ctx, conv.ID, txn)
	if s.profiles != nil {
		s.profiles.Invalidate(userID)
	}
	if err != nil {
		switch {
		case errors.Is(err, db.ErrStaleState):
			return res, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		case errors.Is(err, db.ErrNotFound):
			return res, ErrProfileNotFound
		}
		return res, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.metrics.ObserveDecision(string(models.StateBought))
	s.log.Info().
		Int64("user_id", userID).
		Str("conversation_id", conv.ID).
		Float64("amount", *conv.Amount).
		Float64("monthly_expenses", profile.MonthlyExpenses).
		Msg("purchase logged")

	return BuyResult{Transaction: *txn, Profile: profile}, nil
}

// Save closes the conversation without recording a transaction.
func (s *Service) Save(ctx context.Context, conversationID string, userID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Save", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("conversation_id", conversationID),
	))
	defer s.finish("save", span, s.now(), &err)

	conv, err := s.conversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := Resume(conv).Save(); err != nil {
		return err
	}
	if err := s.store.RecordSaved(ctx, conv.ID, userID); err != nil {
		switch {
		case errors.Is(err, db.ErrStaleState):
			return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		case errors.Is(err, db.ErrNotFound):
			return ErrConversationNotFound
		}
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.metrics.ObserveDecision(string(models.StateSaved))
	s.log.Info().Int64("user_id", userID).Str("conversation_id", conv.ID).Msg("purchase declined")
	return nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string, userID int64) (ConversationDetail, error) {
	conv, err := s.conversation(ctx, conversationID, userID)
	if err != nil {
		return ConversationDetail{}, err
	}
	rounds, err := s.store.ListAppealRounds(ctx, conv.ID)
	if err != nil {
		return ConversationDetail{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return ConversationDetail{Conversation: conv, Rounds: rounds}, nil
}

func (s *Service) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return convs, nil
}

func (s *Service) ListAppealRounds(ctx context.Context, conversationID string, userID int64) ([]models.AppealRound, error) {
	detail, err := s.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return detail.Rounds, nil
}

// snapshot reads the profile and recent transactions once for an evaluation.
func (s *Service) snapshot(ctx context.Context, userID int64) (council.Input, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return council.Input{}, err
	}
	txns, err := s.store.ListRecentTransactions(ctx, userID, s.recentLimit)
	if err != nil {
		return council.Input{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return council.Input{Profile: profile, RecentTransactions: txns}, nil
}

func (s *Service) profile(ctx context.Context, userID int64) (models.Profile, error) {
	var generation uint64
	if s.profiles != nil {
		if p, ok := s.profiles.Get(userID); ok {
			return p, nil
		}
		generation = s.profiles.Generation(userID)
	}
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if s.profiles != nil {
		s.profiles.Set(p, generation)
	}
	return p, nil
}

func (s *Service) conversation(ctx context.Context, conversationID string, userID int64) (models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID, userID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return conv, nil
}

func (s *Service) checkClientEcho(conv models.Conversation, req SubmitAppealRequest) {
	if req.OriginalQuery != "" && strings.TrimSpace(req.OriginalQuery) != conv.Query {
		s.log.Warn().Str("conversation_id", conv.ID).Msg("appeal original_query differs from stored query, using stored value")
	}
	if req.Amount != nil && (conv.Amount == nil || *req.Amount != *conv.Amount) {
		s.log.Warn().Str("conversation_id", conv.ID).Msg("appeal amount differs from stored amount, using stored value")
	}
}

// priorTranscript is the original opinions followed by every earlier round's
// justification and opinions.
func priorTranscript(conv models.Conversation, rounds []models.AppealRound) []models.TranscriptEntry {
	out := []models.TranscriptEntry{
		{Speaker: "cautious", Round: 0, Content: conv.Opinions.Cautious},
		{Speaker: "growth", Round: 0, Content: conv.Opinions.Growth},
		{Speaker: "synthesis", Round: 0, Content: conv.Opinions.Synthesis},
	}
	for _, r := range rounds {
		out = append(out, models.TranscriptEntry{Speaker: "user", Round: r.Round, Content: r.Justification})
		out = append(out, r.NewTranscript...)
	}
	return out
}

func (s *Service) finish(op string, span trace.Span, start time.Time, errp *error) {
	s.metrics.ObserveLatency(op, s.now().Sub(start))
	if err := *errp; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveFailure(op, failureReason(err))
	}
	span.End()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return "profile_not_found"
	case errors.Is(err, ErrConversationNotFound):
		return "conversation_not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrEmptyJustification):
		return "empty_input"
	case errors.Is(err, ErrConcurrentAppealConflict):
		return "appeal_conflict"
	case errors.Is(err, ErrAppealNotAllowed):
		return "appeal_not_allowed"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence"
	}
	return "other"
}
