package curator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/config"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/cost"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/embed"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/store"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/anthropic"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/jina"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/perplexity"
)

// ContentType says how Extract should read its content.
type ContentType string

// Content types.
const (
	ContentText ContentType = "text"
	ContentURL  ContentType = "url"
	ContentFile ContentType = "file"
)

// Mode selects the extraction flow.
type Mode string

// Extraction modes.
const (
	ModeSmart  Mode = "smart"
	ModeLegacy Mode = "legacy"
)

// ExtractRequest is one extraction call.
type ExtractRequest struct {
	SessionID   string             `json:"session_id,omitempty"`
	Content     string             `json:"content"`
	ContentType ContentType        `json:"content_type,omitempty"`
	FileName    string             `json:"file_name,omitempty"`
	TargetTypes []model.EntityType `json:"target_types,omitempty"`
	Mode        Mode               `json:"mode,omitempty"`
}

// ExtractResponse carries either a smart result or legacy items.
type ExtractResponse struct {
	SessionID       string             `json:"session_id"`
	SmartResult     *model.SmartResult `json:"smart_result,omitempty"`
	ExtractedItems  []model.LegacyItem `json:"extracted_items,omitempty"`
	TokensUsed      int                `json:"tokens_used"`
	TokensRemaining int                `json:"tokens_remaining"`
	CostUSD         float64            `json:"cost_usd"`
	Message         string             `json:"message"`
}

// CommitRequest is a batch of reviewed actions.
type CommitRequest struct {
	SessionID string                `json:"session_id,omitempty"`
	Items     []model.CuratorAction `json:"items"`
}

// CommitResponse reports one result per item.
type CommitResponse struct {
	BatchID        string               `json:"batch_id"`
	Results        []model.CommitResult `json:"results"`
	CommittedCount int                  `json:"committed_count"`
	FailedCount    int                  `json:"failed_count"`
	CostUSD        float64              `json:"cost_usd"`
}

// Service is the curator facade used by the HTTP API, the MCP server and the
// CLI.
type Service struct {
	store      store.Store
	sessions   *Sessions
	mentions   MentionExtractor
	matcher    *Matcher
	classifier *Classifier
	legacy     *LegacyExtractor
	committer  *Committer
	reader     jina.Client
	costs      *cost.Calculator
	aiModel    string
	changedBy  string
	now        func() time.Time
}

// NewService wires the curator. reader and research may be nil; URL content
// and research_fill actions are then rejected.
func NewService(
	cfg *config.Config,
	st store.Store,
	embedder embed.Embedder,
	aiClient anthropic.Client,
	reader jina.Client,
	research perplexity.Client,
	vocab Vocabulary,
) *Service {
	maxTokens := int64(cfg.Anthropic.MaxTokens)

	var researcher *Researcher
	if research != nil {
		researcher = NewResearcher(research, st)
	}

	return &Service{
		store:      st,
		sessions:   NewSessions(st, cfg.Curator.TokenLimit, cfg.Curator.SessionTTL()),
		mentions:   NewRegexExtractor(vocab),
		matcher:    NewMatcher(embedder, st, cfg.Curator.MatcherConcurrency),
		classifier: NewClassifier(aiClient, cfg.Anthropic.Model, maxTokens),
		legacy:     NewLegacyExtractor(aiClient, cfg.Anthropic.Model, maxTokens),
		committer:  NewCommitter(st, embedder, researcher, cfg.Anthropic.Model, cfg.Curator.ChangedBy),
		reader:     reader,
		costs:      cost.NewCalculator(cost.DefaultRates()),
		aiModel:    cfg.Anthropic.Model,
		changedBy:  cfg.Curator.ChangedBy,
		now:        time.Now,
	}
}

// Extract runs mention extraction, matching and classification for one piece
// of content and appends the proposed actions to the session.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, model.NewValidationError("content is required")
	}
	if req.ContentType == "" {
		req.ContentType = ContentText
	}
	if req.Mode == "" {
		req.Mode = ModeSmart
	}
	source, err := fieldSourceFor(req.ContentType)
	if err != nil {
		return nil, err
	}
	if req.Mode != ModeSmart && req.Mode != ModeLegacy {
		return nil, model.Validationf("mode must be smart or legacy, got %q", req.Mode)
	}
	for _, t := range req.TargetTypes {
		if !t.Valid() {
			return nil, model.Validationf("unknown target type %q", t)
		}
	}

	sess, err := s.sessions.Open(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	userMessage := content
	readerTokens := 0
	if req.ContentType == ContentURL {
		if content, readerTokens, err = s.read(ctx, content); err != nil {
			return nil, err
		}
	}

	reserved := estimateTokens(content)
	if err := s.sessions.Reserve(ctx, sess, reserved); err != nil {
		return nil, err
	}

	resp := &ExtractResponse{SessionID: sess.ID}
	var usage anthropic.TokenUsage
	var pending []model.CuratorAction

	switch req.Mode {
	case ModeLegacy:
		items, u, err := s.legacy.Extract(ctx, content, source, req.TargetTypes)
		usage = u
		s.costs.LogClaude(s.aiModel, "curator_legacy_extract", usage)
		if err != nil {
			s.sessions.Reconcile(ctx, sess, reserved, int(usage.Total()))
			return nil, err
		}
		resp.ExtractedItems = items
		resp.Message = fmt.Sprintf("Extracted %d items.", len(items))
	default:
		mc := s.matcher.Match(ctx, Mentions(s.mentions, content))
		out, err := s.classifier.Classify(ctx, content, FormatMatchContext(mc), source, mc)
		if out != nil {
			usage = out.Usage
		}
		s.costs.LogClaude(s.aiModel, "curator_classify", usage)
		if err != nil {
			s.sessions.Reconcile(ctx, sess, reserved, int(usage.Total()))
			return nil, err
		}
		result := out.Result
		result.MatchedEntities = mc.Flatten()
		if result.MatchedEntities == nil {
			result.MatchedEntities = []model.SemanticMatch{}
		}
		result.Actions = filterActions(result.Actions, req.TargetTypes)
		pending = result.Actions
		resp.SmartResult = result
		resp.Message = extractMessage(result)
	}

	s.sessions.Reconcile(ctx, sess, reserved, int(usage.Total()))
	resp.CostUSD = s.costs.Claude(s.aiModel, usage) + s.costs.Jina(readerTokens)

	now := s.now().UTC()
	sess.Messages = append(sess.Messages,
		model.SessionMessage{Role: "user", Content: userMessage, FileName: req.FileName, Timestamp: now},
		model.SessionMessage{Role: "assistant", Content: resp.Message, Timestamp: now},
	)
	sess.PendingItems = append(sess.PendingItems, pending...)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	resp.TokensUsed = sess.TokensUsed
	resp.TokensRemaining = sess.TokensRemaining()
	return resp, nil
}

// read fetches a page as markdown and records it as a source. It also
// returns the reader tokens billed for the fetch.
func (s *Service) read(ctx context.Context, rawURL string) (string, int, error) {
	domain, err := DomainOf(rawURL)
	if err != nil {
		return "", 0, err
	}
	if s.reader == nil {
		return "", 0, model.NewValidationError("url content requires a configured reader")
	}

	page, err := s.reader.Read(ctx, rawURL)
	if err != nil {
		return "", 0, model.NewExternalServiceError("reader", err)
	}
	text := strings.TrimSpace(page.Data.Content)
	if text == "" {
		return "", page.Data.Usage.Tokens, model.Validationf("no readable content at %s", rawURL)
	}

	tier, score := AuthorityFor(domain)
	if _, err := s.store.UpsertSource(ctx, &model.CuratorSource{
		URL:            rawURL,
		Domain:         domain,
		Title:          page.Data.Title,
		AuthorityTier:  tier,
		AuthorityScore: score,
	}); err != nil {
		zap.L().Warn("curator: record source failed", zap.String("url", rawURL), zap.Error(err))
	}
	return text, page.Data.Usage.Tokens, nil
}

func fieldSourceFor(ct ContentType) (model.FieldSource, error) {
	switch ct {
	case ContentText:
		return model.SourceManual, nil
	case ContentURL:
		return model.SourceURL, nil
	case ContentFile:
		return model.SourceFile, nil
	}
	return "", model.Validationf("content_type must be text, url or file, got %q", ct)
}

func filterActions(actions []model.CuratorAction, types []model.EntityType) []model.CuratorAction {
	if len(types) == 0 {
		return actions
	}
	allowed := make(map[model.EntityType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	out := actions[:0]
	for _, a := range actions {
		if allowed[a.EntityType] {
			out = append(out, a)
		}
	}
	return out
}

func extractMessage(r *model.SmartResult) string {
	if r.ClarificationNeeded != "" {
		return r.ClarificationNeeded
	}
	if r.Summary != "" {
		return r.Summary
	}
	return fmt.Sprintf("Proposed %d actions.", len(r.Actions))
}

// GetSession returns a session with its transcript and items, including
// sessions that have expired.
func (s *Service) GetSession(ctx context.Context, id string) (*model.CuratorSession, error) {
	return s.sessions.Load(ctx, id)
}

// Commit applies reviewed actions. Action ids already committed, in this
// session or in any earlier batch, are not applied again; their earlier
// result is returned.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResponse, error) {
	if len(req.Items) == 0 {
		return nil, model.NewValidationError("items is required")
	}

	var sess *model.CuratorSession
	if req.SessionID != "" {
		var err error
		if sess, err = s.sessions.Get(ctx, req.SessionID); err != nil {
			return nil, err
		}
	}

	batch := NewBatch(req.SessionID, s.changedBy)
	resp := &CommitResponse{BatchID: batch.ID, Results: make([]model.CommitResult, 0, len(req.Items))}
	seen := make(map[string]model.CommitResult, len(req.Items))
	researched := 0

	for _, item := range req.Items {
		if res, ok := s.previousResult(sess, seen, item); ok {
			resp.Results = append(resp.Results, res)
			resp.CommittedCount++
			continue
		}

		res := s.committer.CommitOne(ctx, batch, item)
		resp.Results = append(resp.Results, res)
		// Each research_fill attempt issues at most one query.
		if item.ActionType == model.ActionResearchFill && s.committer.researcher != nil && !res.Replayed {
			researched++
		}
		if !res.Success {
			resp.FailedCount++
			zap.L().Warn("curator: commit action failed",
				zap.String("batch_id", batch.ID),
				zap.String("action_id", item.ID),
				zap.String("entity_type", string(item.EntityType)),
				zap.String("error", res.Error),
			)
			continue
		}
		resp.CommittedCount++
		if item.ID != "" {
			seen[item.ID] = res
		}
		if sess != nil && item.ID != "" {
			sess.CommittedItems = append(sess.CommittedItems, model.CommittedItem{
				ActionID:   item.ID,
				EntityType: res.EntityType,
				EntityID:   res.EntityID,
				Operation:  res.Operation,
				BatchID:    batch.ID,
			})
			sess.PendingItems = removePending(sess.PendingItems, item.ID)
		}
	}

	if sess != nil {
		if len(sess.PendingItems) == 0 && len(sess.CommittedItems) > 0 {
			sess.Status = model.SessionCommitted
		}
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
	}

	resp.CostUSD = s.costs.PerplexityQueries(researched)
	zap.L().Info("curator: batch committed",
		zap.String("batch_id", batch.ID),
		zap.Int("committed", resp.CommittedCount),
		zap.Int("failed", resp.FailedCount),
		zap.Int("research_queries", researched),
		zap.Float64("research_cost_usd", resp.CostUSD),
	)
	return resp, nil
}

// previousResult replays an action already committed in this session or
// earlier in this batch.
func (s *Service) previousResult(sess *model.CuratorSession, seen map[string]model.CommitResult, item model.CuratorAction) (model.CommitResult, bool) {
	if item.ID == "" {
		return model.CommitResult{}, false
	}
	if res, ok := seen[item.ID]; ok {
		res.Replayed = true
		return res, true
	}
	if sess == nil {
		return model.CommitResult{}, false
	}
	done, ok := sess.Committed(item.ID)
	if !ok {
		return model.CommitResult{}, false
	}
	return model.CommitResult{
		ActionID:   item.ID,
		EntityType: done.EntityType,
		Success:    true,
		EntityID:   done.EntityID,
		Operation:  done.Operation,
		Replayed:   true,
	}, true
}

func removePending(items []model.CuratorAction, id string) []model.CuratorAction {
	out := items[:0]
	for _, a := range items {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
