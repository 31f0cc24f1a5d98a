// Package reply implements the reply pipeline (C5): a bounded-retry loop
// that generates three ranked reply candidates (one, when the plain-text
// wrap fallback applies) subject to an intimacy/moderation constraint,
// reusing C6 for parsing and C4 for dedup across requests.
package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatcoach/internal/cache"
	"chatcoach/internal/collab"
	"chatcoach/internal/domain"
	"chatcoach/internal/llmclient"
	"chatcoach/internal/monitor"
	"chatcoach/internal/normalize"
)

const replyPromptName = "reply"

// Pipeline wires the reply algorithm to its collaborators.
type Pipeline struct {
	Cache                *cache.Cache
	Prompts              collab.PromptStore
	Moderation           collab.ModerationService
	LLM                  llmclient.Client
	MaxRetries           int
	RetryDelay           time.Duration
	IntimacyCheckEnabled bool
	ModerationFailOpen   bool
	PlainTextThreshold   int
	Telemetry            collab.TelemetrySink
}

func (p *Pipeline) maxRetries() int {
	if p.MaxRetries <= 0 {
		return 3
	}
	return p.MaxRetries
}

// moderationActive reports whether the moderation gate applies to this
// pipeline. The gate is off both when the config flag is off and when no
// moderation collaborator is wired (config.SystemConfig.ModerationEndpoint
// empty), so the latter never panics on a request that reaches here.
func (p *Pipeline) moderationActive() bool {
	return p.IntimacyCheckEnabled && p.Moderation != nil
}

func (p *Pipeline) trace(ctx context.Context, kind string, fields map[string]any) {
	if p.Telemetry == nil {
		return
	}
	p.Telemetry.Record(collab.TraceEvent{RequestID: monitor.RequestIDFrom(ctx), Kind: kind, Fields: fields})
}

// Generate produces the reply set for one request. resource identifies
// the last-content item driving the reply (an image URL or a literal
// text value); replySentence is the utterance the reply responds to.
func (p *Pipeline) Generate(ctx context.Context, req domain.Request, resource, replySentence string, scene *domain.SceneAnalysisResult) ([]domain.ReplyCandidate, error) {
	probe := cache.Probe{SessionID: req.SessionID, Scene: req.Scene, Resource: resource, ForceRegenerate: req.ForceRegenerate}
	if cached, ok := p.Cache.GetReply(probe); ok {
		p.trace(ctx, "cache_hit", map[string]any{"resource": resource, "category": domain.CategoryReply})
		return cached, nil
	}
	p.trace(ctx, "cache_miss", map[string]any{"resource": resource, "category": domain.CategoryReply})

	tmpl, err := p.Prompts.Get(ctx, replyPromptName)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidationRange, "reply.Generate", "prompt template unavailable", err)
	}

	llmReq := llmclient.Request{
		SystemPrompt: tmpl.Text,
		Prompt: fmt.Sprintf("%s\n\nreply to: %q\nstrategies: %s\nlanguage: %s",
			tmpl.Text, replySentence, strings.Join(scene.RecommendedStrategies, ","), req.Language),
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries(); attempt++ {
		if attempt > 1 && p.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * p.RetryDelay):
			}
		}

		raw, _, err := p.LLM.Complete(ctx, llmReq)
		if err != nil {
			lastErr = err
			continue
		}
		p.trace(ctx, "llm_call", map[string]any{"prompt_version": tmpl.Version, "prompt": replyPromptName, "attempt": attempt})

		candidates, err := normalize.ParseReplySet(raw, p.PlainTextThreshold)
		if err != nil {
			lastErr = err
			continue
		}
		enforceStrategyPool(candidates, scene.RecommendedStrategies)

		if !p.moderationActive() {
			p.commit(ctx, req, resource, candidates)
			return candidates, nil
		}

		stage := domain.IntimacyStage(scene.IntimacyLevel)
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Text
		}

		verdict, err := p.Moderation.Check(ctx, texts, stage)
		if err != nil {
			if p.ModerationFailOpen {
				p.commit(ctx, req, resource, candidates)
				return candidates, nil
			}
			lastErr = domain.Wrap(domain.KindModerationUnavailable, "reply.Generate", "moderation service unavailable", err)
			continue
		}
		p.trace(ctx, "moderation", map[string]any{"verdict": string(verdict), "prompt_version": tmpl.Version})

		if verdict == collab.ModerationPass {
			p.commit(ctx, req, resource, candidates)
			return candidates, nil
		}

		lastErr = domain.Wrap(domain.KindModerationReject, "reply.Generate", fmt.Sprintf("moderation verdict %q", verdict), nil)
	}

	return nil, domain.Wrap(domain.KindRetryExhausted, "reply.Generate",
		fmt.Sprintf("all %d retries exhausted", p.maxRetries()), lastErr)
}

// enforceStrategyPool coerces any candidate whose strategy code falls
// outside the active scenario's recommended pool to direct_response (§8.3:
// "each strategy is in the active scenario's pool OR direct_response").
func enforceStrategyPool(candidates []domain.ReplyCandidate, pool []string) {
	inPool := make(map[string]bool, len(pool))
	for _, s := range pool {
		inPool[s] = true
	}
	for i := range candidates {
		code := candidates[i].StrategyCode
		if code == domain.DirectResponseStrategy || inPool[code] {
			continue
		}
		candidates[i].StrategyCode = domain.DirectResponseStrategy
	}
}

func (p *Pipeline) commit(ctx context.Context, req domain.Request, resource string, candidates []domain.ReplyCandidate) {
	if ctx.Err() != nil {
		return
	}
	_ = p.Cache.Put(ctx, req.SessionID, req.Scene, domain.CategoryReply, resource, candidates, domain.ModelNonMergeStep, "")
}
