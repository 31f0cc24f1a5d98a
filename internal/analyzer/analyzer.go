// Package analyzer implements the screenshot analyzer merge step (C2):
// one multimodal LLM call (raced across two strategies) that replaces
// the legacy three-sequential-call flow, producing an ImageResult,
// ContextResult and SceneAnalysisResult per image.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"chatcoach/internal/cache"
	"chatcoach/internal/collab"
	"chatcoach/internal/domain"
	"chatcoach/internal/llmclient"
	"chatcoach/internal/monitor"
	"chatcoach/internal/normalize"
	"chatcoach/internal/race"
)

const mergeStepPromptName = "merge_step"

// Analyzer wires the merge-step algorithm to its collaborators.
type Analyzer struct {
	Cache      *cache.Cache
	Fetcher    collab.ImageFetcher
	Prompts    collab.PromptStore
	Strategies collab.StrategySelector
	Multimodal llmclient.Client
	Premium    llmclient.Client
	ArmTimeout time.Duration
	Telemetry  collab.TelemetrySink
}

func (a *Analyzer) trace(ctx context.Context, kind string, fields map[string]any) {
	if a.Telemetry == nil {
		return
	}
	a.Telemetry.Record(collab.TraceEvent{RequestID: monitor.RequestIDFrom(ctx), Kind: kind, Fields: fields})
}

// Result is the merge step's output, ready to hand to the dispatcher.
type Result struct {
	Image *domain.ImageResult
	Ctx   *domain.ContextResult
	Scene *domain.SceneAnalysisResult
}

// Analyze runs the merge step for one content URL. strategyMode tags
// cache writes for observability only ("parallel"/"serial"); it never
// gates a read.
func (a *Analyzer) Analyze(ctx context.Context, req domain.Request, url, strategyMode string) (*Result, error) {
	probe := cache.Probe{SessionID: req.SessionID, Scene: req.Scene, Resource: url, ForceRegenerate: req.ForceRegenerate}

	if ctxRes, ok := a.Cache.GetContextResult(probe); ok {
		if sceneRes, ok := a.Cache.GetSceneAnalysisResult(probe); ok {
			if imgRes, ok := a.Cache.GetImageResult(probe); ok {
				a.trace(ctx, "cache_hit", map[string]any{"resource": url, "category": domain.CategorySceneAnalysis})
				return &Result{Image: imgRes, Ctx: ctxRes, Scene: sceneRes}, nil
			}
		}
	}
	a.trace(ctx, "cache_miss", map[string]any{"resource": url, "category": domain.CategorySceneAnalysis})

	bytes, width, height, err := a.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	tmpl, err := a.Prompts.Get(ctx, mergeStepPromptName)
	if err != nil {
		return nil, domain.Wrap(domain.KindImageFetch, "analyzer.Analyze", "prompt template unavailable", err)
	}

	llmReq := llmclient.Request{
		SystemPrompt: tmpl.Text,
		Prompt:       fmt.Sprintf("%s\n\nanalyze the attached screenshot for language=%s", tmpl.Text, req.Language),
		Images:       []llmclient.Image{{MimeType: "image/png", Data: bytes}},
	}

	validate := func(raw string) bool {
		_, err := normalize.ParseMergeStep(raw, url, width, height)
		return err == nil
	}

	armA := race.Arm{Label: "multimodal", Run: func(c context.Context) (string, error) {
		out, _, err := a.Multimodal.Complete(c, llmReq)
		return out, err
	}}
	armB := race.Arm{Label: "premium", Run: func(c context.Context) (string, error) {
		out, _, err := a.Premium.Complete(c, llmReq)
		return out, err
	}}

	onOutcome := func(armLabel, disposition string, outcomeErr error) {
		kind := "race_winner"
		if disposition == "loser" {
			kind = "race_loser"
		}
		fields := map[string]any{"arm": armLabel, "prompt_version": tmpl.Version}
		if outcomeErr != nil {
			fields["error"] = outcomeErr.Error()
		}
		a.trace(ctx, kind, fields)
	}

	winner, raw, err := race.Race(ctx, armA, armB, validate, a.ArmTimeout, onOutcome)
	if err != nil {
		return nil, err
	}
	a.trace(ctx, "llm_call", map[string]any{"arm": winner, "prompt_version": tmpl.Version, "prompt": mergeStepPromptName})

	parsed, err := normalize.ParseMergeStep(raw, url, width, height)
	if err != nil {
		return nil, err
	}

	codes, err := a.Strategies.Select(string(parsed.Scene.RecommendedScenario), 3, nil)
	if err != nil {
		return nil, err
	}
	parsed.Scene.RecommendedStrategies = codes

	if ctx.Err() != nil {
		// The loser path, or a cancelled caller: do not pollute the cache
		// with a result nobody will see (§5 "Cancellation").
		return nil, ctx.Err()
	}

	_ = a.Cache.Put(ctx, req.SessionID, req.Scene, domain.CategoryContextAnalysis, url, parsed.Ctx, domain.ModelMergeStep, strategyMode)
	_ = a.Cache.Put(ctx, req.SessionID, req.Scene, domain.CategorySceneAnalysis, url, parsed.Scene, domain.ModelMergeStep, strategyMode)
	_ = a.Cache.Put(ctx, req.SessionID, req.Scene, domain.CategoryImageResult, url, parsed.Image, domain.ModelMergeStep, strategyMode)
	_ = a.Cache.Put(ctx, req.SessionID, req.Scene, domain.CategoryImageDimensions, url, domain.ImageDimensions{Width: width, Height: height}, domain.ModelMergeStep, strategyMode)

	return &Result{Image: parsed.Image, Ctx: parsed.Ctx, Scene: parsed.Scene}, nil
}
