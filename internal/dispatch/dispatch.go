// Package dispatch implements the request dispatcher (C1): it classifies
// a request's content items, fans them out to the screenshot analyzer
// (parallel or serial per configuration), reassembles results in
// request order, and optionally hands the ordered items to the reply
// pipeline.
package dispatch

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"chatcoach/internal/analyzer"
	"chatcoach/internal/collab"
	"chatcoach/internal/domain"
)

// analyzerClient is the subset of *analyzer.Analyzer the dispatcher
// needs, narrowed to an interface so tests can substitute a fake.
type analyzerClient interface {
	Analyze(ctx context.Context, req domain.Request, url, strategyMode string) (*analyzer.Result, error)
}

// replyClient is the subset of *reply.Pipeline the dispatcher needs.
type replyClient interface {
	Generate(ctx context.Context, req domain.Request, resource, replySentence string, scene *domain.SceneAnalysisResult) ([]domain.ReplyCandidate, error)
}

// Dispatcher wires the fan-out algorithm to its collaborators.
type Dispatcher struct {
	Analyzer         analyzerClient
	Reply            replyClient
	Strategies       collab.StrategySelector
	MergeStepEnabled bool
	ParallelEnabled  bool
}

func isImageURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func classify(content []string) []domain.ContentItem {
	items := make([]domain.ContentItem, len(content))
	for i, raw := range content {
		kind := domain.ContentText
		if isImageURL(raw) {
			kind = domain.ContentImage
		}
		items[i] = domain.ContentItem{Index: i, Kind: kind, Raw: raw}
	}
	return items
}

func hasImage(items []domain.ContentItem) bool {
	for _, it := range items {
		if it.Kind == domain.ContentImage {
			return true
		}
	}
	return false
}

// Dispatch runs the full C1 algorithm for one request.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.Request) (*domain.Response, error) {
	items := classify(req.Content)
	if len(items) == 0 {
		return &domain.Response{Success: true, Message: "ok", Results: []domain.ResultItem{}}, nil
	}

	useParallel := d.MergeStepEnabled && d.ParallelEnabled && hasImage(items)

	var results []domain.ItemResult
	var err error
	if useParallel {
		results, err = d.runParallel(ctx, req, items)
	} else {
		results, err = d.runSerial(ctx, req, items)
	}
	if err != nil {
		return nil, err
	}

	resp := &domain.Response{Success: true, Message: "ok", Results: toResultItems(results)}

	if !req.WantReply {
		return resp, nil
	}

	resource, replySentence := lastContentTarget(results)
	scene := d.sceneForReply(ctx, req, results)

	candidates, err := d.Reply.Generate(ctx, req, resource, replySentence, scene)
	if err != nil {
		return nil, err
	}
	resp.SuggestedReplies = candidates

	return resp, nil
}

func (d *Dispatcher) runSerial(ctx context.Context, req domain.Request, items []domain.ContentItem) ([]domain.ItemResult, error) {
	out := make([]domain.ItemResult, len(items))
	for _, it := range items {
		r, err := d.runOne(ctx, req, it)
		if err != nil {
			return nil, err
		}
		out[it.Index] = r
	}
	return out, nil
}

func (d *Dispatcher) runParallel(ctx context.Context, req domain.Request, items []domain.ContentItem) ([]domain.ItemResult, error) {
	out := make([]domain.ItemResult, len(items))

	g, groupCtx := errgroup.WithContext(ctx)
	for _, it := range items {
		it := it
		g.Go(func() error {
			r, err := d.runOne(groupCtx, req, it)
			if err != nil {
				return err
			}
			out[it.Index] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) runOne(ctx context.Context, req domain.Request, it domain.ContentItem) (domain.ItemResult, error) {
	if it.Kind == domain.ContentText {
		return domain.ItemResult{Index: it.Index, Kind: domain.ContentText, Content: it.Raw}, nil
	}

	mode := domain.StrategySerial
	if d.MergeStepEnabled && d.ParallelEnabled {
		mode = domain.StrategyParallel
	}

	res, err := d.Analyzer.Analyze(ctx, req, it.Raw, mode)
	if err != nil {
		return domain.ItemResult{}, err
	}

	return domain.ItemResult{
		Index:    it.Index,
		Kind:     domain.ContentImage,
		Content:  it.Raw,
		Dialogs:  res.Image.Dialogs,
		Scenario: string(res.Scene.RecommendedScenario),
		Image:    res.Image,
		Context:  res.Ctx,
		Scene:    res.Scene,
	}, nil
}

func toResultItems(results []domain.ItemResult) []domain.ResultItem {
	out := make([]domain.ResultItem, len(results))
	for i, r := range results {
		out[i] = domain.ResultItem{Content: r.Content, Dialogs: r.Dialogs, Scenario: r.Scenario}
	}
	return out
}

// lastContentTarget derives the resource key and reply_sentence from the
// last item in request order: the text itself for a text item, or the
// last other-speaker utterance in the last image's dialogs.
func lastContentTarget(results []domain.ItemResult) (resource, replySentence string) {
	last := results[len(results)-1]
	if last.Kind == domain.ContentText {
		return last.Content, last.Content
	}

	for i := len(last.Dialogs) - 1; i >= 0; i-- {
		if last.Dialogs[i].Speaker == domain.SpeakerOther {
			return last.Content, last.Dialogs[i].Text
		}
	}
	return last.Content, ""
}

// sceneForReply picks the SceneAnalysisResult driving strategy binding:
// the last image's, or a synthesized default when the request contains
// no images at all.
func (d *Dispatcher) sceneForReply(ctx context.Context, req domain.Request, results []domain.ItemResult) *domain.SceneAnalysisResult {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Scene != nil {
			return results[i].Scene
		}
	}

	codes, err := d.Strategies.Select(string(domain.DefaultScenario), 3, nil)
	if err != nil {
		codes = nil
	}
	return &domain.SceneAnalysisResult{
		RecommendedScenario:   domain.DefaultScenario,
		RelationshipState:     domain.DefaultRelationship,
		RecommendedStrategies: codes,
	}
}
