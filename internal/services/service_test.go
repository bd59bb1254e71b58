package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/forge/internal/config"
	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/delivery"
	"github.com/fyrsmithlabs/forge/internal/events"
	"github.com/fyrsmithlabs/forge/internal/generator"
	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
	"github.com/fyrsmithlabs/forge/internal/pipeline/pipelinetest"
	"github.com/fyrsmithlabs/forge/internal/validator"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	svc    *Service
	pub    *recordingPublisher
	logs   *logging.TestLogger
	outDir string
}

func newFixture(t *testing.T, gen pipeline.Generator, val pipeline.Validator, opts Options) *fixture {
	t.Helper()
	logs := logging.NewTestLogger()
	pub := &recordingPublisher{}
	coord, err := coordinator.New(gen, val,
		coordinator.WithMaxAttempts(2),
		coordinator.WithObserver(events.Observer(pub)),
	)
	require.NoError(t, err)

	out := t.TempDir()
	opts.Coordinator = coord
	opts.Publisher = pub
	if opts.Writer == nil {
		opts.Writer = delivery.NewFileWriter(out, nil)
	}
	svc := NewService(NewRegistry(opts), ServiceOptions{
		Logger:    logs.Logger,
		ReportDir: filepath.Join(out, "reports"),
	})
	return &fixture{svc: svc, pub: pub, logs: logs, outDir: out}
}

func rejectAll() pipeline.Validator {
	return pipelinetest.ValidatorFunc(func(context.Context, *pipeline.CodeArtifact) (pipeline.Verdict, error) {
		return pipeline.Reject(pipelinetest.Diag("lint.style", "nope")), nil
	})
}

func TestExecute_Accepted(t *testing.T) {
	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{})
	spec := pipeline.RequirementSpec{Text: "say hello", Title: "Hello", Language: "python"}

	out, err := f.svc.Execute(context.Background(), spec, 0)
	require.NoError(t, err)
	require.NotNil(t, out)

	_, perr := uuid.Parse(out.RunID)
	assert.NoError(t, perr)
	assert.True(t, out.Result.Accepted())
	assert.Equal(t, "accepted", out.Report.Status)
	assert.Equal(t, 0, out.Context.Len())

	require.Len(t, out.Report.Written, 1)
	assert.Equal(t, "hello-"+out.RunID, filepath.Base(filepath.Dir(out.Report.Written[0])))
	data, err := os.ReadFile(out.Report.Written[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from forge")

	saved, err := delivery.ReadReport(filepath.Join(f.outDir, "reports", out.RunID+".json"))
	require.NoError(t, err)
	assert.Equal(t, "accepted", saved.Status)

	kinds := f.pub.kinds()
	assert.Equal(t, events.KindStarted, kinds[0])
	assert.Contains(t, kinds, events.KindTransition)
	assert.Equal(t, events.KindCompleted, kinds[len(kinds)-1])
	assert.Equal(t, "accepted", f.pub.last().Status)

	f.logs.AssertRunCorrelation(t, "execution finished", out.RunID)
}

func TestExecute_Exhausted(t *testing.T) {
	f := newFixture(t, generator.NewStub(), rejectAll(), Options{})

	out, err := f.svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "x"}, 0)
	require.Error(t, err)
	assert.True(t, coordinator.IsExhausted(err))
	assert.Equal(t, "exhausted", out.Report.Status)
	assert.Len(t, out.Report.Attempts, 2)
	assert.Empty(t, out.Report.Written)
	assert.Equal(t, "lint.style", out.Report.FinalErrors[0].Code)

	entries, _ := os.ReadDir(f.outDir)
	for _, e := range entries {
		assert.Equal(t, "reports", e.Name(), "nothing but reports is written")
	}
}

func TestExecute_ExplicitAttemptBudget(t *testing.T) {
	f := newFixture(t, generator.NewStub(), rejectAll(), Options{})
	out, err := f.svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "x"}, 1)
	require.Error(t, err)
	assert.Len(t, out.Result.Attempts, 1)
}

func TestExecute_InvalidInput(t *testing.T) {
	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{})

	out, err := f.svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "   "}, 0)
	require.ErrorIs(t, err, coordinator.ErrInvalidInput)
	assert.Nil(t, out.Result)
	assert.Equal(t, delivery.StatusInvalid, out.Report.Status)
	assert.Equal(t, []string{events.KindCompleted}, f.pub.kinds())
}

func TestExecute_UsesRunIDFromContext(t *testing.T) {
	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{})
	ctx := logging.WithRunID(context.Background(), "wf-123")

	out, err := f.svc.Execute(ctx, pipeline.RequirementSpec{Text: "x"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "wf-123", out.RunID)
	assert.Equal(t, "wf-123", f.pub.last().RunID)
}

func TestExecute_ContextReachesGenerator(t *testing.T) {
	docs := []pipeline.Document{{URL: "https://docs.example", Text: "useful"}}
	sc := pipeline.StructuredContext{Records: []pipeline.Record{{ID: "1", Source: "https://docs.example", Content: "useful"}}}

	scraper := &pipelinetest.MockScraper{}
	scraper.On("Scrape", mock.Anything, mock.Anything).Return(docs, nil)
	normalizer := &pipelinetest.MockNormalizer{}
	normalizer.On("Normalize", mock.Anything, docs).Return(sc, nil)

	var seen pipeline.StructuredContext
	gen := pipelinetest.GeneratorFunc(func(_ context.Context, _ pipeline.RequirementSpec, got pipeline.StructuredContext, _ []pipeline.Diagnostic) (*pipeline.CodeArtifact, error) {
		seen = got
		return pipelinetest.Artifact("main.go", "package main\n"), nil
	})

	f := newFixture(t, gen, validator.NewStructure(), Options{Scraper: scraper, Normalizer: normalizer})
	out, err := f.svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "x", Sources: []string{"https://docs.example"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, sc.Records, seen.Records)
	assert.Equal(t, 1, out.Context.Len())
	scraper.AssertExpectations(t)
	normalizer.AssertExpectations(t)
}

func TestPrepareContext_Degrades(t *testing.T) {
	scraper := &pipelinetest.MockScraper{}
	scraper.On("Scrape", mock.Anything, mock.Anything).Return(nil, errors.New("dns failure"))
	normalizer := &pipelinetest.MockNormalizer{}

	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{Scraper: scraper, Normalizer: normalizer})
	sc, err := f.svc.PrepareContext(context.Background(), pipeline.RequirementSpec{Text: "x", Sources: []string{"https://a.example"}})
	require.NoError(t, err)
	assert.Equal(t, 0, sc.Len())
	f.logs.AssertLogged(t, zapcore.WarnLevel, "scraping failed")
	normalizer.AssertNotCalled(t, "Normalize", mock.Anything, mock.Anything)
}

func TestPrepareContext_SkipsWithoutSources(t *testing.T) {
	scraper := &pipelinetest.MockScraper{}
	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{Scraper: scraper, Normalizer: &pipelinetest.MockNormalizer{}})
	sc, err := f.svc.PrepareContext(context.Background(), pipeline.RequirementSpec{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, sc.Len())
	scraper.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestExecute_CancelledWhileScraping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scraper := &pipelinetest.MockScraper{}
	scraper.On("Scrape", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{Scraper: scraper, Normalizer: &pipelinetest.MockNormalizer{}})
	out, err := f.svc.Execute(ctx, pipeline.RequirementSpec{Text: "x", Sources: []string{"https://a.example"}}, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, delivery.StatusCancelled, out.Report.Status)
	assert.Nil(t, out.Result)
}

func TestExecute_DeliveryFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{
		Writer: delivery.NewFileWriter(blocker, nil),
	})
	out, err := f.svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "x"}, 0)
	require.ErrorIs(t, err, ErrDelivery)
	assert.True(t, out.Result.Accepted())
	assert.Contains(t, out.Report.Error, "delivery")
}

func TestBuild_Offline(t *testing.T) {
	cfg := config.Default()
	cfg.Delivery.OutputDir = t.TempDir()
	cfg.Validator.Secrets = false

	svc, err := Build(context.Background(), cfg, nil, nil, BuildOptions{Offline: true})
	require.NoError(t, err)
	defer svc.Close()

	assert.Nil(t, svc.reg.Scraper())
	assert.NotNil(t, svc.reg.Normalizer())
	assert.Equal(t, 3, svc.reg.Coordinator().MaxAttempts())

	out, err := svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "hello", Language: "go"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "accepted", out.Report.Status)
	assert.FileExists(t, filepath.Join(cfg.Delivery.OutputDir, "reports", out.RunID+".json"))
}

func TestBuild_GeneratorOverrideAndObservers(t *testing.T) {
	cfg := config.Default()
	cfg.Delivery.OutputDir = ""
	cfg.Validator.Syntax = false
	cfg.Validator.Secrets = false

	var mu sync.Mutex
	var seen []coordinator.State
	obs := func(_ context.Context, tr coordinator.Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr.To)
	}

	svc, err := Build(context.Background(), cfg, nil, nil, BuildOptions{
		Generator: generator.NewStub(pipeline.SourceUnit{Path: "a.txt", Content: "hi"}),
		Observers: []coordinator.Observer{obs},
	})
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.reg.Writer())

	out, err := svc.Execute(context.Background(), pipeline.RequirementSpec{Text: "x"}, 0)
	require.NoError(t, err)
	assert.Empty(t, out.Report.Written)
	assert.Equal(t, []coordinator.State{coordinator.StateGenerating, coordinator.StateValidating, coordinator.StateAccepted}, seen)
}

func TestBuild_PublicSourcesOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body><p>internal notes</p></body></html>"))
	}))
	t.Cleanup(srv.Close)

	run := func(allowPrivate bool) *Outcome {
		cfg := config.Default()
		cfg.Generator.Provider = "stub"
		cfg.Delivery.OutputDir = ""
		cfg.Validator.Secrets = false
		cfg.Scraper.Enabled = true
		cfg.Scraper.AllowPrivateNetworks = allowPrivate

		svc, err := Build(context.Background(), cfg, nil, nil, BuildOptions{PublicSourcesOnly: true})
		require.NoError(t, err)
		defer svc.Close()
		require.NotNil(t, svc.reg.Scraper())

		out, err := svc.Execute(context.Background(), pipeline.RequirementSpec{
			Text:     "hello",
			Language: "go",
			Sources:  []string{srv.URL + "/admin"},
		}, 0)
		require.NoError(t, err)
		return out
	}

	out := run(false)
	assert.Equal(t, "accepted", out.Report.Status)
	assert.Zero(t, hits.Load())

	out = run(true)
	assert.Equal(t, "accepted", out.Report.Status)
	assert.NotZero(t, hits.Load())
}

func TestBuild_RequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Generator.APIKey = ""
	_, err := Build(context.Background(), cfg, nil, nil, BuildOptions{})
	assert.Error(t, err)
}

func TestBuild_InvalidFeedbackPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Generator.Provider = "stub"
	cfg.Coordinator.FeedbackPolicy = "sometimes"
	_, err := Build(context.Background(), cfg, nil, nil, BuildOptions{})
	assert.Error(t, err)
}

func TestStartAndComplete(t *testing.T) {
	f := newFixture(t, generator.NewStub(), validator.NewStructure(), Options{})
	ctx := logging.WithRunID(context.Background(), "wf-7")

	spec, err := f.svc.Start(ctx, pipeline.RequirementSpec{Text: "  hi  ", Language: "Go"})
	require.NoError(t, err)
	assert.Equal(t, "hi", spec.Text)
	assert.Equal(t, []string{events.KindStarted}, f.pub.kinds())

	out, err := f.svc.Complete(ctx, spec, pipeline.EmptyContext(), 1)
	require.NoError(t, err)
	assert.Equal(t, "wf-7", out.RunID)
	assert.Equal(t, "accepted", out.Report.Status)

	_, err = f.svc.Start(ctx, pipeline.RequirementSpec{})
	assert.ErrorIs(t, err, coordinator.ErrInvalidInput)
}
