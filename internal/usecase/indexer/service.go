// Package indexer orchestrates the per-company ingestion pipeline:
// resolve ticker, pull recent filings from EDGAR, parse, tag, chunk,
// embed, and persist passages, maintaining the durable index state.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/filing/topics"
	"github.com/kailas-cloud/findex/internal/metrics"
)

// Service runs and reports indexing per company. One run per ticker at a
// time; concurrent triggers are rejected, not queued.
type Service struct {
	edgar    Edgar
	parser   Parser
	chunker  Chunker
	topics   TopicTagger
	embedder Embedder
	passages PassageRepo
	states   StateRepo

	limits map[filing.Type]int
	logger *zap.Logger
	reg    *registry
	now    func() time.Time

	// runDone is signalled after a background run fully finishes,
	// including state writes. Tests synchronize on it.
	runDone chan string
}

// Deps bundles the pipeline collaborators of the Service.
type Deps struct {
	Edgar    Edgar
	Parser   Parser
	Chunker  Chunker
	Topics   TopicTagger
	Embedder Embedder
	Passages PassageRepo
	States   StateRepo
}

// New creates the indexing service. limits caps how many recent filings
// of each form type one run processes.
func New(d Deps, limits map[filing.Type]int, logger *zap.Logger) *Service {
	return &Service{
		edgar:    d.Edgar,
		parser:   d.Parser,
		chunker:  d.Chunker,
		topics:   d.Topics,
		embedder: d.Embedder,
		passages: d.Passages,
		states:   d.States,
		limits:   limits,
		logger:   logger,
		reg:      newRegistry(),
		now:      time.Now,
	}
}

// StatusReport is the full status answer for a ticker: the durable state
// row plus ephemeral progress and, once ready, the per-type breakdown.
type StatusReport struct {
	State               filing.IndexState
	ProgressMessage     string
	FilingTypeBreakdown map[filing.Type]int
}

// Start triggers a full re-index for the ticker. The state row flips to
// `indexing` before this returns; the pipeline itself runs in the
// background. Returns filing.ErrIndexingConflict when a run is already
// in flight.
func (s *Service) Start(ctx context.Context, ticker string) error {
	ticker = normalizeTicker(ticker)

	if !s.reg.tryAcquire(ticker) {
		return filing.ErrIndexingConflict
	}

	status := filing.StatusIndexing
	zero := 0
	empty := ""
	err := s.states.Upsert(ctx, ticker, filing.StateUpdate{
		Status:         &status,
		FilingsIndexed: &zero,
		ChunksTotal:    &zero,
		ErrorMessage:   &empty,
	})
	if err != nil {
		s.reg.release(ticker)
		return fmt.Errorf("mark indexing %s: %w", ticker, err)
	}

	// The run must survive the triggering request's cancellation.
	bg := context.WithoutCancel(ctx)
	go s.run(bg, ticker)

	return nil
}

// Status returns the state row (a not_indexed default when none exists),
// the live progress message while indexing, and the per-type passage
// breakdown once ready.
func (s *Service) Status(ctx context.Context, ticker string) (StatusReport, error) {
	ticker = normalizeTicker(ticker)

	st, err := s.states.Get(ctx, ticker)
	if err != nil {
		if !errors.Is(err, filing.ErrNotIndexed) {
			return StatusReport{}, fmt.Errorf("get state %s: %w", ticker, err)
		}
		st = filing.IndexState{Ticker: ticker, Status: filing.StatusNotIndexed}
	}

	report := StatusReport{State: st}

	if st.Status == filing.StatusIndexing {
		report.ProgressMessage = s.reg.getProgress(ticker)
	}

	if st.Status == filing.StatusReady {
		breakdown, err := s.passages.CountByType(ctx, ticker)
		if err != nil {
			return StatusReport{}, fmt.Errorf("count passages %s: %w", ticker, err)
		}
		report.FilingTypeBreakdown = breakdown
	}

	return report, nil
}

// DeleteIndex removes every stored passage for the ticker and drops the
// state row. Rejected while an indexing run is in flight.
func (s *Service) DeleteIndex(ctx context.Context, ticker string) (int, error) {
	ticker = normalizeTicker(ticker)

	if !s.reg.tryAcquire(ticker) {
		return 0, filing.ErrIndexingConflict
	}
	defer s.reg.release(ticker)

	deleted, err := s.passages.DeleteByTicker(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("delete passages %s: %w", ticker, err)
	}
	if err := s.states.Delete(ctx, ticker); err != nil {
		return 0, fmt.Errorf("delete state %s: %w", ticker, err)
	}
	return deleted, nil
}

// run executes the full pipeline for one ticker. Per-filing failures are
// recorded and skipped; only resolution and listing failures abort the run.
func (s *Service) run(ctx context.Context, ticker string) {
	start := s.now()
	defer func() {
		s.reg.release(ticker)
		metrics.IndexRunDuration.Observe(time.Since(start).Seconds())
		if s.runDone != nil {
			s.runDone <- ticker
		}
	}()

	log := s.logger.With(zap.String("ticker", ticker))
	log.Info("Indexing run started")

	s.reg.setProgress(ticker, "Resolving company")

	company, err := s.edgar.Resolve(ctx, ticker)
	if err != nil {
		s.failRun(ctx, ticker, fmt.Sprintf("resolve company: %v", err), log)
		return
	}

	s.reg.setProgress(ticker, "Fetching filing list")

	all, err := s.edgar.ListFilings(ctx, company.CIK)
	if err != nil {
		s.failRun(ctx, ticker, fmt.Sprintf("list filings: %v", err), log)
		return
	}

	selected := selectFilings(all, s.limits)
	if len(selected) == 0 {
		s.failRun(ctx, ticker, filing.ErrNoFilings.Error(), log)
		return
	}

	// Full re-index: stale passages from a previous run must not survive.
	if _, err := s.passages.DeleteByTicker(ctx, ticker); err != nil {
		s.failRun(ctx, ticker, fmt.Sprintf("clear old passages: %v", err), log)
		return
	}

	var (
		succeeded   int
		chunksTotal int
		newestDate  string
		failures    []string
	)

	for i, f := range selected {
		s.reg.setProgress(ticker, fmt.Sprintf(
			"Processing %s filed %s (%d of %d)", f.Type, f.Date, i+1, len(selected)))

		n, err := s.processFiling(ctx, ticker, f)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", f.AccessionNumber, err))
			metrics.FilingsIndexedTotal.WithLabelValues(string(f.Type), "error").Inc()
			log.Warn("Filing skipped",
				zap.String("accession", f.AccessionNumber),
				zap.String("filing_type", string(f.Type)),
				zap.Error(err),
			)
			continue
		}

		succeeded++
		chunksTotal += n
		if f.Date > newestDate {
			newestDate = f.Date
		}
		metrics.FilingsIndexedTotal.WithLabelValues(string(f.Type), "ok").Inc()
		metrics.PassagesStoredTotal.Add(float64(n))

		// Live counters so status polls see movement mid-run.
		filings := succeeded
		chunks := chunksTotal
		if err := s.states.Upsert(ctx, ticker, filing.StateUpdate{
			FilingsIndexed: &filings,
			ChunksTotal:    &chunks,
		}); err != nil {
			log.Warn("Failed to update live counters", zap.Error(err))
		}
	}

	s.finishRun(ctx, ticker, succeeded, chunksTotal, newestDate, failures, log)
}

// processFiling runs fetch → parse → tag → chunk → embed → persist for a
// single filing and returns the number of passages stored.
func (s *Service) processFiling(ctx context.Context, ticker string, f filing.Filing) (int, error) {
	htmlSrc, err := s.edgar.FetchHTML(ctx, f.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	doc, err := s.parser.Parse(htmlSrc, f.Type)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	// Topics are tagged per section and broadcast to its passages.
	sectionTopics := make(map[string][]string, len(doc.Sections))
	for _, section := range doc.Sections {
		src := topics.Source{
			Company:    ticker,
			FilingType: string(f.Type),
			Section:    section.Name,
		}
		if tags := s.topics.Extract(ctx, section.Text, src); len(tags) > 0 {
			sectionTopics[section.Name] = tags
		}
	}

	passages := s.chunker.Split(doc)
	if len(passages) == 0 {
		return 0, fmt.Errorf("no passages produced")
	}

	texts := make([]string, len(passages))
	for i := range passages {
		p := &passages[i]
		p.Ticker = ticker
		p.AccessionNumber = f.AccessionNumber
		p.FilingType = f.Type
		p.FilingDate = f.Date
		p.Topics = sectionTopics[p.SectionName]
		texts[i] = p.Text
	}

	batch, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(batch.Embeddings) != len(passages) {
		return 0, fmt.Errorf("embed: got %d vectors for %d passages",
			len(batch.Embeddings), len(passages))
	}
	for i := range passages {
		passages[i].Vector = batch.Embeddings[i]
	}

	if err := s.passages.InsertBatch(ctx, passages); err != nil {
		return 0, fmt.Errorf("persist: %w", err)
	}

	return len(passages), nil
}

// finishRun writes the terminal state: ready when at least one filing
// made it in, error when everything failed.
func (s *Service) finishRun(
	ctx context.Context, ticker string,
	succeeded, chunksTotal int, newestDate string,
	failures []string, log *zap.Logger,
) {
	errMsg := strings.Join(failures, "; ")

	if succeeded == 0 {
		s.failRun(ctx, ticker, errMsg, log)
		return
	}

	status := filing.StatusReady
	indexedAt := s.now()
	err := s.states.Upsert(ctx, ticker, filing.StateUpdate{
		Status:         &status,
		FilingsIndexed: &succeeded,
		ChunksTotal:    &chunksTotal,
		LastFilingDate: &newestDate,
		ErrorMessage:   &errMsg,
		LastIndexedAt:  &indexedAt,
	})
	if err != nil {
		log.Error("Failed to write final state", zap.Error(err))
		return
	}

	metrics.IndexRunsTotal.WithLabelValues("ready").Inc()
	log.Info("Indexing run finished",
		zap.Int("filings_indexed", succeeded),
		zap.Int("chunks_total", chunksTotal),
		zap.Int("filings_failed", len(failures)),
	)
}

func (s *Service) failRun(ctx context.Context, ticker, msg string, log *zap.Logger) {
	status := filing.StatusError
	err := s.states.Upsert(ctx, ticker, filing.StateUpdate{
		Status:       &status,
		ErrorMessage: &msg,
	})
	if err != nil {
		log.Error("Failed to write error state", zap.Error(err))
	}
	metrics.IndexRunsTotal.WithLabelValues("error").Inc()
	log.Error("Indexing run failed", zap.String("reason", msg))
}

// selectFilings keeps the newest N filings per form type, in Types order,
// newest first within a type.
func selectFilings(all []filing.Filing, limits map[filing.Type]int) []filing.Filing {
	byType := make(map[filing.Type][]filing.Filing)
	for _, f := range all {
		byType[f.Type] = append(byType[f.Type], f)
	}

	var selected []filing.Filing
	for _, t := range filing.Types {
		group := byType[t]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date > group[j].Date
		})
		limit := limits[t]
		if limit < len(group) {
			group = group[:limit]
		}
		selected = append(selected, group...)
	}
	return selected
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
