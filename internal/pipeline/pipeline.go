// Package pipeline runs one full ingestion pass: walk, parse, split,
// render, summarize, outline and assemble.
//
// Files are processed by a fixed pool of workers. Results are collected by
// source position, so the output does not depend on scheduling and two runs
// over the same tree produce equivalent snapshots.
package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/index"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/markdown"
	"github.com/conneroisu/quire/internal/snapshot"
	"github.com/conneroisu/quire/internal/toc"
)

// Options configures a Pipeline.
type Options struct {
	Root          content.ContentRoot
	Extensions    []string
	IncludeDrafts bool
	Render        markdown.Options
	Feed          index.FeedOptions
	Search        bool
	Workers       int
}

// Report describes one run.
type Report struct {
	Files    int
	Issues   *errors.Collector
	Duration time.Duration
}

// Pipeline builds snapshots from a content root.
type Pipeline struct {
	fs       afero.Fs
	opts     Options
	walker   *content.Walker
	renderer *markdown.Renderer
	logger   logging.Logger
}

// New creates a pipeline reading from fs.
func New(fs afero.Fs, opts Options, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	walker := content.NewWalker(fs, opts.Root, logger)
	if len(opts.Extensions) > 0 {
		walker = walker.WithExtensions(opts.Extensions...)
	}

	return &Pipeline{
		fs:       fs,
		opts:     opts,
		walker:   walker,
		renderer: markdown.NewRenderer(opts.Render),
		logger:   logger.WithComponent("pipeline"),
	}
}

// Renderer exposes the markdown renderer, for the stylesheet route.
func (p *Pipeline) Renderer() *markdown.Renderer {
	return p.renderer
}

// Run performs a full pass. The error is non-nil only when the content root
// cannot be enumerated or the context is cancelled; every file-scoped
// problem is recorded in the report and the file is left out.
func (p *Pipeline) Run(ctx context.Context, generation uint64) (*snapshot.Snapshot, *Report, error) {
	start := time.Now()
	report := &Report{Issues: errors.NewCollector()}

	files, fileErrs, err := p.walker.Walk(ctx)
	if err != nil {
		report.Duration = time.Since(start)

		return nil, report, err
	}
	for _, fe := range fileErrs {
		report.Issues.AddError(fe)
	}
	report.Files = len(files)

	docs := p.processAll(ctx, files, report.Issues)
	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(start)

		return nil, report, err
	}

	var warnings []error
	for _, issue := range report.Issues.Issues() {
		warnings = append(warnings, issue.Err)
	}

	snap, err := snapshot.Assemble(snapshot.Input{
		Documents:     docs,
		IncludeDrafts: p.opts.IncludeDrafts,
		Feed:          p.opts.Feed,
		Search:        p.opts.Search,
		Warnings:      warnings,
	}, generation)
	if err != nil {
		report.Duration = time.Since(start)

		return nil, report, err
	}

	for _, w := range snap.Warnings()[len(warnings):] {
		report.Issues.AddWarning(w)
	}
	report.Duration = time.Since(start)

	p.logger.Debug(ctx, "Pipeline run complete",
		"generation", generation,
		"files", report.Files,
		"documents", len(docs),
		"issues", report.Issues.Len(),
		"duration", report.Duration)

	return snap, report, nil
}

type result struct {
	doc *content.Document
	err error
}

func (p *Pipeline) processAll(ctx context.Context, files []content.SourceFile, issues *errors.Collector) []content.Document {
	results := make([]result, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(p.opts.Workers, len(files)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				doc, err := p.process(files[i])
				results[i] = result{doc: doc, err: err}
			}
		}()
	}

feed:
	for i := range files {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	docs := make([]content.Document, 0, len(files))
	for _, r := range results {
		if r.err != nil {
			issues.AddError(r.err)
			continue
		}
		if r.doc != nil {
			docs = append(docs, *r.doc)
		}
	}

	return docs
}

// process turns one source file into a document.
func (p *Pipeline) process(src content.SourceFile) (*content.Document, error) {
	pf, err := content.ParseFile(src)
	if err != nil {
		return nil, err
	}

	if pf.Kind == content.KindPage {
		page, err := p.buildPage(pf)
		if err != nil {
			return nil, err
		}

		return &content.Document{Kind: content.KindPage, Page: page}, nil
	}

	post, err := p.buildPost(pf)
	if err != nil {
		return nil, err
	}

	return &content.Document{Kind: content.KindPost, Post: post}, nil
}

func (p *Pipeline) buildPage(pf *content.ParsedFile) (*content.Page, error) {
	res, err := p.renderer.Render(pf.Body, nil)
	if err != nil {
		return nil, errors.RenderFailure(pf.Path, err)
	}

	return &content.Page{
		Slug:     pf.Slug,
		Title:    pf.Front.Title,
		Path:     pf.Path,
		HTML:     res.HTML,
		Summary:  markdown.Summarize(res.HTML, pf.Front.Cut),
		Headings: res.Headings,
		TOC:      toc.Build(res.Headings),
	}, nil
}

func (p *Pipeline) buildPost(pf *content.ParsedFile) (*content.Post, error) {
	raws, err := content.Split(pf)
	if err != nil {
		return nil, err
	}

	reserved := make([]string, len(raws))
	for i := range raws {
		reserved[i] = content.EntryAnchor(i)
	}
	anchors := markdown.NewAnchorSet(reserved...)

	post := &content.Post{
		Slug:  pf.Slug,
		Title: pf.Front.Title,
		Path:  pf.Path,
		Tags:  pf.Tags,
	}

	for _, raw := range raws {
		var footnotes string
		if len(raws) > 1 {
			footnotes = content.EntryAnchor(raw.Ordinal) + "-"
		}
		res, err := p.renderer.RenderPrefixed(raw.Body, anchors, footnotes)
		if err != nil {
			return nil, errors.RenderFailure(pf.Path, err).WithContext("entry", raw.Ordinal)
		}

		post.Entries = append(post.Entries, &content.Entry{
			PostSlug:   pf.Slug,
			Ordinal:    raw.Ordinal,
			Title:      raw.Title,
			Date:       raw.Date,
			Updated:    raw.Updated,
			Draft:      raw.Draft,
			Discussion: raw.Discussion,
			HTML:       res.HTML,
			Summary:    markdown.Summarize(res.HTML, raw.Cut),
			Headings:   res.Headings,
			TOC:        toc.Build(res.Headings),
			Front:      raw.Front,
		})
	}

	return post, nil
}
