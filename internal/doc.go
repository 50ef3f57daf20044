// Package internal holds the implementation packages of quire.
//
// The packages are organized by stage of the content pipeline:
//
//   - content: source discovery, front matter, posts, entries and pages
//   - markdown: goldmark rendering, anchors, highlighting and summaries
//   - toc: table of contents trees built from heading outlines
//   - pipeline: one full ingestion run over a content root
//   - index, search: derived listings, tags, the feed and full-text search
//   - snapshot: the immutable read model published to readers
//   - watcher, reload: change detection and snapshot publication
//   - journal: SQLite history of reload attempts
//   - server, views, feed: HTTP serving, HTML views and RSS
//   - config, errors, logging, version: ambient support
package internal
