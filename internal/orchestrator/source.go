package orchestrator

import (
	"context"
	"iter"

	"docbulk/internal/loader"
	"docbulk/internal/model"
)

// Source produces the work items of a job. An item paired with a non-nil
// error is skipped by the feeder and never scheduled.
type Source[T any] interface {
	Items(ctx context.Context) iter.Seq2[T, error]
}

// SliceSource feeds an in-memory collection
type SliceSource[T any] struct {
	items []T
}

// NewSliceSource copies items into a source
func NewSliceSource[T any](items ...T) SliceSource[T] {
	copied := make([]T, len(items))
	copy(copied, items)
	return SliceSource[T]{items: copied}
}

// Items implements Source
func (s SliceSource[T]) Items(context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// SeqSource feeds a lazy sequence, pulled only as fast as the job consumes it
type SeqSource[T any] struct {
	seq iter.Seq[T]
}

// NewSeqSource wraps seq
func NewSeqSource[T any](seq iter.Seq[T]) SeqSource[T] {
	return SeqSource[T]{seq: seq}
}

// Items implements Source
func (s SeqSource[T]) Items(context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item := range s.seq {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// DirectorySource feeds documents parsed from files below Path
type DirectorySource struct {
	Path      string
	URIPrefix string
	Options   loader.Options
}

// Items implements Source
func (s DirectorySource) Items(context.Context) iter.Seq2[model.Document, error] {
	return loader.Load(s.Path, s.URIPrefix, s.Options)
}
