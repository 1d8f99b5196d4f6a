package events

import "context"

type Publisher interface {
	PublishDocumentPublished(ctx context.Context, e DocumentPublished) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishDocumentPublished(context.Context, DocumentPublished) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

var _ Publisher = (*NoopPublisher)(nil)
