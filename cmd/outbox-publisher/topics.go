package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	// Resume lets an ordering key publish again after a failure.
	Resume(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type topicPublishers interface {
	publisherFor(topic string) publisher
}

// topicFunc adapts a plain lookup, mostly for tests.
type topicFunc func(topic string) publisher

func (f topicFunc) publisherFor(topic string) publisher { return f(topic) }

// orderedTopics caches one ordering-enabled publisher per topic.
type orderedTopics struct {
	client pubSubClient
	mu     sync.Mutex
	byName map[string]publisher
}

func newOrderedTopics(client pubSubClient) *orderedTopics {
	return &orderedTopics{client: client, byName: map[string]publisher{}}
}

func (o *orderedTopics) publisherFor(topic string) publisher {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pub, ok := o.byName[topic]; ok {
		return pub
	}
	raw := o.client.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	pub := &gcpPublisher{raw: raw}
	o.byName[topic] = pub
	return pub
}

type gcpPublisher struct {
	raw *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{p.raw.Publish(ctx, msg)}
}

func (p *gcpPublisher) Resume(orderingKey string) {
	if orderingKey != "" {
		p.raw.ResumePublish(orderingKey)
	}
}

type gcpResult struct {
	res *gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	return r.res.Get(ctx)
}
