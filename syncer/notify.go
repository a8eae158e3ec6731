package syncer

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/config"
	"cloud.google.com/go/pubsub"
)

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, res RunResult) error
}

// PubSubPublisher publishes each result as JSON on a Pub/Sub topic, with the
// family, plant and status as attributes for subscription filters.
type PubSubPublisher struct {
	Topic *pubsub.Topic
}

func (p PubSubPublisher) Publish(ctx context.Context, res RunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	r := p.Topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"family": res.Family,
			"plant":  res.Plant,
			"status": res.Status,
		},
	})
	_, err = r.Get(ctx)
	return err
}

// ResultCache keeps the last result per family and plant for the status endpoint.
type ResultCache interface {
	Store(ctx context.Context, res RunResult) error
	Last(ctx context.Context, family, plant string) (*RunResult, error)
}

const lastResultTTL = 7 * 24 * time.Hour

func lastResultKey(family, plant string) string {
	return "sync:last:" + family + ":" + plant
}

// RedisResultCache stores results through the shared redis client.
type RedisResultCache struct{}

func (RedisResultCache) Store(ctx context.Context, res RunResult) error {
	return config.SetRedisObject(ctx, lastResultKey(res.Family, res.Plant), res, lastResultTTL)
}

func (RedisResultCache) Last(ctx context.Context, family, plant string) (*RunResult, error) {
	var res RunResult
	ok, err := config.GetRedisObject(ctx, lastResultKey(family, plant), &res)
	if err != nil || !ok {
		return nil, err
	}
	return &res, nil
}
