package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/bucketd"
	"github.com/atlassian/bucketd/pkg/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "redis"
	// DefaultAddress is the default address of the Redis server.
	DefaultAddress = "127.0.0.1:6379"
	// DefaultKey is the list the snapshots are pushed onto.
	DefaultKey = "bucketd:history"
	// DefaultHistoryDepth is how many snapshots are retained in the list.
	DefaultHistoryDepth = int64(9600)

	dateTimeFormat = "Mon Jan _2 2006 15:04:05 GMT+0000 (UTC)"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publish is a single snapshot as stored in Redis.
type Publish struct {
	Counters     map[string]float64 `json:"counters"`
	CounterRates map[string]float64 `json:"counter_rates"`
	Gauges       map[string]float64 `json:"gauges"`
	Timers       map[string]Summary `json:"timers"`
	Histograms   map[string]Summary `json:"histograms"`
	Messages     MessageStats       `json:"messages"`
	TimeStamp    int64              `json:"timestamp"`
	DateTime     string             `json:"datetime"`
}

// Summary is the JSON form of bucketd.Summary.
type Summary struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Sum    float64 `json:"sum"`
}

// MessageStats are the ingestion counters at the time of the snapshot.
type MessageStats struct {
	Bad   uint64 `json:"bad"`
	Total uint64 `json:"total"`
}

// historyStore is the subset of *redis.Client used by the backend.
type historyStore interface {
	LPush(key string, values ...interface{}) *redis.IntCmd
	LTrim(key string, start, stop int64) *redis.StatusCmd
}

// Client pushes a JSON snapshot of every flush onto a capped Redis list.
type Client struct {
	logger        logrus.FieldLogger
	store         historyStore
	key           string
	historyDepth  int64
	flushInterval time.Duration
}

// NewClientFromViper constructs a Redis backend.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (bucketd.Backend, error) {
	r := util.GetSubViper(v, BackendName)
	r.SetDefault("address", DefaultAddress)
	r.SetDefault("password", "")
	r.SetDefault("db", 0)
	r.SetDefault("key", DefaultKey)
	r.SetDefault("history-depth", DefaultHistoryDepth)

	flushInterval := v.GetDuration(bucketd.ParamFlushInterval)
	if flushInterval <= 0 {
		flushInterval = bucketd.DefaultFlushInterval
	}

	store := redis.NewClient(&redis.Options{
		Addr:     r.GetString("address"),
		Password: r.GetString("password"),
		DB:       r.GetInt("db"),
	})
	logger = logger.WithField("backend", BackendName)
	logger.WithFields(logrus.Fields{
		"address":       r.GetString("address"),
		"db":            r.GetInt("db"),
		"key":           r.GetString("key"),
		"history-depth": r.GetInt64("history-depth"),
	}).Info("created backend")
	return NewClient(store, r.GetString("key"), r.GetInt64("history-depth"), flushInterval, logger)
}

// NewClient constructs a Redis backend writing to store.
func NewClient(store historyStore, key string, historyDepth int64, flushInterval time.Duration, logger logrus.FieldLogger) (*Client, error) {
	if key == "" {
		return nil, errors.New("[" + BackendName + "] key is required")
	}
	if historyDepth <= 0 {
		return nil, fmt.Errorf("[%s] history-depth should be positive", BackendName)
	}
	if flushInterval <= 0 {
		return nil, fmt.Errorf("[%s] flushInterval should be positive", BackendName)
	}
	return &Client{
		logger:        logger,
		store:         store,
		key:           key,
		historyDepth:  historyDepth,
		flushInterval: flushInterval,
	}, nil
}

// SendMetricsAsync serializes the store synchronously and writes it to Redis in the background.
func (client *Client) SendMetricsAsync(ctx context.Context, b *bucketd.Buckets, cb bucketd.SendCallback) {
	payload, err := json.Marshal(client.preparePayload(b, b.Now()))
	if err != nil {
		cb([]error{err})
		return
	}
	go func() {
		cb([]error{client.writePayload(payload)})
	}()
}

func (client *Client) writePayload(payload []byte) error {
	if err := client.store.LPush(client.key, payload).Err(); err != nil {
		return fmt.Errorf("[%s] LPUSH failed: %v", BackendName, err)
	}
	if err := client.store.LTrim(client.key, 0, client.historyDepth-1).Err(); err != nil {
		return fmt.Errorf("[%s] LTRIM failed: %v", BackendName, err)
	}
	return nil
}

func (client *Client) preparePayload(b *bucketd.Buckets, now time.Time) *Publish {
	seconds := client.flushInterval.Seconds()
	p := &Publish{
		Counters:     make(map[string]float64, len(b.Counters)),
		CounterRates: make(map[string]float64, len(b.Counters)),
		Gauges:       make(map[string]float64, len(b.Gauges)),
		Timers:       make(map[string]Summary, len(b.Timers)),
		Histograms:   make(map[string]Summary, len(b.Histograms)),
		Messages: MessageStats{
			Bad:   b.BadMessages,
			Total: b.TotalMessages,
		},
		TimeStamp: now.Unix(),
		DateTime:  now.UTC().Format(dateTimeFormat),
	}
	for key, value := range b.Counters {
		p.Counters[key] = value
		p.CounterRates[key] = value / seconds
	}
	for key, value := range b.Gauges {
		p.Gauges[key] = value
	}
	for key, values := range b.Timers {
		p.Timers[key] = toSummary(bucketd.Summarize(values))
	}
	for key, values := range b.Histograms {
		p.Histograms[key] = toSummary(bucketd.Summarize(values))
	}
	return p
}

func toSummary(s bucketd.Summary) Summary {
	return Summary{
		Lower:  s.Min,
		Upper:  s.Max,
		Count:  s.Count,
		Mean:   s.Mean,
		Median: s.Median,
		Std:    s.StdDev,
		Sum:    s.Sum,
	}
}

// Name returns the name of the backend.
func (*Client) Name() string {
	return BackendName
}
