package countstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// Every period a counter is kept for; each increment lands in all of them.
var Periods = []string{PeriodTotal, PeriodDay, PeriodHour}

// how long period buckets are retained, where the backend can expire them. total buckets are kept forever
var periodTTL = map[string]time.Duration{
	PeriodHour: 2 * time.Hour,
	PeriodDay:  48 * time.Hour,
}

var ErrUnknownPeriod = errors.New("unknown counter period")

// A counter to increment: "val" is typically a chat ID, or chat ID and reason.
type Ref struct {
	Name string
	Val  string
}

// A value to add to a distinct-count bucket.
type DistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	// Applies all increments, for every period, in one batch.
	IncrementBatch(ctx context.Context, counts []Ref, distinct []DistinctRef) error
}

func Increment(ctx context.Context, cs CountStore, name, val string) error {
	return cs.IncrementBatch(ctx, []Ref{{Name: name, Val: val}}, nil)
}

func IncrementDistinct(ctx context.Context, cs CountStore, name, bucket, val string) error {
	return cs.IncrementBatch(ctx, nil, []DistinctRef{{Name: name, Bucket: bucket, Val: val}})
}

// Key of the bucket holding a counter for the period containing "now" (UTC).
func periodBucket(name, val, period string, now time.Time) (string, error) {
	now = now.UTC()
	switch period {
	case PeriodTotal:
		return name + "/" + val, nil
	case PeriodDay:
		return name + "/" + val + "/" + now.Format(time.DateOnly), nil
	case PeriodHour:
		return name + "/" + val + "/" + now.Format("2006-01-02T15"), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
}
