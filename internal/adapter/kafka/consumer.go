package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
	"github.com/niksmo/storefront/pkg/retry"
	"github.com/niksmo/storefront/pkg/schema"
	"github.com/twmb/franz-go/pkg/kgo"
)

////////////////////////////////////////////////////////
///////////////           OPTS            //////////////
////////////////////////////////////////////////////////

type ConsumerOpt func(*consumerOpts) error

// ConsumerClientOpt joins the consumer group on topic. Offsets are
// committed only after a batch was saved.
func ConsumerClientOpt(
	seedBrokers []string, topic, group string, extra ...kgo.Opt,
) ConsumerOpt {
	return func(co *consumerOpts) error {
		kopts := append([]kgo.Opt{
			kgo.SeedBrokers(seedBrokers...),
			kgo.ConsumeTopics(topic),
			kgo.ConsumerGroup(group),
			kgo.DisableAutoCommit(),
		}, extra...)

		cl, err := kgo.NewClient(kopts...)
		if err != nil {
			return err
		}
		co.cl = cl
		return nil
	}
}

// ConsumerWithClientOpt uses an already built client.
func ConsumerWithClientOpt(cl ConsumerClient) ConsumerOpt {
	return func(co *consumerOpts) error {
		if cl == nil {
			return errors.New("consumer client is nil")
		}
		co.cl = cl
		return nil
	}
}

func ConsumerDecoderOpt(decoder Decoder) ConsumerOpt {
	return func(co *consumerOpts) error {
		if decoder == nil {
			return errors.New("decoder is nil")
		}
		co.decoder = decoder
		return nil
	}
}

func CatalogConsumerSaverOpt(ps port.ProductsSaver) ConsumerOpt {
	return func(co *consumerOpts) error {
		if ps == nil {
			return errors.New("products saver is nil")
		}
		co.productsSaver = ps
		return nil
	}
}

// CatalogConsumerSaveRetryOpt overrides how a failed batch save is retried.
// The default saves the same batch again until it succeeds or ctx is done.
// A bounded MaxAttempts lets a later commit pass over the failed batch.
func CatalogConsumerSaveRetryOpt(cfg retry.RetryConfig) ConsumerOpt {
	return func(co *consumerOpts) error {
		co.saveRetry = &cfg
		return nil
	}
}

type consumerOpts struct {
	cl            ConsumerClient
	decoder       Decoder
	productsSaver port.ProductsSaver
	saveRetry     *retry.RetryConfig
}

// defaultSaveRetry retries until ctx is done.
func defaultSaveRetry() retry.RetryConfig {
	return retry.RetryConfig{
		MaxAttempts: math.MaxInt,
		Backoff: retry.CappedBackoff(
			retry.ExponentialBackoff(100*time.Millisecond), 10*time.Second,
		),
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		},
	}
}

func (co *consumerOpts) apply(opts ...ConsumerOpt) error {
	for _, opt := range opts {
		if err := opt(co); err != nil {
			return err
		}
	}
	return nil
}

////////////////////////////////////////////////////////
////////////           CONSUMERS            ////////////
////////////////////////////////////////////////////////

// A consumer is used for composition.
//
// Fetching records from kafka broker and closing underlying [kgo.Client].

type consumerParent interface {
	processFetches(context.Context, kgo.Fetches) error
}

type consumer struct {
	opPrefix      string
	parent        consumerParent
	cl            ConsumerClient
	slowDownTimer *time.Timer
}

func (c consumer) run(ctx context.Context) {
	const op = "run"
	log := slog.With("op", makeOp(c.opPrefix, op))

	log.Info("running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := c.consume(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				log.Error("failed to consume", "err", err)
				c.slowDown(ctx)
			}
		}
	}
}

func (c consumer) consume(ctx context.Context) error {
	const op = "consume"

	fetches, err := c.pollFetches(ctx)
	if err != nil {
		return opErr(err, c.opPrefix, op)
	}

	if fetches.Empty() {
		return nil
	}

	err = c.parent.processFetches(ctx, fetches)
	if err != nil {
		return opErr(err, c.opPrefix, op)
	}

	err = c.commit(ctx)
	if err != nil {
		return opErr(err, c.opPrefix, op)
	}
	return nil
}

func (c consumer) pollFetches(ctx context.Context) (kgo.Fetches, error) {
	const op = "pollFetches"

	fetches := c.cl.PollFetches(ctx)
	if err := fetches.Err0(); err != nil {
		return nil, opErr(err, c.opPrefix, op)
	}

	err := c.handleFetchesErrs(fetches)
	if err != nil {
		return nil, opErr(err, c.opPrefix, op)
	}

	return fetches, nil
}

func (c consumer) handleFetchesErrs(fetches kgo.Fetches) error {
	var errsMessages []string
	fetches.EachError(func(t string, p int32, err error) {
		if err != nil {
			errMsg := fmt.Sprintf(
				"topic %q partition %d: %q", t, p, err,
			)
			errsMessages = append(errsMessages, errMsg)
		}
	})

	if len(errsMessages) != 0 {
		return errors.New(strings.Join(errsMessages, "; "))
	}
	return nil
}

func (c consumer) slowDown(ctx context.Context) {
	c.slowDownTimer.Reset(1 * time.Second)
	select {
	case <-ctx.Done():
	case <-c.slowDownTimer.C:
	}
}

func (c consumer) commit(ctx context.Context) error {
	const op = "commit"

	err := ctx.Err()
	if err != nil {
		return opErr(err, c.opPrefix, op)
	}

	err = c.cl.CommitUncommittedOffsets(ctx)
	if err != nil {
		return opErr(err, c.opPrefix, op)
	}
	return nil
}

func (c consumer) close() {
	const op = "close"
	log := slog.With("op", makeOp(c.opPrefix, op))

	c.slowDownTimer.Stop()

	log.Info("closing consumer...")
	c.cl.Close()
	log.Info("consumer is closed")
}

// A CatalogConsumer consumes catalog records
// then sends them to the core service for save.
type CatalogConsumer struct {
	opPrefix  string
	consumer  consumer
	saver     port.ProductsSaver
	decoder   Decoder
	saveRetry retry.RetryConfig
}

func NewCatalogConsumer(opts ...ConsumerOpt) (cc CatalogConsumer, err error) {
	const op = "NewCatalogConsumer"

	var options consumerOpts
	if err := options.apply(opts...); err != nil {
		return cc, opErr(err, op)
	}
	if options.cl == nil || options.decoder == nil || options.productsSaver == nil {
		return cc, opErr(ErrTooFewOpts, op)
	}

	opPrefix := "CatalogConsumer"

	cc.opPrefix = opPrefix
	cc.saver = options.productsSaver
	cc.decoder = options.decoder
	cc.saveRetry = defaultSaveRetry()
	if options.saveRetry != nil {
		cc.saveRetry = *options.saveRetry
	}

	cc.consumer = consumer{
		opPrefix:      opPrefix,
		parent:        cc,
		cl:            options.cl,
		slowDownTimer: time.NewTimer(0),
	}

	return cc, nil
}

func (c CatalogConsumer) Run(ctx context.Context) {
	c.consumer.run(ctx)
}

func (c CatalogConsumer) Close() {
	c.consumer.close()
}

func (c CatalogConsumer) processFetches(
	ctx context.Context, fetches kgo.Fetches,
) error {
	const op = "processFetches"

	log := slog.With("op", makeOp(c.opPrefix, op))

	values := c.toDomain(fetches)
	if len(values) == 0 {
		return nil
	}

	// The client has already moved past these records, so giving up here
	// would let the next commit skip them.
	err := retry.Do(ctx, c.saveRetry, func() error {
		err := c.saver.SaveProducts(ctx, values)
		if err != nil {
			log.Warn("failed to save products, retrying",
				"nProducts", len(values), "err", err)
		}
		return err
	})
	if err != nil {
		return opErr(err, c.opPrefix, op)
	}
	return nil
}

func (c CatalogConsumer) toDomain(
	fetches kgo.Fetches,
) (vs []domain.Product) {
	const op = "toDomain"
	log := slog.With("op", makeOp(c.opPrefix, op))

	fetches.EachRecord(func(r *kgo.Record) {
		v, err := c.decodeRecValue(r)
		if err != nil {
			log.Error(
				"failed to decode value",
				"err", opErr(err, c.opPrefix, op),
				"offset", r.Offset,
			)
			return
		}
		vs = append(vs, v)
	})
	return vs
}

func (c CatalogConsumer) decodeRecValue(
	r *kgo.Record,
) (domain.Product, error) {
	var s schema.CatalogProductV1
	err := c.decoder.Decode(r.Value, &s)
	if err != nil {
		return domain.Product{}, err
	}
	return schemaV1ToProduct(s), nil
}
