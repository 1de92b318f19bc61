package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/pkg/schema"
	"github.com/twmb/franz-go/pkg/kgo"
)

var ErrTooFewOpts = errors.New("too few options")

type ProducerOpt func(*producerOpts) error

type producerOpts struct {
	cl      ProducerClient
	encoder Encoder
}

// ProducerClientOpt connects a producing client to the brokers. Extra
// options, such as [kgo.DialTLSConfig], are passed to the client as is.
func ProducerClientOpt(
	ctx context.Context, seedBrokers []string, topic string, extra ...kgo.Opt,
) ProducerOpt {
	return func(opts *producerOpts) error {
		kopts := append([]kgo.Opt{
			kgo.SeedBrokers(seedBrokers...),
			kgo.DefaultProduceTopicAlways(),
			kgo.DefaultProduceTopic(topic),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.AllowAutoTopicCreation(),
		}, extra...)

		cl, err := kgo.NewClient(kopts...)
		if err != nil {
			return err
		}

		if err := cl.Ping(ctx); err != nil {
			cl.Close()
			return err
		}
		opts.cl = cl
		return nil
	}
}

// ProducerWithClientOpt uses an already built client.
func ProducerWithClientOpt(cl ProducerClient) ProducerOpt {
	return func(opts *producerOpts) error {
		if cl == nil {
			return errors.New("producer client is nil")
		}
		opts.cl = cl
		return nil
	}
}

func ProducerEncoderOpt(encoder Encoder) ProducerOpt {
	return func(opts *producerOpts) error {
		if encoder == nil {
			return errors.New("encoder is nil")
		}
		opts.encoder = encoder
		return nil
	}
}

type ProducerClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

type ConsumerClient interface {
	PollFetches(context.Context) kgo.Fetches
	CommitUncommittedOffsets(context.Context) error
	Close()
}

type Encoder interface {
	Encode(v any) ([]byte, error)
}

type Decoder interface {
	Decode(b []byte, v any) error
}

func makeOp(s ...string) string {
	return strings.Join(s, ".")
}

func opErr(err error, op ...string) error {
	return fmt.Errorf("%s: %w", makeOp(op...), err)
}

func orderToSchemaV1(v domain.Order) (s schema.OrderPlacedV1) {
	s.OrderID = v.ID
	s.UserID = v.UserID
	s.TotalPrice = v.TotalPrice
	s.Status = string(v.Status)
	s.CreatedAt = v.CreatedAt

	s.Lines = make([]schema.OrderLineV1, len(v.Lines))
	for i, l := range v.Lines {
		s.Lines[i].ProductID = l.ProductID
		s.Lines[i].Quantity = l.Quantity
		s.Lines[i].PriceAtPurchase = l.PriceAtPurchase
	}
	return
}

func schemaV1ToProduct(s schema.CatalogProductV1) (v domain.Product) {
	v.ID = s.ProductID
	v.Name = s.Name
	v.Category = s.Category
	v.SubCategory = s.SubCategory
	v.Brand = s.Brand
	v.Type = s.Type
	v.Description = s.Description
	v.ImageURL = s.ImageURL
	v.Price = s.Price
	v.MarketPrice = s.MarketPrice
	v.Rating = s.Rating
	v.Stock = s.Stock
	return
}
