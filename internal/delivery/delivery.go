package delivery

import (
	"context"
	"errors"
)

// Delivery is one archive ready to leave the process.
type Delivery struct {
	Tenant    string
	Recipient string
	FileName  string
	Archive   []byte
	Summary   string
}

type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, d Delivery) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Deliver(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
