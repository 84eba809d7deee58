// Package provider abstracts the external tour-supply system. The engine only
// depends on this capability surface; real partner clients live elsewhere.
package provider

import (
	"context"
	"time"
)

type SearchRequest struct {
	Destination string
	DateStart   time.Time
	DateEnd     time.Time
	Units       int
}

type TourSummary struct {
	ProviderTourID string
	Title          string
	Destination    string
	AdultPrice     float64
	Currency       string
}

type BookRequest struct {
	ProductID string
	Reference string
	Date      time.Time
	Units     int
}

type BookResult struct {
	SupplierReference string
}

// Adapter is the capability interface for a tour supplier.
type Adapter interface {
	Search(ctx context.Context, req SearchRequest) ([]TourSummary, error)
	Detail(ctx context.Context, providerTourID string) (TourSummary, error)
	Book(ctx context.Context, req BookRequest) (BookResult, error)
	Cancel(ctx context.Context, supplierReference string) error
}

// Noop satisfies Adapter for deployments without a live supplier integration.
type Noop struct{}

func (Noop) Search(context.Context, SearchRequest) ([]TourSummary, error) {
	return nil, nil
}

func (Noop) Detail(context.Context, string) (TourSummary, error) {
	return TourSummary{}, nil
}

func (Noop) Book(_ context.Context, req BookRequest) (BookResult, error) {
	return BookResult{SupplierReference: req.Reference}, nil
}

func (Noop) Cancel(context.Context, string) error {
	return nil
}
