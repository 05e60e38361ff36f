package ledgerhttp

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var suggestGroup singleflight.Group

// singleflightSuggest collapses concurrent suggestion computations for the
// same entry into one.
func singleflightSuggest(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := suggestGroup.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}
