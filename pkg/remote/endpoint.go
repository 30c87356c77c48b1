package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/openfga/datagate/pkg/requestid"
)

// Endpoint is a JSON resource collection of a remote service:
//
//	GET <path>?params        {"items": [...]}
//	GET <path>/count?params  {"count": n}
//	GET <path>/<id>          {...}, 404 when absent
type Endpoint[R any] struct {
	client *Client
	path   string
}

func NewEndpoint[R any](client *Client, path string) *Endpoint[R] {
	return &Endpoint[R]{client: client, path: path}
}

func (e *Endpoint[R]) parse(body []byte, path string) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json", errUnparsable)
	}
	if path == "" {
		return gjson.ParseBytes(body), nil
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: missing %q", errUnparsable, path)
	}
	return result, nil
}

func (e *Endpoint[R]) unparsable(ctx context.Context, err error) error {
	return &UnderpinningServiceError{Service: e.client.service, StatusCode: 200, CorrelationID: correlationID(ctx), Err: err}
}

func decode[R any](raw string) (R, error) {
	var record R
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return record, fmt.Errorf("%w: %w", errUnparsable, err)
	}
	return record, nil
}

// Collect returns every item matching params.
func (e *Endpoint[R]) Collect(ctx context.Context, params url.Values) ([]R, error) {
	ctx = withCorrelation(ctx)
	body, _, err := e.client.get(ctx, e.path, params, false)
	if err != nil {
		return nil, err
	}

	items, err := e.parse(body, "items")
	if err == nil && !items.IsArray() {
		err = fmt.Errorf("%w: items is not an array", errUnparsable)
	}
	if err != nil {
		return nil, e.unparsable(ctx, err)
	}

	elements := items.Array()
	records := make([]R, 0, len(elements))
	for _, element := range elements {
		record, err := decode[R](element.Raw)
		if err != nil {
			return nil, e.unparsable(ctx, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Count returns the number of items matching params.
func (e *Endpoint[R]) Count(ctx context.Context, params url.Values) (int, error) {
	ctx = withCorrelation(ctx)
	body, _, err := e.client.get(ctx, e.path+"/count", params, false)
	if err != nil {
		return 0, err
	}

	count, err := e.parse(body, "count")
	if err == nil && count.Type != gjson.Number {
		err = fmt.Errorf("%w: count is not a number", errUnparsable)
	}
	if err != nil {
		return 0, e.unparsable(ctx, err)
	}
	return int(count.Int()), nil
}

// ByID returns the item with the given identifier; found is false on 404.
func (e *Endpoint[R]) ByID(ctx context.Context, id string) (record R, found bool, err error) {
	ctx = withCorrelation(ctx)
	body, found, err := e.client.get(ctx, e.path+"/"+url.PathEscape(id), nil, true)
	if err != nil || !found {
		return record, false, err
	}

	if _, err := e.parse(body, ""); err != nil {
		return record, false, e.unparsable(ctx, err)
	}
	record, err = decode[R](string(body))
	if err != nil {
		return record, false, e.unparsable(ctx, err)
	}
	return record, true, nil
}

func withCorrelation(ctx context.Context) context.Context {
	ctx, _ = requestid.Ensure(ctx)
	return ctx
}

func correlationID(ctx context.Context) string {
	id, _ := requestid.FromContext(ctx)
	return id
}
