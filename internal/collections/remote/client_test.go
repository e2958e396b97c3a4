package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, kind enums.CollectionKind, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://api.test/v1/", kind, WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	return client
}

func authedContext() context.Context {
	return auth.WithSession(context.Background(), auth.Session{Token: "tok-123", UserID: "u1"})
}

func TestClientAddRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any

	client := newTestClient(t, enums.CollectionCart, func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))
		return jsonResponse(http.StatusCreated, `{"success":true,"data":{"id":501,"product_id":"sku-1","quantity":2,"product":{"id":"sku-1","name":"Linen Shirt","price":"49.90"}}}`), nil
	})

	item, err := client.Add(authedContext(), "sku-1", 2)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "http://api.test/v1/cart/items", captured.URL.String())
	assert.Equal(t, "Bearer tok-123", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "sku-1", payload["product_id"])
	assert.EqualValues(t, 2, payload["quantity"])

	assert.Equal(t, "501", item.EntryID.String())
	assert.False(t, item.ID.Valid, "server id names the entry, not the product")
	assert.Equal(t, "sku-1", item.ProductID.String())
	assert.Equal(t, "Linen Shirt", item.Name)
	require.NotNil(t, item.Price)
	assert.Equal(t, "49.9", item.Price.String())
	assert.Equal(t, 2, item.Quantity)
}

func TestClientAddDefaultsQuantity(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, enums.CollectionWishlist, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &payload)
		return jsonResponse(http.StatusOK, `{"success":true,"data":{"entry_id":"w-1","product":{"id":9}}}`), nil
	})

	item, err := client.Add(context.Background(), "9", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, payload["quantity"])
	assert.Equal(t, "w-1", item.EntryID.String())
	assert.Equal(t, "9", item.Product.ID.String())
}

func TestClientRemoveAndUpdate(t *testing.T) {
	var methods, urls []string
	var patchBody string

	client := newTestClient(t, enums.CollectionCart, func(req *http.Request) (*http.Response, error) {
		methods = append(methods, req.Method)
		urls = append(urls, req.URL.String())
		if req.Method == http.MethodPatch {
			body, _ := io.ReadAll(req.Body)
			patchBody = string(body)
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"id":"e/1","product_id":"p1","quantity":4}}`), nil
		}
		return jsonResponse(http.StatusOK, `{"success":true,"data":null}`), nil
	})

	require.NoError(t, client.Remove(context.Background(), "e/1"))

	qty := 4
	item, err := client.Update(context.Background(), "e/1", Changes{Quantity: &qty})
	require.NoError(t, err)

	assert.Equal(t, []string{http.MethodDelete, http.MethodPatch}, methods)
	assert.Equal(t, "http://api.test/v1/cart/items/e%2F1", urls[0])
	assert.JSONEq(t, `{"quantity":4}`, patchBody)
	assert.Equal(t, 4, item.Quantity)
	assert.Equal(t, "e/1", item.EntryID.String())
}

func TestClientListShapes(t *testing.T) {
	cases := map[string]string{
		"array":   `{"success":true,"data":[{"id":1,"product_id":"a"},{"id":2,"product":{"slug":"b-slug"}}]}`,
		"wrapped": `{"success":true,"data":{"items":[{"id":1,"product_id":"a"},{"id":2,"product":{"slug":"b-slug"}}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var target string
			client := newTestClient(t, enums.CollectionCompare, func(req *http.Request) (*http.Response, error) {
				target = req.URL.String()
				return jsonResponse(http.StatusOK, body), nil
			})

			items, err := client.List(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "http://api.test/v1/compare/", target)
			require.Len(t, items, 2)
			assert.Equal(t, "1", items[0].EntryID.String())
			assert.Equal(t, "a", items[0].ProductID.String())
			assert.Equal(t, "b-slug", items[1].Product.Slug)
		})
	}
}

func TestClientListKeepsProductIDBesideEntryID(t *testing.T) {
	client := newTestClient(t, enums.CollectionWishlist, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":true,"data":[{"entry_id":5,"id":"prod-1"},{"id":7,"product_id":"p7"}]}`), nil
	})

	items, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "5", items[0].EntryID.String())
	assert.Equal(t, "prod-1", items[0].ID.String())

	assert.Equal(t, "7", items[1].EntryID.String())
	assert.False(t, items[1].ID.Valid, "id doubles as the entry id when entry_id is absent")
	assert.Equal(t, "p7", items[1].ProductID.String())
}

func TestClientListEmptyData(t *testing.T) {
	client := newTestClient(t, enums.CollectionWishlist, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":true,"data":null}`), nil
	})
	items, err := client.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestClientErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		code     pkgerrors.Code
		message  string
		transErr error
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"success":false,"message":"Item not found"}`, code: pkgerrors.CodeNotFound, message: "Item not found"},
		{name: "server error", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, code: pkgerrors.CodeDependency},
		{name: "unauthorized", status: http.StatusUnauthorized, body: ``, code: pkgerrors.CodeUnauthorized},
		{name: "success false", status: http.StatusOK, body: `{"success":false,"message":"Out of stock"}`, code: pkgerrors.CodeDependency, message: "Out of stock"},
		{name: "transport", transErr: errors.New("connection reset"), code: pkgerrors.CodeDependency},
		{name: "garbage", status: http.StatusOK, body: `not json`, code: pkgerrors.CodeDependency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, enums.CollectionCart, func(*http.Request) (*http.Response, error) {
				if tc.transErr != nil {
					return nil, tc.transErr
				}
				return jsonResponse(tc.status, tc.body), nil
			})

			_, err := client.Add(context.Background(), "sku-1", 1)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, tc.code, typed.Code())
			if tc.message != "" {
				assert.Equal(t, tc.message, typed.Message())
			}
		})
	}
}

func TestClientValidation(t *testing.T) {
	_, err := NewClient("  ", enums.CollectionCart)
	assert.Error(t, err)
	_, err = NewClient("http://api.test", enums.CollectionKind("favorites"))
	assert.Error(t, err)

	client := newTestClient(t, enums.CollectionCart, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err = client.Add(context.Background(), " ", 1)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.Is(client.Remove(context.Background(), ""), pkgerrors.CodeValidation))
}

func TestClientAgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"10","product_id":"p-10"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, enums.CollectionWishlist)
	require.NoError(t, err)

	_, err = client.List(context.Background())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	items, err := client.List(authedContext())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p-10", items[0].ProductID.String())
}
