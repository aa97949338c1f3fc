package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/domain/product"
	"github.com/xenking/giftkart/internal/idempotency"
	"github.com/xenking/giftkart/internal/repository/memory"
)

var pepper = []byte("test-pepper")

const (
	customerKey = "customer-key"
	otherKey    = "other-key"
	adminKey    = "admin-key"
	approverKey = "approver-key"
)

const shippingJSON = `{"name":"Ada","line1":"1 Main St","city":"Springfield","postalCode":"12345","country":"US"}`

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type testAPI struct {
	store  *memory.Store
	router http.Handler
}

func newTestAPI(t *testing.T, idem Idempotency) *testAPI {
	t.Helper()
	store := memory.New()
	store.PutProduct(product.Product{
		ID: "mug", SKU: "MUG-01", Name: "Logo Mug", Category: "drinkware",
		RegularPrice: d("10"), StockQuantity: 10, Active: true,
		Options: []product.Option{{
			Name: "Color",
			Values: []product.OptionValue{
				{Value: "white", PriceAdjustment: d("0")},
				{Value: "black", PriceAdjustment: d("1.5")},
			},
		}},
	})
	store.PutProduct(product.Product{
		ID: "old", SKU: "OLD-01", Name: "Retired Cap", Category: "apparel",
		RegularPrice: d("5"), StockQuantity: 3, Active: false,
	})
	store.PutCoupon(coupon.Coupon{
		Code: "SAVE10", DiscountType: coupon.DiscountFixed, Value: d("10"), Active: true,
	})
	for _, k := range []struct {
		key, user string
		role      auth.Role
	}{
		{customerKey, "u1", auth.RoleCustomer},
		{otherKey, "u2", auth.RoleCustomer},
		{adminKey, "ops", auth.RoleAdmin},
		{approverKey, "finance", auth.RoleApprover},
	} {
		store.PutAPIKey(auth.APIKeyInfo{
			ID: k.user, KeyHash: auth.HashKey(pepper, k.key), Name: k.user, UserID: k.user, Role: k.role,
		})
	}

	svc, err := order.NewService(order.Deps{
		Store:    store,
		Orders:   store.Orders(),
		Carts:    store.Carts(),
		Products: store.Products(),
		Coupons:  store.Coupons(),
	}, order.Options{})
	require.NoError(t, err)

	h := New(store.Products(), store.Carts(), svc, idem)
	return &testAPI{store: store, router: h.Router(NewSecurity(store.APIKeys(), pepper))}
}

func (a *testAPI) do(t *testing.T, method, path, key, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) addMug(t *testing.T, key string, qty int) {
	t.Helper()
	w := a.do(t, http.MethodPut, "/api/cart/items", key, `{"productId":"mug","quantity":`+itoa(qty)+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (a *testAPI) checkout(t *testing.T, key string) orderBody {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/orders", key, `{"shipping":`+shippingJSON+`,"paymentMethod":"card"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[orderBody](t, w)
}

func (a *testAPI) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := a.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type errorBody struct {
	Code    int            `json:"code"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type pricingBody struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

type orderBody struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"orderNumber"`
	UserID      string      `json:"userId"`
	Status      string      `json:"status"`
	Pricing     pricingBody `json:"pricing"`
	Items       []struct {
		ProductID string          `json:"productId"`
		Quantity  int             `json:"quantity"`
		LineTotal decimal.Decimal `json:"lineTotal"`
	} `json:"items"`
	Corporate *struct {
		ApprovalStatus string `json:"approvalStatus"`
		ApprovedBy     string `json:"approvedBy"`
	} `json:"corporate"`
	Tracking *struct {
		Carrier string `json:"carrier"`
		Number  string `json:"number"`
	} `json:"tracking"`
	StatusHistory []struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
	} `json:"statusHistory"`
	CancelReason string `json:"cancelReason"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) errorBody {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode[errorBody](t, w)
	assert.Equal(t, status, body.Code)
	assert.Equal(t, kind, body.Error)
	assert.NotEmpty(t, body.Message)
	return body
}

func TestSecurity(t *testing.T) {
	api := newTestAPI(t, nil)

	requireError(t, api.do(t, http.MethodGet, "/api/products", "", ""), http.StatusUnauthorized, "Unauthenticated")
	requireError(t, api.do(t, http.MethodGet, "/api/products", "wrong", ""), http.StatusUnauthorized, "Unauthenticated")
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/products", customerKey, "").Code)
}

func TestSecurity_StoredHashMismatch(t *testing.T) {
	s := NewSecurity(stubKeys{info: &auth.APIKeyInfo{KeyHash: auth.HashKey(pepper, "another"), UserID: "u1", Role: auth.RoleCustomer}}, pepper)
	_, err := s.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil), customerKey)
	require.ErrorIs(t, err, errUnauthenticated)
}

type stubKeys struct {
	info *auth.APIKeyInfo
	err  error
}

func (s stubKeys) FindByHash(context.Context, string) (*auth.APIKeyInfo, error) { return s.info, s.err }

func TestProducts(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/api/products", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]struct {
		ID           string          `json:"id"`
		RegularPrice decimal.Decimal `json:"regularPrice"`
		Options      []struct {
			Name string `json:"name"`
		} `json:"options"`
	}](t, w)
	require.Len(t, list, 2)

	w = api.do(t, http.MethodGet, "/api/products/mug", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"regularPrice":10.00`)
	assert.Contains(t, w.Body.String(), `"name":"Color"`)

	requireError(t, api.do(t, http.MethodGet, "/api/products/nope", customerKey, ""), http.StatusNotFound, "NotFound")
}

func TestCart(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/api/cart", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[struct {
		Pricing pricingBody `json:"pricing"`
	}](t, w).Pricing.Total.IsZero())

	w = api.do(t, http.MethodPut, "/api/cart/items", customerKey,
		`{"productId":"mug","quantity":2,"selections":[{"option":"Color","value":"black"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	q := decode[struct {
		Items   []struct{ LineTotal decimal.Decimal } `json:"items"`
		Pricing pricingBody                          `json:"pricing"`
	}](t, w)
	require.Len(t, q.Items, 1)
	assert.True(t, d("23").Equal(q.Items[0].LineTotal), q.Items[0].LineTotal.String())
	assert.True(t, d("23").Equal(q.Pricing.Subtotal))

	w = api.do(t, http.MethodDelete, "/api/cart/items/mug", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestCart_Errors(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed", `{"productId":`, http.StatusBadRequest, "BadRequest"},
		{"zero quantity", `{"productId":"mug","quantity":0}`, http.StatusBadRequest, "BadRequest"},
		{"unknown product", `{"productId":"nope","quantity":1}`, http.StatusNotFound, "NotFound"},
		{"inactive product", `{"productId":"old","quantity":1}`, http.StatusBadRequest, "ProductUnavailable"},
		{"unknown selection", `{"productId":"mug","quantity":1,"selections":[{"option":"Color","value":"pink"}]}`, http.StatusBadRequest, "InvalidSelection"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, api.do(t, http.MethodPut, "/api/cart/items", customerKey, tt.body), tt.status, tt.kind)
		})
	}

	body := requireError(t, api.do(t, http.MethodPut, "/api/cart/items", customerKey, `{"quantity":1}`), http.StatusBadRequest, "BadRequest")
	assert.Equal(t, "required", body.Details["setCartItemRequest.ProductID"])
}

func TestValidateCoupon(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodPost, "/api/coupons/validate", customerKey, `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false,"reason":"cart is empty"}`, w.Body.String())

	api.addMug(t, customerKey, 3)
	w = api.do(t, http.MethodPost, "/api/coupons/validate", customerKey, `{"code":" save10 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Valid    bool            `json:"valid"`
		Discount decimal.Decimal `json:"discount"`
	}](t, w)
	assert.True(t, res.Valid)
	assert.True(t, d("10").Equal(res.Discount))

	w = api.do(t, http.MethodPost, "/api/coupons/validate", customerKey, `{"code":"NOPE"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false,"reason":"coupon not found"}`, w.Body.String())
}

func TestPlaceOrder(t *testing.T) {
	api := newTestAPI(t, nil)
	api.addMug(t, customerKey, 2)

	o := api.checkout(t, customerKey)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "pending", o.Status)
	assert.Regexp(t, `^ORD\d{6}0001$`, o.OrderNumber)
	// 20 + 18% tax + 25 shipping.
	assert.True(t, d("48.6").Equal(o.Pricing.Total), o.Pricing.Total.String())
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, 8, api.stock(t, "mug"))

	requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey,
		`{"shipping":`+shippingJSON+`,"paymentMethod":"card"}`), http.StatusBadRequest, "EmptyCart")
}

func TestPlaceOrder_Errors(t *testing.T) {
	api := newTestAPI(t, nil)
	api.addMug(t, customerKey, 2)

	body := requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey,
		`{"shipping":`+shippingJSON+`,"paymentMethod":"barter"}`), http.StatusBadRequest, "BadRequest")
	assert.Equal(t, "oneof", body.Details["placeOrderRequest.PaymentMethod"])

	body = requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey,
		`{"shipping":`+shippingJSON+`,"paymentMethod":"card","couponCode":"NOPE"}`), http.StatusBadRequest, "InvalidCoupon")
	assert.Equal(t, "NOPE", body.Details["code"])
	assert.Equal(t, "coupon not found", body.Details["reason"])

	api.addMug(t, customerKey, 11)
	body = requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey,
		`{"shipping":`+shippingJSON+`,"paymentMethod":"card"}`), http.StatusBadRequest, "InsufficientStock")
	assert.Equal(t, "mug", body.Details["productId"])
	assert.EqualValues(t, 11, body.Details["requested"])
	assert.EqualValues(t, 10, body.Details["available"])
	assert.Equal(t, 10, api.stock(t, "mug"))
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	api := newTestAPI(t, idempotency.NewRedisStore(client, time.Hour))
	api.addMug(t, customerKey, 2)

	body := `{"shipping":` + shippingJSON + `,"paymentMethod":"card"}`
	first := api.do(t, http.MethodPost, "/api/orders", customerKey, body, IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	retry := api.do(t, http.MethodPost, "/api/orders", customerKey, body, IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
	assert.Equal(t, "true", retry.Header().Get(ReplayedHeader))
	assert.Equal(t, decode[orderBody](t, first).ID, decode[orderBody](t, retry).ID)
	assert.Equal(t, 8, api.stock(t, "mug"))

	// A failed checkout releases its key.
	requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey, body, IdempotencyKeyHeader, "k-2"),
		http.StatusBadRequest, "EmptyCart")
	assert.False(t, mr.Exists("giftkart:idem:u1:k-2"))

	// A key still being processed is rejected.
	require.NoError(t, mr.Set("giftkart:idem:u1:k-3", "pending"))
	requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey, body, IdempotencyKeyHeader, "k-3"),
		http.StatusConflict, "IdempotencyInProgress")

	requireError(t, api.do(t, http.MethodPost, "/api/orders", customerKey, body, IdempotencyKeyHeader, "bad key"),
		http.StatusBadRequest, "BadRequest")
}

func TestOrderLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)
	api.addMug(t, customerKey, 2)
	o := api.checkout(t, customerKey)
	path := "/api/orders/" + o.ID

	requireError(t, api.do(t, http.MethodGet, path, otherKey, ""), http.StatusNotFound, "NotFound")
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, customerKey, "").Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, adminKey, "").Code)

	requireError(t, api.do(t, http.MethodPatch, path+"/status", customerKey, `{"status":"confirmed"}`),
		http.StatusForbidden, "Unauthorized")

	body := requireError(t, api.do(t, http.MethodPatch, path+"/status", adminKey, `{"status":"shipped"}`),
		http.StatusBadRequest, "InvalidTransition")
	assert.Equal(t, "pending", body.Details["from"])
	assert.Equal(t, "shipped", body.Details["to"])

	for _, status := range []string{"confirmed", "processing"} {
		w := api.do(t, http.MethodPatch, path+"/status", adminKey, `{"status":"`+status+`"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := api.do(t, http.MethodPatch, path+"/status", adminKey,
		`{"status":"shipped","carrier":"UPS","trackingNumber":"1Z999"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shipped := decode[orderBody](t, w)
	require.NotNil(t, shipped.Tracking)
	assert.Equal(t, "1Z999", shipped.Tracking.Number)

	requireError(t, api.do(t, http.MethodPatch, path+"/cancel", customerKey, `{"reason":"too late"}`),
		http.StatusBadRequest, "InvalidTransition")

	w = api.do(t, http.MethodGet, "/api/orders", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]orderBody](t, w)
	require.Len(t, list, 1)
	assert.Len(t, list[0].StatusHistory, 4)
}

func TestCancelOrder(t *testing.T) {
	api := newTestAPI(t, nil)
	api.addMug(t, customerKey, 4)
	o := api.checkout(t, customerKey)
	require.Equal(t, 6, api.stock(t, "mug"))

	w := api.do(t, http.MethodPatch, "/api/orders/"+o.ID+"/cancel", customerKey, `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cancelled := decode[orderBody](t, w)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)
	assert.Equal(t, 10, api.stock(t, "mug"))

	requireError(t, api.do(t, http.MethodPatch, "/api/orders/"+o.ID+"/cancel", customerKey, ""),
		http.StatusBadRequest, "InvalidTransition")
	assert.Equal(t, 10, api.stock(t, "mug"))

	requireError(t, api.do(t, http.MethodPatch, "/api/orders/missing/cancel", adminKey, ""),
		http.StatusNotFound, "NotFound")
}

func TestApproveOrder(t *testing.T) {
	api := newTestAPI(t, nil)
	api.addMug(t, customerKey, 1)
	w := api.do(t, http.MethodPost, "/api/orders", customerKey,
		`{"shipping":`+shippingJSON+`,"paymentMethod":"invoice","corporate":{"companyName":"Acme","poNumber":"PO-7"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[orderBody](t, w)
	require.Equal(t, "pending_approval", o.Status)
	path := "/api/orders/" + o.ID

	requireError(t, api.do(t, http.MethodPatch, path+"/status", adminKey, `{"status":"confirmed"}`),
		http.StatusBadRequest, "InvalidTransition")
	requireError(t, api.do(t, http.MethodPatch, path+"/approve", customerKey, `{"approved":true}`),
		http.StatusForbidden, "Unauthorized")
	requireError(t, api.do(t, http.MethodPatch, path+"/approve", approverKey, `{"notes":"missing decision"}`),
		http.StatusBadRequest, "BadRequest")

	w = api.do(t, http.MethodPatch, path+"/approve", approverKey, `{"approved":true,"notes":"within budget"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[orderBody](t, w)
	assert.Equal(t, "confirmed", approved.Status)
	require.NotNil(t, approved.Corporate)
	assert.Equal(t, "approved", approved.Corporate.ApprovalStatus)
	assert.Equal(t, "finance", approved.Corporate.ApprovedBy)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t, nil)
	requireError(t, api.do(t, http.MethodGet, "/api/nothing", customerKey, ""), http.StatusNotFound, "NotFound")
}

func TestWriteError_CheckoutConflicts(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{order.ErrCartChanged, http.StatusConflict, "CartChanged"},
		{&order.InvalidQuantityError{ProductID: "mug"}, http.StatusBadRequest, "InvalidQuantity"},
		{order.ErrOrderCreationTimeout, http.StatusServiceUnavailable, "OrderCreationTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest(http.MethodPost, "/api/orders", nil), tt.err)
			requireError(t, w, tt.status, tt.kind)
		})
	}
}
