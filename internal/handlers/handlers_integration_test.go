package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meronepal/internal/gateways"
	"meronepal/internal/handlers"
	"meronepal/internal/middleware"
	"meronepal/internal/models"
	"meronepal/internal/repositories"
	"meronepal/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testApp bundles the Fiber app with the collaborators tests poke at directly.
type testApp struct {
	app      *fiber.App
	payments repositories.PaymentRepository
}

// setupApp wires the full HTTP surface against a throwaway SQLite database.
// esewaBaseURL points the eSewa adapter at a test server; pass any URL when
// the test never verifies a payment.
func setupApp(t *testing.T, esewaBaseURL string) *testApp {
	t.Helper()

	// Configure Viper the way the entrypoint does.
	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()
	jwtSecret := viper.GetString("JWT_SECRET")

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.PaymentAttempt{},
		&models.OrderCounter{},
	))

	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	paymentRepo := repositories.NewGORMPaymentRepository(db)
	counterRepo := repositories.NewGORMCounterRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	esewa := gateways.NewEsewa(gateways.EsewaConfig{
		BaseURL:     esewaBaseURL,
		ProductCode: "EPAYTEST",
		SecretKey:   "8gBm/:&EnhH.1/q",
		SuccessURL:  "http://localhost/api/v1/payments/esewa/callback",
		FailureURL:  "http://localhost/payment/failed",
		Timeout:     2 * time.Second,
	})

	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(orderRepo, productRepo, counterRepo, nil)
	paymentService := services.NewPaymentService(paymentRepo, orderRepo, orderService, esewa)
	authService := services.NewAuthService(userRepo, jwtSecret)

	authHandler := handlers.NewAuthHandler(authService)
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")

	authHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterCallbackRoutes(apiV1)

	apiV1.Use(middleware.AuthRequired(authService))
	productHandler.RegisterRoutes(apiV1)
	orderHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterRoutes(apiV1)

	return &testApp{app: app, payments: paymentRepo}
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	code := m.Run()
	os.Exit(code)
}

// doJSON performs a JSON request against the app and decodes the response
// body into a generic map.
func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// registerAndLogin creates an account with the given role and returns its
// bearer token and user id.
func registerAndLogin(t *testing.T, app *fiber.App, username string, role models.Role) (token, userID string) {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
		"role":     string(role),
	})
	require.Equal(t, http.StatusCreated, status, "register %s: %v", username, body)
	user := body["user"].(map[string]interface{})
	userID = user["id"].(string)

	status, body = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	token = body["token"].(string)
	require.NotEmpty(t, token)
	return token, userID
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ta := setupApp(t, "http://esewa.invalid")

	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User registered successfully", body["message"])
	// Accounts default to the buyer role.
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "buyer", user["role"])

	// Duplicate registration (username)
	status, _ = doJSON(t, ta.app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "testuser",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)

	// Login
	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "testuser",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])
	// The login response carries the account's id and role so clients can
	// gate their UI without decoding the token.
	assert.Equal(t, "buyer", body["role"])
	assert.NotEmpty(t, body["user_id"])

	// Wrong password
	status, _ = doJSON(t, ta.app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "testuser",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ta := setupApp(t, "http://esewa.invalid")

	for _, path := range []string{"/api/v1/products/", "/api/v1/orders/"} {
		status, _ := doJSON(t, ta.app, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, "GET %s without token", path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

// createApprovedProduct walks a listing through creation and admin approval.
func createApprovedProduct(t *testing.T, app *fiber.App, sellerToken, adminToken string, price float64, stock int) string {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/api/v1/products/", sellerToken, map[string]interface{}{
		"name":        "Pashmina Shawl",
		"description": "Hand-woven pashmina shawl",
		"price":       price,
		"stock":       stock,
	})
	require.Equal(t, http.StatusCreated, status, "create product: %v", body)
	productID := body["id"].(string)
	require.Equal(t, "pending", body["verification_status"])

	status, body = doJSON(t, app, http.MethodPatch, "/api/v1/products/"+productID+"/verification", adminToken, map[string]string{
		"status": "approved",
	})
	require.Equal(t, http.StatusOK, status, "approve product: %v", body)
	require.Equal(t, "approved", body["verification_status"])
	return productID
}

func TestProductLifecycleAndRoles(t *testing.T) {
	ta := setupApp(t, "http://esewa.invalid")
	buyerToken, _ := registerAndLogin(t, ta.app, "buyer1", models.RoleBuyer)
	sellerToken, _ := registerAndLogin(t, ta.app, "seller1", models.RoleSeller)
	adminToken, _ := registerAndLogin(t, ta.app, "admin1", models.RoleAdmin)

	// Buyers cannot create listings.
	status, _ := doJSON(t, ta.app, http.MethodPost, "/api/v1/products/", buyerToken, map[string]interface{}{
		"name": "Sneaky Listing", "price": 10.0, "stock": 1,
	})
	assert.Equal(t, http.StatusForbidden, status)

	// Buyers cannot verify either.
	productID := createApprovedProduct(t, ta.app, sellerToken, adminToken, 4500, 10)
	status, _ = doJSON(t, ta.app, http.MethodPatch, "/api/v1/products/"+productID+"/verification", buyerToken, map[string]string{
		"status": "rejected",
	})
	assert.Equal(t, http.StatusForbidden, status)

	// An unapproved listing cannot be ordered.
	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/products/", sellerToken, map[string]interface{}{
		"name": "Unreviewed Bowl", "price": 2750.0, "stock": 5,
	})
	require.Equal(t, http.StatusCreated, status)
	pendingID := body["id"].(string)

	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(pendingID, 1))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PRODUCT_UNAVAILABLE", body["code"])
}

// orderPayload builds a single-line checkout request.
func orderPayload(productID string, qty int) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": productID, "quantity": qty},
		},
		"shipping_address": map[string]string{
			"full_name": "Sita Sharma",
			"line1":     "Lazimpat Road",
			"city":      "Kathmandu",
			"phone":     "9800000000",
		},
		"payment_method": "esewa",
		"shipping_cost":  100,
	}
}

func TestOrderCheckoutFlow(t *testing.T) {
	ta := setupApp(t, "http://esewa.invalid")
	buyerToken, buyerID := registerAndLogin(t, ta.app, "buyer1", models.RoleBuyer)
	otherToken, _ := registerAndLogin(t, ta.app, "buyer2", models.RoleBuyer)
	sellerToken, _ := registerAndLogin(t, ta.app, "seller1", models.RoleSeller)
	adminToken, _ := registerAndLogin(t, ta.app, "admin1", models.RoleAdmin)
	productID := createApprovedProduct(t, ta.app, sellerToken, adminToken, 1000, 10)

	// Place the order: totals are computed server-side, stock is reserved.
	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(productID, 2))
	require.Equal(t, http.StatusCreated, status, "create order: %v", body)
	orderID := body["id"].(string)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "pending", body["payment_status"])
	assert.Equal(t, 2000.0, body["subtotal"])
	assert.Equal(t, 2100.0, body["total_amount"])
	assert.Equal(t, buyerID, body["buyer_id"])
	assert.Regexp(t, `^MN-\d{4}-\d{6}$`, body["order_number"])

	status, body = doJSON(t, ta.app, http.MethodGet, "/api/v1/products/"+productID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 8.0, body["stock"])

	// Ordering more than remains is a conflict and leaves stock untouched.
	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(productID, 50))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_INVENTORY", body["code"])
	status, body = doJSON(t, ta.app, http.MethodGet, "/api/v1/products/"+productID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 8.0, body["stock"])

	// Only participants can read the order.
	status, _ = doJSON(t, ta.app, http.MethodGet, "/api/v1/orders/"+orderID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = doJSON(t, ta.app, http.MethodGet, "/api/v1/orders/"+orderID, sellerToken, nil)
	assert.Equal(t, http.StatusOK, status)

	// The order appears in the buyer's listing.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil)
	req.Header.Set("Authorization", "Bearer "+buyerToken)
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	var orders []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	resp.Body.Close()
	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0]["id"])
}

func TestOrderStatusTransitionsOverHTTP(t *testing.T) {
	ta := setupApp(t, "http://esewa.invalid")
	buyerToken, _ := registerAndLogin(t, ta.app, "buyer1", models.RoleBuyer)
	sellerToken, _ := registerAndLogin(t, ta.app, "seller1", models.RoleSeller)
	adminToken, _ := registerAndLogin(t, ta.app, "admin1", models.RoleAdmin)
	productID := createApprovedProduct(t, ta.app, sellerToken, adminToken, 1000, 10)

	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(productID, 1))
	require.Equal(t, http.StatusCreated, status)
	orderID := body["id"].(string)

	// A buyer cannot confirm.
	status, body = doJSON(t, ta.app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", buyerToken, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	// Skipping confirmation is a conflict.
	status, body = doJSON(t, ta.app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", body["code"])

	// confirmed -> shipped (with tracking) -> delivered, driven by the seller.
	status, _ = doJSON(t, ta.app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", sellerToken, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, status)
	status, body = doJSON(t, ta.app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", sellerToken, map[string]string{
		"status": "shipped", "tracking_code": "TRK-123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "TRK-123", body["tracking_code"])
	assert.NotEmpty(t, body["shipped_at"])
	status, body = doJSON(t, ta.app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", sellerToken, map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "delivered", body["status"])
	assert.NotEmpty(t, body["delivered_at"])
}

func TestOrderCancellationRestoresStock(t *testing.T) {
	ta := setupApp(t, "http://esewa.invalid")
	buyerToken, _ := registerAndLogin(t, ta.app, "buyer1", models.RoleBuyer)
	sellerToken, _ := registerAndLogin(t, ta.app, "seller1", models.RoleSeller)
	adminToken, _ := registerAndLogin(t, ta.app, "admin1", models.RoleAdmin)
	productID := createApprovedProduct(t, ta.app, sellerToken, adminToken, 1000, 10)

	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(productID, 3))
	require.Equal(t, http.StatusCreated, status)
	orderID := body["id"].(string)

	status, body = doJSON(t, ta.app, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", buyerToken, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", body["status"])
	assert.NotEmpty(t, body["cancelled_at"])

	status, body = doJSON(t, ta.app, http.MethodGet, "/api/v1/products/"+productID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 10.0, body["stock"])
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	// Scripted eSewa status endpoint.
	esewaStatus := "COMPLETE"
	var esewaAmount float64
	esewaServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/epay/transaction/status/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"product_code":     "EPAYTEST",
			"transaction_uuid": r.URL.Query().Get("transaction_uuid"),
			"total_amount":     esewaAmount,
			"status":           esewaStatus,
			"ref_id":           "0001AB",
		})
	}))
	defer esewaServer.Close()

	ta := setupApp(t, esewaServer.URL)
	buyerToken, _ := registerAndLogin(t, ta.app, "buyer1", models.RoleBuyer)
	sellerToken, _ := registerAndLogin(t, ta.app, "seller1", models.RoleSeller)
	adminToken, _ := registerAndLogin(t, ta.app, "admin1", models.RoleAdmin)
	productID := createApprovedProduct(t, ta.app, sellerToken, adminToken, 1000, 10)

	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(productID, 2))
	require.Equal(t, http.StatusCreated, status)
	orderID := body["id"].(string)
	esewaAmount = body["total_amount"].(float64)

	// The claimed amount must match the stored total.
	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/payments/initiate", buyerToken, map[string]interface{}{
		"order_id": orderID, "amount": 999.0,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "AMOUNT_MISMATCH", body["code"])

	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/payments/initiate", buyerToken, map[string]interface{}{
		"order_id": orderID, "amount": esewaAmount,
	})
	require.Equal(t, http.StatusOK, status, "initiate: %v", body)
	transactionRef := body["transaction_ref"].(string)
	require.NotEmpty(t, transactionRef)
	assert.Contains(t, body["payment_url"], "/api/epay/main/v2/form")

	// The provider redirects the buyer's browser to the public callback.
	callback := fmt.Sprintf("/api/v1/payments/esewa/callback?order_id=%s&transaction_uuid=%s",
		url.QueryEscape(orderID), url.QueryEscape(transactionRef))
	status, body = doJSON(t, ta.app, http.MethodGet, callback, "", nil)
	require.Equal(t, http.StatusOK, status, "callback: %v", body)
	assert.Equal(t, true, body["verified"])

	// The verified payment confirmed the order.
	status, body = doJSON(t, ta.app, http.MethodGet, "/api/v1/orders/"+orderID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, "completed", body["payment_status"])

	// Duplicate callbacks replay the stored outcome.
	status, body = doJSON(t, ta.app, http.MethodGet, callback, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["verified"])

	attempt, err := ta.payments.FindByTransaction(orderID, models.MethodEsewa, transactionRef)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, attempt.Status)
}

func TestPaymentFailureOverHTTP(t *testing.T) {
	esewaServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transaction_uuid": r.URL.Query().Get("transaction_uuid"),
			"total_amount":     0.0,
			"status":           "CANCELED",
		})
	}))
	defer esewaServer.Close()

	ta := setupApp(t, esewaServer.URL)
	buyerToken, _ := registerAndLogin(t, ta.app, "buyer1", models.RoleBuyer)
	sellerToken, _ := registerAndLogin(t, ta.app, "seller1", models.RoleSeller)
	adminToken, _ := registerAndLogin(t, ta.app, "admin1", models.RoleAdmin)
	productID := createApprovedProduct(t, ta.app, sellerToken, adminToken, 1000, 10)

	status, body := doJSON(t, ta.app, http.MethodPost, "/api/v1/orders/", buyerToken, orderPayload(productID, 1))
	require.Equal(t, http.StatusCreated, status)
	orderID := body["id"].(string)
	total := body["total_amount"].(float64)

	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/payments/initiate", buyerToken, map[string]interface{}{
		"order_id": orderID, "amount": total,
	})
	require.Equal(t, http.StatusOK, status)
	transactionRef := body["transaction_ref"].(string)

	status, body = doJSON(t, ta.app, http.MethodPost, "/api/v1/payments/verify", buyerToken, map[string]interface{}{
		"order_id": orderID, "gateway": "esewa", "transaction_ref": transactionRef,
	})
	require.Equal(t, http.StatusOK, status, "verify: %v", body)
	assert.Equal(t, false, body["verified"])

	// The failed capture leaves the order pending for a retry or cancel.
	status, body = doJSON(t, ta.app, http.MethodGet, "/api/v1/orders/"+orderID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "failed", body["payment_status"])

	// A callback missing its parameters is rejected up front.
	status, body = doJSON(t, ta.app, http.MethodGet, "/api/v1/payments/esewa/callback?order_id="+orderID, "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_CALLBACK", body["code"])
}
