package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/askhat/go-shop-store/internal/database"
	"github.com/askhat/go-shop-store/internal/models"
	"github.com/askhat/go-shop-store/internal/store"
)

func TestCreateOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders1@example.com")
	category := createTestCategory(t, db, "Electronics", nil)
	product1 := createTestProduct(t, db, category.ID, "Keyboard", "100.00", 50)
	product2 := createTestProduct(t, db, category.ID, "Mouse", "200.00", 30)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		CustomerID: customer.ID,
		Items: []store.OrderItemRequest{
			{ProductID: product1.ID, Quantity: 5},
			{ProductID: product2.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}
	if order.OrderNumber == "" {
		t.Error("Order number should not be empty")
	}
	if order.Status != models.OrderStatusProcessing {
		t.Errorf("Expected status %q, got %q", models.OrderStatusProcessing, order.Status)
	}

	expectedTotal := decimal.RequireFromString("1100.00")
	if !order.Total.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, order.Total)
	}

	product1After, err := store.GetProduct(ctx, db, product1.ID)
	if err != nil {
		t.Fatalf("Get product 1: %v", err)
	}
	if product1After.StockQuantity != 45 {
		t.Errorf("Expected product 1 stock 45, got %d", product1After.StockQuantity)
	}

	product2After, err := store.GetProduct(ctx, db, product2.ID)
	if err != nil {
		t.Fatalf("Get product 2: %v", err)
	}
	if product2After.StockQuantity != 27 {
		t.Errorf("Expected product 2 stock 27, got %d", product2After.StockQuantity)
	}
}

func TestCreateOrderUnknownCustomer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{CustomerID: 9999})
	if !errors.Is(err, database.ErrCustomerNotFound) {
		t.Errorf("Expected customer not found, got: %v", err)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders2@example.com")
	category := createTestCategory(t, db, "Garden", nil)
	product := createTestProduct(t, db, category.ID, "Shovel", "100.00", 5)

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		CustomerID: customer.ID,
		Items: []store.OrderItemRequest{
			{ProductID: product.ID, Quantity: 10},
		},
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 5 {
		t.Errorf("Stock should remain unchanged at 5, got %d", productAfter.StockQuantity)
	}
}

func TestConcurrentOrderCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders3@example.com")
	category := createTestCategory(t, db, "Sports", nil)
	product := createTestProduct(t, db, category.ID, "Ball", "100.00", 20)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				CustomerID: customer.ID,
				Items: []store.OrderItemRequest{
					{ProductID: product.ID, Quantity: 2},
				},
			})

			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Logf("Unexpected error: %v", err)
		}
	}

	if successCount != concurrency {
		t.Errorf("Expected %d successful orders, got %d", concurrency, successCount)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}

	expectedStock := 20 - (successCount * 2)
	if productAfter.StockQuantity != expectedStock {
		t.Errorf("Expected final stock %d, got %d", expectedStock, productAfter.StockQuantity)
	}
}

func TestUpdateOrderItemQuantity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders4@example.com")
	category := createTestCategory(t, db, "Music", nil)
	product := createTestProduct(t, db, category.ID, "Record", "25.00", 10)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{CustomerID: customer.ID})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	item, err := store.AddOrderItem(ctx, db, order.ID, product.ID, 2)
	if err != nil {
		t.Fatalf("Add order item: %v", err)
	}

	updated, err := store.UpdateOrderItemQuantity(ctx, db, item.ID, 4)
	if err != nil {
		t.Fatalf("Update quantity: %v", err)
	}

	if updated.Quantity != 4 {
		t.Errorf("Expected quantity 4, got %d", updated.Quantity)
	}
	if !updated.ItemPrice.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("Expected item price 100.00, got %s", updated.ItemPrice)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !after.Total.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("Expected total 100.00, got %s", after.Total)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 6 {
		t.Errorf("Expected stock 6, got %d", productAfter.StockQuantity)
	}

	if _, err := store.UpdateOrderItemQuantity(ctx, db, item.ID, 0); !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity error, got: %v", err)
	}

	if _, err := store.UpdateOrderItemQuantity(ctx, db, item.ID, 100); !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}
}

func TestRemoveOrderItem(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders5@example.com")
	category := createTestCategory(t, db, "Kitchen", nil)
	pan := createTestProduct(t, db, category.ID, "Pan", "30.00", 10)
	pot := createTestProduct(t, db, category.ID, "Pot", "45.00", 10)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		CustomerID: customer.ID,
		Items: []store.OrderItemRequest{
			{ProductID: pan.ID, Quantity: 1},
			{ProductID: pot.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	full, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if len(full.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(full.Items))
	}

	var potItemID int64
	for _, item := range full.Items {
		if item.ProductID == pot.ID {
			potItemID = item.ID
		}
	}

	if err := store.RemoveOrderItem(ctx, db, potItemID); err != nil {
		t.Fatalf("Remove order item: %v", err)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if len(after.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(after.Items))
	}
	if !after.Total.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("Expected total 30.00, got %s", after.Total)
	}

	potAfter, err := store.GetProduct(ctx, db, pot.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if potAfter.StockQuantity != 10 {
		t.Errorf("Expected pot stock restored to 10, got %d", potAfter.StockQuantity)
	}

	if err := store.RemoveOrderItem(ctx, db, potItemID); !errors.Is(err, database.ErrOrderItemNotFound) {
		t.Errorf("Expected order item not found, got: %v", err)
	}
}

func TestDeleteOrderCascades(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders6@example.com")
	category := createTestCategory(t, db, "Toys", nil)
	product := createTestProduct(t, db, category.ID, "Robot", "60.00", 8)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		CustomerID: customer.ID,
		Items: []store.OrderItemRequest{
			{ProductID: product.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if err := store.DeleteOrder(ctx, db, order.ID); err != nil {
		t.Fatalf("Delete order: %v", err)
	}

	if _, err := store.GetOrder(ctx, db, order.ID); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected order not found, got: %v", err)
	}

	var itemCount int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM order_items WHERE order_id = $1",
		order.ID).Scan(&itemCount)
	if err != nil {
		t.Fatalf("Count order items: %v", err)
	}
	if itemCount != 0 {
		t.Errorf("Expected order items deleted with order, found %d", itemCount)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 8 {
		t.Errorf("Expected stock restored to 8, got %d", productAfter.StockQuantity)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders7@example.com")

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{CustomerID: customer.ID})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusShipping); err != nil {
		t.Fatalf("Update status: %v", err)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.Status != models.OrderStatusShipping {
		t.Errorf("Expected status %q, got %q", models.OrderStatusShipping, after.Status)
	}

	if err := store.UpdateOrderStatus(ctx, db, order.ID, "cancelled"); !errors.Is(err, database.ErrInvalidStatus) {
		t.Errorf("Expected invalid status error, got: %v", err)
	}

	if err := store.UpdateOrderStatus(ctx, db, 9999, models.OrderStatusDelivered); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected order not found, got: %v", err)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := createTestCustomer(t, db, "orders8@example.com")
	category := createTestCategory(t, db, "Stationery", nil)
	product := createTestProduct(t, db, category.ID, "Pen", "2.00", 100)

	for i := 0; i < 15; i++ {
		_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
			CustomerID: customer.ID,
			Items: []store.OrderItemRequest{
				{ProductID: product.ID, Quantity: 1},
			},
		})
		if err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	page1, err := store.ListOrdersCursor(ctx, db, customer.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersCursor(ctx, db, customer.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}

	if page2.HasMore {
		t.Error("Page 2 should be the last page")
	}

	page2Orders, ok := page2.Items.([]models.Order)
	if !ok {
		t.Fatalf("Unexpected items type %T", page2.Items)
	}
	if len(page2Orders) != 5 {
		t.Errorf("Expected 5 orders on page 2, got %d", len(page2Orders))
	}
}
