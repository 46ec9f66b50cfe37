package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/askhat/go-shop-store/internal/config"
	"github.com/askhat/go-shop-store/internal/database"
	"github.com/askhat/go-shop-store/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	mux := http.NewServeMux()

	mux.HandleFunc("/categories", handleCategories(db))
	mux.HandleFunc("/categories/", handleCategoryByID(db))
	mux.HandleFunc("/products", handleProducts(db))
	mux.HandleFunc("/products/", handleProductByID(db))
	mux.HandleFunc("/customers", handleCustomers(db))
	mux.HandleFunc("/customers/", handleCustomerByID(db))
	mux.HandleFunc("/login", handleLogin(db))
	mux.HandleFunc("/orders", handleOrders(db))
	mux.HandleFunc("/orders/", handleOrderByID(db))
	mux.HandleFunc("/order-items/", handleOrderItemByID(db))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func handleCategories(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				ParentID    *int64 `json:"parent_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			category, err := store.CreateCategory(ctx, db, req.Name, req.Description, req.ParentID)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, category)

		case http.MethodGet:
			categories, err := store.ListRootCategories(ctx, db)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, categories)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCategoryByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, err := parseIDPath(r.URL.Path, "/categories/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid category ID")
			return
		}

		switch rest {
		case "children":
			categories, err := store.ListChildCategories(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, categories)
			return

		case "products":
			page, pageSize := parsePaging(r)
			result, err := store.ListProductsByCategory(ctx, db, id, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, result)
			return
		}

		switch r.Method {
		case http.MethodGet:
			category, err := store.GetCategory(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, category)

		case http.MethodDelete:
			if err := store.DeleteCategory(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Price       string `json:"price"`
				Stock       int    `json:"stock"`
				CategoryID  int64  `json:"category_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			price, err := decimal.NewFromString(req.Price)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid price")
				return
			}

			product, err := store.CreateProduct(ctx, db, req.Name, req.Description, price, req.Stock, req.CategoryID)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, pageSize := parsePaging(r)
			result, err := store.ListProducts(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, err := parseIDPath(r.URL.Path, "/products/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch rest {
		case "reviews":
			switch r.Method {
			case http.MethodPost:
				var req struct {
					CustomerID int64  `json:"customer_id"`
					Rating     int    `json:"rating"`
					Body       string `json:"body"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					respondError(w, http.StatusBadRequest, "Invalid request body")
					return
				}

				review, err := store.AddReview(ctx, db, id, req.CustomerID, req.Rating, req.Body)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusCreated, review)

			case http.MethodGet:
				reviews, err := store.ListProductReviews(ctx, db, id)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusOK, reviews)

			default:
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
			return

		case "rating":
			avg, err := store.ProductAverageRating(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"average_rating": avg})
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodDelete:
			if err := store.DeleteProduct(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCustomers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Email     string `json:"email"`
				FullName  string `json:"full_name"`
				Password  string `json:"password"`
				BirthDate string `json:"birth_date"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var birthDate *time.Time
			if req.BirthDate != "" {
				parsed, err := time.Parse("2006-01-02", req.BirthDate)
				if err != nil {
					respondError(w, http.StatusBadRequest, "Invalid birth date")
					return
				}
				birthDate = &parsed
			}

			customer, err := store.RegisterCustomer(ctx, db, req.Email, req.FullName, req.Password, birthDate)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, customer)

		case http.MethodGet:
			page, pageSize := parsePaging(r)
			result, err := store.ListCustomers(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCustomerByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := strings.TrimPrefix(r.URL.Path, "/customers/")

		// Numeric keys look up by ID, anything else by slug.
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			customer, err := store.GetCustomer(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, customer)
			return
		}

		customer, err := store.GetCustomerBySlug(ctx, db, key)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, customer)
	}
}

func handleLogin(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		customer, err := store.Authenticate(ctx, db, req.Email, req.Password)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, customer)
	}
}

func handleOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				CustomerID int64 `json:"customer_id"`
				Items      []struct {
					ProductID int64 `json:"product_id"`
					Quantity  int   `json:"quantity"`
				} `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var items []store.OrderItemRequest
			for _, item := range req.Items {
				items = append(items, store.OrderItemRequest{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
				})
			}

			order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				CustomerID: req.CustomerID,
				Items:      items,
			})
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, order)

		case http.MethodGet:
			customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid customer ID")
				return
			}

			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit < 1 || limit > 100 {
				limit = 20
			}

			result, err := store.ListOrdersCursor(ctx, db, customerID, r.URL.Query().Get("cursor"), limit)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, rest, err := parseIDPath(r.URL.Path, "/orders/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		switch rest {
		case "items":
			switch r.Method {
			case http.MethodPost:
				var req struct {
					ProductID int64 `json:"product_id"`
					Quantity  int   `json:"quantity"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					respondError(w, http.StatusBadRequest, "Invalid request body")
					return
				}

				item, err := store.AddOrderItem(ctx, db, id, req.ProductID, req.Quantity)
				if err != nil {
					respondStoreError(w, err)
					return
				}
				respondJSON(w, http.StatusCreated, item)

			case http.MethodDelete:
				if err := store.ClearOrderItems(ctx, db, id); err != nil {
					respondStoreError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)

			default:
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
			return

		case "status":
			if r.Method != http.MethodPut {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}

			var req struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			if err := store.UpdateOrderStatus(ctx, db, id, req.Status); err != nil {
				respondStoreError(w, err)
				return
			}

			order, err := store.GetOrder(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)
			return

		case "recompute":
			if r.Method != http.MethodPost {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}

			total, err := store.RecomputeOrderTotal(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
			return
		}

		switch r.Method {
		case http.MethodGet:
			order, err := store.GetOrder(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case http.MethodDelete:
			if err := store.DeleteOrder(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderItemByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, _, err := parseIDPath(r.URL.Path, "/order-items/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order item ID")
			return
		}

		switch r.Method {
		case http.MethodPut:
			var req struct {
				Quantity int `json:"quantity"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			item, err := store.UpdateOrderItemQuantity(ctx, db, id, req.Quantity)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, item)

		case http.MethodDelete:
			if err := store.RemoveOrderItem(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// parseIDPath splits "/orders/42/items" into (42, "items"). rest is
// empty when the path carries only the ID.
func parseIDPath(path, prefix string) (int64, string, error) {
	trimmed := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(trimmed, "/", 2)

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", err
	}

	if len(parts) == 2 {
		return id, parts[1], nil
	}
	return id, "", nil
}

func parsePaging(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func respondStoreError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrOrderItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrDuplicateEmail),
		errors.Is(err, database.ErrDuplicateProduct),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict
	case errors.Is(err, database.ErrInvalidEmail),
		errors.Is(err, database.ErrInvalidRating),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, database.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
