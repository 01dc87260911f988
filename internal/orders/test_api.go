package orders

import (
	"context"
	"sort"
	"time"
)

// TestApi is an in-memory Api used in handler tests
type TestApi struct {
	orders map[int]*Order
	nextID int

	// when set, every call fails with this error
	Err error
}

func NewTestApi() *TestApi {
	return &TestApi{
		orders: make(map[int]*Order),
		nextID: 1,
	}
}

func (api *TestApi) Create(_ context.Context, order *Order) (*Order, error) {
	if api.Err != nil {
		return nil, api.Err
	}

	now := time.Now()
	stored := *order
	stored.ID = api.nextID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	api.nextID++

	stored.Items = make([]OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.ID = api.nextID
		item.OrderID = stored.ID
		api.nextID++
		stored.Items[i] = item
	}

	api.orders[stored.ID] = &stored
	return api.Get(context.Background(), stored.ID)
}

func (api *TestApi) UpdateStatus(ctx context.Context, orderID int, status Status) (*Order, error) {
	if api.Err != nil {
		return nil, api.Err
	}

	order, ok := api.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	return api.Get(ctx, orderID)
}

func (api *TestApi) Get(_ context.Context, orderID int) (*Order, error) {
	if api.Err != nil {
		return nil, api.Err
	}

	order, ok := api.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	orderCopy := *order
	return &orderCopy, nil
}

func (api *TestApi) List(context.Context) ([]Order, error) {
	if api.Err != nil {
		return nil, api.Err
	}

	var orders []Order
	for _, o := range api.orders {
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}
