package orders

import "context"

var _ Api = (*Repo)(nil)
var _ Api = (*TestApi)(nil)

type Api interface {
	Create(ctx context.Context, order *Order) (*Order, error)
	UpdateStatus(ctx context.Context, orderID int, status Status) (*Order, error)
	Get(ctx context.Context, orderID int) (*Order, error)
	List(ctx context.Context) ([]Order, error)
}
