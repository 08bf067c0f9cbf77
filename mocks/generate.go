package mocks

//go:generate mockgen -destination=./mock_connectivity.go -package=mocks github.com/rxtech-lab/argo-algo/internal/exchange Connectivity
//go:generate mockgen -destination=./mock_notifier.go -package=mocks github.com/rxtech-lab/argo-algo/internal/host Notifier
//go:generate mockgen -destination=./mock_state_store.go -package=mocks github.com/rxtech-lab/argo-algo/internal/storage StateStore
//go:generate mockgen -destination=./mock_signal_store.go -package=mocks github.com/rxtech-lab/argo-algo/internal/tracer Store
