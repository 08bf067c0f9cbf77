package algo

import (
	"encoding/json"
	"sort"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/version"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// State is the runtime state of an instance. It is only touched from the instance event loop.
type State struct {
	GID    int64
	ID     string
	Name   string
	Label  string
	Active bool
	// Args are the validated and processed parameters, a pointer to the definition's params struct.
	Args     any
	Channels []types.Channel
	// Orders are the open orders keyed by cid.
	Orders          map[string]types.Order
	CancelledOrders map[string]types.Order
	AllOrders       map[string]types.Order
	// Data is the strategy specific state returned by Meta.InitState.
	Data any
}

func newState(def *Definition, gid int64, args, data any) *State {
	return &State{
		GID:             gid,
		ID:              def.ID,
		Name:            def.Name,
		Label:           def.Name,
		Active:          true,
		Args:            args,
		Channels:        nil,
		Orders:          make(map[string]types.Order),
		CancelledOrders: make(map[string]types.Order),
		AllOrders:       make(map[string]types.Order),
		Data:            data,
	}
}

// OpenOrders returns the open orders sorted by creation time.
func (s *State) OpenOrders() []types.Order {
	orders := make([]types.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		orders = append(orders, o)
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CID < orders[j].CID
		}

		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders
}

// Record is the persisted form of an instance.
type Record struct {
	ID      string                 `json:"id"`
	GID     int64                  `json:"gid"`
	Name    string                 `json:"name"`
	Label   string                 `json:"label"`
	Active  bool                   `json:"active"`
	Version string                 `json:"version"`
	Args    json.RawMessage        `json:"args"`
	Orders  map[string]types.Order `json:"orders,omitempty"`
	State   json.RawMessage        `json:"state"`
}

// DefaultSerialize writes args and the strategy data as JSON.
func DefaultSerialize(state *State) (Record, error) {
	args, err := json.Marshal(state.Args)
	if err != nil {
		return Record{}, errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to serialize args of %d", state.GID)
	}

	data, err := json.Marshal(state.Data)
	if err != nil {
		return Record{}, errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to serialize state of %d", state.GID)
	}

	orders := make(map[string]types.Order, len(state.Orders))
	for cid, o := range state.Orders {
		orders[cid] = o
	}

	return Record{
		ID:      state.ID,
		GID:     state.GID,
		Name:    state.Name,
		Label:   state.Label,
		Active:  state.Active,
		Version: version.GetVersion(),
		Args:    args,
		Orders:  orders,
		State:   data,
	}, nil
}

// Serialize uses Meta.Serialize when set and DefaultSerialize otherwise.
func (d *Definition) Serialize(state *State) (Record, error) {
	if d.Meta.Serialize != nil {
		return d.Meta.Serialize(state)
	}

	return DefaultSerialize(state)
}

// Unserialize rebuilds a State from a record. Args are decoded as already processed;
// strategy data is initialized from them and then overlaid with the persisted fields.
func (d *Definition) Unserialize(rec Record) (*State, error) {
	if rec.ID != d.ID {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "record %d belongs to %s, not %s", rec.GID, rec.ID, d.ID)
	}

	if err := version.CheckVersionCompatibility(version.GetVersion(), rec.Version); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeVersionMismatch, err, "record %d was written by an incompatible version", rec.GID)
	}

	if d.Meta.Unserialize != nil {
		return d.Meta.Unserialize(rec)
	}

	args := d.Meta.NewParams()
	if len(rec.Args) > 0 {
		if err := json.Unmarshal(rec.Args, args); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to decode args of %d", rec.GID)
		}
	}

	data, err := d.Meta.InitState(args)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "failed to init state of %d", rec.GID)
	}

	if len(rec.State) > 0 && data != nil {
		if err := json.Unmarshal(rec.State, data); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to decode state of %d", rec.GID)
		}
	}

	state := newState(d, rec.GID, args, data)
	state.Label = rec.Label
	state.Active = rec.Active

	for cid, o := range rec.Orders {
		state.Orders[cid] = o
		state.AllOrders[cid] = o
	}

	return state, nil
}
