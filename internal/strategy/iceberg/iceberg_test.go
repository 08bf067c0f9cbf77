package iceberg

import (
	"testing"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/algo/algotest"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type IcebergTestSuite struct {
	suite.Suite
}

func TestIcebergTestSuite(t *testing.T) {
	suite.Run(t, new(IcebergTestSuite))
}

func sellParams() map[string]any {
	return map[string]any{
		"symbol":         "BTCUSDT",
		"amount":         -0.5,
		"sliceAmount":    -0.1,
		"price":          30000.0,
		"excessAsHidden": true,
	}
}

func (s *IcebergTestSuite) TestGenerateOrdersExcessAsHidden() {
	p := &Params{Symbol: "BTCUSDT", Amount: 1, SliceAmount: 0.1, Price: 100, ExcessAsHidden: true}

	orders := GenerateOrders(p, 7, 1)
	s.Require().Len(orders, 2)

	s.True(orders[0].Hidden)
	s.Equal(0.9, orders[0].Amount)
	s.Equal(LabelHidden, orders[0].Label)

	s.False(orders[1].Hidden)
	s.Equal(0.1, orders[1].Amount)
	s.Equal(LabelSlice, orders[1].Label)

	for _, o := range orders {
		s.Equal(int64(7), o.GID)
		s.Equal(types.OrderTypeLimit, o.Type)
		s.Equal(100.0, o.PriceOr(0))
	}
}

func (s *IcebergTestSuite) TestGenerateOrdersCapsSliceAtRemaining() {
	p := &Params{Symbol: "BTCUSDT", Amount: 1, SliceAmount: 0.1, Price: 100, ExcessAsHidden: true}

	orders := GenerateOrders(p, 1, 0.05)
	s.Require().Len(orders, 1)
	s.Equal(0.05, orders[0].Amount)
	s.False(orders[0].Hidden)
}

func (s *IcebergTestSuite) TestGenerateOrdersWithoutExcess() {
	p := &Params{Symbol: "BTCUSDT", Amount: -1, SliceAmount: -0.25, Price: 100, ExcessAsHidden: false}

	orders := GenerateOrders(p, 1, -1)
	s.Require().Len(orders, 1)
	s.Equal(-0.25, orders[0].Amount)

	s.Empty(GenerateOrders(p, 1, -0.000000001))
}

func (s *IcebergTestSuite) TestSignInvariant() {
	p := &Params{Symbol: "BTCUSDT", Amount: -3, SliceAmount: -0.7, Price: 100, ExcessAsHidden: true}

	for _, remaining := range []float64{-3, -1.4, -0.7, -0.2} {
		for _, o := range GenerateOrders(p, 1, remaining) {
			s.Negative(o.Amount)
		}
	}
}

func (s *IcebergTestSuite) TestRejectsMixedSigns() {
	params := sellParams()
	params["sliceAmount"] = 0.1

	_, err := algo.InitInstance(Definition, params, algo.NewGIDGenerator())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *IcebergTestSuite) TestEndToEnd() {
	rec := algotest.New(s.T(), Definition, sellParams())
	rec.Start()

	first := rec.LastSubmit()
	s.Require().Len(first, 2)
	s.True(first[0].Hidden)
	s.Equal(-0.4, first[0].Amount)
	s.Equal(-0.1, first[1].Amount)

	rec.AckSubmitted()
	rec.FillAll(first[1].CID)

	s.Equal([]string{"exec:order:submit:all", "exec:order:cancel:all"}, rec.Log)
	s.Require().Len(rec.Cancels, 1)
	s.Equal(first[0].CID, rec.Cancels[0].Orders[0].CID)
	s.Equal(-0.4, data(rec.Inst).RemainingAmount)

	s.Require().True(rec.Fire(eventSubmitOrders))

	second := rec.LastSubmit()
	s.Require().Len(second, 2)
	s.Equal(-0.3, second[0].Amount)
	s.Equal(-0.1, second[1].Amount)

	for i := 0; i < 10 && !rec.Inst.Stopping(); i++ {
		rec.ConfirmCancels()
		rec.AckSubmitted()

		batch := rec.LastSubmit()
		rec.FillAll(batch[len(batch)-1].CID)

		if !rec.Inst.Stopping() {
			s.Require().True(rec.Fire(eventSubmitOrders))
		}
	}

	s.True(rec.Inst.Stopping())
	s.True(types.IsDust(data(rec.Inst).RemainingAmount))
	s.Len(rec.Stops, 1)
	// the last fill completes the iceberg without another submission
	s.Equal([]string{"exec:notify", "exec:stop"}, rec.Log[len(rec.Log)-2:])
	s.Empty(rec.Timers())
	s.False(rec.Inst.State.Active)

	s.Require().Len(rec.Notifies, 1)
	s.Equal(algo.NotifySuccess, rec.Notifies[0].Level)
}

func (s *IcebergTestSuite) TestFillsInOneWindowResubmitOnce() {
	rec := algotest.New(s.T(), Definition, sellParams())
	rec.Start()
	rec.AckSubmitted()

	first := rec.LastSubmit()
	rec.Fill(first[0].CID, -0.1)
	rec.FillAll(first[1].CID)

	s.Len(rec.Timers(), 1)
	s.Len(rec.Cancels, 1)
	s.Equal(-0.3, data(rec.Inst).RemainingAmount)

	s.True(rec.Fire(eventSubmitOrders))
	s.False(rec.Fire(eventSubmitOrders))
	s.Len(rec.Submits, 2)
}

func (s *IcebergTestSuite) TestExternalCancelStopsOnce() {
	rec := algotest.New(s.T(), Definition, sellParams())
	rec.Start()
	rec.AckSubmitted()

	first := rec.LastSubmit()
	rec.CancelExternally(first[0].CID)
	rec.CancelExternally(first[1].CID)

	s.Len(rec.Stops, 1)
	s.Require().Len(rec.Notifies, 1)
	s.Equal(algo.NotifyError, rec.Notifies[0].Level)
	s.Require().Len(rec.Cancels, 1)
	s.Equal(first[1].CID, rec.Cancels[0].Orders[0].CID)

	// the notification is sent before anything is cancelled in teardown
	s.Equal([]string{"exec:order:submit:all", "exec:order:cancel:all", "exec:notify", "exec:stop"}, rec.Log)

	rec.RunTeardowns()
	s.Empty(rec.TeardownCancels)
}

func (s *IcebergTestSuite) TestResumeWithOpenOrdersDoesNotResubmit() {
	rec := algotest.New(s.T(), Definition, sellParams())
	rec.Start()
	rec.AckSubmitted()
	s.Require().NotEmpty(rec.Persisted)

	record := rec.Persisted[len(rec.Persisted)-1]
	s.Len(record.Orders, 2)

	inst, err := algo.Restore(Definition, record, algo.NewGIDGenerator())
	s.Require().NoError(err)

	resumed := algotest.Bind(s.T(), inst)
	s.Require().NoError(inst.Declare(s.T().Context()))
	resumed.Deliver(algo.LifeStart{Resumed: true})

	s.Empty(resumed.Submits)
	s.Equal(-0.5, data(inst).RemainingAmount)
	s.Len(inst.OpenOrders(), 2)
}

func (s *IcebergTestSuite) TestPreviewAndLabel() {
	orders, err := Definition.Preview(sellParams())
	s.Require().NoError(err)
	s.Len(orders, 2)

	inst, err := algo.InitInstance(Definition, sellParams(), algo.NewGIDGenerator())
	s.Require().NoError(err)
	s.Equal("Iceberg | -0.5 @ 30000 | slice -0.1", inst.State.Label)

	p, _ := inst.State.Args.(*Params)
	s.Equal(50, p.ResubmitWindowMs)
}
